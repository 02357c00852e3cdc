package opc

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// Relationships XML as written into _rels/*.rels entries and Flat OPC
// relationship parts. The shape follows ECMA-376 part 2.
type relationshipsXML struct {
	XMLName xml.Name          `xml:"Relationships"`
	Xmlns   string            `xml:"xmlns,attr"`
	Rels    []relationshipXML `xml:"Relationship"`
}

type relationshipXML struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// encodeRelationships serializes rels in relationship-id order.
func encodeRelationships(rels []Relationship) ([]byte, error) {
	doc := relationshipsXML{Xmlns: relationshipsNS}
	for _, r := range sortRelationships(rels) {
		out := relationshipXML{ID: r.ID, Type: r.Type, Target: r.Target}
		if r.External {
			out.TargetMode = "External"
		}
		doc.Rels = append(doc.Rels, out)
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), body...), nil
}

func parseRelationships(data []byte, wrap error) ([]Relationship, error) {
	var doc relationshipsXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: relationships: %v", wrap, err)
	}
	rels := make([]Relationship, 0, len(doc.Rels))
	seen := make(map[string]struct{}, len(doc.Rels))
	for _, r := range doc.Rels {
		if r.ID == "" || r.Type == "" || r.Target == "" {
			return nil, fmt.Errorf("%w: relationships: incomplete Relationship", wrap)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: relationships: duplicate id %q", wrap, r.ID)
		}
		seen[r.ID] = struct{}{}
		rels = append(rels, Relationship{
			ID:       r.ID,
			Type:     r.Type,
			Target:   r.Target,
			External: r.TargetMode == "External",
		})
	}
	return rels, nil
}

// relsPartName returns the rels entry name for a source: "/_rels/.rels" for
// the package root, "/word/_rels/document.xml.rels" for "/word/document.xml".
func relsPartName(source string) string {
	if source == "" {
		return "/_rels/.rels"
	}
	dir, base := path.Split(source)
	return dir + "_rels/" + base + ".rels"
}

// isRelsPartName reports whether name is a rels entry and, if so, which
// source it belongs to.
func isRelsPartName(name string) (source string, ok bool) {
	dir, base := path.Split(name)
	rest, ok := strings.CutSuffix(base, ".rels")
	if !ok || !strings.HasSuffix(dir, "_rels/") {
		return "", false
	}
	parent := strings.TrimSuffix(dir, "_rels/")
	if rest == "" {
		if parent == "/" {
			return "", true // package root
		}
		return "", false
	}
	return parent + rest, true
}
