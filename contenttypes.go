package opc

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// [Content_Types].xml on the wire.
type contentTypesXML struct {
	XMLName   xml.Name     `xml:"Types"`
	Xmlns     string       `xml:"xmlns,attr"`
	Defaults  []ctDefault  `xml:"Default"`
	Overrides []ctOverride `xml:"Override"`
}

type ctDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type ctOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

// contentTypeMap is the decoded default/override table.
type contentTypeMap struct {
	defaults  map[string]string // extension (lowercase) -> content type
	overrides map[string]string // exact part name -> content type
}

func parseContentTypes(data []byte) (*contentTypeMap, error) {
	var doc contentTypesXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: content types: %v", ErrMalformedContainer, err)
	}
	m := &contentTypeMap{
		defaults:  make(map[string]string, len(doc.Defaults)),
		overrides: make(map[string]string, len(doc.Overrides)),
	}
	for _, d := range doc.Defaults {
		if d.Extension == "" || d.ContentType == "" {
			return nil, fmt.Errorf("%w: content types: incomplete Default", ErrMalformedContainer)
		}
		m.defaults[strings.ToLower(d.Extension)] = d.ContentType
	}
	for _, o := range doc.Overrides {
		if o.PartName == "" || o.ContentType == "" {
			return nil, fmt.Errorf("%w: content types: incomplete Override", ErrMalformedContainer)
		}
		m.overrides[o.PartName] = o.ContentType
	}
	return m, nil
}

// resolve returns the content type for a part name: exact Override first,
// then Default by extension.
func (m *contentTypeMap) resolve(name string) (string, error) {
	if ct, ok := m.overrides[name]; ok {
		return ct, nil
	}
	if ct, ok := m.defaults[partExtension(name)]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: no content type for part %q", ErrMalformedContainer, name)
}

// partExtension returns the lowercase extension of a part name's final
// segment, or "" when it has none.
func partExtension(name string) string {
	seg := name
	if i := strings.LastIndexByte(seg, '/'); i >= 0 {
		seg = seg[i+1:]
	}
	i := strings.LastIndexByte(seg, '.')
	if i < 0 || i == len(seg)-1 {
		return ""
	}
	return strings.ToLower(seg[i+1:])
}

// buildContentTypes synthesizes the content-types stream for parts. Per
// extension the majority content type becomes the Default (ties broken
// lexicographically) and the minority parts get Overrides; extensionless
// parts are always Overrides. The "rels" Default is pinned because the
// encoder emits relationships entries itself.
func buildContentTypes(parts []*Part) ([]byte, error) {
	byExt := make(map[string][]*Part)
	var overrides []ctOverride
	for _, part := range parts {
		ext := partExtension(part.name)
		if ext == "" {
			overrides = append(overrides, ctOverride{PartName: part.name, ContentType: part.contentType})
			continue
		}
		byExt[ext] = append(byExt[ext], part)
	}

	defaults := map[string]string{"rels": RelationshipsContentType}
	for ext, group := range byExt {
		if ext == "rels" {
			continue // pinned default; dissenters become overrides below
		}
		counts := make(map[string]int)
		for _, part := range group {
			counts[part.contentType]++
		}
		best, bestCount := "", 0
		for ct, n := range counts {
			if n > bestCount || (n == bestCount && ct < best) {
				best, bestCount = ct, n
			}
		}
		defaults[ext] = best
	}
	for ext, group := range byExt {
		for _, part := range group {
			if part.contentType != defaults[ext] {
				overrides = append(overrides, ctOverride{PartName: part.name, ContentType: part.contentType})
			}
		}
	}

	doc := contentTypesXML{Xmlns: contentTypesNS}
	exts := make([]string, 0, len(defaults))
	for ext := range defaults {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		doc.Defaults = append(doc.Defaults, ctDefault{Extension: ext, ContentType: defaults[ext]})
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].PartName < overrides[j].PartName })
	doc.Overrides = overrides

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xmlHeader), body...), nil
}
