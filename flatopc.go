package opc

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Flat OPC on the wire. Separate marshal and unmarshal shapes: the encoder
// writes literal "pkg:" prefixes, the decoder matches namespace-resolved
// names.
type flatPackageOut struct {
	XMLName xml.Name      `xml:"pkg:package"`
	Xmlns   string        `xml:"xmlns:pkg,attr"`
	Parts   []flatPartOut `xml:"pkg:part"`
}

type flatPartOut struct {
	Name        string       `xml:"pkg:name,attr"`
	ContentType string       `xml:"pkg:contentType,attr"`
	XMLData     *flatXMLData `xml:"pkg:xmlData,omitempty"`
	BinaryData  *flatBinData `xml:"pkg:binaryData,omitempty"`
}

type flatXMLData struct {
	Inner []byte `xml:",innerxml"`
}

type flatBinData struct {
	Text string `xml:",chardata"`
}

type flatPackageIn struct {
	XMLName xml.Name     `xml:"http://schemas.microsoft.com/office/2006/xmlPackage package"`
	Parts   []flatPartIn `xml:"http://schemas.microsoft.com/office/2006/xmlPackage part"`
}

type flatPartIn struct {
	Name        string       `xml:"name,attr"`
	ContentType string       `xml:"contentType,attr"`
	XMLData     *flatXMLData `xml:"http://schemas.microsoft.com/office/2006/xmlPackage xmlData"`
	BinaryData  string       `xml:"http://schemas.microsoft.com/office/2006/xmlPackage binaryData"`
}

// EncodeFlatOPC writes pkg as a Flat OPC XML document: one pkg:part element
// per part, XML payloads inline (declaration stripped), binary payloads
// base64-encoded, relationships as relationship parts. Part order matches
// the container encoder's, so converting a document between the two forms
// and back is stable.
//
// For a recognized document kind the mso-application processing instruction
// is emitted so Office applications can dispatch on the file; disable with
// WithProgIDHint(false).
func EncodeFlatOPC(w io.Writer, pkg *Package, opts ...WriteOption) error {
	cfg := writeConfig{limits: defaultLimits(), progID: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if pkg == nil {
		return fmt.Errorf("%w: package is nil", ErrValidation)
	}
	if err := validateForEncode(pkg, cfg.limits); err != nil {
		return err
	}

	doc := flatPackageOut{Xmlns: flatPackageNS}
	appendRels := func(source string) error {
		rels := pkg.rels[source]
		if len(rels) == 0 {
			return nil
		}
		data, err := encodeRelationships(rels)
		if err != nil {
			return err
		}
		doc.Parts = append(doc.Parts, flatPartOut{
			Name:        relsPartName(source),
			ContentType: RelationshipsContentType,
			XMLData:     &flatXMLData{Inner: stripXMLDecl(data)},
		})
		return nil
	}

	if err := appendRels(""); err != nil {
		return err
	}
	for _, part := range pkg.Parts() {
		out := flatPartOut{Name: part.name, ContentType: part.contentType}
		if part.kind == PayloadXML {
			out.XMLData = &flatXMLData{Inner: stripXMLDecl(part.data)}
		} else {
			out.BinaryData = &flatBinData{Text: base64.StdEncoding.EncodeToString(part.data)}
		}
		doc.Parts = append(doc.Parts, out)
		if err := appendRels(part.name); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	if cfg.progID {
		if start, err := pkg.StartPart(); err == nil {
			if kind, ok := kindForContentType(start.contentType); ok {
				fmt.Fprintf(&buf, "<?mso-application progid=%q?>\n", kindSpecs[kind].progID)
			}
		}
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return err
	}
	buf.Write(body)
	_, err = w.Write(buf.Bytes())
	return err
}

// DecodeFlatOPC reads a Flat OPC document from r. Only sequential access is
// required. Parts missing a name or content type fail with
// ErrMalformedFlatOPC; like the container decoder this is all-or-nothing.
func DecodeFlatOPC(r io.Reader, opts ...ReadOption) (*Package, error) {
	cfg := readConfig{limits: defaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()

	raw, err := readAll(io.LimitReader(r, int64(cfg.limits.MaxTotalSize)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFlatOPC, err)
	}
	if uint64(len(raw)) > cfg.limits.MaxTotalSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrLimitExceeded, cfg.limits.MaxTotalSize)
	}
	var doc flatPackageIn
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFlatOPC, err)
	}
	if len(doc.Parts) > cfg.limits.MaxParts {
		return nil, fmt.Errorf("%w: %d parts", ErrLimitExceeded, len(doc.Parts))
	}

	pkg := NewPackage()
	relsBySource := make(map[string][]Relationship)
	for _, fp := range doc.Parts {
		if fp.Name == "" || fp.ContentType == "" {
			return nil, fmt.Errorf("%w: part missing name or content type", ErrMalformedFlatOPC)
		}
		if source, ok := isRelsPartName(fp.Name); ok && fp.ContentType == RelationshipsContentType {
			if fp.XMLData == nil {
				return nil, fmt.Errorf("%w: relationship part %q has no xmlData", ErrMalformedFlatOPC, fp.Name)
			}
			if _, dup := relsBySource[source]; dup {
				return nil, fmt.Errorf("%w: duplicate relationship part for %s", ErrMalformedFlatOPC, sourceLabel(source))
			}
			rels, err := parseRelationships(fp.XMLData.Inner, ErrMalformedFlatOPC)
			if err != nil {
				return nil, err
			}
			relsBySource[source] = rels
			continue
		}
		if _, dup := pkg.parts[fp.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate part %q", ErrMalformedFlatOPC, fp.Name)
		}
		var data []byte
		kind := PayloadBinary
		if isXMLContentType(fp.ContentType) {
			kind = PayloadXML
			if fp.XMLData == nil {
				return nil, fmt.Errorf("%w: xml part %q has no xmlData", ErrMalformedFlatOPC, fp.Name)
			}
			inner := bytes.TrimSpace(fp.XMLData.Inner)
			data = append([]byte(xmlHeader), inner...)
		} else {
			decoded, err := base64.StdEncoding.DecodeString(stripBase64Space(fp.BinaryData))
			if err != nil {
				return nil, fmt.Errorf("%w: part %q: %v", ErrMalformedFlatOPC, fp.Name, err)
			}
			data = decoded
		}
		if uint64(len(data)) > cfg.limits.MaxPartSize {
			return nil, fmt.Errorf("%w: part %q is %d bytes", ErrLimitExceeded, fp.Name, len(data))
		}
		pkg.parts[fp.Name] = &Part{name: fp.Name, contentType: fp.ContentType, kind: kind, data: data, pkg: pkg}
	}
	for source, rels := range relsBySource {
		pkg.setDecodedRelationships(source, rels)
	}
	return pkg, nil
}

// DecodeFlatOPCBytes decodes a Flat OPC document held in memory.
func DecodeFlatOPCBytes(b []byte, opts ...ReadOption) (*Package, error) {
	return DecodeFlatOPC(bytes.NewReader(b), opts...)
}

// stripXMLDecl removes a leading BOM and XML declaration so a part's payload
// can be inlined under pkg:xmlData.
func stripXMLDecl(b []byte) []byte {
	s := bytes.TrimPrefix(b, []byte{0xef, 0xbb, 0xbf})
	s = bytes.TrimLeft(s, " \t\r\n")
	if bytes.HasPrefix(s, []byte("<?xml")) {
		if i := bytes.Index(s, []byte("?>")); i >= 0 {
			s = bytes.TrimLeft(s[i+2:], " \t\r\n")
		}
	}
	return s
}

func stripBase64Space(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
