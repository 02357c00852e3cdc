package opc

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// OPC and Flat OPC namespaces.
const (
	contentTypesNS  = "http://schemas.openxmlformats.org/package/2006/content-types"
	relationshipsNS = "http://schemas.openxmlformats.org/package/2006/relationships"
	flatPackageNS   = "http://schemas.microsoft.com/office/2006/xmlPackage"
)

// Well-known content types and relationship types.
const (
	RelationshipsContentType = "application/vnd.openxmlformats-package.relationships+xml"

	WordprocessingMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	SpreadsheetMainContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"
	PresentationMainContentType   = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"

	OfficeDocumentRelationshipType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
)

const contentTypesPartName = "/[Content_Types].xml"

// xmlHeader is the declaration written in front of every XML entry the
// package engine synthesizes. Part payloads decoded from existing archives
// keep whatever declaration they carried.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

// PayloadKind distinguishes the two payload representations a Part may hold.
// Exactly one applies at a time; the kind is fixed by the content type when
// the part is created.
type PayloadKind uint8

const (
	PayloadBinary PayloadKind = iota
	PayloadXML
)

func (k PayloadKind) String() string {
	if k == PayloadXML {
		return "xml"
	}
	return "binary"
}

// isXMLContentType reports whether a content type denotes an XML payload.
// Per OPC this is a suffix test, covering both "application/xml" and the
// "+xml" structured-syntax forms.
func isXMLContentType(ct string) bool {
	return strings.HasSuffix(ct, "xml")
}

// Part is a named, typed payload inside a Package. Parts are created through
// Package.AddPart or by one of the decoders and stay owned by their Package;
// removing them from the store invalidates the handle.
type Part struct {
	name        string
	contentType string
	kind        PayloadKind
	data        []byte

	rootName   xml.Name
	rootParsed bool

	pkg *Package
}

// Name returns the package-absolute part name, e.g. "/word/document.xml".
func (p *Part) Name() string { return p.name }

// ContentType returns the part's content type.
func (p *Part) ContentType() string { return p.contentType }

// Kind reports whether the payload is XML or opaque binary.
func (p *Part) Kind() PayloadKind { return p.kind }

// Data returns the raw payload bytes. For XML parts this is the full
// serialized document including any declaration. The returned slice is the
// part's backing storage; callers that need to mutate it should go through
// SetData instead.
func (p *Part) Data() []byte { return p.data }

// SetData replaces the payload and marks the owning package modified.
func (p *Part) SetData(data []byte) error {
	if p.pkg != nil {
		if err := p.pkg.mutable(); err != nil {
			return err
		}
		p.pkg.dirty = true
	}
	p.data = data
	p.rootParsed = false
	p.rootName = xml.Name{}
	return nil
}

// RootName returns the name of the payload's root element. It is a
// best-effort accessor: on a binary part, an empty payload, or any XML parse
// failure it returns the zero xml.Name rather than an error. Callers that
// must distinguish malformed from absent content should parse Data themselves.
func (p *Part) RootName() xml.Name {
	if p.kind != PayloadXML {
		return xml.Name{}
	}
	if p.rootParsed {
		return p.rootName
	}
	p.rootParsed = true
	dec := xml.NewDecoder(bytes.NewReader(p.data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.Name{}
		}
		if se, ok := tok.(xml.StartElement); ok {
			p.rootName = se.Name
			return p.rootName
		}
	}
}

// Relationship links a source (a part, or the package root) to a target.
// Internal targets are part names resolved relative to the source; external
// targets are left untouched, typically absolute URLs.
type Relationship struct {
	ID       string
	Type     string
	Target   string
	External bool
}

// DocumentKind is the closed set of document types the engine can seed.
// Each kind maps to its start part name, the start part's content type, and
// the package-level relationship type pointing at it.
type DocumentKind uint8

const (
	KindWordprocessing DocumentKind = iota + 1
	KindSpreadsheet
	KindPresentation
)

type kindSpec struct {
	startPart   string
	contentType string
	progID      string
	seed        string
}

var kindSpecs = map[DocumentKind]kindSpec{
	KindWordprocessing: {
		startPart:   "/word/document.xml",
		contentType: WordprocessingMainContentType,
		progID:      "Word.Document",
		seed: xmlHeader +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><w:body/></w:document>`,
	},
	KindSpreadsheet: {
		startPart:   "/xl/workbook.xml",
		contentType: SpreadsheetMainContentType,
		progID:      "Excel.Sheet",
		seed: xmlHeader +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets/></workbook>`,
	},
	KindPresentation: {
		startPart:   "/ppt/presentation.xml",
		contentType: PresentationMainContentType,
		progID:      "PowerPoint.Show",
		seed: xmlHeader +
			`<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"/>`,
	},
}

func (k DocumentKind) String() string {
	switch k {
	case KindWordprocessing:
		return "wordprocessing"
	case KindSpreadsheet:
		return "spreadsheet"
	case KindPresentation:
		return "presentation"
	}
	return "unknown"
}

// kindForContentType maps a start part's content type back to its kind.
func kindForContentType(ct string) (DocumentKind, bool) {
	for k, spec := range kindSpecs {
		if spec.contentType == ct {
			return k, true
		}
	}
	return 0, false
}
