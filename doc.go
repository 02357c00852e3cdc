// Package opc implements the Open Packaging Conventions (OPC) container
// used by Office Open XML documents, together with its Flat OPC single-file
// XML serialization.
//
// A document is a set of named, typed parts plus a graph of typed
// relationships between them (and from the package root). The package keeps
// both in one in-memory model, [Package], with two interchangeable codecs
// over it:
//
//   - The container codec reads and writes the standard ZIP form:
//     [Content_Types].xml at the archive root, _rels/*.rels entries per
//     relationship source, one entry per part.
//   - The Flat OPC codec reads and writes the same document as a single XML
//     file in the pkg namespace, XML parts inlined and binary parts
//     base64-encoded.
//
// The codecs share ordering and relationship serialization, so a document
// round-tripped through either form, or converted between the two, keeps
// the same parts, content types, and relationships.
//
// # Basic Usage
//
// To create and save a new word-processing document:
//
//	s, _ := opc.Create("hello.docx", opc.KindWordprocessing)
//	part, _ := s.Package().StartPart()
//	part.SetData(body)
//	err := s.Close() // flushes pending changes
//
// To open an existing document and convert it to Flat OPC:
//
//	s, _ := opc.Open("report.docx")
//	var buf bytes.Buffer
//	err := opc.EncodeFlatOPC(&buf, s.Package())
//
// # Sessions and Concurrency
//
// A [Session] wraps a Package plus its backing medium (file path, byte
// buffer, or caller-supplied stream). Each backing is checked out by at
// most one live session, and Save and Clone hold a process-wide flush lock
// keyed by backing identity, so concurrent flushes through aliased backings
// cannot interleave their writes. Sessions themselves are single-threaded.
//
// # Security Considerations
//
// Both decoders enforce configurable [Limits] on part counts and sizes so a
// crafted archive cannot force oversized allocations, and a ZIP entry whose
// extracted size disagrees with its declared size is rejected.
package opc
