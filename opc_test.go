package opc

import (
	"bytes"
	"io"
	"reflect"
	"testing"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const sampleDocumentXML = xmlHeader +
	`<w:document xmlns:w="` + wordNS + `"><w:body><w:p><w:r><w:t>sample</w:t></w:r></w:p></w:body></w:document>`

const sampleStylesXML = xmlHeader +
	`<w:styles xmlns:w="` + wordNS + `"><w:style w:styleId="Normal"/></w:styles>`

var samplePNG = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01, 0x02, 0x03}

// samplePackage builds a small word-processing document: a main part, a
// styles part, an image, and the relationships wiring them together.
func samplePackage(t *testing.T) *Package {
	t.Helper()
	pkg := NewPackage()
	mustAddPart(t, pkg, "/word/document.xml", WordprocessingMainContentType, []byte(sampleDocumentXML))
	mustAddPart(t, pkg, "/word/styles.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml", []byte(sampleStylesXML))
	mustAddPart(t, pkg, "/word/media/image1.png", "image/png", samplePNG)
	mustAddRel(t, pkg, "", Relationship{ID: "rId1", Type: OfficeDocumentRelationshipType, Target: "word/document.xml"})
	mustAddRel(t, pkg, "/word/document.xml", Relationship{ID: "rId1", Type: "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image", Target: "media/image1.png"})
	mustAddRel(t, pkg, "/word/document.xml", Relationship{ID: "rId2", Type: "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink", Target: "https://example.com/", External: true})
	mustAddRel(t, pkg, "/word/document.xml", Relationship{ID: "rId3", Type: "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles", Target: "styles.xml"})
	return pkg
}

func mustAddPart(t *testing.T, pkg *Package, name, ct string, data []byte) *Part {
	t.Helper()
	part, err := pkg.AddPart(name, ct, data)
	if err != nil {
		t.Fatalf("AddPart(%q): %v", name, err)
	}
	return part
}

func mustAddRel(t *testing.T, pkg *Package, source string, rel Relationship) Relationship {
	t.Helper()
	out, err := pkg.AddRelationship(source, rel)
	if err != nil {
		t.Fatalf("AddRelationship(%q, %q): %v", source, rel.ID, err)
	}
	return out
}

func encodeContainerBytes(t *testing.T, pkg *Package) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeContainer(&buf, pkg); err != nil {
		t.Fatalf("EncodeContainer: %v", err)
	}
	return buf.Bytes()
}

func encodeFlatBytes(t *testing.T, pkg *Package) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := EncodeFlatOPC(&buf, pkg); err != nil {
		t.Fatalf("EncodeFlatOPC: %v", err)
	}
	return buf.Bytes()
}

// comparePackages checks structural equality: same part names, content
// types, payload bytes, and the same relationships per source.
func comparePackages(t *testing.T, want, got *Package) {
	t.Helper()
	wantParts, gotParts := want.Parts(), got.Parts()
	if len(wantParts) != len(gotParts) {
		t.Fatalf("part count mismatch: want %d got %d", len(wantParts), len(gotParts))
	}
	for i := range wantParts {
		w, g := wantParts[i], gotParts[i]
		if w.Name() != g.Name() {
			t.Fatalf("part %d name: want %q got %q", i, w.Name(), g.Name())
		}
		if w.ContentType() != g.ContentType() {
			t.Fatalf("part %q content type: want %q got %q", w.Name(), w.ContentType(), g.ContentType())
		}
		if w.Kind() != g.Kind() {
			t.Fatalf("part %q kind: want %v got %v", w.Name(), w.Kind(), g.Kind())
		}
		if !bytes.Equal(w.Data(), g.Data()) {
			t.Fatalf("part %q payload mismatch:\nwant: %q\ngot:  %q", w.Name(), w.Data(), g.Data())
		}
	}
	wantSources, gotSources := want.relSources(), got.relSources()
	if !reflect.DeepEqual(wantSources, gotSources) {
		t.Fatalf("relationship sources: want %v got %v", wantSources, gotSources)
	}
	for _, source := range wantSources {
		w := sortRelationships(want.Relationships(source))
		g := sortRelationships(got.Relationships(source))
		if !reflect.DeepEqual(w, g) {
			t.Fatalf("relationships for %s:\nwant %#v\ngot  %#v", sourceLabel(source), w, g)
		}
	}
}

type failingWriter struct {
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	if len(p) > w.n {
		p = p[:w.n]
	}
	w.n -= len(p)
	return len(p), nil
}
