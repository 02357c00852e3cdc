package opc

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestContainerRoundTrip(t *testing.T) {
	pkg := samplePackage(t)
	data := encodeContainerBytes(t, pkg)
	got, err := DecodeContainerBytes(data)
	if err != nil {
		t.Fatalf("DecodeContainerBytes: %v", err)
	}
	comparePackages(t, pkg, got)
}

func TestEncodeContainerDeterministic(t *testing.T) {
	pkg := samplePackage(t)
	first := encodeContainerBytes(t, pkg)
	second := encodeContainerBytes(t, pkg)
	if !bytes.Equal(first, second) {
		t.Fatal("two encodes of the same package differ")
	}
}

// buildForeignContainer writes a minimal OPC archive the way another
// producer might: its own entry order, timestamps, and an entry no
// relationship references.
func buildForeignContainer(t *testing.T, extra map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := map[string]string{
		"[Content_Types].xml": xmlHeader + `<Types xmlns="` + contentTypesNS + `">` +
			`<Default Extension="rels" ContentType="` + RelationshipsContentType + `"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Default Extension="png" ContentType="image/png"/>` +
			`<Override PartName="/word/document.xml" ContentType="` + WordprocessingMainContentType + `"/>` +
			`</Types>`,
		"_rels/.rels": xmlHeader + `<Relationships xmlns="` + relationshipsNS + `">` +
			`<Relationship Id="rId1" Type="` + OfficeDocumentRelationshipType + `" Target="word/document.xml"/>` +
			`</Relationships>`,
		"word/document.xml": sampleDocumentXML,
		"word/_rels/document.xml.rels": xmlHeader + `<Relationships xmlns="` + relationshipsNS + `">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>` +
			`</Relationships>`,
		"word/media/image1.png": string(samplePNG),
	}
	for name, content := range extra {
		entries[name] = content
	}
	for name, content := range entries {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeForeignContainer(t *testing.T) {
	pkg, err := DecodeContainerBytes(buildForeignContainer(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	start, err := pkg.StartPart()
	if err != nil {
		t.Fatal(err)
	}
	if start.Name() != "/word/document.xml" || start.ContentType() != WordprocessingMainContentType {
		t.Fatalf("start part: %q %q", start.Name(), start.ContentType())
	}
	img, _, err := pkg.Resolve("/word/document.xml", "rId1")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(img.Data(), samplePNG) {
		t.Fatal("image payload mismatch")
	}
}

func TestUnknownEntryPreserved(t *testing.T) {
	in := buildForeignContainer(t, map[string]string{"customXml/item1.xml": xmlHeader + `<item/>`})
	pkg, err := DecodeContainerBytes(in)
	if err != nil {
		t.Fatal(err)
	}
	part, err := pkg.Part("/customXml/item1.xml")
	if err != nil {
		t.Fatalf("unreferenced entry dropped: %v", err)
	}
	if part.ContentType() != "application/xml" {
		t.Fatalf("content type: %q", part.ContentType())
	}

	reencoded := encodeContainerBytes(t, pkg)
	again, err := DecodeContainerBytes(reencoded)
	if err != nil {
		t.Fatal(err)
	}
	comparePackages(t, pkg, again)
}

func TestDecodeMalformedContainer(t *testing.T) {
	t.Run("not a zip", func(t *testing.T) {
		_, err := DecodeContainerBytes([]byte("this is not an archive"))
		if !errors.Is(err, ErrMalformedContainer) {
			t.Fatalf("expected ErrMalformedContainer, got %v", err)
		}
	})
	t.Run("missing content types", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		fw, _ := zw.Create("word/document.xml")
		fw.Write([]byte(sampleDocumentXML))
		zw.Close()
		_, err := DecodeContainerBytes(buf.Bytes())
		if !errors.Is(err, ErrMalformedContainer) {
			t.Fatalf("expected ErrMalformedContainer, got %v", err)
		}
	})
	t.Run("unparsable rels", func(t *testing.T) {
		in := buildForeignContainer(t, map[string]string{"word/_rels/styles.xml.rels": "<Relationships"})
		if _, err := DecodeContainerBytes(in); !errors.Is(err, ErrMalformedContainer) {
			t.Fatalf("expected ErrMalformedContainer, got %v", err)
		}
	})
	t.Run("no content type for entry", func(t *testing.T) {
		in := buildForeignContainer(t, map[string]string{"bin/blob.dat": "\x00\x01"})
		if _, err := DecodeContainerBytes(in); !errors.Is(err, ErrMalformedContainer) {
			t.Fatalf("expected ErrMalformedContainer, got %v", err)
		}
	})
}

func TestDecodeContainerLimits(t *testing.T) {
	in := buildForeignContainer(t, nil)
	_, err := DecodeContainerBytes(in, WithReadLimits(Limits{MaxParts: 2}))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestDecodeEntrySizeMismatch(t *testing.T) {
	// Simulate an archive whose entry extracts to fewer bytes than declared.
	orig := readAll
	readAll = func(r io.Reader) ([]byte, error) {
		b, err := io.ReadAll(r)
		if len(b) > 1 {
			b = b[:len(b)-1]
		}
		return b, err
	}
	defer func() { readAll = orig }()

	_, err := DecodeContainerBytes(buildForeignContainer(t, nil))
	if !errors.Is(err, ErrMalformedContainer) {
		t.Fatalf("expected ErrMalformedContainer, got %v", err)
	}
}

func TestEncodeContainerWriterError(t *testing.T) {
	pkg := samplePackage(t)
	if err := EncodeContainer(&failingWriter{n: 64}, pkg); err == nil {
		t.Fatal("expected error")
	}
}
