package opc

import (
	"errors"
	"testing"
)

func TestPartExtension(t *testing.T) {
	cases := []struct{ name, want string }{
		{"/word/document.xml", "xml"},
		{"/word/media/image1.PNG", "png"},
		{"/bin/blob", ""},
		{"/bin/blob.", ""},
		{"/word.dir/blob", ""},
	}
	for _, tc := range cases {
		if got := partExtension(tc.name); got != tc.want {
			t.Errorf("partExtension(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBuildContentTypesMajorityRule(t *testing.T) {
	pkg := NewPackage()
	mustAddPart(t, pkg, "/a.xml", "application/xml", nil)
	mustAddPart(t, pkg, "/b.xml", "application/xml", nil)
	mustAddPart(t, pkg, "/c.xml", WordprocessingMainContentType, nil)
	mustAddPart(t, pkg, "/noext", "application/octet-stream", nil)

	data, err := buildContentTypes(pkg.Parts())
	if err != nil {
		t.Fatal(err)
	}
	m, err := parseContentTypes(data)
	if err != nil {
		t.Fatal(err)
	}

	if got := m.defaults["xml"]; got != "application/xml" {
		t.Fatalf("majority default for xml: %q", got)
	}
	if got := m.overrides["/c.xml"]; got != WordprocessingMainContentType {
		t.Fatalf("minority part not overridden: %q", got)
	}
	if got := m.overrides["/noext"]; got != "application/octet-stream" {
		t.Fatalf("extensionless part not overridden: %q", got)
	}
	if got := m.defaults["rels"]; got != RelationshipsContentType {
		t.Fatalf("rels default missing: %q", got)
	}

	for _, part := range pkg.Parts() {
		ct, err := m.resolve(part.Name())
		if err != nil {
			t.Fatalf("resolve(%q): %v", part.Name(), err)
		}
		if ct != part.ContentType() {
			t.Fatalf("resolve(%q) = %q, want %q", part.Name(), ct, part.ContentType())
		}
	}
}

func TestResolveUnknownPart(t *testing.T) {
	m := &contentTypeMap{defaults: map[string]string{}, overrides: map[string]string{}}
	if _, err := m.resolve("/mystery.bin"); !errors.Is(err, ErrMalformedContainer) {
		t.Fatalf("expected ErrMalformedContainer, got %v", err)
	}
}

func TestParseContentTypesMalformed(t *testing.T) {
	cases := map[string]string{
		"not xml":            "PK garbage",
		"incomplete default": xmlHeader + `<Types xmlns="` + contentTypesNS + `"><Default Extension="xml"/></Types>`,
		"incomplete override": xmlHeader +
			`<Types xmlns="` + contentTypesNS + `"><Override PartName="/a.xml"/></Types>`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseContentTypes([]byte(doc)); !errors.Is(err, ErrMalformedContainer) {
				t.Fatalf("expected ErrMalformedContainer, got %v", err)
			}
		})
	}
}
