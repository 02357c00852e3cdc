package opc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Function variables for testing injection.
var (
	zipOpen = func(zf *zip.File) (io.ReadCloser, error) { return zf.Open() }
	readAll = io.ReadAll
)

// DecodeContainer reads an OPC ZIP container into a Package. The reader must
// support random access because the ZIP directory sits at the end of the
// stream.
//
// Every archive entry that is not the content-types stream or a rels entry
// becomes a part, including entries no relationship references; nothing is
// dropped, so an encode of the result reproduces the document. Decoding is
// all-or-nothing: on any failure no package is returned.
func DecodeContainer(r io.ReaderAt, size int64, opts ...ReadOption) (*Package, error) {
	cfg := readConfig{limits: defaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if len(zr.File) > cfg.limits.MaxParts {
		return nil, fmt.Errorf("%w: %d archive entries", ErrLimitExceeded, len(zr.File))
	}

	type rawEntry struct {
		name string
		data []byte
	}
	var (
		ctData  []byte
		raw     []rawEntry
		relsBySource = make(map[string][]Relationship)
		total   uint64
	)
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := "/" + zf.Name
		if zf.UncompressedSize64 > cfg.limits.MaxPartSize {
			return nil, fmt.Errorf("%w: entry %q declares %d bytes", ErrLimitExceeded, name, zf.UncompressedSize64)
		}
		total += zf.UncompressedSize64
		if total > cfg.limits.MaxTotalSize {
			return nil, fmt.Errorf("%w: container exceeds %d bytes", ErrLimitExceeded, cfg.limits.MaxTotalSize)
		}
		data, err := readEntry(zf)
		if err != nil {
			return nil, err
		}
		if name == contentTypesPartName {
			ctData = data
			continue
		}
		if source, ok := isRelsPartName(name); ok {
			if _, dup := relsBySource[source]; dup {
				return nil, fmt.Errorf("%w: duplicate rels entry for %s", ErrMalformedContainer, sourceLabel(source))
			}
			rels, err := parseRelationships(data, ErrMalformedContainer)
			if err != nil {
				return nil, err
			}
			relsBySource[source] = rels
			continue
		}
		raw = append(raw, rawEntry{name: name, data: data})
	}
	if ctData == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedContainer, contentTypesPartName)
	}
	ctm, err := parseContentTypes(ctData)
	if err != nil {
		return nil, err
	}

	pkg := NewPackage()
	for _, e := range raw {
		ct, err := ctm.resolve(e.name)
		if err != nil {
			return nil, err
		}
		if _, dup := pkg.parts[e.name]; dup {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrMalformedContainer, e.name)
		}
		kind := PayloadBinary
		if isXMLContentType(ct) {
			kind = PayloadXML
		}
		// Parts go in directly: entry names from foreign producers may sit
		// outside the grammar AddPart enforces, and they still round-trip.
		pkg.parts[e.name] = &Part{name: e.name, contentType: ct, kind: kind, data: e.data, pkg: pkg}
	}
	for source, rels := range relsBySource {
		pkg.setDecodedRelationships(source, rels)
	}
	return pkg, nil
}

// DecodeContainerBytes decodes an OPC container held in memory.
func DecodeContainerBytes(b []byte, opts ...ReadOption) (*Package, error) {
	return DecodeContainer(bytes.NewReader(b), int64(len(b)), opts...)
}

func readEntry(zf *zip.File) ([]byte, error) {
	rc, err := zipOpen(zf)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrMalformedContainer, zf.Name, err)
	}
	defer rc.Close()
	data, err := readAll(io.LimitReader(rc, int64(zf.UncompressedSize64)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrMalformedContainer, zf.Name, err)
	}
	if uint64(len(data)) != zf.UncompressedSize64 {
		return nil, fmt.Errorf("%w: entry %q: size %d != declared %d", ErrMalformedContainer, zf.Name, len(data), zf.UncompressedSize64)
	}
	return data, nil
}

// EncodeContainer writes pkg as an OPC ZIP container. Entry order is fixed:
// the content-types stream, the package rels, then each part in
// lexicographic name order immediately followed by its rels entry. Entry
// timestamps are zeroed, so encoding the same package twice produces
// identical bytes.
//
// The package is validated first; a dangling internal relationship aborts
// the encode with ErrDanglingRelationship before anything is written to w.
func EncodeContainer(w io.Writer, pkg *Package, opts ...WriteOption) error {
	cfg := writeConfig{limits: defaultLimits(), deflateLevel: flate.DefaultCompression, progID: true}
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

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, cfg.deflateLevel)
	})

	writeEntry := func(name string, data []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   strings.TrimPrefix(name, "/"),
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		_, err = fw.Write(data)
		return err
	}
	writeRels := func(source string) error {
		rels := pkg.rels[source]
		if len(rels) == 0 {
			return nil
		}
		data, err := encodeRelationships(rels)
		if err != nil {
			return err
		}
		return writeEntry(relsPartName(source), data)
	}

	ct, err := buildContentTypes(pkg.Parts())
	if err != nil {
		return err
	}
	if err := writeEntry(contentTypesPartName, ct); err != nil {
		return err
	}
	if err := writeRels(""); err != nil {
		return err
	}
	for _, part := range pkg.Parts() {
		if err := writeEntry(part.name, part.data); err != nil {
			return err
		}
		if err := writeRels(part.name); err != nil {
			return err
		}
	}
	// Rels preserved from a decode whose source entry is not a live part.
	var orphans []string
	for source := range pkg.rels {
		if source != "" && !pkg.HasPart(source) {
			orphans = append(orphans, source)
		}
	}
	sort.Strings(orphans)
	for _, source := range orphans {
		if err := writeRels(source); err != nil {
			return err
		}
	}
	return zw.Close()
}

// sniffFormat guesses the serialization format from leading bytes: ZIP local
// file headers start with "PK".
func sniffFormat(b []byte) Format {
	if len(b) >= 2 && b[0] == 'P' && b[1] == 'K' {
		return FormatContainer
	}
	return FormatFlatOPC
}
