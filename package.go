package opc

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// RemovePolicy controls what Package.RemovePart refuses to remove.
type RemovePolicy uint8

const (
	// ProtectStartPart rejects removal of the package's start part (the
	// target of the package-level officeDocument relationship).
	ProtectStartPart RemovePolicy = iota
	// RemoveAny allows removal of every part.
	RemoveAny
)

// Package is the in-memory part store plus relationship graph. It performs
// no I/O; the container and Flat OPC codecs populate and serialize it, and a
// Session owns its lifecycle.
//
// A Package is not safe for concurrent mutation. The save/clone locking a
// Session provides covers concurrent flushes over shared backing media, not
// concurrent edits of one Package.
type Package struct {
	parts map[string]*Part
	// rels maps a source part name ("" for the package root) to its
	// relationships in insertion order.
	rels map[string][]Relationship

	removePolicy RemovePolicy
	readonly     bool
	closed       bool
	dirty        bool
}

// NewPackage returns an empty, editable package.
func NewPackage() *Package {
	return &Package{
		parts: make(map[string]*Part),
		rels:  make(map[string][]Relationship),
	}
}

// SetRemovePolicy configures the RemovePart protection policy.
func (p *Package) SetRemovePolicy(policy RemovePolicy) {
	p.removePolicy = policy
}

func (p *Package) mutable() error {
	if p.closed {
		return ErrSessionClosed
	}
	if p.readonly {
		return ErrNotEditable
	}
	return nil
}

// Part returns the part stored at name.
func (p *Package) Part(name string) (*Part, error) {
	if p.closed {
		return nil, ErrSessionClosed
	}
	part, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: part %q", ErrNotFound, name)
	}
	return part, nil
}

// HasPart reports whether a part exists at name.
func (p *Package) HasPart(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// AddPart stores a new part. The name must be package-absolute and pass the
// OPC part-name grammar; names are compared case-sensitively. The payload
// kind is fixed by the content type: content types ending in "xml" hold XML,
// everything else is opaque binary.
func (p *Package) AddPart(name, contentType string, data []byte) (*Part, error) {
	if err := p.mutable(); err != nil {
		return nil, err
	}
	if err := validatePartName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(contentType) == "" {
		return nil, fmt.Errorf("%w: part %q has empty content type", ErrValidation, name)
	}
	if _, ok := p.parts[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePart, name)
	}
	kind := PayloadBinary
	if isXMLContentType(contentType) {
		kind = PayloadXML
	}
	part := &Part{name: name, contentType: contentType, kind: kind, data: data, pkg: p}
	p.parts[name] = part
	p.dirty = true
	return part, nil
}

// RemovePart deletes a part and cascades: every relationship the part
// sources, and every internal relationship targeting it, is removed with it.
// Under the default ProtectStartPart policy the package's start part cannot
// be removed and the call fails with ErrPartInUse.
func (p *Package) RemovePart(name string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	part, ok := p.parts[name]
	if !ok {
		return fmt.Errorf("%w: part %q", ErrNotFound, name)
	}
	if p.removePolicy == ProtectStartPart {
		if start, err := p.StartPart(); err == nil && start.name == name {
			return fmt.Errorf("%w: %q is the start part", ErrPartInUse, name)
		}
	}
	delete(p.parts, name)
	delete(p.rels, name)
	for source, rels := range p.rels {
		kept := rels[:0]
		for _, r := range rels {
			if !r.External && resolveTarget(source, r.Target) == name {
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(p.rels, source)
		} else {
			p.rels[source] = kept
		}
	}
	part.pkg = nil
	p.dirty = true
	return nil
}

// Parts returns every part in lexicographic name order. Both codecs derive
// their output order from this, which is what makes encoding deterministic.
func (p *Package) Parts() []*Part {
	names := make([]string, 0, len(p.parts))
	for name := range p.parts {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Part, len(names))
	for i, name := range names {
		out[i] = p.parts[name]
	}
	return out
}

// AddRelationship attaches a relationship to source ("" for the package
// root). When rel.ID is empty the smallest unused "rIdN" for the source is
// assigned. Internal targets are not checked for existence here; dangling
// targets are rejected when the package is encoded.
func (p *Package) AddRelationship(source string, rel Relationship) (Relationship, error) {
	if err := p.mutable(); err != nil {
		return Relationship{}, err
	}
	if source != "" {
		if _, ok := p.parts[source]; !ok {
			return Relationship{}, fmt.Errorf("%w: relationship source %q", ErrNotFound, source)
		}
	}
	if strings.TrimSpace(rel.Type) == "" {
		return Relationship{}, fmt.Errorf("%w: relationship type is empty", ErrValidation)
	}
	if strings.TrimSpace(rel.Target) == "" {
		return Relationship{}, fmt.Errorf("%w: relationship target is empty", ErrValidation)
	}
	if rel.ID == "" {
		rel.ID = p.nextRelationshipID(source)
	} else {
		for _, existing := range p.rels[source] {
			if existing.ID == rel.ID {
				return Relationship{}, fmt.Errorf("%w: duplicate relationship id %q on %s", ErrValidation, rel.ID, sourceLabel(source))
			}
		}
	}
	p.rels[source] = append(p.rels[source], rel)
	p.dirty = true
	return rel, nil
}

// Relationships returns a copy of source's relationships in insertion order.
func (p *Package) Relationships(source string) []Relationship {
	rels := p.rels[source]
	out := make([]Relationship, len(rels))
	copy(out, rels)
	return out
}

// RemoveRelationship deletes the relationship id from source.
func (p *Package) RemoveRelationship(source, id string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	rels := p.rels[source]
	for i, r := range rels {
		if r.ID == id {
			rels = append(rels[:i], rels[i+1:]...)
			if len(rels) == 0 {
				delete(p.rels, source)
			} else {
				p.rels[source] = rels
			}
			p.dirty = true
			return nil
		}
	}
	return fmt.Errorf("%w: relationship %q on %s", ErrNotFound, id, sourceLabel(source))
}

// Resolve looks up the relationship id on source. For an internal
// relationship it returns the target part; for an external one it returns
// the target string. An unknown id, or an internal target with no part
// behind it, yields ErrNotFound.
func (p *Package) Resolve(source, id string) (*Part, string, error) {
	for _, r := range p.rels[source] {
		if r.ID != id {
			continue
		}
		if r.External {
			return nil, r.Target, nil
		}
		target := resolveTarget(source, r.Target)
		part, ok := p.parts[target]
		if !ok {
			return nil, "", fmt.Errorf("%w: relationship %q on %s targets missing part %q", ErrNotFound, id, sourceLabel(source), target)
		}
		return part, "", nil
	}
	return nil, "", fmt.Errorf("%w: relationship %q on %s", ErrNotFound, id, sourceLabel(source))
}

// StartPart returns the target of the package-level officeDocument
// relationship.
func (p *Package) StartPart() (*Part, error) {
	for _, r := range p.rels[""] {
		if r.Type == OfficeDocumentRelationshipType && !r.External {
			part, ok := p.parts[resolveTarget("", r.Target)]
			if !ok {
				return nil, fmt.Errorf("%w: start part %q", ErrNotFound, r.Target)
			}
			return part, nil
		}
	}
	return nil, fmt.Errorf("%w: package has no start part relationship", ErrNotFound)
}

// nextRelationshipID returns "rIdN" with the smallest positive N unused for
// source.
func (p *Package) nextRelationshipID(source string) string {
	used := make(map[int]bool)
	for _, r := range p.rels[source] {
		if n, ok := relIDNumber(r.ID); ok {
			used[n] = true
		}
	}
	for n := 1; ; n++ {
		if !used[n] {
			return "rId" + strconv.Itoa(n)
		}
	}
}

// clone returns a deep structural copy sharing no mutable state with p.
func (p *Package) clone() *Package {
	out := NewPackage()
	out.removePolicy = p.removePolicy
	for name, part := range p.parts {
		data := make([]byte, len(part.data))
		copy(data, part.data)
		out.parts[name] = &Part{
			name:        part.name,
			contentType: part.contentType,
			kind:        part.kind,
			data:        data,
			pkg:         out,
		}
	}
	for source, rels := range p.rels {
		cp := make([]Relationship, len(rels))
		copy(cp, rels)
		out.rels[source] = cp
	}
	return out
}

// setDecodedRelationships installs relationships during decoding without the
// source-existence check, so rels entries for absent sources survive a round
// trip instead of being dropped.
func (p *Package) setDecodedRelationships(source string, rels []Relationship) {
	if len(rels) == 0 {
		return
	}
	p.rels[source] = rels
}

// relSources returns every relationship source in deterministic order: the
// package root first, then part names lexicographically.
func (p *Package) relSources() []string {
	sources := make([]string, 0, len(p.rels))
	for source := range p.rels {
		if source != "" {
			sources = append(sources, source)
		}
	}
	sort.Strings(sources)
	if _, ok := p.rels[""]; ok {
		sources = append([]string{""}, sources...)
	}
	return sources
}

// resolveTarget turns a relationship target into a package-absolute part
// name, resolving relative targets against the source part's directory.
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(target)
	}
	base := "/"
	if source != "" {
		base = path.Dir(source)
	}
	return path.Clean(path.Join(base, target))
}

// relIDNumber extracts N from an "rIdN" relationship id.
func relIDNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "rId")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// sortRelationships orders rels by id for serialization: numeric "rIdN"
// order when both ids parse, lexicographic otherwise.
func sortRelationships(rels []Relationship) []Relationship {
	out := make([]Relationship, len(rels))
	copy(out, rels)
	sort.SliceStable(out, func(i, j int) bool {
		ni, iok := relIDNumber(out[i].ID)
		nj, jok := relIDNumber(out[j].ID)
		if iok && jok {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sourceLabel(source string) string {
	if source == "" {
		return "package root"
	}
	return fmt.Sprintf("part %q", source)
}
