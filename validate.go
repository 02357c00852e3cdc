package opc

import (
	"fmt"
	"path"
	"strings"
)

// validatePartName enforces the OPC part-name grammar: package-absolute,
// forward slashes, normalized, no empty or dot segments, no trailing slash.
// The content-types stream and rels parts are synthesized by the codecs and
// may not be added as ordinary parts.
func validatePartName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: part name is empty", ErrValidation)
	}
	if !strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: part name %q must start with /", ErrValidation, name)
	}
	if strings.Contains(name, "\\") {
		return fmt.Errorf("%w: part name %q must use forward slashes", ErrValidation, name)
	}
	if strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: part name %q must not end with /", ErrValidation, name)
	}
	if clean := path.Clean(name); clean != name {
		return fmt.Errorf("%w: part name %q must be normalized (%q)", ErrValidation, name, clean)
	}
	if name == contentTypesPartName {
		return fmt.Errorf("%w: %q is reserved", ErrValidation, name)
	}
	for _, seg := range strings.Split(name[1:], "/") {
		if seg == "" {
			return fmt.Errorf("%w: part name %q has an empty segment", ErrValidation, name)
		}
		if seg == "." || seg == ".." {
			return fmt.Errorf("%w: part name %q has a dot segment", ErrValidation, name)
		}
		if seg == "_rels" {
			return fmt.Errorf("%w: part name %q is inside a relationships folder", ErrValidation, name)
		}
	}
	return nil
}

// validateForEncode is the save-time structural check shared by both codecs:
// relationship ids must be unique per source and every internal relationship
// must resolve to a part in the store. Nothing is written when it fails.
func validateForEncode(p *Package, limits Limits) error {
	for _, source := range p.relSources() {
		rels := p.rels[source]
		if len(rels) > limits.MaxRelationshipsPerSource {
			return fmt.Errorf("%w: %d relationships on %s", ErrLimitExceeded, len(rels), sourceLabel(source))
		}
		seen := make(map[string]struct{}, len(rels))
		for _, r := range rels {
			if r.ID == "" {
				return fmt.Errorf("%w: empty relationship id on %s", ErrValidation, sourceLabel(source))
			}
			if _, dup := seen[r.ID]; dup {
				return fmt.Errorf("%w: duplicate relationship id %q on %s", ErrValidation, r.ID, sourceLabel(source))
			}
			seen[r.ID] = struct{}{}
			if r.External {
				continue
			}
			target := resolveTarget(source, r.Target)
			if !p.HasPart(target) {
				return fmt.Errorf("%w: %s relationship %q targets %q", ErrDanglingRelationship, sourceLabel(source), r.ID, target)
			}
		}
	}
	if len(p.parts) > limits.MaxParts {
		return fmt.Errorf("%w: %d parts", ErrLimitExceeded, len(p.parts))
	}
	for _, part := range p.parts {
		if uint64(len(part.data)) > limits.MaxPartSize {
			return fmt.Errorf("%w: part %q is %d bytes", ErrLimitExceeded, part.name, len(part.data))
		}
	}
	return nil
}
