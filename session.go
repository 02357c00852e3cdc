package opc

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Format identifies a serialization form of the same in-memory package.
type Format uint8

const (
	FormatContainer Format = iota + 1
	FormatFlatOPC
)

func (f Format) String() string {
	switch f {
	case FormatContainer:
		return "container"
	case FormatFlatOPC:
		return "flat-opc"
	}
	return "unknown"
}

// Session is the mutable handle application code edits a document through.
// It owns the package's lifecycle: Open/Create check the backing medium out,
// Save flushes under the backing's flush lock, Close releases (flushing
// first when the session owns an editable backing with unsaved changes).
//
// A Session is single-threaded; the locking guarantees cover concurrent
// Save/Clone across sessions sharing a backing resource, not concurrent
// mutation of one session.
type Session struct {
	pkg     *Package
	backing Backing
	format  Format

	editable bool
	owns     bool
	discard  bool
	closed   bool

	lockTimeout time.Duration
	limits      Limits
}

// Open reads the document at path, sniffing the format (ZIP container vs
// Flat OPC XML) unless WithFormat pins it. The session owns the file backing
// and is editable unless WithReadOnly is given.
func Open(path string, opts ...OpenOption) (*Session, error) {
	return openBacking(NewFileBacking(path), true, opts...)
}

// OpenBytes decodes an in-memory document over a fresh buffer backing.
func OpenBytes(b []byte, opts ...OpenOption) (*Session, error) {
	backing := NewBufferBacking()
	if err := backing.store(b); err != nil {
		return nil, err
	}
	return openBacking(backing, true, opts...)
}

// OpenBacking opens a session over a caller-supplied backing. The caller
// keeps ownership: Close releases the checkout but never flushes implicitly.
func OpenBacking(b Backing, opts ...OpenOption) (*Session, error) {
	return openBacking(b, false, opts...)
}

func openBacking(b Backing, owns bool, opts ...OpenOption) (*Session, error) {
	cfg := applyOpenOptions(opts)
	if err := checkoutBacking(b); err != nil {
		return nil, err
	}
	data, err := b.load()
	if err != nil {
		releaseBacking(b)
		return nil, err
	}
	format := cfg.format
	if format == 0 {
		format = sniffFormat(data)
	}
	var pkg *Package
	switch format {
	case FormatContainer:
		pkg, err = DecodeContainerBytes(data, WithReadLimits(cfg.limits))
	case FormatFlatOPC:
		pkg, err = DecodeFlatOPCBytes(data, WithReadLimits(cfg.limits))
	default:
		err = fmt.Errorf("%w: unknown format %d", ErrValidation, format)
	}
	if err != nil {
		releaseBacking(b)
		return nil, err
	}
	pkg.readonly = cfg.readonly
	return &Session{
		pkg:         pkg,
		backing:     b,
		format:      format,
		editable:    !cfg.readonly,
		owns:        owns,
		lockTimeout: cfg.lockTimeout,
		limits:      cfg.limits,
	}, nil
}

// Create seeds a new document of the given kind at path: the kind's start
// part with an empty body plus the package-level relationship "rId1"
// pointing at it. Nothing is written until the first Save or Close.
func Create(path string, kind DocumentKind, opts ...OpenOption) (*Session, error) {
	return createBacking(NewFileBacking(path), true, kind, opts...)
}

// CreateBytes seeds a new document over an in-memory buffer backing.
func CreateBytes(kind DocumentKind, opts ...OpenOption) (*Session, error) {
	return createBacking(NewBufferBacking(), true, kind, opts...)
}

// CreateBacking seeds a new document over a caller-supplied backing.
func CreateBacking(b Backing, kind DocumentKind, opts ...OpenOption) (*Session, error) {
	return createBacking(b, false, kind, opts...)
}

func createBacking(b Backing, owns bool, kind DocumentKind, opts ...OpenOption) (*Session, error) {
	cfg := applyOpenOptions(opts)
	if cfg.readonly {
		return nil, fmt.Errorf("%w: cannot create a read-only document", ErrNotEditable)
	}
	pkg, err := seedPackage(kind)
	if err != nil {
		return nil, err
	}
	if err := checkoutBacking(b); err != nil {
		return nil, err
	}
	format := cfg.format
	if format == 0 {
		format = FormatContainer
	}
	return &Session{
		pkg:         pkg,
		backing:     b,
		format:      format,
		editable:    true,
		owns:        owns,
		lockTimeout: cfg.lockTimeout,
		limits:      cfg.limits,
	}, nil
}

func applyOpenOptions(opts []OpenOption) openConfig {
	cfg := openConfig{limits: defaultLimits()}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	return cfg
}

func seedPackage(kind DocumentKind) (*Package, error) {
	spec, ok := kindSpecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown document kind %d", ErrValidation, kind)
	}
	pkg := NewPackage()
	if _, err := pkg.AddPart(spec.startPart, spec.contentType, []byte(spec.seed)); err != nil {
		return nil, err
	}
	rel := Relationship{
		ID:     "rId1",
		Type:   OfficeDocumentRelationshipType,
		Target: strings.TrimPrefix(spec.startPart, "/"),
	}
	if _, err := pkg.AddRelationship("", rel); err != nil {
		return nil, err
	}
	pkg.dirty = true
	return pkg, nil
}

// Package returns the part store this session edits.
func (s *Session) Package() *Package { return s.pkg }

// Format returns the serialization form Save flushes in.
func (s *Session) Format() Format { return s.format }

// Editable reports whether mutations and Save are permitted.
func (s *Session) Editable() bool { return s.editable }

// Modified reports whether there are unsaved changes.
func (s *Session) Modified() bool { return !s.closed && s.pkg.dirty }

// Kind returns the document kind derived from the start part's content type.
func (s *Session) Kind() (DocumentKind, bool) {
	if s.closed {
		return 0, false
	}
	start, err := s.pkg.StartPart()
	if err != nil {
		return 0, false
	}
	return kindForContentType(start.contentType)
}

// DiscardOnClose marks the session so Close releases the backing without
// flushing unsaved changes.
func (s *Session) DiscardOnClose() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.discard = true
	return nil
}

// Save validates the package, encodes it in the session's format, and
// flushes to the backing medium under the backing's exclusive flush lock.
// Encoding happens before the lock and before anything touches the backing,
// so a validation failure (for example ErrDanglingRelationship) leaves the
// previous contents intact. Saving twice without intervening edits writes
// identical bytes.
func (s *Session) Save() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.editable {
		return ErrNotEditable
	}
	return s.flush()
}

func (s *Session) flush() error {
	var buf bytes.Buffer
	var err error
	switch s.format {
	case FormatFlatOPC:
		err = EncodeFlatOPC(&buf, s.pkg, WithWriteLimits(s.limits))
	default:
		err = EncodeContainer(&buf, s.pkg, WithWriteLimits(s.limits))
	}
	if err != nil {
		return err
	}
	release, err := acquireFlushLock(s.backing.lockKey(), s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()
	if err := s.backing.store(buf.Bytes()); err != nil {
		return err
	}
	s.pkg.dirty = false
	return nil
}

// Clone copies the document into dst and returns an independent editable
// session over it. The copy is structural: afterwards neither session's
// parts or relationships alias the other's. The source backing's flush lock
// is held while the snapshot is taken and dst's while it is written, so a
// clone cannot interleave with a concurrent save on either resource.
func (s *Session) Clone(dst Backing) (*Session, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if dst == nil {
		return nil, fmt.Errorf("%w: nil destination backing", ErrValidation)
	}

	release, err := acquireFlushLock(s.backing.lockKey(), s.lockTimeout)
	if err != nil {
		return nil, err
	}
	cloned := s.pkg.clone()
	var buf bytes.Buffer
	switch s.format {
	case FormatFlatOPC:
		err = EncodeFlatOPC(&buf, cloned, WithWriteLimits(s.limits))
	default:
		err = EncodeContainer(&buf, cloned, WithWriteLimits(s.limits))
	}
	release()
	if err != nil {
		return nil, err
	}

	if err := checkoutBacking(dst); err != nil {
		return nil, err
	}
	dstRelease, err := acquireFlushLock(dst.lockKey(), s.lockTimeout)
	if err != nil {
		releaseBacking(dst)
		return nil, err
	}
	err = dst.store(buf.Bytes())
	dstRelease()
	if err != nil {
		releaseBacking(dst)
		return nil, err
	}
	return &Session{
		pkg:         cloned,
		backing:     dst,
		format:      s.format,
		editable:    true,
		owns:        true,
		lockTimeout: s.lockTimeout,
		limits:      s.limits,
	}, nil
}

// Close terminates the session. When the session owns an editable backing
// and has unsaved changes that were not discarded, they are flushed first;
// a flush failure leaves the session open so the caller can recover or
// discard. After a successful Close every operation fails with
// ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.owns && s.editable && !s.discard && s.pkg.dirty {
		if err := s.flush(); err != nil {
			return err
		}
	}
	releaseBacking(s.backing)
	s.closed = true
	s.pkg.closed = true
	return nil
}
