package opc

import "time"

type readConfig struct {
	limits Limits
}

type ReadOption func(*readConfig)

func WithReadLimits(l Limits) ReadOption {
	return func(c *readConfig) { c.limits = l }
}

type writeConfig struct {
	limits       Limits
	deflateLevel int
	progID       bool
}

type WriteOption func(*writeConfig)

func WithWriteLimits(l Limits) WriteOption {
	return func(c *writeConfig) { c.limits = l }
}

// WithDeflateLevel sets the deflate level for container entries, in the
// range the flate package accepts. The default is the flate default level.
func WithDeflateLevel(level int) WriteOption {
	return func(c *writeConfig) { c.deflateLevel = level }
}

// WithProgIDHint controls whether the Flat OPC encoder emits the
// mso-application processing instruction for recognized document kinds.
// Enabled by default; the container encoder ignores it.
func WithProgIDHint(v bool) WriteOption {
	return func(c *writeConfig) { c.progID = v }
}

type openConfig struct {
	limits      Limits
	readonly    bool
	lockTimeout time.Duration
	format      Format
}

type OpenOption func(*openConfig)

func WithOpenLimits(l Limits) OpenOption {
	return func(c *openConfig) { c.limits = l }
}

// WithReadOnly opens the session without edit rights: every mutation and
// Save fails with ErrNotEditable, and Close never writes back.
func WithReadOnly() OpenOption {
	return func(c *openConfig) { c.readonly = true }
}

// WithLockTimeout bounds how long Save and Clone wait for the backing
// medium's flush lock. Contention past the timeout fails with
// ErrConcurrencyConflict. Zero (the default) waits indefinitely.
func WithLockTimeout(d time.Duration) OpenOption {
	return func(c *openConfig) { c.lockTimeout = d }
}

// WithFormat pins the session's serialization format instead of sniffing it
// from the backing medium's bytes.
func WithFormat(f Format) OpenOption {
	return func(c *openConfig) { c.format = f }
}
