package opc

// Limits bound what the decoders will materialize and what the encoders will
// accept. Zero fields take the defaults, so callers only override what they
// care about.
type Limits struct {
	MaxParts                  int
	MaxPartSize               uint64 // bytes after extraction
	MaxTotalSize              uint64 // sum of all part payloads
	MaxRelationshipsPerSource int
}

func defaultLimits() Limits {
	return Limits{
		MaxParts:                  10_000,
		MaxPartSize:               512 << 20, // 512 MiB
		MaxTotalSize:              2 << 30,   // 2 GiB
		MaxRelationshipsPerSource: 10_000,
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxParts == 0 {
		l.MaxParts = d.MaxParts
	}
	if l.MaxPartSize == 0 {
		l.MaxPartSize = d.MaxPartSize
	}
	if l.MaxTotalSize == 0 {
		l.MaxTotalSize = d.MaxTotalSize
	}
	if l.MaxRelationshipsPerSource == 0 {
		l.MaxRelationshipsPerSource = d.MaxRelationshipsPerSource
	}
	return l
}
