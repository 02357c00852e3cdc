package opc

import "errors"

var (
	ErrNotFound             = errors.New("opc: not found")
	ErrDuplicatePart        = errors.New("opc: duplicate part name")
	ErrPartInUse            = errors.New("opc: part in use")
	ErrDanglingRelationship = errors.New("opc: dangling relationship")
	ErrMalformedContainer   = errors.New("opc: malformed container")
	ErrMalformedFlatOPC     = errors.New("opc: malformed flat opc document")
	ErrNotEditable          = errors.New("opc: not editable")
	ErrSessionClosed        = errors.New("opc: session closed")
	ErrConcurrencyConflict  = errors.New("opc: concurrency conflict")
	ErrLimitExceeded        = errors.New("opc: limit exceeded")
	ErrValidation           = errors.New("opc: validation failed")
)
