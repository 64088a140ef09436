package schema

import "errors"

// Limits bounds registry-time resource use: an explicit struct passed
// to the constructor rather than a package-level global, so two
// registries in the same process (e.g. a test and the real agent)
// never share a policy by accident. The zero value is unbounded.
type Limits struct {
	// MaxSchemaCount caps the number of packet types a Registry will
	// accept. 0 means unbounded.
	MaxSchemaCount int

	// MaxArrayCapacity caps FieldSchema.Capacity for ARRAY fields,
	// tighter than the wire format's own ceiling of 65535. 0 means
	// unbounded (still subject to the 65535 ceiling Validate enforces
	// unconditionally).
	MaxArrayCapacity int
}

// ErrSchemaCountLimitExceeded is returned by Register when
// Limits.MaxSchemaCount is set and already reached.
var ErrSchemaCountLimitExceeded = errors.New("schema: registry schema count limit exceeded")

// ErrArrayCapacityLimitExceeded is returned by Register when an ARRAY
// field's Capacity exceeds Limits.MaxArrayCapacity.
var ErrArrayCapacityLimitExceeded = errors.New("schema: array capacity exceeds configured limit")
