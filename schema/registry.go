package schema

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotRegistered is returned by Lookup for an unknown packet type.
// This is non-fatal to a connection: the frame itself was
// valid, only its type is unrecognized.
var ErrNotRegistered = errors.New("schema: packet type not registered")

// ErrCapabilityFieldsUnsupported reports that this data model has no
// representation for capability-gated field presence, so a
// hypothetical loader that tries to register one must fail explicitly
// rather than silently dropping the predicate.
var ErrCapabilityFieldsUnsupported = errors.New("schema: capability-gated fields are not supported")

// Registry is a lookup table from packet type to PacketSchema. It is
// intended to be populated once at startup (see Seed) and read
// frequently thereafter; the mutex exists so additional registrations
// can safely happen from a background loader without coordinating
// with readers, not because the hot path contends on it.
type Registry struct {
	mu      sync.RWMutex
	schemas map[uint16]*PacketSchema
	limits  Limits
}

// NewRegistry returns an empty registry with no Limits (unbounded).
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[uint16]*PacketSchema)}
}

// NewRegistryWithLimits returns an empty registry that enforces limits
// on every subsequent Register call.
func NewRegistryWithLimits(limits Limits) *Registry {
	return &Registry{schemas: make(map[uint16]*PacketSchema), limits: limits}
}

// Register adds a schema to the registry. Returns an error if the
// schema fails validation, if PacketType is already registered, or if
// registering it would violate the registry's Limits.
func (r *Registry) Register(s *PacketSchema) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if max := r.limits.MaxArrayCapacity; max > 0 {
		for _, f := range s.Fields {
			if f.Kind == ARRAY && f.Capacity > max {
				return fmt.Errorf("%w: packet %d field %q capacity %d > limit %d", ErrArrayCapacityLimitExceeded, s.PacketType, f.Name, f.Capacity, max)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.PacketType]; exists {
		return fmt.Errorf("schema: packet type %d already registered", s.PacketType)
	}

	if max := r.limits.MaxSchemaCount; max > 0 && len(r.schemas) >= max {
		return fmt.Errorf("%w: limit %d", ErrSchemaCountLimitExceeded, max)
	}

	r.schemas[s.PacketType] = s
	return nil
}

// Lookup returns the schema registered for packetType, or
// ErrNotRegistered if none exists.
func (r *Registry) Lookup(packetType uint16) (*PacketSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[packetType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotRegistered, packetType)
	}
	return s, nil
}
