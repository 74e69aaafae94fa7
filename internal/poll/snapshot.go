package poll

import "time"

// Payload is the raw field mapping returned by a vendor fetch.
// Values are the usual JSON scalars plus nested maps and slices.
type Payload map[string]any

// Snapshot is the immutable result of the most recent successful fetch or
// push update. Each publish produces a brand-new Data map; a Snapshot handed
// to a listener is never mutated afterwards.
//
// A payload that omits a previously known key does not delete it: the new
// Snapshot retains the old value, so a device that drops fields across a
// restart keeps its last-known state rather than losing entities.
type Snapshot struct {
	// Seq is the publish sequence number, starting at 1. Snapshots from one
	// coordinator are totally ordered by Seq.
	Seq uint64 `json:"seq"`

	// Taken is when this snapshot was published.
	Taken time.Time `json:"taken"`

	// Data maps field keys to their last-known values. Treat as read-only.
	Data map[string]any `json:"data"`
}

// IsZero reports whether no snapshot has been published yet.
func (s Snapshot) IsZero() bool {
	return s.Seq == 0
}

// Value returns the value for key and whether it is present.
func (s Snapshot) Value(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// mergePayload builds the next snapshot data map: a copy of prev with the
// payload's keys overlaid. Nested maps and slices from the payload are
// deep-copied so later vendor-side mutation cannot reach a published snapshot.
func mergePayload(prev map[string]any, p Payload) map[string]any {
	merged := make(map[string]any, len(prev)+len(p))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range p {
		merged[k] = copyValue(v)
	}
	return merged
}

// copyValue recursively copies a payload value, handling nested maps and slices.
func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, e := range val {
			cpy[k] = copyValue(e)
		}
		return cpy
	case []any:
		cpy := make([]any, len(val))
		for i, e := range val {
			cpy[i] = copyValue(e)
		}
		return cpy
	default:
		// Primitives are safe to copy by value
		return v
	}
}
