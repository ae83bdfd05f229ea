package store

import (
	"context"
	"errors"
)

// Collection names used by the engine.
const (
	CollectionParameters     = "parameter_settings"
	CollectionHourly         = "ccr_parameter_data"
	CollectionSilo           = "ccr_silo_data"
	CollectionMaterialUsage  = "material_usage"
	CollectionShiftAggregate = "shift_aggregates"
	CollectionCapacity       = "production_capacity"
)

// ErrNotFound marks a record or collection that does not exist. Callers
// that query reference/aggregate collections treat it as an empty
// result, never as a failure: a fresh deployment may legitimately not
// have them yet.
var ErrNotFound = errors.New("record not found")

// ErrTransient marks a network-bound failure (timeout, abort,
// connection reset) that is worth retrying.
var ErrTransient = errors.New("transient store failure")

// Record is the loose field map a record store row travels as. The
// normalizing adapter in this package is the only place the rest of the
// engine touches this shape.
type Record map[string]any

// ID returns the record's id field, empty when absent.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// String reads a string field, tolerating absence.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Filter is a simple equality filter on record fields. A value wrapped
// in Like matches substrings.
type Filter map[string]any

// Like marks a filter value for substring (LIKE) matching.
type Like string

// ChangeAction identifies what happened to a record.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// ChangeEvent is an at-least-once notification of a store mutation,
// with enough payload to identify the affected date/parameter/unit.
type ChangeEvent struct {
	Action      ChangeAction `json:"action"`
	Collection  string       `json:"collection"`
	RecordID    string       `json:"record_id"`
	Date        string       `json:"date,omitempty"`
	ParameterID string       `json:"parameter_id,omitempty"`
	PlantUnit   string       `json:"plant_unit,omitempty"`
}

// ChangeHandler receives change notifications. Handlers must not block.
type ChangeHandler func(ChangeEvent)

// RecordStore is the one collaborator surface the engine consumes. All
// operations are asynchronous from the caller's point of view and can
// fail transiently; durability is the store's own concern.
type RecordStore interface {
	Query(ctx context.Context, collection string, filter Filter, sort string) ([]Record, error)
	Create(ctx context.Context, collection string, fields Record) (Record, error)
	Update(ctx context.Context, collection string, id string, fields Record) (Record, error)
	Delete(ctx context.Context, collection string, id string) error
	// Subscribe registers a handler for the collection's change feed
	// and returns an unsubscribe func. Delivery is at-least-once.
	Subscribe(ctx context.Context, collection string, handler ChangeHandler) (func(), error)
}
