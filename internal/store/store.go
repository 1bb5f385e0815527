// Package store provides a partitioned key-value table abstraction with
// exact-key lookups, filter queries and sort-key range scans. Two
// implementations exist: Postgres for deployment and an in-memory table for
// tests and local development.
package store

import "context"

// Entity is a loosely-typed row as stored. Typed domain records are converted
// to and from entities at the repository boundary only.
type Entity = map[string]any

// Reserved metadata fields appended to entities returned by reads. They are
// not part of the domain object and must be stripped before re-serializing.
const (
	MetaVersion   = "_version"
	MetaTimestamp = "_ts"
)

// CompareOperator is used in filter queries.
type CompareOperator string

const (
	OpEqual        CompareOperator = "eq"
	OpNotEqual     CompareOperator = "ne"
	OpGreaterThan  CompareOperator = "gt"
	OpLessThan     CompareOperator = "lt"
)

// JoinOperator combines multiple filters.
type JoinOperator string

const (
	JoinAnd JoinOperator = "and"
	JoinOr  JoinOperator = "or"
)

// Filter is one (field, value, operator) predicate over entity attributes.
type Filter struct {
	Field    string
	Value    any
	Operator CompareOperator
}

// Eq builds an equality filter, the overwhelmingly common case.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value, Operator: OpEqual}
}

// TableStore is the contract every backing table implements.
//
// Get returns a NOT_FOUND domain error when the row is absent; transport
// failures surface as UNAVAILABLE and must not be conflated with absence.
type TableStore interface {
	Get(ctx context.Context, partitionKey, sortKey string) (Entity, error)
	Upsert(ctx context.Context, entity Entity, partitionKey, sortKey string) (string, error)
	Delete(ctx context.Context, partitionKey, sortKey string) error
	QueryByFilters(ctx context.Context, filters []Filter, join JoinOperator) ([]Entity, error)
	// QueryRange returns entities in partitionKey whose sort key is in
	// [lower, upper), ordered by sort key.
	QueryRange(ctx context.Context, partitionKey, lower, upper string) ([]Entity, error)
	Close()
}

// StripMetadata removes server-assigned metadata fields in place and returns
// the entity for chaining.
func StripMetadata(e Entity) Entity {
	delete(e, MetaVersion)
	delete(e, MetaTimestamp)
	return e
}
