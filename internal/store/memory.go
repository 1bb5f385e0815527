package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
)

// Memory is an in-memory TableStore for tests and single-process development.
// Entities are deep-copied on the way in and out so callers never share
// backing maps with the store.
type Memory struct {
	mu    sync.RWMutex
	rows  map[string]map[string]Entity // partition -> sort key -> entity
	vers  map[string]map[string]int64
	table string
}

// NewMemory creates an empty in-memory table.
func NewMemory(table string) *Memory {
	return &Memory{
		rows:  make(map[string]map[string]Entity),
		vers:  make(map[string]map[string]int64),
		table: table,
	}
}

func (m *Memory) Get(_ context.Context, partitionKey, sortKey string) (Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part, ok := m.rows[partitionKey]
	if !ok {
		return nil, errors.NotFound("entity", partitionKey+"/"+sortKey)
	}
	e, ok := part[sortKey]
	if !ok {
		return nil, errors.NotFound("entity", partitionKey+"/"+sortKey)
	}
	out := deepCopy(e)
	out[MetaVersion] = m.vers[partitionKey][sortKey]
	out[MetaTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, entity Entity, partitionKey, sortKey string) (string, error) {
	if partitionKey == "" || sortKey == "" {
		return "", errors.InvalidInput("key", "partition and sort keys are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rows[partitionKey] == nil {
		m.rows[partitionKey] = make(map[string]Entity)
		m.vers[partitionKey] = make(map[string]int64)
	}
	m.rows[partitionKey][sortKey] = StripMetadata(deepCopy(entity))
	m.vers[partitionKey][sortKey]++
	return sortKey, nil
}

func (m *Memory) Delete(_ context.Context, partitionKey, sortKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.rows[partitionKey]
	if !ok {
		return errors.NotFound("entity", partitionKey+"/"+sortKey)
	}
	if _, ok := part[sortKey]; !ok {
		return errors.NotFound("entity", partitionKey+"/"+sortKey)
	}
	delete(part, sortKey)
	delete(m.vers[partitionKey], sortKey)
	return nil
}

func (m *Memory) QueryByFilters(_ context.Context, filters []Filter, join JoinOperator) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entity
	for pk, part := range m.rows {
		for sk, e := range part {
			if matchesFilters(e, filters, join) {
				c := deepCopy(e)
				c[MetaVersion] = m.vers[pk][sk]
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *Memory) QueryRange(_ context.Context, partitionKey, lower, upper string) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.rows[partitionKey]
	keys := make([]string, 0, len(part))
	for sk := range part {
		if sk >= lower && sk < upper {
			keys = append(keys, sk)
		}
	}
	sort.Strings(keys)

	out := make([]Entity, 0, len(keys))
	for _, sk := range keys {
		c := deepCopy(part[sk])
		c[MetaVersion] = m.vers[partitionKey][sk]
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) Close() {}

func matchesFilters(e Entity, filters []Filter, join JoinOperator) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		ok := matchesFilter(e, f)
		if join == JoinOr && ok {
			return true
		}
		if join != JoinOr && !ok {
			return false
		}
	}
	return join != JoinOr
}

func matchesFilter(e Entity, f Filter) bool {
	v, present := e[f.Field]
	switch f.Operator {
	case OpNotEqual:
		return !present || !looseEqual(v, f.Value)
	case OpGreaterThan:
		a, b, ok := bothNumbers(v, f.Value)
		return ok && a > b
	case OpLessThan:
		a, b, ok := bothNumbers(v, f.Value)
		return ok && a < b
	default:
		return present && looseEqual(v, f.Value)
	}
}

// looseEqual compares values the way they round-trip through JSON, so int64
// and float64 representations of the same number are equal.
func looseEqual(a, b any) bool {
	if x, y, ok := bothNumbers(a, b); ok {
		return x == y
	}
	return a == b
}

func bothNumbers(a, b any) (float64, float64, bool) {
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	return x, y, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// deepCopy clones an entity through JSON, matching the serialization used at
// the repository boundary.
func deepCopy(e Entity) Entity {
	raw, err := json.Marshal(e)
	if err != nil {
		// Entities always originate from JSON-serializable domain records.
		out := make(Entity, len(e))
		for k, v := range e {
			out[k] = v
		}
		return out
	}
	var out Entity
	if err := json.Unmarshal(raw, &out); err != nil {
		return e
	}
	return out
}
