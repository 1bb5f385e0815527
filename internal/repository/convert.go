// Package repository provides typed access to the entity store. Conversion
// between domain records and loosely-typed store entities happens here and
// nowhere else.
package repository

import (
	"encoding/json"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// toEntity serializes a domain record into a store entity.
func toEntity(v any) (store.Entity, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to serialize record")
	}
	var e store.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build entity")
	}
	return e, nil
}

// fromEntity deserializes a store entity into out, dropping server-assigned
// metadata first so it never leaks into domain records.
func fromEntity(e store.Entity, out any) error {
	raw, err := json.Marshal(store.StripMetadata(e))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to read entity")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to decode record")
	}
	return nil
}
