package repository

import (
	"context"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/model"
	"github.com/luminapay/invoice-lifecycle/internal/store"
)

// VendorRepository reads vendor records. Vendors live under the fixed
// VENDOR partition and are owned by the vendor-management service; agents
// never write them.
type VendorRepository struct {
	table store.TableStore
}

// NewVendorRepository creates a new vendor repository.
func NewVendorRepository(table store.TableStore) *VendorRepository {
	return &VendorRepository{table: table}
}

// Get loads one vendor by id.
func (r *VendorRepository) Get(ctx context.Context, vendorID string) (*model.Vendor, error) {
	e, err := r.table.Get(ctx, model.VendorPartition, vendorID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NotFound("vendor", vendorID)
		}
		return nil, err
	}

	var v model.Vendor
	if err := fromEntity(e, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByName returns the first vendor with a matching display name, or a
// NOT_FOUND error. Vendor names are unique by convention in the vendor
// service.
func (r *VendorRepository) FindByName(ctx context.Context, name string) (*model.Vendor, error) {
	entities, err := r.table.QueryByFilters(ctx, []store.Filter{
		store.Eq("name", name),
	}, store.JoinAnd)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, errors.NotFound("vendor", name)
	}

	var v model.Vendor
	if err := fromEntity(entities[0], &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Upsert writes a vendor record. Used by seeding and tests only.
func (r *VendorRepository) Upsert(ctx context.Context, v *model.Vendor) error {
	if v.VendorID == "" {
		return errors.InvalidInput("vendor", "vendor_id is required")
	}
	e, err := toEntity(v)
	if err != nil {
		return err
	}
	_, err = r.table.Upsert(ctx, e, model.VendorPartition, v.VendorID)
	return err
}
