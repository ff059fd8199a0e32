package sync

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/repository"
)

// IDResolver translates local entity ids to their Portal counterparts by
// reading the portal_id link of the local row. It never calls the network.
// An unresolved mapping is a hard errs.ErrMapping: retrying cannot fix it.
type IDResolver struct {
	store repository.MirrorStore
}

// NewIDResolver constructs a resolver over the local mirror store.
func NewIDResolver(store repository.MirrorStore) *IDResolver {
	return &IDResolver{store: store}
}

func (r *IDResolver) resolve(entity string, id uuid.UUID, pid string, err error) (string, error) {
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %s", errs.ErrMapping, entity, id, err)
	}
	if pid == "" {
		return "", fmt.Errorf("%w: %s %s is not linked to the Portal", errs.ErrMapping, entity, id)
	}
	return pid, nil
}

// Unit resolves the Portal id of a local unit.
func (r *IDResolver) Unit(ctx context.Context, id uuid.UUID) (string, error) {
	pid, err := r.store.UnitPortalID(ctx, id)
	return r.resolve("unit", id, pid, err)
}

// Amenity resolves the Portal id of a local amenity.
func (r *IDResolver) Amenity(ctx context.Context, id uuid.UUID) (string, error) {
	pid, err := r.store.AmenityPortalID(ctx, id)
	return r.resolve("amenity", id, pid, err)
}

// Building resolves the Portal id of a local building.
func (r *IDResolver) Building(ctx context.Context, id uuid.UUID) (string, error) {
	pid, err := r.store.BuildingPortalID(ctx, id)
	return r.resolve("building", id, pid, err)
}

// Reservation resolves the Portal id already linked to a local reservation.
func (r *IDResolver) Reservation(ctx context.Context, id uuid.UUID) (string, error) {
	res, err := r.store.GetReservation(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: reservation %s: %s", errs.ErrMapping, id, err)
	}
	if res.PortalID == nil || *res.PortalID == "" {
		return "", fmt.Errorf("%w: reservation %s is not linked to the Portal", errs.ErrMapping, id)
	}
	return *res.PortalID, nil
}

// Incident resolves the Portal id already linked to a local incident.
func (r *IDResolver) Incident(ctx context.Context, id uuid.UUID) (string, error) {
	inc, err := r.store.GetIncident(ctx, id)
	if err != nil {
		return "", fmt.Errorf("%w: incident %s: %s", errs.ErrMapping, id, err)
	}
	if inc.PortalID == nil || *inc.PortalID == "" {
		return "", fmt.Errorf("%w: incident %s is not linked to the Portal", errs.ErrMapping, id)
	}
	return *inc.PortalID, nil
}
