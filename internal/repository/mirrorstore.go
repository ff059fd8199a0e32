// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/vecindapp/portalsync/internal/model"
)

// MirrorStore provides CRUD access to the local mirror of Portal business
// data. portal_id columns carry the link to the remote counterpart; a nil
// portalID on create means the remote id is backfilled later.
type MirrorStore interface {
	// CreateReservation inserts a reservation row and returns it.
	CreateReservation(ctx context.Context, in model.ReservationLocal, portalID *string) (*model.Reservation, error)
	// CreateIncident inserts an incident row and returns it.
	CreateIncident(ctx context.Context, in model.IncidentLocal, portalID *string) (*model.Incident, error)
	// UpdateIncident applies the non-nil fields of upd to an incident.
	UpdateIncident(ctx context.Context, id uuid.UUID, upd model.IncidentUpdate) error
	// UpdateReservationStatus sets a reservation's canonical status.
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, status string) error
	// UpdateReservationPortalID backfills the remote id of a reservation.
	UpdateReservationPortalID(ctx context.Context, id uuid.UUID, portalID string) error
	// UpdateIncidentPortalID backfills the remote id of an incident.
	UpdateIncidentPortalID(ctx context.Context, id uuid.UUID, portalID string) error

	// UnitPortalID resolves the remote id of a local unit. Returns
	// errs.ErrNotFound when the row does not exist; an empty string when the
	// row exists but is not linked.
	UnitPortalID(ctx context.Context, id uuid.UUID) (string, error)
	// AmenityPortalID resolves the remote id of a local amenity.
	AmenityPortalID(ctx context.Context, id uuid.UUID) (string, error)
	// BuildingPortalID resolves the remote id of a local building.
	BuildingPortalID(ctx context.Context, id uuid.UUID) (string, error)

	// GetUserByEmail loads a local user by email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUserProfile applies the given profile fields to a user.
	UpdateUserProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// SetUserRoles replaces the user's role list.
	SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error

	// GetReservation loads a reservation row.
	GetReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	// GetIncident loads an incident row.
	GetIncident(ctx context.Context, id uuid.UUID) (*model.Incident, error)
}
