package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/model"
)

// MirrorRepo implements repository.MirrorStore using PostgreSQL.
type MirrorRepo struct{ db *DB }

// NewMirrorRepo constructs a mirror repository.
func NewMirrorRepo(db *DB) *MirrorRepo { return &MirrorRepo{db: db} }

// CreateReservation inserts a reservation row with status pending.
func (r *MirrorRepo) CreateReservation(ctx context.Context, in model.ReservationLocal, portalID *string) (*model.Reservation, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO reservations (id, user_id, amenity_id, date, start_time, end_time, notes, status, portal_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
RETURNING created_at`
	res := &model.Reservation{
		ID:        id,
		UserID:    in.UserID,
		AmenityID: in.AmenityID,
		Date:      in.Date,
		Start:     in.Start,
		End:       in.End,
		Notes:     in.Notes,
		Status:    "pending",
		PortalID:  portalID,
	}
	row := r.db.Pool.QueryRow(ctx, q, id, in.UserID, in.AmenityID, in.Date, in.Start, in.End, in.Notes, portalID)
	if err := row.Scan(&res.CreatedAt); err != nil {
		// A replayed create job may find its row already mirrored; the
		// logical key is unique, so converge on the existing row.
		if isUniqueViolation(err) {
			return r.getReservationByLogicalKey(ctx, in)
		}
		return nil, fmt.Errorf("%w: create reservation: %s", errs.ErrLocalStore, err)
	}
	return res, nil
}

func (r *MirrorRepo) getReservationByLogicalKey(ctx context.Context, in model.ReservationLocal) (*model.Reservation, error) {
	const q = `
SELECT id, user_id, amenity_id, date, start_time, end_time, notes, status, portal_id, created_at
FROM reservations
WHERE user_id=$1 AND amenity_id=$2 AND date=$3 AND start_time=$4 AND end_time=$5`
	var res model.Reservation
	row := r.db.Pool.QueryRow(ctx, q, in.UserID, in.AmenityID, in.Date, in.Start, in.End)
	if err := row.Scan(&res.ID, &res.UserID, &res.AmenityID, &res.Date, &res.Start, &res.End,
		&res.Notes, &res.Status, &res.PortalID, &res.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: create reservation: %s", errs.ErrLocalStore, err)
	}
	return &res, nil
}

// CreateIncident inserts an incident row with status open.
func (r *MirrorRepo) CreateIncident(ctx context.Context, in model.IncidentLocal, portalID *string) (*model.Incident, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO incidents (id, user_id, building_id, type, title, description, location, priority, status, portal_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open', $9)
RETURNING created_at, updated_at`
	inc := &model.Incident{
		ID:          id,
		UserID:      in.UserID,
		BuildingID:  in.BuildingID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Priority:    in.Priority,
		Status:      "open",
		PortalID:    portalID,
	}
	row := r.db.Pool.QueryRow(ctx, q, id, in.UserID, in.BuildingID, in.Type, in.Title, in.Description, in.Location, in.Priority, portalID)
	if err := row.Scan(&inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: create incident: %s", errs.ErrLocalStore, err)
	}
	return inc, nil
}

// UpdateIncident applies the non-nil fields of upd. A no-op update succeeds
// without touching the row.
func (r *MirrorRepo) UpdateIncident(ctx context.Context, id uuid.UUID, upd model.IncidentUpdate) error {
	sets := make([]string, 0, 4)
	args := []any{id}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	add("status", upd.Status)
	add("resolution", upd.Resolution)
	add("priority", upd.Priority)
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=now()")
	q := fmt.Sprintf(`UPDATE incidents SET %s WHERE id=$1`, strings.Join(sets, ", "))
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: update incident: %s", errs.ErrLocalStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateReservationStatus sets a reservation's canonical status.
func (r *MirrorRepo) UpdateReservationStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE reservations SET status=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("%w: update reservation status: %s", errs.ErrLocalStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateReservationPortalID backfills the remote id of a reservation.
func (r *MirrorRepo) UpdateReservationPortalID(ctx context.Context, id uuid.UUID, portalID string) error {
	const q = `UPDATE reservations SET portal_id=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, portalID)
	if err != nil {
		return fmt.Errorf("%w: update reservation portal_id: %s", errs.ErrLocalStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateIncidentPortalID backfills the remote id of an incident.
func (r *MirrorRepo) UpdateIncidentPortalID(ctx context.Context, id uuid.UUID, portalID string) error {
	const q = `UPDATE incidents SET portal_id=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, portalID)
	if err != nil {
		return fmt.Errorf("%w: update incident portal_id: %s", errs.ErrLocalStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// portalID reads the portal_id column of one row in the given table.
func (r *MirrorRepo) portalID(ctx context.Context, table string, id uuid.UUID) (string, error) {
	q := fmt.Sprintf(`SELECT portal_id FROM %s WHERE id=$1`, table)
	var pid *string
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&pid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", err
	}
	if pid == nil {
		return "", nil
	}
	return *pid, nil
}

// UnitPortalID resolves the remote id of a unit.
func (r *MirrorRepo) UnitPortalID(ctx context.Context, id uuid.UUID) (string, error) {
	return r.portalID(ctx, "units", id)
}

// AmenityPortalID resolves the remote id of an amenity.
func (r *MirrorRepo) AmenityPortalID(ctx context.Context, id uuid.UUID) (string, error) {
	return r.portalID(ctx, "amenities", id)
}

// BuildingPortalID resolves the remote id of a building.
func (r *MirrorRepo) BuildingPortalID(ctx context.Context, id uuid.UUID) (string, error) {
	return r.portalID(ctx, "buildings", id)
}

// GetUserByEmail loads a user by email.
func (r *MirrorRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, email, name, role, unit_id, portal_id, created_at
FROM users WHERE email=$1`
	var u model.User
	row := r.db.Pool.QueryRow(ctx, q, email)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.UnitID, &u.PortalID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// userProfileColumns limits which profile fields callers may touch.
var userProfileColumns = map[string]bool{
	"name":      true,
	"role":      true,
	"portal_id": true,
}

// UpdateUserProfile applies the allowed fields to a user row.
func (r *MirrorRepo) UpdateUserProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	sets := make([]string, 0, len(fields))
	args := []any{id}
	for col, v := range fields {
		if !userProfileColumns[col] {
			return fmt.Errorf("%w: profile field %q not updatable", errs.ErrLocalStore, col)
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$1`, strings.Join(sets, ", "))
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: update user profile: %s", errs.ErrLocalStore, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetUserRoles replaces the user's role list atomically.
func (r *MirrorRepo) SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id=$1`, id); err != nil {
		return fmt.Errorf("%w: clear roles: %s", errs.ErrLocalStore, err)
	}
	for _, role := range roles {
		if _, err = tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, id, role); err != nil {
			return fmt.Errorf("%w: insert role: %s", errs.ErrLocalStore, err)
		}
	}
	return nil
}

// GetReservation loads a reservation row.
func (r *MirrorRepo) GetReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	const q = `
SELECT id, user_id, amenity_id, date, start_time, end_time, notes, status, portal_id, created_at
FROM reservations WHERE id=$1`
	var res model.Reservation
	row := r.db.Pool.QueryRow(ctx, q, id)
	if err := row.Scan(&res.ID, &res.UserID, &res.AmenityID, &res.Date, &res.Start, &res.End,
		&res.Notes, &res.Status, &res.PortalID, &res.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// GetIncident loads an incident row.
func (r *MirrorRepo) GetIncident(ctx context.Context, id uuid.UUID) (*model.Incident, error) {
	const q = `
SELECT id, user_id, building_id, type, title, description, location, priority, status, resolution, portal_id, created_at, updated_at
FROM incidents WHERE id=$1`
	var inc model.Incident
	row := r.db.Pool.QueryRow(ctx, q, id)
	if err := row.Scan(&inc.ID, &inc.UserID, &inc.BuildingID, &inc.Type, &inc.Title, &inc.Description,
		&inc.Location, &inc.Priority, &inc.Status, &inc.Resolution, &inc.PortalID, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &inc, nil
}
