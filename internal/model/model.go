// Package model defines domain entities used by the sync core and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Credential is the current Portal bearer credential. Process-wide, single
// identity at a time; persisted so it survives restarts.
type Credential struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// JobType selects the replay handler for a queued sync job.
type JobType string

// Job type tags. The remote-* variants re-attempt a Portal write (and carry
// the local payload so the mirror write can follow without re-deriving
// input); the local-* variants re-attempt only the mirror write after the
// Portal already accepted the change.
const (
	JobRemoteCreateReservation  JobType = "remote-create-reservation"
	JobRemoteCreateIncident     JobType = "remote-create-incident"
	JobRemoteUpdateIncident     JobType = "remote-update-incident"
	JobRemoteApproveReservation JobType = "remote-approve-reservation"
	JobRemoteProvisionUser      JobType = "remote-provision-user"
	JobLocalCreateReservation   JobType = "local-create-reservation"
	JobLocalCreateIncident      JobType = "local-create-incident"
	JobLocalUpdateIncident      JobType = "local-update-incident"
	JobLocalUpdateReservation   JobType = "local-update-reservation-status"
)

// Job is the unit of deferred synchronization work. Remote and Local hold
// the per-type payloads serialized at enqueue time; handlers unmarshal them
// into their own typed shapes.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Type      JobType         `json:"type"`
	Remote    json.RawMessage `json:"remote_payload,omitempty"`
	Local     json.RawMessage `json:"local_payload,omitempty"`
	RemoteID  string          `json:"remote_id,omitempty"` // Portal-assigned id for local-* replays
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// ---- remote payloads (the shapes the Portal expects) ----

// ReservationRemote is the body for POST reservas.
type ReservationRemote struct {
	UnitID    string `json:"idUnidad"`
	AmenityID string `json:"idAmenidad"`
	Date      string `json:"fecha"`
	Start     string `json:"horaInicio"`
	End       string `json:"horaFin"`
	Notes     string `json:"comentarios,omitempty"`
}

// IncidentRemote is the body for POST incidencias.
type IncidentRemote struct {
	BuildingID  string `json:"idEdificio"`
	Type        string `json:"tipo"`
	Title       string `json:"titulo"`
	Description string `json:"descripcion"`
	Location    string `json:"ubicacion,omitempty"`
	Priority    string `json:"prioridad,omitempty"`
}

// IncidentUpdateRemote is the body for PUT incidencias/{id}. PortalID rides
// along so replay knows the path segment.
type IncidentUpdateRemote struct {
	PortalID string `json:"idIncidencia"`
	Status   string `json:"estatus,omitempty"`
	Comment  string `json:"comentario,omitempty"`
}

// ApprovalRemote is the body for PUT approvals/reservations/{id}.
type ApprovalRemote struct {
	PortalID string `json:"idReserva"`
	Status   string `json:"estatus"`
}

// UserRemote is the body for POST auth/usuarios.
type UserRemote struct {
	Email  string `json:"correo"`
	Name   string `json:"nombre"`
	Role   string `json:"rol"`
	UnitID string `json:"idUnidad,omitempty"`
}

// ---- local payloads (the shapes the mirror write expects) ----

// ReservationLocal is the input for the local reservation mirror write.
type ReservationLocal struct {
	UserID    uuid.UUID `json:"user_id"`
	AmenityID uuid.UUID `json:"amenity_id"`
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Notes     string    `json:"notes,omitempty"`
}

// IncidentLocal is the input for the local incident mirror write.
type IncidentLocal struct {
	UserID      uuid.UUID `json:"user_id"`
	BuildingID  uuid.UUID `json:"building_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Priority    string    `json:"priority,omitempty"`
}

// IncidentUpdateLocal is the input for the local incident update replay.
type IncidentUpdateLocal struct {
	IncidentID uuid.UUID      `json:"incident_id"`
	Updates    IncidentUpdate `json:"updates"`
}

// ReservationStatusLocal is the input for the local reservation-status replay.
type ReservationStatusLocal struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Status        string    `json:"status"`
}

// IncidentUpdate carries the optional fields of a local incident update.
// Nil means "leave unchanged".
type IncidentUpdate struct {
	Status     *string `json:"status,omitempty"`
	Resolution *string `json:"resolution,omitempty"`
	Priority   *string `json:"priority,omitempty"`
}

// ---- local mirror entities ----

// User is a local account mirrored against a Portal user.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	Role      string
	UnitID    uuid.UUID
	PortalID  *string
	CreatedAt time.Time
}

// Building is a local building row linked to its Portal counterpart.
type Building struct {
	ID       uuid.UUID
	Name     string
	PortalID *string
}

// Unit is a dwelling within a building.
type Unit struct {
	ID         uuid.UUID
	BuildingID uuid.UUID
	Label      string
	PortalID   *string
}

// Amenity is a reservable shared facility.
type Amenity struct {
	ID         uuid.UUID
	BuildingID uuid.UUID
	Name       string
	PortalID   *string
}

// Reservation is a local amenity booking mirrored against the Portal.
type Reservation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	AmenityID uuid.UUID
	Date      string
	Start     string
	End       string
	Notes     string
	Status    string
	PortalID  *string
	CreatedAt time.Time
}

// Incident is a local maintenance/incident report mirrored against the Portal.
type Incident struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	BuildingID  uuid.UUID
	Type        string
	Title       string
	Description string
	Location    string
	Priority    string
	Status      string
	Resolution  string
	PortalID    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
