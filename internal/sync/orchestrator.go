// Package sync implements the dual-write orchestration between the Portal
// and the local mirror, the durable retry queue consumption, and the replay
// handlers shared by both.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/vecindapp/portalsync/internal/errs"
	"github.com/vecindapp/portalsync/internal/model"
	"github.com/vecindapp/portalsync/internal/portal"
	"github.com/vecindapp/portalsync/internal/queue"
	"github.com/vecindapp/portalsync/internal/repository"
	"github.com/vecindapp/portalsync/internal/translate"
)

// PortalAPI is the slice of the Portal client the orchestrator needs.
type PortalAPI interface {
	Request(ctx context.Context, path string, opts portal.RequestOptions) (json.RawMessage, error)
}

// Authenticator guards Portal access before any authenticated operation.
type Authenticator interface {
	EnsureAuth(ctx context.Context, email string) (model.Credential, error)
}

// Orchestrator performs one dual write per business operation: remote write
// first, then local mirror write, enqueuing a job on any deferrable failure.
// Handlers return typed results; only a mapping failure surfaces as an error.
type Orchestrator struct {
	portal PortalAPI
	auth   Authenticator
	queue  queue.Store
	store  repository.MirrorStore
	ids    *IDResolver
	log    *zap.Logger
}

// NewOrchestrator wires the dual-write orchestrator.
func NewOrchestrator(p PortalAPI, auth Authenticator, q queue.Store, store repository.MirrorStore, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		portal: p,
		auth:   auth,
		queue:  q,
		store:  store,
		ids:    NewIDResolver(store),
		log:    log,
	}
}

// ReservationResult reports the outcome of CreateReservation. Queued means
// the write was accepted but deferred; Reservation is set on full success.
type ReservationResult struct {
	Queued      bool
	JobID       uuid.UUID
	Reservation *model.Reservation
}

// IncidentResult reports the outcome of CreateIncident.
type IncidentResult struct {
	Queued   bool
	JobID    uuid.UUID
	Incident *model.Incident
}

// Result reports the outcome of the update-shaped operations.
type Result struct {
	Queued bool
	JobID  uuid.UUID
}

// CreateReservationInput is a user's booking request.
type CreateReservationInput struct {
	UserID    uuid.UUID
	UnitID    uuid.UUID
	AmenityID uuid.UUID
	Date      string
	Start     string
	End       string
	Notes     string
}

// CreateReservation books an amenity on the Portal and mirrors it locally.
func (o *Orchestrator) CreateReservation(ctx context.Context, email string, in CreateReservationInput) (ReservationResult, error) {
	unitPID, err := o.ids.Unit(ctx, in.UnitID)
	if err != nil {
		return ReservationResult{}, err
	}
	amenityPID, err := o.ids.Amenity(ctx, in.AmenityID)
	if err != nil {
		return ReservationResult{}, err
	}

	remote := model.ReservationRemote{
		UnitID:    unitPID,
		AmenityID: amenityPID,
		Date:      in.Date,
		Start:     in.Start,
		End:       in.End,
		Notes:     in.Notes,
	}
	local := model.ReservationLocal{
		UserID:    in.UserID,
		AmenityID: in.AmenityID,
		Date:      in.Date,
		Start:     in.Start,
		End:       in.End,
		Notes:     in.Notes,
	}

	if _, err := o.auth.EnsureAuth(ctx, email); err != nil {
		jobID, qerr := o.enqueue(model.JobRemoteCreateReservation, remote, local, "", err)
		if qerr != nil {
			return ReservationResult{}, qerr
		}
		return ReservationResult{Queued: true, JobID: jobID}, nil
	}

	remoteID, err := o.remoteCreateReservation(ctx, remote)
	if err != nil {
		jobID, qerr := o.enqueue(model.JobRemoteCreateReservation, remote, local, "", err)
		if qerr != nil {
			return ReservationResult{}, qerr
		}
		return ReservationResult{Queued: true, JobID: jobID}, nil
	}

	res, err := o.localCreateReservation(ctx, local, remoteID)
	if err != nil {
		jobID, qerr := o.enqueue(model.JobLocalCreateReservation, nil, local, remoteID, err)
		if qerr != nil {
			return ReservationResult{}, qerr
		}
		return ReservationResult{Queued: true, JobID: jobID}, nil
	}
	return ReservationResult{Reservation: res}, nil
}

// CreateIncidentInput is a user's incident report.
type CreateIncidentInput struct {
	UserID      uuid.UUID
	BuildingID  uuid.UUID
	Type        string
	Title       string
	Description string
	Location    string
	Priority    string
}

// CreateIncident reports an incident on the Portal and mirrors it locally.
func (o *Orchestrator) CreateIncident(ctx context.Context, email string, in CreateIncidentInput) (IncidentResult, error) {
	buildingPID, err := o.ids.Building(ctx, in.BuildingID)
	if err != nil {
		return IncidentResult{}, err
	}

	remote := model.IncidentRemote{
		BuildingID:  buildingPID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Priority:    in.Priority,
	}
	local := model.IncidentLocal{
		UserID:      in.UserID,
		BuildingID:  in.BuildingID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Priority:    in.Priority,
	}

	if _, err := o.auth.EnsureAuth(ctx, email); err != nil {
		jobID, qerr := o.enqueue(model.JobRemoteCreateIncident, remote, local, "", err)
		if qerr != nil {
			return IncidentResult{}, qerr
		}
		return IncidentResult{Queued: true, JobID: jobID}, nil
	}

	remoteID, err := o.remoteCreateIncident(ctx, remote)
	if err != nil {
		jobID, qerr := o.enqueue(model.JobRemoteCreateIncident, remote, local, "", err)
		if qerr != nil {
			return IncidentResult{}, qerr
		}
		return IncidentResult{Queued: true, JobID: jobID}, nil
	}

	inc, err := o.localCreateIncident(ctx, local, remoteID)
	if err != nil {
		jobID, qerr := o.enqueue(model.JobLocalCreateIncident, nil, local, remoteID, err)
		if qerr != nil {
			return IncidentResult{}, qerr
		}
		return IncidentResult{Queued: true, JobID: jobID}, nil
	}
	return IncidentResult{Incident: inc}, nil
}

// UpdateIncidentInput advances an incident through the Portal's workflow.
// PortalStatus is the Portal's own status literal; Comment lands in the
// local resolution field.
type UpdateIncidentInput struct {
	IncidentID   uuid.UUID
	PortalStatus string
	Comment      string
}

// UpdateIncident pushes a status change to the Portal, then mirrors the
// translated canonical status locally. A status literal with no local
// mapping skips the status field; other fields still apply.
func (o *Orchestrator) UpdateIncident(ctx context.Context, email string, in UpdateIncidentInput) (Result, error) {
	portalID, err := o.ids.Incident(ctx, in.IncidentID)
	if err != nil {
		return Result{}, err
	}

	remote := model.IncidentUpdateRemote{
		PortalID: portalID,
		Status:   in.PortalStatus,
		Comment:  in.Comment,
	}
	local := model.IncidentUpdateLocal{
		IncidentID: in.IncidentID,
		Updates:    incidentUpdateFromPortal(in.PortalStatus, in.Comment),
	}

	if _, err := o.auth.EnsureAuth(ctx, email); err != nil {
		return o.queuedResult(model.JobRemoteUpdateIncident, remote, local, "", err)
	}
	if err := o.remoteUpdateIncident(ctx, remote); err != nil {
		return o.queuedResult(model.JobRemoteUpdateIncident, remote, local, "", err)
	}
	if err := o.localUpdateIncident(ctx, local); err != nil {
		return o.queuedResult(model.JobLocalUpdateIncident, nil, local, "", err)
	}
	return Result{}, nil
}

// ApproveReservationInput decides a pending reservation. Decision is the
// Portal literal (APROBADA, RECHAZADA).
type ApproveReservationInput struct {
	ReservationID uuid.UUID
	Decision      string
}

// ApproveReservation records an approval decision on the Portal, then
// mirrors the translated status locally. An unknown decision literal skips
// the local status write.
func (o *Orchestrator) ApproveReservation(ctx context.Context, email string, in ApproveReservationInput) (Result, error) {
	portalID, err := o.ids.Reservation(ctx, in.ReservationID)
	if err != nil {
		return Result{}, err
	}

	remote := model.ApprovalRemote{PortalID: portalID, Status: in.Decision}
	var local model.ReservationStatusLocal
	if status, ok := translate.ReservationStatus(in.Decision); ok {
		local = model.ReservationStatusLocal{ReservationID: in.ReservationID, Status: status}
	}

	if _, err := o.auth.EnsureAuth(ctx, email); err != nil {
		return o.queuedResult(model.JobRemoteApproveReservation, remote, local, "", err)
	}
	if err := o.remoteApproveReservation(ctx, remote); err != nil {
		return o.queuedResult(model.JobRemoteApproveReservation, remote, local, "", err)
	}
	if err := o.localUpdateReservationStatus(ctx, local); err != nil {
		return o.queuedResult(model.JobLocalUpdateReservation, nil, local, "", err)
	}
	return Result{}, nil
}

// ProvisionUserInput creates a Portal account for a resident. Role is the
// Portal role literal; UnitID links the account to a dwelling when set.
type ProvisionUserInput struct {
	Email  string
	Name   string
	Role   string
	UnitID uuid.UUID
}

// ProvisionUser creates the user on the Portal. There is no local mirror
// follow-up; the operation either lands remotely or is queued.
func (o *Orchestrator) ProvisionUser(ctx context.Context, email string, in ProvisionUserInput) (Result, error) {
	remote := model.UserRemote{Email: in.Email, Name: in.Name, Role: in.Role}
	if in.UnitID != uuid.Nil {
		unitPID, err := o.ids.Unit(ctx, in.UnitID)
		if err != nil {
			return Result{}, err
		}
		remote.UnitID = unitPID
	}

	if _, err := o.auth.EnsureAuth(ctx, email); err != nil {
		return o.queuedResult(model.JobRemoteProvisionUser, remote, nil, "", err)
	}
	if err := o.remoteProvisionUser(ctx, remote); err != nil {
		return o.queuedResult(model.JobRemoteProvisionUser, remote, nil, "", err)
	}
	return Result{}, nil
}

// ---- shared remote/local steps, used by both the direct path and replay ----

func (o *Orchestrator) remoteCreateReservation(ctx context.Context, remote model.ReservationRemote) (string, error) {
	raw, err := o.portal.Request(ctx, "reservas", portal.RequestOptions{Method: http.MethodPost, Body: remote})
	if err != nil {
		return "", err
	}
	return remoteIDFromResponse(raw, "idReserva"), nil
}

func (o *Orchestrator) remoteCreateIncident(ctx context.Context, remote model.IncidentRemote) (string, error) {
	raw, err := o.portal.Request(ctx, "incidencias", portal.RequestOptions{Method: http.MethodPost, Body: remote})
	if err != nil {
		return "", err
	}
	return remoteIDFromResponse(raw, "idIncidencia"), nil
}

func (o *Orchestrator) remoteUpdateIncident(ctx context.Context, remote model.IncidentUpdateRemote) error {
	path := "incidencias/" + remote.PortalID
	_, err := o.portal.Request(ctx, path, portal.RequestOptions{Method: http.MethodPut, Body: remote})
	return err
}

func (o *Orchestrator) remoteApproveReservation(ctx context.Context, remote model.ApprovalRemote) error {
	path := "approvals/reservations/" + remote.PortalID
	_, err := o.portal.Request(ctx, path, portal.RequestOptions{Method: http.MethodPut, Body: remote})
	return err
}

func (o *Orchestrator) remoteProvisionUser(ctx context.Context, remote model.UserRemote) error {
	_, err := o.portal.Request(ctx, "auth/usuarios", portal.RequestOptions{Method: http.MethodPost, Body: remote})
	return err
}

func (o *Orchestrator) localCreateReservation(ctx context.Context, local model.ReservationLocal, remoteID string) (*model.Reservation, error) {
	var pid *string
	if remoteID != "" {
		pid = &remoteID
	}
	res, err := o.store.CreateReservation(ctx, local, pid)
	if err != nil {
		return nil, err
	}
	if remoteID != "" && (res.PortalID == nil || *res.PortalID == "") {
		if err := o.store.UpdateReservationPortalID(ctx, res.ID, remoteID); err != nil {
			return nil, err
		}
		res.PortalID = &remoteID
	}
	return res, nil
}

func (o *Orchestrator) localCreateIncident(ctx context.Context, local model.IncidentLocal, remoteID string) (*model.Incident, error) {
	var pid *string
	if remoteID != "" {
		pid = &remoteID
	}
	inc, err := o.store.CreateIncident(ctx, local, pid)
	if err != nil {
		return nil, err
	}
	if remoteID != "" && (inc.PortalID == nil || *inc.PortalID == "") {
		if err := o.store.UpdateIncidentPortalID(ctx, inc.ID, remoteID); err != nil {
			return nil, err
		}
		inc.PortalID = &remoteID
	}
	return inc, nil
}

func (o *Orchestrator) localUpdateIncident(ctx context.Context, local model.IncidentUpdateLocal) error {
	return o.store.UpdateIncident(ctx, local.IncidentID, local.Updates)
}

// localUpdateReservationStatus skips silently when the decision literal had
// no local mapping (zero-value payload).
func (o *Orchestrator) localUpdateReservationStatus(ctx context.Context, local model.ReservationStatusLocal) error {
	if local.Status == "" {
		return nil
	}
	return o.store.UpdateReservationStatus(ctx, local.ReservationID, local.Status)
}

// incidentUpdateFromPortal translates the Portal-side update into local
// field changes. An unmapped status literal drops the status field only.
func incidentUpdateFromPortal(portalStatus, comment string) model.IncidentUpdate {
	var upd model.IncidentUpdate
	if status, ok := translate.IncidentStatus(portalStatus); ok {
		upd.Status = &status
	}
	if comment != "" {
		upd.Resolution = &comment
	}
	return upd
}

// queuedResult wraps the enqueue-and-report-deferred tail shared by the
// update-shaped handlers.
func (o *Orchestrator) queuedResult(t model.JobType, remote, local any, remoteID string, cause error) (Result, error) {
	jobID, err := o.enqueue(t, remote, local, remoteID, cause)
	if err != nil {
		return Result{}, err
	}
	return Result{Queued: true, JobID: jobID}, nil
}

// enqueue persists a deferred job carrying the given payloads. The cause is
// recorded as the job's first error for diagnostics.
func (o *Orchestrator) enqueue(t model.JobType, remote, local any, remoteID string, cause error) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	job := model.Job{
		ID:        id,
		Type:      t,
		RemoteID:  remoteID,
		CreatedAt: time.Now().UTC(),
	}
	if cause != nil {
		job.LastError = cause.Error()
	}
	if remote != nil {
		if job.Remote, err = json.Marshal(remote); err != nil {
			return uuid.Nil, err
		}
	}
	if local != nil && !isZeroPayload(local) {
		if job.Local, err = json.Marshal(local); err != nil {
			return uuid.Nil, err
		}
	}
	if err := o.queue.Enqueue(job); err != nil {
		return uuid.Nil, fmt.Errorf("%w: enqueue %s: %s", errs.ErrLocalStore, t, err)
	}
	o.log.Info("sync job queued",
		zap.String("job", id.String()),
		zap.String("type", string(t)),
		zap.String("cause", job.LastError),
	)
	return id, nil
}

// isZeroPayload keeps empty optional local payloads out of the queue.
func isZeroPayload(v any) bool {
	switch p := v.(type) {
	case model.ReservationStatusLocal:
		return p.Status == "" && p.ReservationID == uuid.Nil
	default:
		return false
	}
}

// remoteIDFromResponse pulls the Portal-assigned id out of a create
// response, tolerating the {data:{...}} envelope and both the
// endpoint-specific key and a generic id field. Numeric ids are common.
func remoteIDFromResponse(raw json.RawMessage, keys ...string) string {
	obj, err := portal.DecodeObject(raw)
	if err != nil || obj == nil {
		return ""
	}
	keys = append(keys, "id")
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
