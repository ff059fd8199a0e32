package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vecindapp/portalsync/internal/model"
)

// Execute re-attempts one queued job through the same operation-specific
// steps used at original call time. A remote-* job that lands remotely
// continues straight into its local mirror write; a failure there is
// reported so the job survives for the next pass.
func (o *Orchestrator) Execute(ctx context.Context, job model.Job) error {
	switch job.Type {
	case model.JobRemoteCreateReservation:
		var remote model.ReservationRemote
		if err := json.Unmarshal(job.Remote, &remote); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		remoteID, err := o.remoteCreateReservation(ctx, remote)
		if err != nil {
			return err
		}
		if len(job.Local) == 0 {
			return nil
		}
		var local model.ReservationLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s local payload: %w", job.Type, err)
		}
		_, err = o.localCreateReservation(ctx, local, remoteID)
		return err

	case model.JobRemoteCreateIncident:
		var remote model.IncidentRemote
		if err := json.Unmarshal(job.Remote, &remote); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		remoteID, err := o.remoteCreateIncident(ctx, remote)
		if err != nil {
			return err
		}
		if len(job.Local) == 0 {
			return nil
		}
		var local model.IncidentLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s local payload: %w", job.Type, err)
		}
		_, err = o.localCreateIncident(ctx, local, remoteID)
		return err

	case model.JobRemoteUpdateIncident:
		var remote model.IncidentUpdateRemote
		if err := json.Unmarshal(job.Remote, &remote); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		if err := o.remoteUpdateIncident(ctx, remote); err != nil {
			return err
		}
		if len(job.Local) == 0 {
			return nil
		}
		var local model.IncidentUpdateLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s local payload: %w", job.Type, err)
		}
		return o.localUpdateIncident(ctx, local)

	case model.JobRemoteApproveReservation:
		var remote model.ApprovalRemote
		if err := json.Unmarshal(job.Remote, &remote); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		if err := o.remoteApproveReservation(ctx, remote); err != nil {
			return err
		}
		if len(job.Local) == 0 {
			return nil
		}
		var local model.ReservationStatusLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s local payload: %w", job.Type, err)
		}
		return o.localUpdateReservationStatus(ctx, local)

	case model.JobRemoteProvisionUser:
		var remote model.UserRemote
		if err := json.Unmarshal(job.Remote, &remote); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return o.remoteProvisionUser(ctx, remote)

	case model.JobLocalCreateReservation:
		var local model.ReservationLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := o.localCreateReservation(ctx, local, job.RemoteID)
		return err

	case model.JobLocalCreateIncident:
		var local model.IncidentLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := o.localCreateIncident(ctx, local, job.RemoteID)
		return err

	case model.JobLocalUpdateIncident:
		var local model.IncidentUpdateLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return o.localUpdateIncident(ctx, local)

	case model.JobLocalUpdateReservation:
		var local model.ReservationStatusLocal
		if err := json.Unmarshal(job.Local, &local); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return o.localUpdateReservationStatus(ctx, local)
	}
	return fmt.Errorf("unknown job type %q", job.Type)
}
