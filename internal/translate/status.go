// Package translate maps the Portal's domain vocabulary onto the local
// canonical enumerations. Pure lookups, no state, no network.
package translate

// Canonical local incident statuses.
const (
	IncidentOpen       = "open"
	IncidentInProgress = "in_progress"
	IncidentResolved   = "resolved"
	IncidentClosed     = "closed"
)

// Canonical local reservation statuses.
const (
	ReservationPending   = "pending"
	ReservationApproved  = "approved"
	ReservationRejected  = "rejected"
	ReservationCancelled = "cancelled"
)

// Canonical local roles.
const (
	RoleAdmin       = "admin"
	RoleResident    = "resident"
	RoleConcierge   = "concierge"
	RoleMaintenance = "maintenance"
)

// Portal literals are case-sensitive; the tables list them exactly as the
// Portal emits them.
var incidentStatuses = map[string]string{
	"ABIERTA":    IncidentOpen,
	"EN_PROCESO": IncidentInProgress,
	"RESUELTA":   IncidentResolved,
	"CERRADA":    IncidentClosed,
	"RECHAZADA":  IncidentClosed,
}

var reservationStatuses = map[string]string{
	"PENDIENTE": ReservationPending,
	"APROBADA":  ReservationApproved,
	"RECHAZADA": ReservationRejected,
	"CANCELADA": ReservationCancelled,
}

var roles = map[string]string{
	"ADMINISTRADOR": RoleAdmin,
	"ADMIN":         RoleAdmin,
	"administrador": RoleAdmin,
	"RESIDENTE":     RoleResident,
	"residente":     RoleResident,
	"INQUILINO":     RoleResident,
	"CONSERJE":      RoleConcierge,
	"conserje":      RoleConcierge,
	"VIGILANTE":     RoleConcierge,
	"MANTENIMIENTO": RoleMaintenance,
	"mantenimiento": RoleMaintenance,
	"TECNICO":       RoleMaintenance,
}

// IncidentStatus translates a Portal incident status literal. The second
// return is false when the literal has no mapping; callers treat that as
// "no status change", not an error.
func IncidentStatus(portal string) (string, bool) {
	s, ok := incidentStatuses[portal]
	return s, ok
}

// ReservationStatus translates a Portal reservation status literal.
func ReservationStatus(portal string) (string, bool) {
	s, ok := reservationStatuses[portal]
	return s, ok
}

// Role translates a Portal role claim to a canonical local role. Unknown
// roles yield no mapping; login-time role sync skips them silently.
func Role(portal string) (string, bool) {
	r, ok := roles[portal]
	return r, ok
}
