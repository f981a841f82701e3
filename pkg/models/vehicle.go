package models

import (
	"time"

	"github.com/google/uuid"
)

// VehicleStatus is the negotiation status of a vehicle. The values are the
// legacy platform labels and are stored verbatim, so existing dashboards and
// client apps keep working.
type VehicleStatus string

const (
	// VehicleStatusAwaitingPickupSetup - client has not chosen a pickup point yet
	VehicleStatusAwaitingPickupSetup VehicleStatus = "AGUARDANDO_DEFINICAO_COLETA"
	// VehicleStatusPickupSelected - pickup point chosen, no price or date agreed
	VehicleStatusPickupSelected VehicleStatus = "PONTO_COLETA_SELECIONADO"
	// VehicleStatusAwaitingApproval - a proposal is pending the client's review
	VehicleStatusAwaitingApproval VehicleStatus = "AGUARDANDO_APROVACAO"
	// VehicleStatusDateChangeRequested - a date proposal is in flight (either direction)
	VehicleStatusDateChangeRequested VehicleStatus = "SOLICITACAO_MUDANCA_DATA"
	// VehicleStatusNewDateReview - the client counter-proposed; pending admin review
	VehicleStatusNewDateReview VehicleStatus = "APROVACAO_NOVA_DATA"
	// VehicleStatusAwaitingCollection - both sides agreed; awaiting physical pickup
	VehicleStatusAwaitingCollection VehicleStatus = "AGUARDANDO_COLETA"

	// Downstream statuses set by other subsystems. Clover never writes these,
	// but the guarded updates must know they exist so they are left untouched.
	VehicleStatusCollectionApproved VehicleStatus = "COLETA APROVADA"
	VehicleStatusFinished           VehicleStatus = "Finalizado"
)

// InNegotiationStatuses is the default guard set for date synchronization:
// every status a vehicle can hold while a collection is being negotiated.
var InNegotiationStatuses = []VehicleStatus{
	VehicleStatusPickupSelected,
	VehicleStatusAwaitingApproval,
	VehicleStatusDateChangeRequested,
	VehicleStatusNewDateReview,
}

// NegotiationEvent identifies a protocol action that moves vehicles between
// statuses.
type NegotiationEvent string

const (
	EventAdminProposeDate      NegotiationEvent = "admin_propose_date"
	EventAdminRespondToCounter NegotiationEvent = "admin_respond_to_counter"
	EventClientReschedule      NegotiationEvent = "client_reschedule"
	EventClientAcceptStage     NegotiationEvent = "client_accept_stage"
	EventClientAcceptFinal     NegotiationEvent = "client_accept_final"
	EventAdminAcceptClientDate NegotiationEvent = "admin_accept_client_date"
)

// transitions is the vehicle state machine as code: for each protocol event,
// the statuses it may act on and the status it produces. Storage-level updates
// re-assert the "from" set in their predicates, so a stale request can only
// ever no-op.
var transitions = map[NegotiationEvent]map[VehicleStatus]VehicleStatus{
	EventAdminProposeDate: {
		VehicleStatusPickupSelected:   VehicleStatusDateChangeRequested,
		VehicleStatusAwaitingApproval: VehicleStatusDateChangeRequested,
	},
	EventAdminRespondToCounter: {
		VehicleStatusNewDateReview: VehicleStatusDateChangeRequested,
	},
	EventClientReschedule: {
		VehicleStatusAwaitingApproval:    VehicleStatusNewDateReview,
		VehicleStatusDateChangeRequested: VehicleStatusNewDateReview,
	},
	EventClientAcceptStage: {
		VehicleStatusDateChangeRequested: VehicleStatusAwaitingApproval,
	},
	EventClientAcceptFinal: {
		VehicleStatusAwaitingApproval: VehicleStatusAwaitingCollection,
	},
	EventAdminAcceptClientDate: {
		VehicleStatusNewDateReview:    VehicleStatusAwaitingCollection,
		VehicleStatusAwaitingApproval: VehicleStatusAwaitingCollection,
	},
}

// NextStatus returns the status an event produces from the given status, and
// whether the transition is allowed at all.
func NextStatus(event NegotiationEvent, from VehicleStatus) (VehicleStatus, bool) {
	next, ok := transitions[event][from]
	return next, ok
}

// AllowedStatuses returns the set of statuses an event may act on, in a stable
// order suitable for SQL IN predicates.
func AllowedStatuses(event NegotiationEvent) []VehicleStatus {
	m := transitions[event]
	out := make([]VehicleStatus, 0, len(m))
	for _, s := range []VehicleStatus{
		VehicleStatusAwaitingPickupSetup,
		VehicleStatusPickupSelected,
		VehicleStatusAwaitingApproval,
		VehicleStatusDateChangeRequested,
		VehicleStatusNewDateReview,
		VehicleStatusAwaitingCollection,
	} {
		if _, ok := m[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// TargetStatus returns the single status an event produces. Every event in the
// table maps all of its source statuses to one target; the tests assert that
// stays true.
func TargetStatus(event NegotiationEvent) (VehicleStatus, bool) {
	m := transitions[event]
	var target VehicleStatus
	for _, to := range m {
		if target != "" && to != target {
			return "", false
		}
		target = to
	}
	return target, target != ""
}

// Vehicle represents a physical car owned by a client account.
type Vehicle struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	ClientID             uuid.UUID     `db:"client_id" json:"client_id"`
	PickupAddressID      *uuid.UUID    `db:"pickup_address_id" json:"pickup_address_id,omitempty"`
	EstimatedArrivalDate *time.Time    `db:"estimated_arrival_date" json:"estimated_arrival_date,omitempty"`
	Status               VehicleStatus `db:"status" json:"status"`
	CollectionID         *uuid.UUID    `db:"collection_id" json:"collection_id,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Vehicle) TableName() string {
	return "vehicles"
}
