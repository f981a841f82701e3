// Package negotiation implements the collection negotiation protocol: the
// choreography of vehicle status transitions, collection upserts and approvals
// that takes a client's vehicles from "pickup point selected" to an approved
// collection.
package negotiation

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/addresslabel"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrApprovedCollectionExists rejects an upsert into a slot held by an
	// immutable APPROVED collection.
	ErrApprovedCollectionExists = httperror.NewHTTPError(http.StatusBadRequest, "approved_collection_already_exists_for_address_and_date")
	// ErrCollectionUpsertFailed signals the upsert returned no row id.
	ErrCollectionUpsertFailed = httperror.NewHTTPError(http.StatusInternalServerError, "collection_upsert_failed")
	// ErrAddressNotPriced rejects scheduling against an address with no fee.
	// The message is surfaced verbatim to the admin UI.
	ErrAddressNotPriced = httperror.NewHTTPError(http.StatusBadRequest, "Precifique o endereço antes de propor uma data de coleta")
	// ErrNoVehiclesAwaiting signals an acceptance with nothing to accept.
	ErrNoVehiclesAwaiting = httperror.NewHTTPError(http.StatusNotFound, "no vehicles awaiting approval for this address")
	// ErrNoProposedDate signals vehicles in an acceptance state without a date.
	ErrNoProposedDate = httperror.NewHTTPError(http.StatusBadRequest, "no proposed date found on vehicles for this address")
)

// FeeSelector resolves the fee to apply to an address from prior collections.
type FeeSelector interface {
	SelectFeeForAddress(ctx context.Context, clientID uuid.UUID, label string) (*models.Collection, error)
}

// Service is the single mutation surface for the negotiation protocol. Every
// route funnels through it; nothing else writes collections or vehicle
// statuses.
type Service struct {
	vehicles    repositories.VehicleRepository
	collections repositories.CollectionRepository
	addresses   repositories.AddressRepository
	fees        FeeSelector
	emitter     *events.Emitter
	logger      ectologger.Logger
}

// NewService creates a new negotiation service
func NewService(
	vehicles repositories.VehicleRepository,
	collections repositories.CollectionRepository,
	addresses repositories.AddressRepository,
	fees FeeSelector,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		vehicles:    vehicles,
		collections: collections,
		addresses:   addresses,
		fees:        fees,
		emitter:     emitter,
		logger:      logger,
	}
}

// addressLabel loads the address and derives its canonical label. An empty
// label means "no match", never a wildcard, so it is rejected here.
func (s *Service) addressLabel(ctx context.Context, addressID uuid.UUID) (string, error) {
	address, err := s.addresses.GetByID(ctx, addressID)
	if err != nil {
		return "", err
	}

	label := addresslabel.Format(address.Street, address.Number, address.City)
	if label == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "address has no usable label")
	}

	return label, nil
}

// UpsertCollection creates or refreshes the REQUESTED collection for the slot
// and returns its id.
func (s *Service) UpsertCollection(ctx context.Context, clientID uuid.UUID, label string, date *time.Time, fee *float64) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.UpsertCollection")
	defer span.End()

	row, err := s.collections.Upsert(ctx, repositories.UpsertParams{
		ClientID:     clientID,
		AddressLabel: label,
		Date:         date,
		Fee:          fee,
	})
	if err != nil {
		if err == repositories.ErrApprovedRowConflict {
			return nil, ErrApprovedCollectionExists
		}
		return nil, err
	}
	if row == nil || row.ID == uuid.Nil {
		return nil, ErrCollectionUpsertFailed
	}

	metrics.CollectionsUpserted.Inc()
	return row, nil
}

// SyncVehicleDates copies the negotiated date onto the address's vehicles that
// are still mid-negotiation. A zero-row update is benign; it only means every
// vehicle already advanced past the allowed statuses.
func (s *Service) SyncVehicleDates(ctx context.Context, clientID, addressID uuid.UUID, date time.Time, statuses []models.VehicleStatus) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.SyncVehicleDates")
	defer span.End()

	if len(statuses) == 0 {
		statuses = models.InNegotiationStatuses
	}

	affected, err := s.vehicles.SyncDates(ctx, clientID, addressID, date, statuses)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.noop(ctx, "sync_vehicle_dates", clientID, addressID)
	}

	return nil
}

// LinkVehiclesToCollection attaches the address's vehicles for the given date
// to the collection, scoped to the statuses the current protocol step may act
// on. A vehicle settled in an earlier round keeps its original linkage even
// when its date coincides. Must run before the collection is approved so the
// orphan scanner never sees an approved-but-unlinked window.
func (s *Service) LinkVehiclesToCollection(ctx context.Context, clientID, addressID uuid.UUID, date time.Time, collectionID uuid.UUID, statuses []models.VehicleStatus) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.LinkVehiclesToCollection")
	defer span.End()

	if len(statuses) == 0 {
		statuses = models.InNegotiationStatuses
	}

	affected, err := s.vehicles.LinkToCollection(ctx, clientID, addressID, collectionID, date, statuses)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		s.noop(ctx, "link_vehicles_to_collection", clientID, addressID)
	}

	return affected, nil
}

// ApproveCollection flips the collection to APPROVED. Re-approving is a no-op.
func (s *Service) ApproveCollection(ctx context.Context, collectionID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.ApproveCollection")
	defer span.End()

	approved, err := s.collections.Approve(ctx, collectionID)
	if err != nil {
		return err
	}
	if !approved {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"collection_id": collectionID,
		}).Warn("collection was not in REQUESTED, approval skipped")
		metrics.RecordNoopUpdate("approve_collection")
		return nil
	}

	metrics.CollectionsApproved.Inc()
	return nil
}

// AdminProposeDate is the admin-side proposal: verify the address is priced,
// move the vehicles into "date change requested" with the new date, and point
// the collection row at that date.
func (s *Service) AdminProposeDate(ctx context.Context, clientID, addressID uuid.UUID, newDate time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.AdminProposeDate")
	defer span.End()

	label, err := s.addressLabel(ctx, addressID)
	if err != nil {
		return err
	}

	feeRow, err := s.fees.SelectFeeForAddress(ctx, clientID, label)
	if err != nil {
		return err
	}
	if feeRow == nil || !feeRow.HasFee() {
		return ErrAddressNotPriced
	}
	fee := feeRow.Fee()

	// An admin proposal either answers a client counter-proposal or starts a
	// fresh round; the vehicle statuses tell which.
	event := models.EventAdminProposeDate
	vehicles, err := s.vehicles.ListByClientAndAddress(ctx, clientID, addressID)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if v.Status == models.VehicleStatusNewDateReview {
			event = models.EventAdminRespondToCounter
			break
		}
	}

	target, _ := models.TargetStatus(event)
	affected, err := s.vehicles.Transition(ctx, clientID, addressID, models.AllowedStatuses(event), target, &newDate)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.noop(ctx, "admin_propose_date", clientID, addressID)
	}

	// Carry the proposed date onto the collection row. A REQUESTED row for the
	// address is re-dated in place; otherwise a fresh priced row is created.
	collection := feeRow
	if feeRow.Status == models.CollectionStatusRequested {
		if _, err := s.collections.UpdateSchedule(ctx, feeRow.ID, newDate); err != nil {
			return err
		}
	} else {
		collection, err = s.UpsertCollection(ctx, clientID, label, &newDate, &fee)
		if err != nil {
			return err
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id":     clientID,
		"address_id":    addressID,
		"collection_id": collection.ID,
		"new_date":      newDate.Format("2006-01-02"),
		"vehicles":      affected,
	}).Info("admin_proposed_collection_date")

	s.emitter.EmitDateProposed(ctx, clientID.String(), collection.ID.String(), label, newDate)
	return nil
}

// ClientReschedule is the client counter-proposal: vehicles move to "new date
// review" with the client's date, and the collection row follows.
func (s *Service) ClientReschedule(ctx context.Context, clientID, addressID uuid.UUID, newDate time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.ClientReschedule")
	defer span.End()

	target, _ := models.TargetStatus(models.EventClientReschedule)
	affected, err := s.vehicles.Transition(ctx, clientID, addressID, models.AllowedStatuses(models.EventClientReschedule), target, &newDate)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.noop(ctx, "client_reschedule", clientID, addressID)
	}

	label, err := s.addressLabel(ctx, addressID)
	if err != nil {
		return err
	}

	// Tolerant lookup: the row carrying the negotiation may have drifted in
	// status or pricing, so reuse the fee resolver's fallback strategy.
	existing, err := s.fees.SelectFeeForAddress(ctx, clientID, label)
	if err != nil {
		return err
	}

	var collection *models.Collection
	switch {
	case existing != nil && existing.Status == models.CollectionStatusRequested:
		if _, err := s.collections.UpdateSchedule(ctx, existing.ID, newDate); err != nil {
			return err
		}
		collection = existing

		// Sweep stale unpriced duplicates for the address. Best effort; losing
		// the sweep must not lose the reschedule.
		if _, err := s.collections.DeleteUnpricedRequested(ctx, clientID, label, existing.ID); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to sweep unpriced sibling collections")
		}
	case existing != nil:
		// The matched row is APPROVED or PAID and immutable; open a fresh
		// REQUESTED round for the new date carrying its fee forward.
		fee := existing.Fee()
		collection, err = s.UpsertCollection(ctx, clientID, label, &newDate, &fee)
		if err != nil {
			return err
		}
	default:
		collection, err = s.UpsertCollection(ctx, clientID, label, &newDate, nil)
		if err != nil {
			return err
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id":     clientID,
		"address_id":    addressID,
		"collection_id": collection.ID,
		"new_date":      newDate.Format("2006-01-02"),
		"vehicles":      affected,
	}).Info("client_rescheduled_collection")

	s.emitter.EmitDateCounterProposed(ctx, clientID.String(), collection.ID.String(), label, newDate)
	return nil
}

// ClientAcceptProposal is the client-side acceptance. Staged vehicles advance
// one step; vehicles already at the final review stage are linked to the
// collection, finalized, and the collection is approved.
func (s *Service) ClientAcceptProposal(ctx context.Context, clientID, addressID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.ClientAcceptProposal")
	defer span.End()

	vehicles, err := s.vehicles.ListByClientAndAddress(ctx, clientID, addressID)
	if err != nil {
		return err
	}

	var date *time.Time
	staged := false
	found := false
	for _, v := range vehicles {
		if v.Status != models.VehicleStatusDateChangeRequested && v.Status != models.VehicleStatusAwaitingApproval {
			continue
		}
		found = true
		if v.Status == models.VehicleStatusDateChangeRequested {
			staged = true
		}
		if date == nil {
			date = v.EstimatedArrivalDate
		}
	}
	if !found {
		return ErrNoVehiclesAwaiting
	}
	if date == nil {
		return ErrNoProposedDate
	}

	if staged {
		// Accepting an admin proposal first promotes the group to the generic
		// approval-pending status; the finalize tail takes it the rest of the
		// way in this same request.
		target, _ := models.TargetStatus(models.EventClientAcceptStage)
		affected, err := s.vehicles.Transition(ctx, clientID, addressID, models.AllowedStatuses(models.EventClientAcceptStage), target, nil)
		if err != nil {
			return err
		}
		if affected == 0 {
			s.noop(ctx, "client_accept_stage", clientID, addressID)
		}
	}

	return s.finalizeAcceptance(ctx, clientID, addressID, *date, models.EventClientAcceptFinal)
}

// AdminAcceptClientDate accepts the client's counter-proposed date, read off
// the vehicles awaiting admin review.
func (s *Service) AdminAcceptClientDate(ctx context.Context, clientID, addressID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.AdminAcceptClientDate")
	defer span.End()

	vehicles, err := s.vehicles.ListByClientAndAddress(ctx, clientID, addressID)
	if err != nil {
		return err
	}

	var date *time.Time
	found := false
	for _, v := range vehicles {
		if v.Status != models.VehicleStatusNewDateReview && v.Status != models.VehicleStatusAwaitingApproval {
			continue
		}
		found = true
		if v.EstimatedArrivalDate != nil {
			date = v.EstimatedArrivalDate
			break
		}
	}
	if !found {
		return ErrNoVehiclesAwaiting
	}
	if date == nil {
		return ErrNoProposedDate
	}

	return s.finalizeAcceptance(ctx, clientID, addressID, *date, models.EventAdminAcceptClientDate)
}

// finalizeAcceptance is the shared tail of both acceptance paths: ensure a
// REQUESTED collection for the agreed date, link vehicles, finalize their
// status, approve the collection. Link strictly precedes approve so the orphan
// scanner can never catch an approved collection without its vehicles.
func (s *Service) finalizeAcceptance(ctx context.Context, clientID, addressID uuid.UUID, date time.Time, event models.NegotiationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.finalizeAcceptance")
	defer span.End()

	label, err := s.addressLabel(ctx, addressID)
	if err != nil {
		return err
	}

	collection, err := s.collections.FindScheduled(ctx, clientID, label, &date, []models.CollectionStatus{models.CollectionStatusRequested})
	if err != nil {
		return err
	}
	if collection == nil {
		var fee *float64
		feeRow, err := s.fees.SelectFeeForAddress(ctx, clientID, label)
		if err != nil {
			return err
		}
		if feeRow != nil && feeRow.HasFee() {
			f := feeRow.Fee()
			fee = &f
		}

		collection, err = s.UpsertCollection(ctx, clientID, label, &date, fee)
		if err != nil {
			return err
		}
	}

	linked, err := s.LinkVehiclesToCollection(ctx, clientID, addressID, date, collection.ID, models.AllowedStatuses(event))
	if err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id":     clientID,
		"address_id":    addressID,
		"collection_id": collection.ID,
		"date":          date.Format("2006-01-02"),
		"vehicles":      linked,
	}).Info("client_accept_linked_vehicles")

	target, _ := models.TargetStatus(event)
	affected, err := s.vehicles.Transition(ctx, clientID, addressID, models.AllowedStatuses(event), target, nil)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.noop(ctx, string(event), clientID, addressID)
	}

	if err := s.ApproveCollection(ctx, collection.ID); err != nil {
		return err
	}

	// Superseded proposal rows for the address never got vehicles linked;
	// sweep them now instead of leaving them for the orphan job. Best effort.
	if _, err := s.collections.DeleteUnlinkedRequestedSiblings(ctx, clientID, label, collection.ID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to sweep superseded sibling collections")
	}

	s.emitter.EmitCollectionApproved(ctx, clientID.String(), collection.ID.String(), label, &date, linked)
	return nil
}

func (s *Service) noop(ctx context.Context, operation string, clientID, addressID uuid.UUID) {
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"operation":  operation,
		"client_id":  clientID,
		"address_id": addressID,
	}).Warn("guarded update affected no vehicles")
	metrics.RecordNoopUpdate(operation)
}
