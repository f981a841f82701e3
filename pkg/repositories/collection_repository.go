package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const collectionTable = "vehicle_collections"

var collectionStruct = database.NewStruct(new(models.Collection))

// ErrApprovedRowConflict is returned by Upsert when the (client, address, date)
// slot is already held by an APPROVED collection. Approved rows are immutable,
// so the upsert refuses rather than silently rewriting history.
var ErrApprovedRowConflict = errors.New("approved collection already holds this address and date")

// UpsertParams describes the collection row to create or refresh.
type UpsertParams struct {
	ClientID     uuid.UUID
	AddressLabel string
	Date         *time.Time
	Fee          *float64
}

// FeeQuery narrows the search for a prior collection to inherit a fee from.
type FeeQuery struct {
	ClientID      uuid.UUID
	AddressLabel  string
	Statuses      []models.CollectionStatus
	RequirePriced bool
}

// RequestedFilter scopes an orphan-detection scan.
type RequestedFilter struct {
	ClientID     *uuid.UUID
	AddressLabel string
	ExcludeDate  *time.Time
	Limit        int
}

// CollectionRepository is the storage surface for collection rows.
type CollectionRepository interface {
	Upsert(ctx context.Context, params UpsertParams) (*models.Collection, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	FindScheduled(ctx context.Context, clientID uuid.UUID, label string, date *time.Time, statuses []models.CollectionStatus) (*models.Collection, error)
	FindFeeCandidate(ctx context.Context, query FeeQuery) (*models.Collection, error)
	ListPricedByClient(ctx context.Context, clientID uuid.UUID, statuses []models.CollectionStatus) ([]models.Collection, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, date time.Time) (int64, error)
	Approve(ctx context.Context, id uuid.UUID) (bool, error)
	ListRequested(ctx context.Context, filter RequestedFilter) ([]models.Collection, error)
	DeleteRequestedByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeleteUnpricedRequested(ctx context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error)
	DeleteUnlinkedRequestedSiblings(ctx context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error)
}

type CollectionRepo struct {
	db     database.DB
	logger ectologger.Logger
}

// NewCollectionRepo creates a new collection repository
func NewCollectionRepo(db database.DB, logger ectologger.Logger) *CollectionRepo {
	return &CollectionRepo{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or refreshes the REQUESTED collection for one (client,
// address, date) slot in a single statement, so concurrent proposals for the
// same slot collapse into one row instead of racing into duplicates.
//
// The conflict target matches the unique expression index, which folds NULL
// dates to a sentinel so "no date yet" occupies a slot too. The DO UPDATE is
// guarded on status: if the slot is held by an APPROVED row the update skips
// it, RETURNING yields nothing, and the caller gets ErrApprovedRowConflict.
func (r *CollectionRepo) Upsert(ctx context.Context, params UpsertParams) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.Upsert")
	defer span.End()

	const query = `
		INSERT INTO vehicle_collections
			(id, client_id, collection_address, collection_date, collection_fee_per_vehicle, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, 'REQUESTED', NOW(), NOW())
		ON CONFLICT (client_id, collection_address, COALESCE(collection_date, DATE '0001-01-01'))
		DO UPDATE SET
			collection_fee_per_vehicle = COALESCE(EXCLUDED.collection_fee_per_vehicle, vehicle_collections.collection_fee_per_vehicle),
			updated_at = NOW()
		WHERE vehicle_collections.status = 'REQUESTED'
		RETURNING id, client_id, collection_address, collection_date, collection_fee_per_vehicle, status, created_at, updated_at`

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id": params.ClientID,
		"address":   params.AddressLabel,
		"date":      params.Date,
	}).Info("Upserting collection")

	var row models.Collection
	err := r.db.GetContext(ctx, &row, query, uuid.New(), params.ClientID, params.AddressLabel, params.Date, params.Fee)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The guarded DO UPDATE matched an APPROVED row and skipped it.
			return nil, ErrApprovedRowConflict
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": params.ClientID,
			"address":   params.AddressLabel,
		}).Error("error upserting collection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error upserting collection")
	}

	return &row, nil
}

// GetByID fetches one collection row.
func (r *CollectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.GetByID")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var row models.Collection
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "collection not found")
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"collection_id": id,
		}).Error("error getting collection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error getting collection")
	}

	return &row, nil
}

// FindScheduled returns the collection for the exact (client, address, date)
// slot in one of the given statuses, or nil when the slot is empty. A nil date
// matches rows that have no date yet.
func (r *CollectionRepo) FindScheduled(ctx context.Context, clientID uuid.UUID, label string, date *time.Time, statuses []models.CollectionStatus) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.FindScheduled")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionTable)
	conds := []string{
		sb.Equal("client_id", clientID),
		sb.Equal("collection_address", label),
		sb.In("status", collectionStatusArgs(statuses)...),
	}
	if date != nil {
		conds = append(conds, sb.Equal("collection_date", *date))
	} else {
		conds = append(conds, sb.IsNull("collection_date"))
	}
	sb.Where(conds...)
	sb.OrderBy("updated_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()

	var row models.Collection
	err := r.db.GetContext(ctx, &row, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": clientID,
			"address":   label,
		}).Error("error finding scheduled collection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error finding collection")
	}

	return &row, nil
}

// FindFeeCandidate returns the most recently touched collection matching the
// query, or nil when nothing matches. Used to inherit a fee from a prior
// collection at the same address.
func (r *CollectionRepo) FindFeeCandidate(ctx context.Context, query FeeQuery) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.FindFeeCandidate")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionTable)
	conds := []string{
		sb.Equal("client_id", query.ClientID),
		sb.Equal("collection_address", query.AddressLabel),
		sb.In("status", collectionStatusArgs(query.Statuses)...),
	}
	if query.RequirePriced {
		conds = append(conds, sb.GreaterThan("collection_fee_per_vehicle", 0))
	}
	sb.Where(conds...)
	sb.OrderBy("updated_at").Desc()
	sb.Limit(1)

	q, args := sb.Build()

	var row models.Collection
	err := r.db.GetContext(ctx, &row, q, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": query.ClientID,
			"address":   query.AddressLabel,
		}).Error("error finding fee candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error finding fee candidate")
	}

	return &row, nil
}

// ListPricedByClient returns the client's priced collections in the given
// statuses, most recently touched first. Feeds the fuzzy tier of fee matching,
// which compares address labels in memory.
func (r *CollectionRepo) ListPricedByClient(ctx context.Context, clientID uuid.UUID, statuses []models.CollectionStatus) ([]models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.ListPricedByClient")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionTable)
	sb.Where(
		sb.Equal("client_id", clientID),
		sb.In("status", collectionStatusArgs(statuses)...),
		sb.GreaterThan("collection_fee_per_vehicle", 0),
	)
	sb.OrderBy("updated_at").Desc()

	query, args := sb.Build()

	var rows []models.Collection
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": clientID,
		}).Error("error listing priced collections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error listing collections")
	}

	return rows, nil
}

// UpdateSchedule moves a REQUESTED collection to a new date. Approved rows are
// immutable, so the guard makes a stale id a no-op rather than an overwrite.
func (r *CollectionRepo) UpdateSchedule(ctx context.Context, id uuid.UUID, date time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.UpdateSchedule")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(collectionTable)
	ub.Set(
		ub.Assign("collection_date", date),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(models.CollectionStatusRequested)),
	)

	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"collection_id": id,
		}).Error("error rescheduling collection")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error rescheduling collection")
	}

	return result.RowsAffected()
}

// Approve flips a REQUESTED collection to APPROVED. Returns false when the row
// was not in REQUESTED, which callers treat as "already approved" after a
// status check.
func (r *CollectionRepo) Approve(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.Approve")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(collectionTable)
	ub.Set(
		ub.Assign("status", string(models.CollectionStatusApproved)),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(models.CollectionStatusRequested)),
	)

	query, args := ub.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"collection_id": id,
		}).Error("error approving collection")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "error approving collection")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListRequested returns REQUESTED collections matching the filter, oldest
// first. Feeds orphan detection.
func (r *CollectionRepo) ListRequested(ctx context.Context, filter RequestedFilter) ([]models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.ListRequested")
	defer span.End()

	sb := collectionStruct.SelectFrom(collectionTable)
	conds := []string{
		sb.Equal("status", string(models.CollectionStatusRequested)),
	}
	if filter.ClientID != nil {
		conds = append(conds, sb.Equal("client_id", *filter.ClientID))
	}
	if filter.AddressLabel != "" {
		conds = append(conds, sb.Equal("collection_address", filter.AddressLabel))
	}
	if filter.ExcludeDate != nil {
		conds = append(conds, sb.Or(
			sb.IsNull("collection_date"),
			sb.NotEqual("collection_date", *filter.ExcludeDate),
		))
	}
	sb.Where(conds...)
	sb.OrderBy("updated_at")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()

	var rows []models.Collection
	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("error listing requested collections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error listing collections")
	}

	return rows, nil
}

// DeleteRequestedByIDs deletes the given collections, re-asserting REQUESTED
// in the predicate so a row approved between detection and deletion survives.
func (r *CollectionRepo) DeleteRequestedByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.DeleteRequestedByIDs")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(collectionTable)
	db.Where(
		db.In("id", args...),
		db.Equal("status", string(models.CollectionStatusRequested)),
	)

	query, qargs := db.Build()

	result, err := r.db.ExecContext(ctx, query, qargs...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(ids),
		}).Error("error deleting requested collections")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error deleting collections")
	}

	return result.RowsAffected()
}

// DeleteUnpricedRequested removes stale unpriced REQUESTED rows for the same
// client and address, keeping the row that carries the negotiation. These pile
// up when a proposal is created before pricing and then superseded.
func (r *CollectionRepo) DeleteUnpricedRequested(ctx context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.DeleteUnpricedRequested")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(collectionTable)
	db.Where(
		db.Equal("client_id", clientID),
		db.Equal("collection_address", label),
		db.NotEqual("id", keepID),
		db.Equal("status", string(models.CollectionStatusRequested)),
		db.Or(
			db.IsNull("collection_fee_per_vehicle"),
			db.LessEqualThan("collection_fee_per_vehicle", 0),
		),
	)

	query, args := db.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": clientID,
			"address":   label,
		}).Error("error deleting unpriced sibling collections")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error deleting sibling collections")
	}

	return result.RowsAffected()
}

// DeleteUnlinkedRequestedSiblings removes leftover REQUESTED rows for the same
// client and address that never got a vehicle linked, keeping the row that won
// the negotiation. Runs after approval so abandoned proposals don't pile up.
func (r *CollectionRepo) DeleteUnlinkedRequestedSiblings(ctx context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepo.DeleteUnlinkedRequestedSiblings")
	defer span.End()

	const query = `
		DELETE FROM vehicle_collections vc
		WHERE vc.client_id = $1
		  AND vc.collection_address = $2
		  AND vc.id <> $3
		  AND vc.status = 'REQUESTED'
		  AND NOT EXISTS (
			SELECT 1 FROM vehicles v WHERE v.collection_id = vc.id
		  )`

	result, err := r.db.ExecContext(ctx, query, clientID, label, keepID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": clientID,
			"address":   label,
		}).Error("error deleting unlinked sibling collections")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error deleting sibling collections")
	}

	return result.RowsAffected()
}

func collectionStatusArgs(statuses []models.CollectionStatus) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}
