// Package repositories implements Postgres storage for Clover.
package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const vehicleTable = "vehicles"

var vehicleStruct = database.NewStruct(new(models.Vehicle))

// VehicleRepository is the storage surface the negotiation service needs for
// vehicles. Every mutation is guarded: the WHERE clause re-asserts the
// statuses the protocol allows, so concurrent or stale requests no-op instead
// of clobbering later states.
type VehicleRepository interface {
	ListByClientAndAddress(ctx context.Context, clientID, addressID uuid.UUID) ([]models.Vehicle, error)
	SyncDates(ctx context.Context, clientID, addressID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error)
	Transition(ctx context.Context, clientID, addressID uuid.UUID, from []models.VehicleStatus, to models.VehicleStatus, date *time.Time) (int64, error)
	LinkToCollection(ctx context.Context, clientID, addressID, collectionID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error)
	CountByCollectionIDs(ctx context.Context, collectionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

type VehicleRepo struct {
	db     database.DB
	logger ectologger.Logger
}

// NewVehicleRepo creates a new vehicle repository
func NewVehicleRepo(db database.DB, logger ectologger.Logger) *VehicleRepo {
	return &VehicleRepo{
		db:     db,
		logger: logger,
	}
}

func statusArgs(statuses []models.VehicleStatus) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

// ListByClientAndAddress returns every vehicle the client has parked at the
// given pickup address.
func (r *VehicleRepo) ListByClientAndAddress(ctx context.Context, clientID, addressID uuid.UUID) ([]models.Vehicle, error) {
	ctx, span := tracing.StartSpan(ctx, "VehicleRepo.ListByClientAndAddress")
	defer span.End()

	sb := vehicleStruct.SelectFrom(vehicleTable)
	sb.Where(
		sb.Equal("client_id", clientID),
		sb.Equal("pickup_address_id", addressID),
	)
	sb.OrderBy("created_at")

	sql, args := sb.Build()

	var rows []models.Vehicle
	err := r.db.SelectContext(ctx, &rows, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id":  clientID,
			"address_id": addressID,
		}).Error("error listing vehicles for address")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error listing vehicles")
	}

	return rows, nil
}

// SyncDates copies the negotiated date onto every vehicle at the address that
// is still in one of the given statuses. Returns the number of rows touched.
func (r *VehicleRepo) SyncDates(ctx context.Context, clientID, addressID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "VehicleRepo.SyncDates")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(vehicleTable)
	ub.Set(
		ub.Assign("estimated_arrival_date", date),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("client_id", clientID),
		ub.Equal("pickup_address_id", addressID),
		ub.In("status", statusArgs(statuses)...),
	)

	sql, args := ub.Build()

	result, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id":  clientID,
			"address_id": addressID,
		}).Error("error syncing vehicle dates")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error syncing vehicle dates")
	}

	return result.RowsAffected()
}

// Transition moves every matching vehicle from one of the allowed statuses to
// the target status, optionally re-dating it in the same statement. A zero
// return means no vehicle was in an allowed status; callers decide whether
// that is a problem.
func (r *VehicleRepo) Transition(ctx context.Context, clientID, addressID uuid.UUID, from []models.VehicleStatus, to models.VehicleStatus, date *time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "VehicleRepo.Transition")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(vehicleTable)

	assignments := []string{
		ub.Assign("status", string(to)),
		ub.Assign("updated_at", time.Now().UTC()),
	}
	if date != nil {
		assignments = append(assignments, ub.Assign("estimated_arrival_date", *date))
	}
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("client_id", clientID),
		ub.Equal("pickup_address_id", addressID),
		ub.In("status", statusArgs(from)...),
	)

	sql, args := ub.Build()

	result, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id":  clientID,
			"address_id": addressID,
			"to_status":  to,
		}).Error("error transitioning vehicles")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error updating vehicle status")
	}

	return result.RowsAffected()
}

// LinkToCollection attaches vehicles at the address to the collection row. Only
// vehicles still in one of the given statuses and whose estimated date matches
// the collection date are linked; a vehicle mid-negotiation for a different
// date, or one already settled in an earlier round that happens to share the
// date, stays on its own linkage.
func (r *VehicleRepo) LinkToCollection(ctx context.Context, clientID, addressID, collectionID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "VehicleRepo.LinkToCollection")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(vehicleTable)
	ub.Set(
		ub.Assign("collection_id", collectionID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("client_id", clientID),
		ub.Equal("pickup_address_id", addressID),
		ub.Equal("estimated_arrival_date", date),
		ub.In("status", statusArgs(statuses)...),
	)

	sql, args := ub.Build()

	result, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id":     clientID,
			"address_id":    addressID,
			"collection_id": collectionID,
		}).Error("error linking vehicles to collection")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "error linking vehicles to collection")
	}

	return result.RowsAffected()
}

// CountByCollectionIDs returns the linked-vehicle count per collection. IDs
// with no linked vehicles are absent from the result map.
func (r *VehicleRepo) CountByCollectionIDs(ctx context.Context, collectionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "VehicleRepo.CountByCollectionIDs")
	defer span.End()

	counts := make(map[uuid.UUID]int64, len(collectionIDs))
	if len(collectionIDs) == 0 {
		return counts, nil
	}

	ids := make([]any, len(collectionIDs))
	for i, id := range collectionIDs {
		ids[i] = id
	}

	sb := database.NewSelectBuilder()
	sb.Select("collection_id", "COUNT(*) AS vehicle_count")
	sb.From(vehicleTable)
	sb.Where(sb.In("collection_id", ids...))
	sb.GroupBy("collection_id")

	sql, args := sb.Build()

	rows, err := r.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("error counting vehicles per collection")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error counting vehicles")
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var count int64
		if err := rows.Scan(&id, &count); err != nil {
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "error counting vehicles")
		}
		counts[id] = count
	}

	return counts, rows.Err()
}
