package negotiation

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/internal/services/fees"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

// fakeStore is an in-memory stand-in for Postgres that mirrors the guarded
// update semantics of the real repositories: every mutation re-checks the
// expected prior state and reports rows affected.
type fakeStore struct {
	mu          sync.Mutex
	vehicles    map[uuid.UUID]*models.Vehicle
	collections map[uuid.UUID]*models.Collection
	addresses   map[uuid.UUID]*models.Address
	clock       time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles:    map[uuid.UUID]*models.Vehicle{},
		collections: map[uuid.UUID]*models.Collection{},
		addresses:   map[uuid.UUID]*models.Address{},
		clock:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so updated_at ordering is deterministic.
func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) addAddress(street, number, city string) *models.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &models.Address{ID: uuid.New(), Street: street, Number: number, City: city}
	s.addresses[a.ID] = a
	return a
}

func (s *fakeStore) addVehicle(clientID, addressID uuid.UUID, status models.VehicleStatus) *models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &models.Vehicle{
		ID:              uuid.New(),
		ClientID:        clientID,
		PickupAddressID: &addressID,
		Status:          status,
	}
	s.vehicles[v.ID] = v
	return v
}

func (s *fakeStore) addCollection(clientID uuid.UUID, label string, date *time.Time, fee *float64, status models.CollectionStatus) *models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Collection{
		ID:                uuid.New(),
		ClientID:          clientID,
		CollectionAddress: label,
		CollectionDate:    date,
		CollectionFeeRaw:  fee,
		Status:            status,
		UpdatedAt:         s.tick(),
	}
	s.collections[c.ID] = c
	return c
}

func (s *fakeStore) vehicle(id uuid.UUID) models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.vehicles[id]
}

func (s *fakeStore) collection(id uuid.UUID) *models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func datesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func hasStatus(statuses []models.VehicleStatus, status models.VehicleStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// --- VehicleRepository ---

type fakeVehicleRepo struct{ store *fakeStore }

func (r *fakeVehicleRepo) ListByClientAndAddress(_ context.Context, clientID, addressID uuid.UUID) ([]models.Vehicle, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Vehicle
	for _, v := range r.store.vehicles {
		if v.ClientID == clientID && v.PickupAddressID != nil && *v.PickupAddressID == addressID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeVehicleRepo) SyncDates(_ context.Context, clientID, addressID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, v := range r.store.vehicles {
		if v.ClientID == clientID && v.PickupAddressID != nil && *v.PickupAddressID == addressID && hasStatus(statuses, v.Status) {
			d := date
			v.EstimatedArrivalDate = &d
			n++
		}
	}
	return n, nil
}

func (r *fakeVehicleRepo) Transition(_ context.Context, clientID, addressID uuid.UUID, from []models.VehicleStatus, to models.VehicleStatus, date *time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, v := range r.store.vehicles {
		if v.ClientID == clientID && v.PickupAddressID != nil && *v.PickupAddressID == addressID && hasStatus(from, v.Status) {
			v.Status = to
			if date != nil {
				d := *date
				v.EstimatedArrivalDate = &d
			}
			n++
		}
	}
	return n, nil
}

func (r *fakeVehicleRepo) LinkToCollection(_ context.Context, clientID, addressID, collectionID uuid.UUID, date time.Time, statuses []models.VehicleStatus) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, v := range r.store.vehicles {
		if v.ClientID == clientID && v.PickupAddressID != nil && *v.PickupAddressID == addressID &&
			v.EstimatedArrivalDate != nil && v.EstimatedArrivalDate.Equal(date) && hasStatus(statuses, v.Status) {
			id := collectionID
			v.CollectionID = &id
			n++
		}
	}
	return n, nil
}

func (r *fakeVehicleRepo) CountByCollectionIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	counts := map[uuid.UUID]int64{}
	for _, id := range ids {
		for _, v := range r.store.vehicles {
			if v.CollectionID != nil && *v.CollectionID == id {
				counts[id]++
			}
		}
	}
	return counts, nil
}

// --- CollectionRepository ---

type fakeCollectionRepo struct{ store *fakeStore }

func (r *fakeCollectionRepo) Upsert(_ context.Context, params repositories.UpsertParams) (*models.Collection, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.collections {
		if c.ClientID != params.ClientID || c.CollectionAddress != params.AddressLabel || !datesEqual(c.CollectionDate, params.Date) {
			continue
		}
		if c.Status != models.CollectionStatusRequested {
			return nil, repositories.ErrApprovedRowConflict
		}
		if params.Fee != nil {
			f := *params.Fee
			c.CollectionFeeRaw = &f
		}
		c.UpdatedAt = r.store.tick()
		cp := *c
		return &cp, nil
	}

	c := &models.Collection{
		ID:                uuid.New(),
		ClientID:          params.ClientID,
		CollectionAddress: params.AddressLabel,
		CollectionDate:    params.Date,
		CollectionFeeRaw:  params.Fee,
		Status:            models.CollectionStatusRequested,
		UpdatedAt:         r.store.tick(),
	}
	r.store.collections[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r *fakeCollectionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	c := r.store.collection(id)
	if c == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "collection not found")
	}
	return c, nil
}

func (r *fakeCollectionRepo) matching(clientID uuid.UUID, label string, statuses []models.CollectionStatus, requirePriced bool) []*models.Collection {
	var out []*models.Collection
	for _, c := range r.store.collections {
		if c.ClientID != clientID {
			continue
		}
		if label != "" && c.CollectionAddress != label {
			continue
		}
		ok := false
		for _, s := range statuses {
			if c.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			continue
		}
		if requirePriced && !c.HasFee() {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

func (r *fakeCollectionRepo) FindScheduled(_ context.Context, clientID uuid.UUID, label string, date *time.Time, statuses []models.CollectionStatus) (*models.Collection, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.matching(clientID, label, statuses, false) {
		if datesEqual(c.CollectionDate, date) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCollectionRepo) FindFeeCandidate(_ context.Context, query repositories.FeeQuery) (*models.Collection, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	matches := r.matching(query.ClientID, query.AddressLabel, query.Statuses, query.RequirePriced)
	if len(matches) == 0 {
		return nil, nil
	}
	cp := *matches[0]
	return &cp, nil
}

func (r *fakeCollectionRepo) ListPricedByClient(_ context.Context, clientID uuid.UUID, statuses []models.CollectionStatus) ([]models.Collection, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Collection
	for _, c := range r.matching(clientID, "", statuses, true) {
		out = append(out, *c)
	}
	return out, nil
}

func (r *fakeCollectionRepo) UpdateSchedule(_ context.Context, id uuid.UUID, date time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.collections[id]
	if !ok || c.Status != models.CollectionStatusRequested {
		return 0, nil
	}
	d := date
	c.CollectionDate = &d
	c.UpdatedAt = r.store.tick()
	return 1, nil
}

func (r *fakeCollectionRepo) Approve(_ context.Context, id uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.collections[id]
	if !ok || c.Status != models.CollectionStatusRequested {
		return false, nil
	}
	c.Status = models.CollectionStatusApproved
	c.UpdatedAt = r.store.tick()
	return true, nil
}

func (r *fakeCollectionRepo) ListRequested(_ context.Context, filter repositories.RequestedFilter) ([]models.Collection, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Collection
	for _, c := range r.store.collections {
		if c.Status != models.CollectionStatusRequested {
			continue
		}
		if filter.ClientID != nil && c.ClientID != *filter.ClientID {
			continue
		}
		if filter.AddressLabel != "" && c.CollectionAddress != filter.AddressLabel {
			continue
		}
		if filter.ExcludeDate != nil && c.CollectionDate != nil && c.CollectionDate.Equal(*filter.ExcludeDate) {
			continue
		}
		out = append(out, *c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeCollectionRepo) DeleteRequestedByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, id := range ids {
		if c, ok := r.store.collections[id]; ok && c.Status == models.CollectionStatusRequested {
			delete(r.store.collections, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeCollectionRepo) DeleteUnpricedRequested(_ context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, c := range r.store.collections {
		if c.ClientID == clientID && c.CollectionAddress == label && id != keepID &&
			c.Status == models.CollectionStatusRequested && !c.HasFee() {
			delete(r.store.collections, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeCollectionRepo) DeleteUnlinkedRequestedSiblings(_ context.Context, clientID uuid.UUID, label string, keepID uuid.UUID) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, c := range r.store.collections {
		if c.ClientID != clientID || c.CollectionAddress != label || id == keepID || c.Status != models.CollectionStatusRequested {
			continue
		}
		linked := false
		for _, v := range r.store.vehicles {
			if v.CollectionID != nil && *v.CollectionID == id {
				linked = true
				break
			}
		}
		if !linked {
			delete(r.store.collections, id)
			n++
		}
	}
	return n, nil
}

// --- AddressRepository ---

type fakeAddressRepo struct{ store *fakeStore }

func (r *fakeAddressRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Address, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.addresses[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "address not found")
	}
	cp := *a
	return &cp, nil
}

// newTestService wires the negotiation service over the fake store with the
// real fee resolver, so the fallback tiers are exercised end to end.
func newTestService(store *fakeStore) *Service {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	collections := &fakeCollectionRepo{store: store}
	return NewService(
		&fakeVehicleRepo{store: store},
		collections,
		&fakeAddressRepo{store: store},
		fees.NewService(collections, logger),
		nil,
		logger,
	)
}
