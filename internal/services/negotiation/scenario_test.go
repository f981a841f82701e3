package negotiation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Full negotiation round initiated by the admin and closed by the client.
func TestScenarioAdminProposesClientAccepts(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	clientID := uuid.New()
	address := store.addAddress("Rua das Laranjeiras", "123", "Santos")
	label := "Rua das Laranjeiras, 123 - Santos"

	vehicle := store.addVehicle(clientID, address.ID, models.VehicleStatusPickupSelected)

	// admin prices the address
	priced, err := svc.UpsertCollection(ctx, clientID, label, nil, fee(100))
	require.NoError(t, err)

	// admin proposes a date
	d := day("2025-09-15")
	require.NoError(t, svc.AdminProposeDate(ctx, clientID, address.ID, d))

	v := store.vehicle(vehicle.ID)
	assert.Equal(t, models.VehicleStatusDateChangeRequested, v.Status)
	require.NotNil(t, v.EstimatedArrivalDate)
	assert.True(t, v.EstimatedArrivalDate.Equal(d))

	c := store.collection(priced.ID)
	require.NotNil(t, c.CollectionDate)
	assert.True(t, c.CollectionDate.Equal(d))
	assert.Equal(t, models.CollectionStatusRequested, c.Status)

	// client accepts
	require.NoError(t, svc.ClientAcceptProposal(ctx, clientID, address.ID))

	v = store.vehicle(vehicle.ID)
	assert.Equal(t, models.VehicleStatusAwaitingCollection, v.Status)
	require.NotNil(t, v.CollectionID)
	assert.Equal(t, priced.ID, *v.CollectionID)

	c = store.collection(priced.ID)
	assert.Equal(t, models.CollectionStatusApproved, c.Status)
	assert.Equal(t, 100.0, c.Fee())

	// link ran before approve, so the orphan scanner finds nothing
	report, err := svc.CleanupOrphans(ctx, CleanupParams{ClientID: &clientID, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, report.Detected)
}

// Full round with a client counter-proposal: propose, counter, admin accepts.
func TestScenarioCounterProposal(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	clientID := uuid.New()
	address := store.addAddress("Rua das Laranjeiras", "123", "Santos")
	label := "Rua das Laranjeiras, 123 - Santos"

	vehicle := store.addVehicle(clientID, address.ID, models.VehicleStatusPickupSelected)

	priced, err := svc.UpsertCollection(ctx, clientID, label, nil, fee(100))
	require.NoError(t, err)

	// admin proposes 2025-09-15
	require.NoError(t, svc.AdminProposeDate(ctx, clientID, address.ID, day("2025-09-15")))

	// client counter-proposes 2025-09-20
	counter := day("2025-09-20")
	require.NoError(t, svc.ClientReschedule(ctx, clientID, address.ID, counter))

	v := store.vehicle(vehicle.ID)
	assert.Equal(t, models.VehicleStatusNewDateReview, v.Status)
	require.NotNil(t, v.EstimatedArrivalDate)
	assert.True(t, v.EstimatedArrivalDate.Equal(counter))

	// the same collection row moved to the new date, fee preserved, no
	// duplicate unpriced row left behind
	c := store.collection(priced.ID)
	require.NotNil(t, c.CollectionDate)
	assert.True(t, c.CollectionDate.Equal(counter))
	assert.Equal(t, 100.0, c.Fee())
	assert.Len(t, store.collections, 1)

	// admin accepts the client's date
	require.NoError(t, svc.AdminAcceptClientDate(ctx, clientID, address.ID))

	v = store.vehicle(vehicle.ID)
	assert.Equal(t, models.VehicleStatusAwaitingCollection, v.Status)
	require.NotNil(t, v.CollectionID)
	assert.Equal(t, priced.ID, *v.CollectionID)
	assert.Equal(t, models.CollectionStatusApproved, store.collection(priced.ID).Status)

	report, err := svc.CleanupOrphans(ctx, CleanupParams{ClientID: &clientID, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, report.Detected)
}

// The admin proposes several dates before the client responds; after the
// client's own date wins, no superseded REQUESTED row may linger as an orphan.
func TestScenarioAdminMultiProposeLeavesNoOrphans(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	clientID := uuid.New()
	address := store.addAddress("Avenida Paulista", "900", "São Paulo")
	label := "Avenida Paulista, 900 - São Paulo"

	store.addVehicle(clientID, address.ID, models.VehicleStatusPickupSelected)

	_, err := svc.UpsertCollection(ctx, clientID, label, nil, fee(80))
	require.NoError(t, err)

	// a stale proposal row from an earlier, abandoned round
	stray := store.addCollection(clientID, label, ptrDay("2025-08-01"), nil, models.CollectionStatusRequested)

	require.NoError(t, svc.AdminProposeDate(ctx, clientID, address.ID, day("2025-09-04")))
	require.NoError(t, svc.AdminProposeDate(ctx, clientID, address.ID, day("2025-09-05")))

	// client insists on its own date
	require.NoError(t, svc.ClientReschedule(ctx, clientID, address.ID, day("2025-09-03")))
	require.NoError(t, svc.AdminAcceptClientDate(ctx, clientID, address.ID))

	report, err := svc.CleanupOrphans(ctx, CleanupParams{ClientID: &clientID, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, report.Detected, "superseded proposal rows must be cleaned or never orphaned")

	assert.Nil(t, store.collection(stray.ID), "stale unpriced proposal must be swept")
}

// A vehicle settled in an earlier round shares the address and, by
// coincidence, the newly agreed date; accepting the new round must not steal
// its linkage or touch its status.
func TestScenarioAcceptanceLeavesSettledVehiclesLinked(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	clientID := uuid.New()
	address := store.addAddress("Rua das Laranjeiras", "123", "Santos")
	label := "Rua das Laranjeiras, 123 - Santos"
	d := day("2025-09-15")

	// an older, settled round at the same address
	settled := store.addCollection(clientID, label, ptrDay("2025-06-01"), fee(100), models.CollectionStatusPaid)
	finished := store.addVehicle(clientID, address.ID, models.VehicleStatusFinished)
	store.mu.Lock()
	store.vehicles[finished.ID].CollectionID = &settled.ID
	fd := d
	store.vehicles[finished.ID].EstimatedArrivalDate = &fd
	store.mu.Unlock()

	fresh := store.addVehicle(clientID, address.ID, models.VehicleStatusPickupSelected)

	require.NoError(t, svc.AdminProposeDate(ctx, clientID, address.ID, d))
	require.NoError(t, svc.ClientAcceptProposal(ctx, clientID, address.ID))

	v := store.vehicle(fresh.ID)
	assert.Equal(t, models.VehicleStatusAwaitingCollection, v.Status)
	require.NotNil(t, v.CollectionID)
	assert.NotEqual(t, settled.ID, *v.CollectionID)

	f := store.vehicle(finished.ID)
	assert.Equal(t, models.VehicleStatusFinished, f.Status)
	require.NotNil(t, f.CollectionID)
	assert.Equal(t, settled.ID, *f.CollectionID, "settled vehicles keep their original collection")
}

// Re-proposing over a slot whose collection was already approved is refused.
func TestScenarioProposalAfterApprovalIsRejected(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	clientID := uuid.New()
	label := "Rua A, 10 - Santos"
	d := day("2025-09-15")

	store.addCollection(clientID, label, &d, fee(100), models.CollectionStatusApproved)

	_, err := svc.UpsertCollection(ctx, clientID, label, &d, fee(100))
	assert.ErrorIs(t, err, ErrApprovedCollectionExists)
}

func ptrDay(s string) *time.Time {
	d := day(s)
	return &d
}
