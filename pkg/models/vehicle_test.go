package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name     string
		event    NegotiationEvent
		from     VehicleStatus
		expected VehicleStatus
		allowed  bool
	}{
		{
			name:     "admin proposes to freshly selected pickup",
			event:    EventAdminProposeDate,
			from:     VehicleStatusPickupSelected,
			expected: VehicleStatusDateChangeRequested,
			allowed:  true,
		},
		{
			name:     "admin re-proposes over a pending approval",
			event:    EventAdminProposeDate,
			from:     VehicleStatusAwaitingApproval,
			expected: VehicleStatusDateChangeRequested,
			allowed:  true,
		},
		{
			name:    "admin cannot propose over an agreed collection",
			event:   EventAdminProposeDate,
			from:    VehicleStatusAwaitingCollection,
			allowed: false,
		},
		{
			name:     "admin responds to a client counter-proposal",
			event:    EventAdminRespondToCounter,
			from:     VehicleStatusNewDateReview,
			expected: VehicleStatusDateChangeRequested,
			allowed:  true,
		},
		{
			name:     "client counter-proposes a pending proposal",
			event:    EventClientReschedule,
			from:     VehicleStatusDateChangeRequested,
			expected: VehicleStatusNewDateReview,
			allowed:  true,
		},
		{
			name:     "client counter-proposes from awaiting approval",
			event:    EventClientReschedule,
			from:     VehicleStatusAwaitingApproval,
			expected: VehicleStatusNewDateReview,
			allowed:  true,
		},
		{
			name:    "client cannot reschedule an agreed collection",
			event:   EventClientReschedule,
			from:    VehicleStatusAwaitingCollection,
			allowed: false,
		},
		{
			name:     "client acceptance stages the proposal",
			event:    EventClientAcceptStage,
			from:     VehicleStatusDateChangeRequested,
			expected: VehicleStatusAwaitingApproval,
			allowed:  true,
		},
		{
			name:     "client acceptance finalizes",
			event:    EventClientAcceptFinal,
			from:     VehicleStatusAwaitingApproval,
			expected: VehicleStatusAwaitingCollection,
			allowed:  true,
		},
		{
			name:     "admin accepts the client's date",
			event:    EventAdminAcceptClientDate,
			from:     VehicleStatusNewDateReview,
			expected: VehicleStatusAwaitingCollection,
			allowed:  true,
		},
		{
			name:    "downstream statuses are never sources",
			event:   EventAdminProposeDate,
			from:    VehicleStatusCollectionApproved,
			allowed: false,
		},
		{
			name:    "finished vehicles are untouchable",
			event:   EventClientAcceptFinal,
			from:    VehicleStatusFinished,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := NextStatus(tt.event, tt.from)
			assert.Equal(t, tt.allowed, ok)
			if tt.allowed {
				assert.Equal(t, tt.expected, next)
			}
		})
	}
}

func TestAllowedStatuses(t *testing.T) {
	assert.ElementsMatch(t, []VehicleStatus{
		VehicleStatusPickupSelected,
		VehicleStatusAwaitingApproval,
	}, AllowedStatuses(EventAdminProposeDate))

	assert.ElementsMatch(t, []VehicleStatus{
		VehicleStatusAwaitingApproval,
		VehicleStatusDateChangeRequested,
	}, AllowedStatuses(EventClientReschedule))

	assert.Empty(t, AllowedStatuses(NegotiationEvent("unknown")))
}

// Every event must funnel all of its sources into one target status, so the
// guarded bulk updates can set a single value.
func TestTargetStatusIsUnambiguous(t *testing.T) {
	for event := range transitions {
		target, ok := TargetStatus(event)
		require.True(t, ok, "event %s has conflicting targets", event)
		require.NotEmpty(t, target)
	}
}

func TestInNegotiationStatusesExcludesTerminal(t *testing.T) {
	assert.NotContains(t, InNegotiationStatuses, VehicleStatusAwaitingCollection)
	assert.NotContains(t, InNegotiationStatuses, VehicleStatusCollectionApproved)
	assert.NotContains(t, InNegotiationStatuses, VehicleStatusFinished)
	assert.NotContains(t, InNegotiationStatuses, VehicleStatusAwaitingPickupSetup)
}
