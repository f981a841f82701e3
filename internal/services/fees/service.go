// Package fees resolves the per-vehicle collection fee for an address by
// inheriting it from the client's prior collections.
package fees

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/addresslabel"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// feeStatuses are the collection statuses a fee may be inherited from. PAID
// rows stay eligible: a settled collection is the strongest signal of the
// agreed price for an address.
var feeStatuses = []models.CollectionStatus{
	models.CollectionStatusRequested,
	models.CollectionStatusApproved,
	models.CollectionStatusPaid,
}

type Service struct {
	collections repositories.CollectionRepository
	logger      ectologger.Logger
}

// NewService creates a new fee service
func NewService(collections repositories.CollectionRepository, logger ectologger.Logger) *Service {
	return &Service{
		collections: collections,
		logger:      logger,
	}
}

// SelectFeeForAddress finds the collection whose fee should apply to the given
// address label, most recently touched first, in three widening tiers:
//
//  1. exact label match with a positive fee
//  2. exact label match regardless of fee (an unpriced row still marks the
//     address as known, so callers can tell "never priced" from "unknown")
//  3. normalized label match with a positive fee
//
// Returns nil when the label is empty or nothing matches.
func (s *Service) SelectFeeForAddress(ctx context.Context, clientID uuid.UUID, label string) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "fees.Service.SelectFeeForAddress")
	defer span.End()

	if label == "" {
		return nil, nil
	}

	priced, err := s.collections.FindFeeCandidate(ctx, repositories.FeeQuery{
		ClientID:      clientID,
		AddressLabel:  label,
		Statuses:      feeStatuses,
		RequirePriced: true,
	})
	if err != nil {
		return nil, err
	}
	if priced != nil {
		return priced, nil
	}

	exact, err := s.collections.FindFeeCandidate(ctx, repositories.FeeQuery{
		ClientID:     clientID,
		AddressLabel: label,
		Statuses:     feeStatuses,
	})
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}

	return s.fuzzyMatch(ctx, clientID, label)
}

// fuzzyMatch compares normalized labels in memory. The candidate list is
// already ordered most recently touched first, so the first hit wins.
func (s *Service) fuzzyMatch(ctx context.Context, clientID uuid.UUID, label string) (*models.Collection, error) {
	candidates, err := s.collections.ListPricedByClient(ctx, clientID, feeStatuses)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if addresslabel.Matches(candidates[i].CollectionAddress, label) {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"client_id":       clientID,
				"requested_label": label,
				"matched_label":   candidates[i].CollectionAddress,
			}).Info("Fee resolved via fuzzy address match")
			return &candidates[i], nil
		}
	}

	return nil, nil
}
