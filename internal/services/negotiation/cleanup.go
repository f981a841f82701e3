package negotiation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CleanupParams scopes an orphan cleanup run. DryRun defaults to true through
// the handler layer; destruction must be asked for explicitly.
type CleanupParams struct {
	ClientID     *uuid.UUID
	AddressLabel string
	ExcludeDate  *time.Time
	Limit        int
	DryRun       bool
}

// OrphanItem describes one orphaned collection in a cleanup report.
type OrphanItem struct {
	ID             uuid.UUID  `json:"id"`
	ClientID       uuid.UUID  `json:"client_id"`
	AddressLabel   string     `json:"collection_address"`
	CollectionDate *time.Time `json:"collection_date,omitempty"`
}

// CleanupReport is the outcome of one cleanup run.
type CleanupReport struct {
	Detected int          `json:"detected"`
	Deleted  int          `json:"deleted"`
	Items    []OrphanItem `json:"items"`
	DryRun   bool         `json:"dryRun"`
}

// CleanupOrphans finds REQUESTED collections with zero linked vehicles and,
// outside dry-run, deletes them. Collections are coupled to vehicles only by
// the denormalized address label and date, so a proposal that is later
// superseded can leave a row nothing ever linked to; this job is the
// compensating control.
func (s *Service) CleanupOrphans(ctx context.Context, params CleanupParams) (*CleanupReport, error) {
	ctx, span := tracing.StartSpan(ctx, "negotiation.Service.CleanupOrphans")
	defer span.End()

	requested, err := s.collections.ListRequested(ctx, repositories.RequestedFilter{
		ClientID:     params.ClientID,
		AddressLabel: params.AddressLabel,
		ExcludeDate:  params.ExcludeDate,
		Limit:        params.Limit,
	})
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(requested))
	for i, c := range requested {
		ids[i] = c.ID
	}

	counts, err := s.vehicles.CountByCollectionIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{DryRun: params.DryRun, Items: []OrphanItem{}}
	var orphanIDs []uuid.UUID
	for _, c := range requested {
		if counts[c.ID] > 0 {
			continue
		}
		orphanIDs = append(orphanIDs, c.ID)
		report.Items = append(report.Items, OrphanItem{
			ID:             c.ID,
			ClientID:       c.ClientID,
			AddressLabel:   c.CollectionAddress,
			CollectionDate: c.CollectionDate,
		})
	}
	report.Detected = len(orphanIDs)
	metrics.OrphanRequestedDetected.Add(float64(report.Detected))

	if params.DryRun {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"scanned":  len(requested),
			"detected": report.Detected,
		}).Info("cleanup_orphans_dry_run")
		return report, nil
	}

	// The delete re-asserts REQUESTED, so a collection approved between the
	// scan and this statement survives.
	deleted, err := s.collections.DeleteRequestedByIDs(ctx, orphanIDs)
	if err != nil {
		return nil, err
	}
	report.Deleted = int(deleted)
	metrics.OrphanRequestedCleaned.Add(float64(deleted))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"scanned":  len(requested),
		"detected": report.Detected,
		"deleted":  report.Deleted,
	}).Info("cleanup_orphans_deleted")

	s.emitter.EmitOrphansCleaned(ctx, report.Detected, report.Deleted)
	return report, nil
}
