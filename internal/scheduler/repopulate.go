package scheduler

import (
	"context"

	"github.com/Lyx52/opencast/internal/index"
	"github.com/Lyx52/opencast/internal/storage"
	logx "github.com/Lyx52/opencast/pkg/logx"
)

// Repopulate rebuilds the index projection from the interval store and the
// snapshot archive, organization by organization, in bulk batches. Events
// whose snapshot cannot be read are logged and skipped; one corrupt event
// must not abort the rebuild. Returns the number of indexed events.
func (s *Service) Repopulate(ctx context.Context) (int, error) {
	orgs, err := s.store.Orgs(ctx)
	if err != nil {
		return 0, storageErr("list organizations", err)
	}

	total := 0
	for _, org := range orgs {
		n, err := s.repopulateOrg(ctx, org)
		total += n
		if err != nil {
			return total, err
		}
	}
	s.log.Info("finished repopulating index", logx.Int("events", total))
	return total, nil
}

func (s *Service) repopulateOrg(ctx context.Context, org string) (int, error) {
	rows, err := s.store.Search(ctx, org, storage.Filter{})
	if err != nil {
		return 0, storageErr("search events", err)
	}
	s.log.Info("repopulating organization", fieldOrg(org), logx.Int("events", len(rows)))

	batchSize := s.config().RepopulateBatch
	batch := make([]index.Entry, 0, batchSize)
	indexed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.idx.BulkUpsert(ctx, batch); err != nil {
			return storageErr("bulk index events", err)
		}
		indexed += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		snap, err := s.arch.Latest(ctx, org, row.EventID)
		if err != nil {
			s.log.Warn("skipping event with unreadable snapshot",
				fieldOrg(org), fieldEvent(row.EventID), fieldErr(err))
			continue
		}
		batch = append(batch, index.Entry{
			EventID:        row.EventID,
			Org:            org,
			AgentID:        row.AgentID,
			Start:          row.Start,
			End:            row.End,
			Presenters:     row.Presenters,
			Title:          snap.Package.Title,
			Series:         snap.Package.Series,
			Properties:     row.CaptureAgentProperties,
			RecordingState: row.RecordingState,
		})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return indexed, err
			}
		}
	}
	if err := flush(); err != nil {
		return indexed, err
	}
	s.populateLastModCache(ctx, org)
	return indexed, nil
}
