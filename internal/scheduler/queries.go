package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lyx52/opencast/internal/archive"
	"github.com/Lyx52/opencast/internal/index"
	"github.com/Lyx52/opencast/internal/storage"
)

// Search returns occurrences of one organization matching the filter,
// ordered by start time.
func (s *Service) Search(ctx context.Context, p Principal, filter storage.Filter) ([]storage.Occurrence, error) {
	found, err := s.store.Search(ctx, p.Org, filter)
	if err != nil {
		return nil, storageErr("search events", err)
	}
	return found, nil
}

// EventCount reports the number of scheduled occurrences across all
// organizations.
func (s *Service) EventCount(ctx context.Context) (int64, error) {
	n, err := s.store.CountAll(ctx)
	if err != nil {
		return 0, storageErr("count events", err)
	}
	return n, nil
}

func (s *Service) loadRow(ctx context.Context, p Principal, eventID string) (storage.Occurrence, error) {
	if eventID == "" {
		return storage.Occurrence{}, validationErr("eventId", "must not be empty")
	}
	row, err := s.store.Get(ctx, p.Org, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Occurrence{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return storage.Occurrence{}, storageErr("load event", err)
	}
	return row, nil
}

// TechnicalMetadata returns the capture-agent-facing view of one event.
func (s *Service) TechnicalMetadata(ctx context.Context, p Principal, eventID string) (TechnicalMetadata, error) {
	row, err := s.loadRow(ctx, p, eventID)
	if err != nil {
		return TechnicalMetadata{}, err
	}
	tm := TechnicalMetadata{
		EventID:        row.EventID,
		AgentID:        row.AgentID,
		Start:          row.Start,
		End:            row.End,
		Presenters:     row.Presenters,
		WorkflowConfig: row.WorkflowProperties,
		AgentConfig:    row.CaptureAgentProperties,
	}
	if row.RecordingState != "" {
		tm.Recording = &Recording{EventID: row.EventID, State: row.RecordingState, LastHeard: row.LastHeard}
	}
	return tm, nil
}

// WorkflowConfig returns the workflow properties of one event, extracted
// from the derived capture-agent properties.
func (s *Service) WorkflowConfig(ctx context.Context, p Principal, eventID string) (map[string]string, error) {
	row, err := s.loadRow(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	return workflowConfig(row.CaptureAgentProperties), nil
}

// CaptureAgentConfig returns the derived capture-agent properties of one
// event.
func (s *Service) CaptureAgentConfig(ctx context.Context, p Principal, eventID string) (map[string]string, error) {
	row, err := s.loadRow(ctx, p, eventID)
	if err != nil {
		return nil, err
	}
	return row.CaptureAgentProperties, nil
}

// MediaPackage returns the latest archived payload of one event.
func (s *Service) MediaPackage(ctx context.Context, p Principal, eventID string) (archive.MediaPackage, error) {
	if eventID == "" {
		return archive.MediaPackage{}, validationErr("eventId", "must not be empty")
	}
	snap, err := s.arch.Latest(ctx, p.Org, eventID)
	if err != nil {
		if errors.Is(err, archive.ErrNoSnapshot) {
			return archive.MediaPackage{}, fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return archive.MediaPackage{}, storageErr("load snapshot", err)
	}
	return snap.Package, nil
}

// CurrentRecording returns the occurrence the agent should be capturing
// right now, or ErrNotFound when the agent is idle.
func (s *Service) CurrentRecording(ctx context.Context, p Principal, agentID string) (TechnicalMetadata, error) {
	if agentID == "" {
		return TechnicalMetadata{}, validationErr("agentId", "must not be empty")
	}
	now := time.Now().UTC()
	found, err := s.store.Search(ctx, p.Org, storage.Filter{AgentID: agentID, StartsTo: now, EndFrom: now})
	if err != nil {
		return TechnicalMetadata{}, storageErr("search current recording", err)
	}
	if len(found) == 0 {
		return TechnicalMetadata{}, fmt.Errorf("%w: no current recording for agent %s", ErrNotFound, agentID)
	}
	return s.TechnicalMetadata(ctx, p, found[0].EventID)
}

// UpcomingRecording returns the next occurrence on the agent that has not
// started yet, or ErrNotFound when nothing is scheduled.
func (s *Service) UpcomingRecording(ctx context.Context, p Principal, agentID string) (TechnicalMetadata, error) {
	if agentID == "" {
		return TechnicalMetadata{}, validationErr("agentId", "must not be empty")
	}
	now := time.Now().UTC()
	found, err := s.store.Search(ctx, p.Org, storage.Filter{AgentID: agentID, StartsFrom: now})
	if err != nil {
		return TechnicalMetadata{}, storageErr("search upcoming recording", err)
	}
	if len(found) == 0 {
		return TechnicalMetadata{}, fmt.Errorf("%w: no upcoming recording for agent %s", ErrNotFound, agentID)
	}
	return s.TechnicalMetadata(ctx, p, found[0].EventID)
}

// RecordingState returns the heartbeat record of one event. Events whose
// agent never reported a state yield ErrNotFound.
func (s *Service) RecordingState(ctx context.Context, p Principal, eventID string) (Recording, error) {
	row, err := s.loadRow(ctx, p, eventID)
	if err != nil {
		return Recording{}, err
	}
	if row.RecordingState == "" {
		return Recording{}, fmt.Errorf("%w: no recording state for %s", ErrNotFound, eventID)
	}
	return Recording{EventID: row.EventID, State: row.RecordingState, LastHeard: row.LastHeard}, nil
}

// KnownRecordings returns every event of the organization that has a
// recording state, keyed by event id.
func (s *Service) KnownRecordings(ctx context.Context, p Principal) (map[string]Recording, error) {
	found, err := s.store.Search(ctx, p.Org, storage.Filter{})
	if err != nil {
		return nil, storageErr("search recordings", err)
	}
	out := map[string]Recording{}
	for _, o := range found {
		if o.RecordingState == "" {
			continue
		}
		out[o.EventID] = Recording{EventID: o.EventID, State: o.RecordingState, LastHeard: o.LastHeard}
	}
	return out, nil
}

// RemoveRecording clears the heartbeat record of one event without touching
// its scheduling fields.
func (s *Service) RemoveRecording(ctx context.Context, p Principal, eventID string) error {
	unlock := s.locks.lock(p.Org + "/" + eventID)
	defer unlock()

	row, err := s.loadRow(ctx, p, eventID)
	if err != nil {
		return err
	}
	if row.RecordingState == "" {
		return fmt.Errorf("%w: no recording state for %s", ErrNotFound, eventID)
	}
	row.RecordingState = ""
	row.LastHeard = time.Time{}
	if err := s.store.Upsert(ctx, row); err != nil {
		return storageErr("persist event", err)
	}
	s.indexUpsert(ctx, p.Org, eventID, func(e index.Entry, _ bool) (index.Entry, error) {
		e.RecordingState = ""
		return e, nil
	})
	s.log.Debug("recording state removed", fieldEvent(eventID))
	return nil
}
