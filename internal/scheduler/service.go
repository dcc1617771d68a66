package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lyx52/opencast/internal/archive"
	"github.com/Lyx52/opencast/internal/index"
	"github.com/Lyx52/opencast/internal/notify"
	"github.com/Lyx52/opencast/internal/storage"
	logx "github.com/Lyx52/opencast/pkg/logx"
)

// Service is the capture-scheduling engine.
//
// The interval store holds the canonical row per event, the archive keeps
// the versioned payload, and the index plus the notification channel are
// derived projections fed after every durable write.
type Service struct {
	store storage.Store
	arch  archive.Archive
	idx   index.Index
	ch    *notify.Channel
	log   logx.Logger

	mu  sync.Mutex
	cfg Config

	locks   *keyedMutex
	lastMod *lastModCache

	// newID allocates event ids for recurring creates; swappable in tests.
	newID func() string
}

// New wires the scheduler service. All dependencies are required except the
// logger, which falls back to a no-op.
func New(cfg Config, store storage.Store, arch archive.Archive, idx index.Index, ch *notify.Channel, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:   store,
		arch:    arch,
		idx:     idx,
		ch:      ch,
		log:     log,
		cfg:     cfg.withDefaults(),
		locks:   newKeyedMutex(),
		lastMod: newLastModCache(),
		newID:   uuid.NewString,
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps runtime-tunable settings (cache TTL, retention buffer,
// separation, maintenance flag). Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func fieldEvent(id string) logx.Field { return logx.String("event", id) }
func fieldAgent(id string) logx.Field { return logx.String("agent", id) }
func fieldOrg(org string) logx.Field  { return logx.String("org", org) }

var fieldErr = logx.Err

func (s *Service) checkWritable() error {
	if s.config().Maintenance {
		return ErrMaintenance
	}
	return nil
}

// Create books a single occurrence. The media package id is the event id;
// a second create for the same id fails with ErrAlreadyExists, and any
// overlapping booking on the agent fails with ConflictError before any
// state is written.
func (s *Service) Create(ctx context.Context, p Principal, req CreateRequest) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := validateCreate(p, req); err != nil {
		return err
	}
	eventID := req.Package.ID

	unlock := s.locks.lock(p.Org + "/" + eventID)
	defer unlock()

	if _, err := s.store.Get(ctx, p.Org, eventID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, eventID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storageErr("check existing event", err)
	}

	conflicts, err := s.conflictsForInterval(ctx, p, req.AgentID, req.Start, req.End, "")
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		s.log.Info("unable to add event, conflicting events found",
			fieldEvent(eventID), fieldAgent(req.AgentID), logx.Int("conflicts", len(conflicts)))
		return &ConflictError{AgentID: req.AgentID, Conflicts: conflicts}
	}

	// Seed the episode catalog's temporal/spatial terms from the scheduling
	// fields. Update keeps them aligned on reschedule; seeding here makes
	// re-sending the stored interval reproduce the identical catalog.
	pkg := req.Package.Clone()
	pkg = setEpisodeTerm(pkg, "temporal", encodePeriod(req.Start, req.End))
	pkg = setEpisodeTerm(pkg, "spatial", req.AgentID)

	presenters := normalizePresenters(req.Presenters)
	caProps := finalAgentProperties(req.AgentMetadata, req.WorkflowProperties, req.AgentID, pkg.Series, pkg.Title)
	checksum := computeChecksum(req.Start, req.End, req.AgentID, presenters, pkg, req.WorkflowProperties, caProps)

	row := storage.Occurrence{
		EventID:                eventID,
		Org:                    p.Org,
		AgentID:                req.AgentID,
		Start:                  req.Start.UTC(),
		End:                    req.End.UTC(),
		Source:                 req.Source,
		Presenters:             presenters,
		LastModified:           time.Now().UTC(),
		Checksum:               checksum,
		WorkflowProperties:     req.WorkflowProperties,
		CaptureAgentProperties: caProps,
	}

	if err := s.persist(ctx, p, row, pkg, true); err != nil {
		return err
	}

	s.publish(ctx, notify.Message{EventID: eventID, Org: p.Org, Items: []notify.Item{
		notify.UpdateACL(pkg.ACL),
		notify.UpdateCatalog(pkg.Episode),
		notify.UpdateStart(row.Start),
		notify.UpdateEnd(row.End),
		notify.UpdateAgent(row.AgentID),
		notify.UpdatePresenters(presenters),
		notify.UpdateProperties(caProps),
	}})

	s.indexUpsert(ctx, p.Org, eventID, func(e index.Entry, _ bool) (index.Entry, error) {
		e.AgentID = row.AgentID
		e.Start = row.Start
		e.End = row.End
		e.Presenters = presenters
		e.Title = pkg.Title
		e.Series = pkg.Series
		e.Properties = caProps
		return e, nil
	})

	s.touchLastEntry(ctx, p.Org, req.AgentID)
	s.log.Info("event scheduled", fieldEvent(eventID), fieldAgent(req.AgentID),
		logx.Time("start", row.Start), logx.Time("end", row.End))
	return nil
}

// Update applies a partial update. Only supplied fields change; unsupplied
// fields keep the stored values. An update that leaves the checksum intact
// is a pure no-op: success without a snapshot version or a notification.
func (s *Service) Update(ctx context.Context, p Principal, eventID string, patch Patch, allowConflict bool) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if eventID == "" {
		return validationErr("eventId", "must not be empty")
	}
	if patch.isEmpty() {
		return nil
	}

	unlock := s.locks.lock(p.Org + "/" + eventID)
	defer unlock()

	row, err := s.store.Get(ctx, p.Org, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return storageErr("load event", err)
	}
	snap, err := s.arch.Latest(ctx, p.Org, eventID)
	if err != nil {
		if errors.Is(err, archive.ErrNoSnapshot) {
			return fmt.Errorf("%w: no media package for %s", ErrNotFound, eventID)
		}
		return storageErr("load snapshot", err)
	}
	archived := snap.Package

	start := patch.Start.Get(row.Start)
	end := patch.End.Get(row.End)
	if !end.After(start) {
		return validationErr("endTime", "must be after start time")
	}
	agent := patch.AgentID.Get(row.AgentID)
	if agent == "" {
		return validationErr("agentId", "must not be empty")
	}

	if patch.schedulingChanged() && !allowConflict {
		conflicts, err := s.conflictsForInterval(ctx, p, agent, start, end, eventID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			s.log.Info("unable to update event, conflicting events found",
				fieldEvent(eventID), fieldAgent(agent), logx.Int("conflicts", len(conflicts)))
			return &ConflictError{AgentID: agent, Conflicts: conflicts}
		}
	}

	presenters := row.Presenters
	if v, ok := patch.Presenters.Value(); ok {
		presenters = normalizePresenters(v)
	}
	wfProps := patch.WorkflowProperties.Get(row.WorkflowProperties)
	agentMeta := patch.AgentMetadata.Get(row.CaptureAgentProperties)

	propertiesChanged := patch.WorkflowProperties.IsSet() || patch.AgentMetadata.IsSet() || patch.AgentID.IsSet()

	pkg := archived.Clone()
	if v, ok := patch.Package.Value(); ok {
		pkg = v.Clone()
		pkg.ID = eventID
		if pkg.Series != archived.Series {
			propertiesChanged = true
		}
	}

	// Keep the episode catalog's temporal/spatial terms aligned with the
	// scheduling fields, the same way the admin-facing catalog tracks them.
	if patch.Start.IsSet() && patch.End.IsSet() {
		pkg = setEpisodeTerm(pkg, "temporal", encodePeriod(start, end))
	}
	if patch.AgentID.IsSet() {
		pkg = setEpisodeTerm(pkg, "spatial", agent)
	}

	aclChanged := !archive.ACLEqual(pkg.ACL, archived.ACL)
	catalogChanged := !pkg.Episode.Equal(archived.Episode) || pkg.Title != archived.Title
	if catalogChanged {
		propertiesChanged = true
	}

	caProps := row.CaptureAgentProperties
	if propertiesChanged {
		caProps = finalAgentProperties(agentMeta, wfProps, agent, pkg.Series, pkg.Title)
	}

	checksum := computeChecksum(start, end, agent, presenters, pkg, wfProps, caProps)
	if checksum == row.Checksum {
		s.log.Debug("updated event has same checksum, ignoring update", fieldEvent(eventID))
		return nil
	}

	next := row
	next.AgentID = agent
	next.Start = start.UTC()
	next.End = end.UTC()
	next.Presenters = presenters
	next.LastModified = time.Now().UTC()
	next.Checksum = checksum
	next.WorkflowProperties = wfProps
	next.CaptureAgentProperties = caProps

	payloadChanged := !pkg.Equal(archived)
	if err := s.persist(ctx, p, next, pkg, payloadChanged); err != nil {
		return err
	}

	var items []notify.Item
	if aclChanged {
		items = append(items, notify.UpdateACL(pkg.ACL))
	}
	if catalogChanged {
		items = append(items, notify.UpdateCatalog(pkg.Episode))
	}
	if patch.Start.IsSet() {
		items = append(items, notify.UpdateStart(next.Start))
	}
	if patch.End.IsSet() {
		items = append(items, notify.UpdateEnd(next.End))
	}
	if patch.AgentID.IsSet() {
		items = append(items, notify.UpdateAgent(agent))
	}
	if patch.Presenters.IsSet() {
		items = append(items, notify.UpdatePresenters(presenters))
	}
	if propertiesChanged {
		items = append(items, notify.UpdateProperties(caProps))
	}
	s.publish(ctx, notify.Message{EventID: eventID, Org: p.Org, Items: items})

	s.indexUpsert(ctx, p.Org, eventID, func(e index.Entry, _ bool) (index.Entry, error) {
		e.AgentID = next.AgentID
		e.Start = next.Start
		e.End = next.End
		e.Presenters = next.Presenters
		e.Title = pkg.Title
		e.Series = pkg.Series
		if propertiesChanged {
			e.Properties = caProps
		}
		return e, nil
	})

	if propertiesChanged || patch.Start.IsSet() || patch.End.IsSet() {
		s.touchLastEntry(ctx, p.Org, row.AgentID)
		if patch.AgentID.IsSet() && agent != row.AgentID {
			s.touchLastEntry(ctx, p.Org, agent)
		}
	}
	s.log.Info("event updated", fieldEvent(eventID), fieldAgent(agent))
	return nil
}

// UpdateRecordingState records a capture heartbeat. The recording state has
// its own lifecycle: it never touches scheduling fields, and an unchanged
// state only refreshes the heartbeat timestamp without a notification.
func (s *Service) UpdateRecordingState(ctx context.Context, p Principal, eventID, state string) error {
	if eventID == "" {
		return validationErr("eventId", "must not be empty")
	}
	if !KnownState(state) {
		return validationErr("state", fmt.Sprintf("unknown recording state %q", state))
	}

	unlock := s.locks.lock(p.Org + "/" + eventID)
	defer unlock()

	row, err := s.store.Get(ctx, p.Org, eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, eventID)
		}
		return storageErr("load event", err)
	}

	now := time.Now().UTC()
	changed := row.RecordingState != state
	row.RecordingState = state
	row.LastHeard = now

	// Persist first: the notification and the index are derived views and
	// must never report a state the store does not hold.
	if err := s.store.Upsert(ctx, row); err != nil {
		return storageErr("persist recording state", err)
	}

	if changed {
		s.log.Debug("setting recording state", fieldEvent(eventID), logx.String("state", state))
		s.publish(ctx, notify.Message{EventID: eventID, Org: p.Org, Items: []notify.Item{
			notify.UpdateRecordingState(state, now),
		}})
		s.indexUpsert(ctx, p.Org, eventID, func(e index.Entry, _ bool) (index.Entry, error) {
			e.RecordingState = state
			return e, nil
		})
	} else {
		s.log.Trace("recording state not changed", fieldEvent(eventID))
	}
	return nil
}

// Remove retracts an occurrence. Deletion is best-effort across the two
// durable stores: only when both report "not found" does the call fail with
// ErrNotFound, so a partially corrupted event can still be cleaned up. The
// deletion notification and the index removal always go out.
func (s *Service) Remove(ctx context.Context, p Principal, eventID string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if eventID == "" {
		return validationErr("eventId", "must not be empty")
	}

	unlock := s.locks.lock(p.Org + "/" + eventID)
	defer unlock()

	agentID := ""
	if row, err := s.store.Get(ctx, p.Org, eventID); err == nil {
		agentID = row.AgentID
	}

	deleted, err := s.store.Delete(ctx, p.Org, eventID)
	if err != nil {
		return storageErr("delete event", err)
	}
	if deleted && agentID != "" {
		s.touchLastEntry(ctx, p.Org, agentID)
	}

	snapshots, err := s.arch.DeleteAll(ctx, p.Org, eventID)
	if err != nil {
		return storageErr("delete snapshots", err)
	}

	s.publish(ctx, notify.Message{EventID: eventID, Org: p.Org, Items: []notify.Item{notify.Delete()}})
	if err := s.idx.Delete(ctx, p.Org, eventID); err != nil {
		s.log.Error("failed to delete event from index", fieldEvent(eventID), fieldErr(err))
	}

	if !deleted && snapshots == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, eventID)
	}
	s.log.Info("event removed", fieldEvent(eventID),
		logx.Bool("had_row", deleted), logx.Int("snapshots", snapshots))
	return nil
}

// RemoveBeforeBuffer ages out occurrences that ended more than the
// configured retention buffer ago. Per-event failures are logged and
// skipped; the sweep keeps going.
func (s *Service) RemoveBeforeBuffer(ctx context.Context, p Principal) (int, error) {
	buffer := s.config().RetentionBuffer
	if buffer <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-buffer)
	s.log.Info("looking for scheduled recordings that finished before cutoff",
		fieldOrg(p.Org), logx.Time("cutoff", cutoff))

	finished, err := s.store.Search(ctx, p.Org, storage.Filter{EndBefore: cutoff})
	if err != nil {
		return 0, storageErr("search finished events", err)
	}

	removed := 0
	for _, o := range finished {
		switch err := s.Remove(ctx, p, o.EventID); {
		case err == nil:
			removed++
		case errors.Is(err, ErrNotFound):
			s.log.Debug("skipping already removed event", fieldEvent(o.EventID))
		default:
			s.log.Warn("unable to delete expired event", fieldEvent(o.EventID), fieldErr(err))
		}
	}
	s.log.Info("retention sweep finished", fieldOrg(p.Org), logx.Int("removed", removed))
	return removed, nil
}

// persist writes the durable pair: snapshot (when the payload changed)
// first, then the interval store row.
func (s *Service) persist(ctx context.Context, p Principal, row storage.Occurrence, pkg archive.MediaPackage, takeSnapshot bool) error {
	if takeSnapshot {
		if _, err := s.arch.Take(ctx, p.Org, SnapshotOwner, pkg); err != nil {
			return storageErr("take snapshot", err)
		}
	}
	if err := s.store.Upsert(ctx, row); err != nil {
		return storageErr("persist event", err)
	}
	return nil
}

// publish sends the live update. Delivery problems are logged, not
// returned: the durable write already happened and the channel's own
// backoff has been exhausted at this point.
func (s *Service) publish(ctx context.Context, msg notify.Message) {
	if err := s.ch.Publish(ctx, msg); err != nil {
		s.log.Error("failed to publish scheduler update",
			fieldEvent(msg.EventID), logx.Int("items", len(msg.Items)), fieldErr(err))
	}
}

func (s *Service) indexUpsert(ctx context.Context, org, eventID string, fn index.UpdateFunc) {
	if err := s.idx.Upsert(ctx, org, eventID, fn); err != nil {
		s.log.Error("failed to update event in index", fieldEvent(eventID), fieldErr(err))
	}
}

func validateCreate(p Principal, req CreateRequest) error {
	if p.Org == "" {
		return validationErr("organization", "must not be empty")
	}
	if req.Package.ID == "" {
		return validationErr("mediaPackage.id", "must not be empty")
	}
	if req.AgentID == "" {
		return validationErr("agentId", "must not be empty")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return validationErr("startTime", "start and end are required")
	}
	if !req.End.After(req.Start) {
		return validationErr("endTime", "must be after start time")
	}
	return nil
}

// setEpisodeTerm returns pkg with one episode catalog term replaced.
func setEpisodeTerm(pkg archive.MediaPackage, term, value string) archive.MediaPackage {
	episode := make(archive.Catalog, len(pkg.Episode)+1)
	for k, v := range pkg.Episode {
		episode[k] = v
	}
	episode[term] = value
	pkg.Episode = episode
	return pkg
}

// encodePeriod renders a DCMI-style period for the episode catalog.
func encodePeriod(start, end time.Time) string {
	return fmt.Sprintf("start=%s; end=%s; scheme=W3C-DTF;",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}
