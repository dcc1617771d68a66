package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Lyx52/opencast/internal/recurrence"
	logx "github.com/Lyx52/opencast/pkg/logx"
)

// CreateRecurring books one occurrence per period of the recurrence rule.
// The whole window is conflict-checked up front; once materialization
// starts, per-period failures are collected, not rolled back, and reported
// together as a BulkError. Event ids are freshly allocated per period and
// titles carry a zero-padded ordinal suffix.
func (s *Service) CreateRecurring(ctx context.Context, p Principal, req RecurringRequest) ([]string, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	if p.Org == "" {
		return nil, validationErr("organization", "must not be empty")
	}
	if req.AgentID == "" {
		return nil, validationErr("agentId", "must not be empty")
	}
	tz := req.Timezone
	if tz == nil {
		tz = time.UTC
	}

	periods, err := recurrence.Expand(req.Rule, req.Start, req.End, req.Duration, tz)
	if err != nil {
		return nil, ruleErr(req.Rule, err)
	}
	if len(periods) == 0 {
		return nil, nil
	}

	conflicts, err := s.conflictsForPeriods(ctx, p, req.AgentID, periods)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.log.Info("unable to schedule recurrence, conflicting events found",
			fieldAgent(req.AgentID), logx.Int("conflicts", len(conflicts)))
		return nil, &ConflictError{AgentID: req.AgentID, Conflicts: conflicts}
	}

	width := len(fmt.Sprint(len(periods)))
	ids := make([]string, len(periods))
	errs := make([]error, len(periods))

	workers := s.config().RecurringWorkers
	if workers > len(periods) {
		workers = len(periods)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				ids[i], errs[i] = s.createOccurrence(ctx, p, req, periods[i], i+1, width)
			}
		}()
	}
	for i := range periods {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failures := map[string]error{}
	created := make([]string, 0, len(periods))
	for i, err := range errs {
		if err != nil {
			failures[ids[i]] = err
			continue
		}
		created = append(created, ids[i])
	}
	if len(failures) > 0 {
		s.log.Error("recurrence partially scheduled",
			fieldAgent(req.AgentID), logx.Int("created", len(created)), logx.Int("failed", len(failures)))
		return created, &BulkError{Failures: failures}
	}
	s.log.Info("recurrence scheduled", fieldAgent(req.AgentID), logx.Int("events", len(created)))
	return created, nil
}

func (s *Service) createOccurrence(ctx context.Context, p Principal, req RecurringRequest, period recurrence.Period, ordinal, width int) (string, error) {
	eventID := s.newID()

	pkg := req.Template.Clone()
	pkg.ID = eventID
	pkg.Title = fmt.Sprintf("%s %0*d", req.Template.Title, width, ordinal)
	pkg = setEpisodeTerm(pkg, "title", pkg.Title)

	err := s.Create(ctx, p, CreateRequest{
		Start:              period.Start,
		End:                period.End,
		AgentID:            req.AgentID,
		Presenters:         req.Presenters,
		Package:            pkg,
		WorkflowProperties: req.WorkflowProperties,
		AgentMetadata:      req.AgentMetadata,
		Source:             req.Source,
	})
	return eventID, err
}
