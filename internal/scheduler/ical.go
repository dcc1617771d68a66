package scheduler

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/Lyx52/opencast/internal/archive"
	"github.com/Lyx52/opencast/internal/storage"
)

// agentPropertiesFilename is the attachment name capture agents look for in
// their calendar feed.
const agentPropertiesFilename = "org.opencastproject.capture.agent.properties"

// CalendarQuery narrows the calendar feed. Zero values mean "no filter".
type CalendarQuery struct {
	AgentID  string
	SeriesID string
	// Cutoff drops occurrences starting after this instant.
	Cutoff time.Time
}

// Calendar renders the matching occurrences as an iCalendar feed for
// capture agents. Events with a missing snapshot or without derived agent
// properties are logged and left out rather than failing the whole feed.
func (s *Service) Calendar(ctx context.Context, p Principal, q CalendarQuery) (string, error) {
	filter := storage.Filter{AgentID: q.AgentID}
	if !q.Cutoff.IsZero() {
		filter.StartsTo = q.Cutoff
	}
	rows, err := s.store.Search(ctx, p.Org, filter)
	if err != nil {
		return "", storageErr("search events", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//Opencast//Scheduler//EN")

	for _, row := range rows {
		snap, err := s.arch.Latest(ctx, p.Org, row.EventID)
		if err != nil {
			if errors.Is(err, archive.ErrNoSnapshot) {
				s.log.Warn("skipping calendar event without snapshot", fieldEvent(row.EventID))
			} else {
				s.log.Error("failed to read snapshot for calendar", fieldEvent(row.EventID), fieldErr(err))
			}
			continue
		}
		if q.SeriesID != "" && snap.Package.Series != q.SeriesID {
			continue
		}
		if len(row.CaptureAgentProperties) == 0 {
			s.log.Warn("skipping calendar event without agent properties", fieldEvent(row.EventID))
			continue
		}
		addCalendarEvent(cal, row, snap)
	}
	return cal.Serialize(), nil
}

func addCalendarEvent(cal *ics.Calendar, row storage.Occurrence, snap archive.Snapshot) {
	ev := cal.AddEvent(row.EventID)
	ev.SetDtStampTime(row.LastModified)
	ev.SetModifiedAt(row.LastModified)
	ev.SetCreatedTime(snap.ArchivalDate)
	ev.SetStartAt(row.Start)
	ev.SetEndAt(row.End)
	ev.SetLocation(row.AgentID)
	if snap.Package.Title != "" {
		ev.SetSummary(snap.Package.Title)
	}
	if snap.Package.Series != "" {
		ev.SetProperty(ics.ComponentProperty("RELATED-TO"), snap.Package.Series)
	}
	for _, presenter := range row.Presenters {
		ev.AddAttendee(presenter)
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(propertiesToString(row.CaptureAgentProperties)))
	ev.SetProperty(ics.ComponentProperty("ATTACH"), encoded,
		&ics.KeyValues{Key: "FMTTYPE", Value: []string{"application/text"}},
		&ics.KeyValues{Key: "ENCODING", Value: []string{"BASE64"}},
		&ics.KeyValues{Key: "VALUE", Value: []string{"BINARY"}},
		&ics.KeyValues{Key: "X-APPLE-FILENAME", Value: []string{agentPropertiesFilename}},
	)
}
