package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// emptyCalendarToken is served for agents without any occurrence.
const emptyCalendarToken = "mod0"

type lastModEntry struct {
	token   string
	expires time.Time
}

// lastModCache maps org/agent to an opaque calendar version token with a
// TTL. Capture agents poll their calendar frequently; the cache trades a
// bounded staleness window for cheap polling.
type lastModCache struct {
	mu      sync.Mutex
	entries map[string]lastModEntry
}

func newLastModCache() *lastModCache {
	return &lastModCache{entries: map[string]lastModEntry{}}
}

func cacheKey(org, agentID string) string { return org + "\x00" + agentID }

func lastModToken(at time.Time) string {
	return "mod" + strconv.FormatInt(at.UnixMilli(), 10)
}

func (c *lastModCache) get(org, agentID string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(org, agentID)]
	if !ok || now.After(e.expires) {
		return "", false
	}
	return e.token, true
}

func (c *lastModCache) put(org, agentID, token string, now time.Time, ttl time.Duration) {
	c.mu.Lock()
	c.entries[cacheKey(org, agentID)] = lastModEntry{token: token, expires: now.Add(ttl)}
	c.mu.Unlock()
}

// touchLastEntry marks the agent's feed as modified in the store and
// refreshes the cache. Failures are logged, never escalated: a stale
// calendar token only delays a poll, it cannot corrupt scheduling state.
func (s *Service) touchLastEntry(ctx context.Context, org, agentID string) {
	if agentID == "" {
		return
	}
	now := time.Now().UTC()
	if err := s.store.TouchAgent(ctx, org, agentID, now); err != nil {
		s.log.Error("failed to touch last modified entry", fieldOrg(org), fieldAgent(agentID), fieldErr(err))
		return
	}
	s.populateLastModCache(ctx, org)
}

// populateLastModCache rebuilds the per-agent tokens for one organization
// from the store.
func (s *Service) populateLastModCache(ctx context.Context, org string) {
	dates, err := s.store.LastModifiedByAgent(ctx, org)
	if err != nil {
		s.log.Error("failed to populate last modified cache", fieldOrg(org), fieldErr(err))
		return
	}
	now := time.Now().UTC()
	ttl := s.config().CacheTTL
	for agent, at := range dates {
		if at.IsZero() {
			at = now
		}
		s.lastMod.put(org, agent, lastModToken(at), now, ttl)
	}
}

// ScheduleLastModified returns the opaque calendar version token for an
// agent. Cache misses fall back to a populate pass; agents without any
// occurrence get the empty-calendar sentinel.
func (s *Service) ScheduleLastModified(ctx context.Context, p Principal, agentID string) (string, error) {
	if agentID == "" {
		return "", validationErr("agentId", "must not be empty")
	}
	now := time.Now().UTC()
	if token, ok := s.lastMod.get(p.Org, agentID, now); ok {
		return token, nil
	}

	s.populateLastModCache(ctx, p.Org)

	if token, ok := s.lastMod.get(p.Org, agentID, now); ok {
		return token, nil
	}
	// Still unknown: cache the empty sentinel too, polling is frequent.
	s.lastMod.put(p.Org, agentID, emptyCalendarToken, now, s.config().CacheTTL)
	return emptyCalendarToken, nil
}
