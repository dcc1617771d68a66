package scheduler

import (
	"sort"
	"strings"
)

// finalAgentProperties derives the capture-agent property map delivered to
// agents: the explicit agent metadata (minus stale re-namespaced workflow
// keys), the workflow properties under WorkflowConfigPrefix, and the
// derived event.title / event.series / event.location keys.
func finalAgentProperties(agentMetadata, wfProperties map[string]string, agentID, series, title string) map[string]string {
	props := make(map[string]string, len(agentMetadata)+len(wfProperties)+3)
	for k, v := range agentMetadata {
		if strings.HasPrefix(k, WorkflowConfigPrefix) {
			continue
		}
		props[k] = v
	}
	for k, v := range wfProperties {
		props[WorkflowConfigPrefix+k] = v
	}
	if title != "" {
		props[propEventTitle] = title
	}
	if series != "" {
		props[propEventSeries] = series
	}
	props[propEventLocation] = agentID
	return props
}

// workflowConfig extracts the workflow properties back out of a derived
// capture-agent property map.
func workflowConfig(agentProperties map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range agentProperties {
		if strings.HasPrefix(k, WorkflowConfigPrefix) {
			out[strings.TrimPrefix(k, WorkflowConfigPrefix)] = v
		}
	}
	return out
}

// propertiesToString renders properties as "key=value" lines with a stable
// key order, for embedding in calendar feeds.
func propertiesToString(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(props[k])
		b.WriteString("\n")
	}
	return b.String()
}

// normalizePresenters collapses duplicates and drops empty ids; order of
// the result is sorted so downstream comparisons are stable.
func normalizePresenters(ids []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
