package notify

import (
	"time"

	"github.com/Lyx52/opencast/internal/archive"
)

// Kind identifies which field of a scheduled event changed.
type Kind string

const (
	KindStart          Kind = "start"
	KindEnd            Kind = "end"
	KindAgent          Kind = "agent"
	KindPresenters     Kind = "presenters"
	KindCatalog        Kind = "catalog"
	KindACL            Kind = "acl"
	KindProperties     Kind = "properties"
	KindRecordingState Kind = "recording_state"
	KindDelete         Kind = "delete"
)

// Item is one field-level change. Only the field matching Kind is set.
type Item struct {
	Kind Kind

	At         time.Time          // start, end
	Agent      string             // agent
	Presenters []string           // presenters
	Catalog    archive.Catalog    // catalog
	ACL        []archive.ACLEntry // acl
	Properties map[string]string  // properties

	State     string    // recording_state
	LastHeard time.Time // recording_state
}

// Message is an ordered batch of changes for one event.
type Message struct {
	EventID string
	Org     string
	Items   []Item
}

// Builders keep call sites compact; only what changed is sent.

func UpdateStart(at time.Time) Item      { return Item{Kind: KindStart, At: at} }
func UpdateEnd(at time.Time) Item        { return Item{Kind: KindEnd, At: at} }
func UpdateAgent(agent string) Item      { return Item{Kind: KindAgent, Agent: agent} }
func UpdatePresenters(ids []string) Item { return Item{Kind: KindPresenters, Presenters: ids} }
func UpdateCatalog(c archive.Catalog) Item {
	return Item{Kind: KindCatalog, Catalog: c}
}
func UpdateACL(acl []archive.ACLEntry) Item { return Item{Kind: KindACL, ACL: acl} }
func UpdateProperties(p map[string]string) Item {
	return Item{Kind: KindProperties, Properties: p}
}
func UpdateRecordingState(state string, lastHeard time.Time) Item {
	return Item{Kind: KindRecordingState, State: state, LastHeard: lastHeard}
}
func Delete() Item { return Item{Kind: KindDelete} }
