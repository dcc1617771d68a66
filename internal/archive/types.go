package archive

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrNoSnapshot is returned when an event has no archived version.
	ErrNoSnapshot = errors.New("no snapshot found")
	// ErrNoAsset is returned when a snapshot has no element with the given id.
	ErrNoAsset = errors.New("no asset found")
)

// Catalog is a flat metadata catalog (dublincore-style term -> value).
type Catalog map[string]string

// Equal compares catalogs by content, independent of iteration order.
func (c Catalog) Equal(other Catalog) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// ACLEntry is one access-policy rule of a media package.
type ACLEntry struct {
	Role   string `json:"role"`
	Action string `json:"action"`
	Allow  bool   `json:"allow"`
}

// ACLEqual compares access policies by content, independent of rule order.
func ACLEqual(a, b []ACLEntry) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]ACLEntry(nil), a...)
	bs := append([]ACLEntry(nil), b...)
	less := func(s []ACLEntry) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].Role != s[j].Role {
				return s[i].Role < s[j].Role
			}
			if s[i].Action != s[j].Action {
				return s[i].Action < s[j].Action
			}
			return !s[i].Allow && s[j].Allow
		}
	}
	sort.Slice(as, less(as))
	sort.Slice(bs, less(bs))
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// Element is a named payload item of a media package (a serialized catalog,
// an attachment, ...). Data is stored verbatim.
type Element struct {
	ID       string `json:"id"`
	Flavor   string `json:"flavor,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// MediaPackage is the immutable payload snapshotted per occurrence version.
type MediaPackage struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Series   string    `json:"series,omitempty"`
	Episode  Catalog   `json:"episode,omitempty"`
	ACL      []ACLEntry `json:"acl,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

// Clone returns a deep copy; callers may mutate the result freely.
func (p MediaPackage) Clone() MediaPackage {
	cp := p
	if p.Episode != nil {
		cp.Episode = make(Catalog, len(p.Episode))
		for k, v := range p.Episode {
			cp.Episode[k] = v
		}
	}
	cp.ACL = append([]ACLEntry(nil), p.ACL...)
	if p.Elements != nil {
		cp.Elements = make([]Element, len(p.Elements))
		for i, el := range p.Elements {
			el.Data = append([]byte(nil), el.Data...)
			cp.Elements[i] = el
		}
	}
	return cp
}

// Equal compares payload content (episode catalog, ACL, elements).
func (p MediaPackage) Equal(other MediaPackage) bool {
	if p.Title != other.Title || p.Series != other.Series {
		return false
	}
	if !p.Episode.Equal(other.Episode) {
		return false
	}
	if !ACLEqual(p.ACL, other.ACL) {
		return false
	}
	if len(p.Elements) != len(other.Elements) {
		return false
	}
	for i := range p.Elements {
		a, b := p.Elements[i], other.Elements[i]
		if a.ID != b.ID || a.Flavor != b.Flavor || a.MimeType != b.MimeType {
			return false
		}
		if string(a.Data) != string(b.Data) {
			return false
		}
	}
	return true
}

// Snapshot is one archived version of an event's media package.
type Snapshot struct {
	EventID      string       `json:"event_id"`
	Org          string       `json:"org"`
	Owner        string       `json:"owner"`
	Version      int          `json:"version"`
	ArchivalDate time.Time    `json:"archival_date"`
	Package      MediaPackage `json:"package"`
}
