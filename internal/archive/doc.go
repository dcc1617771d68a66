// Package archive is the snapshot archive: an append-only, versioned store
// of media-package payloads. Every mutation of an occurrence's payload takes
// a new snapshot; only the latest version per event is live, but older
// versions stay readable until the event is removed.
package archive
