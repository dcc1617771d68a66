package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/Lyx52/opencast/internal/archive"
)

// checksumInput is the canonical serialization fed to the content hash.
// Collections are normalized before marshalling (presenters and ACL sorted,
// map keys ordered by encoding/json) so incidental iteration order never
// flips the digest.
type checksumInput struct {
	Start      string             `json:"start"`
	End        string             `json:"end"`
	Agent      string             `json:"agent"`
	Presenters []string           `json:"presenters,omitempty"`
	Title      string             `json:"title,omitempty"`
	Series     string             `json:"series,omitempty"`
	Episode    archive.Catalog    `json:"episode,omitempty"`
	ACL        []archive.ACLEntry `json:"acl,omitempty"`
	Elements   []elementMarker    `json:"elements,omitempty"`
	WfProps    map[string]string  `json:"wf_props,omitempty"`
	CaProps    map[string]string  `json:"ca_props,omitempty"`
}

type elementMarker struct {
	ID     string `json:"id"`
	Flavor string `json:"flavor,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// computeChecksum hashes all mutable fields of an occurrence. Equal inputs
// always yield equal digests; the propagator uses this to short-circuit
// no-op updates before any snapshot or notification happens.
func computeChecksum(start, end time.Time, agent string, presenters []string,
	pkg archive.MediaPackage, wfProps, caProps map[string]string) string {

	in := checksumInput{
		Start:   start.UTC().Format(time.RFC3339Nano),
		End:     end.UTC().Format(time.RFC3339Nano),
		Agent:   agent,
		Title:   pkg.Title,
		Series:  pkg.Series,
		Episode: pkg.Episode,
		WfProps: wfProps,
		CaProps: caProps,
	}

	if len(presenters) > 0 {
		in.Presenters = append([]string(nil), presenters...)
		sort.Strings(in.Presenters)
	}

	if len(pkg.ACL) > 0 {
		in.ACL = append([]archive.ACLEntry(nil), pkg.ACL...)
		sort.Slice(in.ACL, func(i, j int) bool {
			a, b := in.ACL[i], in.ACL[j]
			if a.Role != b.Role {
				return a.Role < b.Role
			}
			if a.Action != b.Action {
				return a.Action < b.Action
			}
			return !a.Allow && b.Allow
		})
	}

	for _, el := range pkg.Elements {
		sum := sha256.Sum256(el.Data)
		in.Elements = append(in.Elements, elementMarker{
			ID: el.ID, Flavor: el.Flavor, Digest: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(in.Elements, func(i, j int) bool { return in.Elements[i].ID < in.Elements[j].ID })

	// encoding/json writes map keys in sorted order, which keeps this
	// serialization canonical.
	b, err := json.Marshal(in)
	if err != nil {
		// Only unmarshallable types can fail here and checksumInput has none.
		panic("checksum marshal: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
