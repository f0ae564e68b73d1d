package audit

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"

	id "vellum/pkg/domain"
)

// EventType classifies audit events by the domain they describe.
type EventType string

const (
	TypeIdentity EventType = "identity"
	TypeContent  EventType = "content"
	TypeWorkflow EventType = "workflow"
	TypeSystem   EventType = "system"
	TypeSecurity EventType = "security"
	TypeRecord   EventType = "record"
	TypeHR       EventType = "hr"
)

func (t EventType) Valid() bool {
	switch t {
	case TypeIdentity, TypeContent, TypeWorkflow, TypeSystem, TypeSecurity, TypeRecord, TypeHR:
		return true
	}
	return false
}

// Actor identifies who performed the action. OrgID participates in the
// organization derivation chain: actor org, then target org, then the ambient
// request organization.
type Actor struct {
	ID    id.UserID `json:"id"`
	Type  string    `json:"type"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
	OrgID id.OrgID  `json:"org_id,omitempty"`
}

// Target identifies what the action was performed on. ID is a string so any
// entity (document, template, task, instance) can be referenced.
type Target struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	OrgID id.OrgID `json:"org_id,omitempty"`
}

// RequestContext is captured once at event creation and never mutated.
type RequestContext struct {
	RequestID string `json:"request_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Device is a short human-readable summary derived from the user agent
	// ("Chrome 120 on Linux"), so audit viewers don't parse UA strings.
	Device string `json:"device,omitempty"`
}

// Event is one immutable audit fact. Events are hash-chained: Hash covers the
// event body plus the previous event's hash, so any in-place edit or deletion
// breaks every later link.
type Event struct {
	ID             id.EventID     `json:"id"`
	Type           EventType      `json:"type"`
	Action         string         `json:"action"`
	Actor          Actor          `json:"actor"`
	Target         Target         `json:"target"`
	OrgID          id.OrgID       `json:"org_id"`
	ChangeData     map[string]any `json:"change_data,omitempty"`
	PreviousValues map[string]any `json:"previous_values,omitempty"`
	NewValues      map[string]any `json:"new_values,omitempty"`
	RequestContext RequestContext `json:"request_context"`
	Tags           []string       `json:"tags,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// PrevHash and Hash are set by the store on append. Hex-encoded blake2b.
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// BodyDigest returns the blake2b digest of the event body, excluding the chain
// fields. The store links it to the previous event's hash.
func (e *Event) BodyDigest() [blake2b.Size256]byte {
	body := *e
	body.PrevHash = ""
	body.Hash = ""
	// Canonical form: sorted tags so the digest is order-stable.
	sorted := append([]string(nil), body.Tags...)
	sort.Strings(sorted)
	body.Tags = sorted
	raw, err := json.Marshal(body)
	if err != nil {
		// Event bodies are plain data; marshal cannot fail for the types we
		// accept. Digest the error text rather than panic mid-audit.
		raw = []byte(err.Error())
	}
	return blake2b.Sum256(raw)
}

// ChainHash links an event body digest to the previous event's hash. Stores
// and the verifier agree on this link format.
func ChainHash(prevHash string, bodyDigest []byte) string {
	sum := blake2b.Sum256(append([]byte(prevHash+":"), bodyDigest...))
	return hex.EncodeToString(sum[:])
}

// DeviceSummary condenses a raw User-Agent header into a short display string.
// Empty input yields an empty summary.
func DeviceSummary(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return ua.OS()
	}
	if ua.OS() == "" {
		return name + " " + version
	}
	return name + " " + version + " on " + ua.OS()
}
