package template

import (
	"sort"
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/signature"
)

// Status is the template lifecycle. Transitions are one-way except the
// explicit archived -> active reactivation.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:    {StatusActive},
	StatusActive:   {StatusArchived},
	StatusArchived: {StatusActive},
}

// CanTransitionTo checks the lifecycle transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Signatory is one signing slot on a template. Exactly one of Role or
// TypeCode identifies the signer type; Position defines the sequential
// signing order (zero-based).
type Signatory struct {
	ID             id.SignatoryID         `json:"id"`
	Role           string                 `json:"role,omitempty"`
	TypeCode       string                 `json:"type_code,omitempty"`
	Label          string                 `json:"label"`
	Position       int                    `json:"position"`
	Required       bool                   `json:"required"`
	Box            signature.Position     `json:"box"`
	DatePosition   signature.DatePosition `json:"date_position"`
	ShowLabel      bool                   `json:"show_label"`
	ShowSignerName bool                   `json:"show_signer_name"`

	// Overrides replace the role lookup for this slot: a pinned user, or an
	// email resolved within the organization.
	UserOverride  id.UserID `json:"user_override,omitempty"`
	EmailOverride string    `json:"email_override,omitempty"`
}

// Validate enforces the signatory invariants.
func (s *Signatory) Validate() error {
	if (s.Role == "") == (s.TypeCode == "") {
		return dErrors.New(dErrors.CodeValidation, "signatory requires exactly one of role or type code")
	}
	if s.Position < 0 {
		return dErrors.New(dErrors.CodeValidation, "signatory position must not be negative")
	}
	if !s.DatePosition.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown date position %q", s.DatePosition)
	}
	return nil
}

// Template is a reusable document blueprint.
type Template struct {
	ID           id.TemplateID `json:"id"`
	OrgID        id.OrgID      `json:"org_id"`
	Name         string        `json:"name"`
	ModuleType   string        `json:"module_type"`
	MainCategory string        `json:"main_category"`
	Category     string        `json:"category"`
	Status       Status        `json:"status"`

	FileRef          string            `json:"file_ref"`
	Variables        []string          `json:"variables"`
	VariableMappings map[string]string `json:"variable_mappings"`

	SequentialSigning bool `json:"sequential_signing"`

	// Cached geometry of the template binary.
	PDFWidth  float64 `json:"pdf_width"`
	PDFHeight float64 `json:"pdf_height"`
	PageCount int     `json:"page_count"`

	Signatories []Signatory `json:"signatories"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignatoriesInOrder returns the signatories sorted by position. This order is
// the sequential signing order when SequentialSigning is set.
func (t *Template) SignatoriesInOrder() []Signatory {
	out := append([]Signatory(nil), t.Signatories...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// CanActivate checks the draft/archived -> active transition.
func (t *Template) CanActivate() error {
	if !t.Status.CanTransitionTo(StatusActive) {
		return dErrors.Newf(dErrors.CodeInvalidState, "template is %s and cannot be activated", t.Status)
	}
	return nil
}

// CanArchive checks the active -> archived transition.
func (t *Template) CanArchive() error {
	if !t.Status.CanTransitionTo(StatusArchived) {
		return dErrors.Newf(dErrors.CodeInvalidState, "template is %s and cannot be archived", t.Status)
	}
	return nil
}
