package document

import (
	"strings"
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/signature"
)

// Status is the generated document lifecycle. Signing progress lives on the
// entries; the document itself only moves to completed when every required
// slot has signed.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingSignatures Status = "pending_signatures"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:             {StatusPendingSignatures, StatusCancelled},
	StatusPendingSignatures: {StatusCompleted, StatusCancelled},
	StatusCompleted:         {},
	StatusCancelled:         {},
}

// CanTransitionTo checks the lifecycle transition table. Completed and
// cancelled are terminal; cancellation is only reachable before completion.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SignatureState is the per-slot signing state. pending -> signed, terminal.
type SignatureState string

const (
	SignaturePending SignatureState = "pending"
	SignatureSigned  SignatureState = "signed"
)

// SignatureEntry is one signing slot instantiated from the template signatory,
// with the signer resolved to a concrete user at generation time.
type SignatureEntry struct {
	SignatoryID id.SignatoryID `json:"signatory_id"`
	UserID      id.UserID      `json:"user_id"`
	Label       string         `json:"label"`
	Position    int            `json:"position"`
	Required    bool           `json:"required"`
	State       SignatureState `json:"state"`

	Box            signature.Position     `json:"box"`
	DatePosition   signature.DatePosition `json:"date_position"`
	ShowLabel      bool                   `json:"show_label"`
	ShowSignerName bool                   `json:"show_signer_name"`

	// CustomPosition overrides Box when the signer repositioned the mark at
	// signing time.
	CustomPosition *signature.Position `json:"custom_position,omitempty"`

	SignedAt     *time.Time `json:"signed_at,omitempty"`
	SignedByName string     `json:"signed_by_name,omitempty"`
	SignatureRef string     `json:"signature_ref,omitempty"`
}

// EffectivePosition returns the box the mark is burned at.
func (e *SignatureEntry) EffectivePosition() signature.Position {
	if e.CustomPosition != nil {
		return *e.CustomPosition
	}
	return e.Box
}

// GeneratedDocument is a rendered instance of a template with its resolved
// variable snapshot and signing slots. Version guards concurrent signing:
// stores reject updates whose version does not match the stored row.
type GeneratedDocument struct {
	ID         id.DocumentID `json:"id"`
	OrgID      id.OrgID      `json:"org_id"`
	TemplateID id.TemplateID `json:"template_id"`
	Name       string        `json:"name"`
	Status     Status        `json:"status"`

	FileRef        string            `json:"file_ref"`
	ResolvedValues map[string]string `json:"resolved_values"`

	Sequential bool             `json:"sequential"`
	Signatures []SignatureEntry `json:"signatures"`

	EmployeeID id.UserID `json:"employee_id,omitempty"`
	CreatedBy  id.UserID `json:"created_by"`

	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// Entry returns the signing slot for a signatory.
func (d *GeneratedDocument) Entry(signatoryID id.SignatoryID) (*SignatureEntry, error) {
	for i := range d.Signatures {
		if d.Signatures[i].SignatoryID == signatoryID {
			return &d.Signatures[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "signatory is not part of this document")
}

// PendingEntryFor returns the pending slot assigned to the user. Signing is
// addressed by signer, not by slot: each user signs their own slot.
func (d *GeneratedDocument) PendingEntryFor(userID id.UserID) (*SignatureEntry, error) {
	for i := range d.Signatures {
		if d.Signatures[i].UserID == userID && d.Signatures[i].State == SignaturePending {
			return &d.Signatures[i], nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "no pending signature slot for user")
}

// BlockingEntries lists the slots that must sign before the given position
// may. Under sequential signing a slot waits on every required pending slot
// with a lower position; optional predecessors never block. Parallel signing
// blocks nothing.
func (d *GeneratedDocument) BlockingEntries(position int) []SignatureEntry {
	if !d.Sequential {
		return nil
	}
	var blocking []SignatureEntry
	for _, entry := range d.Signatures {
		if entry.Position < position && entry.Required && entry.State == SignaturePending {
			blocking = append(blocking, entry)
		}
	}
	return blocking
}

// CanSignAtPosition reports whether a slot at the position may sign now.
func (d *GeneratedDocument) CanSignAtPosition(position int) error {
	if d.Status != StatusPendingSignatures {
		return dErrors.Newf(dErrors.CodeInvalidState, "document is %s and cannot be signed", d.Status)
	}
	if blocking := d.BlockingEntries(position); len(blocking) > 0 {
		names := make([]string, 0, len(blocking))
		for _, b := range blocking {
			names = append(names, b.Label)
		}
		return dErrors.Newf(dErrors.CodeInvalidState,
			"signature blocked: waiting on %s", strings.Join(names, ", "))
	}
	return nil
}

// ApplySignature marks the slot signed. Completion is a separate step: the
// caller runs CheckCompletion after the mark is burned into the PDF.
func (d *GeneratedDocument) ApplySignature(signatoryID id.SignatoryID, signedByName, signatureRef string, customPosition *signature.Position, at time.Time) error {
	entry, err := d.Entry(signatoryID)
	if err != nil {
		return err
	}
	if entry.State == SignatureSigned {
		return dErrors.New(dErrors.CodeConflict, "signature slot is already signed")
	}
	if err := d.CanSignAtPosition(entry.Position); err != nil {
		return err
	}
	entry.State = SignatureSigned
	entry.SignedAt = &at
	entry.SignedByName = signedByName
	entry.SignatureRef = signatureRef
	if customPosition != nil {
		entry.CustomPosition = customPosition
	}
	return nil
}

// CheckCompletion finalizes the document when every required slot has signed.
// This is the only path to completed. Returns true when the transition fired.
func (d *GeneratedDocument) CheckCompletion(at time.Time) bool {
	if d.Status != StatusPendingSignatures || !d.AllRequiredSigned() {
		return false
	}
	d.Status = StatusCompleted
	d.CompletedAt = &at
	return true
}

// AllRequiredSigned reports completion readiness: every required slot signed.
// Optional slots never hold a document open.
func (d *GeneratedDocument) AllRequiredSigned() bool {
	for _, entry := range d.Signatures {
		if entry.Required && entry.State != SignatureSigned {
			return false
		}
	}
	return true
}

// CanCancel reports whether the document may still be cancelled. Once it
// completes (or was already cancelled) it is evidence and cannot be withdrawn.
func (d *GeneratedDocument) CanCancel() error {
	if !d.Status.CanTransitionTo(StatusCancelled) {
		return dErrors.Newf(dErrors.CodeInvalidState, "document is %s and cannot be cancelled", d.Status)
	}
	return nil
}

// ApplyCancel records the cancellation. Already-signed entries are left as
// they are; the document keeps the evidence of who signed before withdrawal.
func (d *GeneratedDocument) ApplyCancel(reason string, at time.Time) error {
	if err := d.CanCancel(); err != nil {
		return err
	}
	d.Status = StatusCancelled
	d.CancelledAt = &at
	d.CancelReason = reason
	return nil
}

// SignedCount returns how many slots have signed.
func (d *GeneratedDocument) SignedCount() int {
	n := 0
	for _, entry := range d.Signatures {
		if entry.State == SignatureSigned {
			n++
		}
	}
	return n
}
