package document

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "vellum/pkg/domain"
	dErrors "vellum/pkg/domain-errors"
	"vellum/pkg/platform/sentinel"
	"vellum/pkg/requestcontext"

	"vellum/internal/audit"
	"vellum/internal/identity"
	"vellum/internal/pdf"
	"vellum/internal/platform/metrics"
	"vellum/internal/signature"
	"vellum/internal/storage"
)

// Service runs the signing workflow on generated documents. Signing is
// serialized per document by the Locker and guarded by the store's optimistic
// version, so two concurrent signers cannot both stamp the same base PDF.
type Service struct {
	store     Store
	blobs     storage.BlobStore
	assets    identity.SignatureAssets
	directory identity.Directory
	geometry  pdf.GeometryReader
	stamper   pdf.Stamper
	locker    Locker
	audit     *audit.Service
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewService(
	store Store,
	blobs storage.BlobStore,
	assets identity.SignatureAssets,
	directory identity.Directory,
	geometry pdf.GeometryReader,
	stamper pdf.Stamper,
	locker Locker,
	auditSvc *audit.Service,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		assets:    assets,
		directory: directory,
		geometry:  geometry,
		stamper:   stamper,
		locker:    locker,
		audit:     auditSvc,
		metrics:   m,
		log:       log,
	}
}

// Get fetches a document scoped to the organization.
func (s *Service) Get(ctx context.Context, orgID id.OrgID, documentID id.DocumentID) (*GeneratedDocument, error) {
	doc, err := s.store.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

// List returns the organization's documents.
func (s *Service) List(ctx context.Context, orgID id.OrgID) ([]*GeneratedDocument, error) {
	return s.store.ListByOrg(ctx, orgID)
}

// PendingForUser returns the documents where the user has a pending slot.
func (s *Service) PendingForUser(ctx context.Context, orgID id.OrgID, userID id.UserID) ([]*GeneratedDocument, error) {
	return s.store.ListPendingForUser(ctx, orgID, userID)
}

// Content fetches the current document binary.
func (s *Service) Content(ctx context.Context, orgID id.OrgID, documentID id.DocumentID) ([]byte, *GeneratedDocument, error) {
	doc, err := s.Get(ctx, orgID, documentID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Get(ctx, doc.FileRef)
	if err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "load document content", err)
	}
	return data, doc, nil
}

// Sign records the user's signature on their pending slot: burns the mark into
// the PDF at the slot's (or custom) position, marks the entry signed, and
// finalizes the document when every required slot has signed.
func (s *Service) Sign(ctx context.Context, orgID id.OrgID, documentID id.DocumentID, userID id.UserID, customPosition *signature.Position, actor audit.Actor) (*GeneratedDocument, error) {
	started := time.Now()
	release, err := s.locker.Acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.Get(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}

	entry, err := doc.PendingEntryFor(userID)
	if err != nil {
		return nil, err
	}
	if err := doc.CanSignAtPosition(entry.Position); err != nil {
		s.metrics.SignaturesBlocked.Inc()
		return nil, err
	}

	asset, err := s.assets.ActiveFor(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeValidation, "user has no active signature asset")
	}
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "load signature asset", err)
	}
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "resolve signer", err)
	}

	now := requestcontext.Now(ctx).UTC()
	if customPosition != nil {
		entry.CustomPosition = customPosition
	}
	stampedRef, err := s.burnSignature(ctx, doc, entry, asset, user.FullName, now)
	if err != nil {
		return nil, err
	}

	if err := doc.ApplySignature(entry.SignatoryID, user.FullName, asset.Ref, customPosition, now); err != nil {
		return nil, err
	}
	doc.FileRef = stampedRef
	doc.UpdatedAt = now
	completed := doc.CheckCompletion(now)

	if err := s.store.Update(ctx, doc); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update document", err)
	}

	s.metrics.SignaturesRecorded.Inc()
	s.metrics.SignDuration.Observe(time.Since(started).Seconds())
	s.audit.LogAsync(ctx, audit.Entry{
		Type:   audit.TypeContent,
		Action: "document.signed",
		Actor:  actor,
		Target: audit.Target{ID: doc.ID.String(), Type: "document", OrgID: doc.OrgID},
		NewValues: map[string]any{
			"signatory_id": entry.SignatoryID,
			"position":     entry.Position,
			"signed_by":    user.FullName,
		},
	})
	if completed {
		s.metrics.DocumentsCompleted.Inc()
		s.audit.LogAsync(ctx, audit.Entry{
			Type:      audit.TypeContent,
			Action:    "document.completed",
			Actor:     actor,
			Target:    audit.Target{ID: doc.ID.String(), Type: "document", OrgID: doc.OrgID},
			NewValues: map[string]any{"status": doc.Status, "signed": doc.SignedCount()},
		})
	}
	s.log.Info("document signed",
		"document_id", doc.ID, "user_id", userID, "position", entry.Position,
		"completed", completed)
	return doc, nil
}

// burnSignature composes the signature overlay onto the current PDF and stores
// the stamped result as a new blob. The previous revision stays in storage
// under the old ref.
func (s *Service) burnSignature(ctx context.Context, doc *GeneratedDocument, entry *SignatureEntry, asset *identity.SignatureAsset, signerName string, at time.Time) (string, error) {
	base, err := s.blobs.Get(ctx, doc.FileRef)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "load document content", err)
	}
	image, err := s.blobs.Get(ctx, asset.Ref)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "load signature image", err)
	}
	geom, err := s.geometry.Geometry(base)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeGeneration, "read document geometry", err)
	}

	overlay, err := signature.BuildOverlay(geom, entry.EffectivePosition(), signature.Layout{
		DatePosition:   entry.DatePosition,
		ShowLabel:      entry.ShowLabel,
		ShowSignerName: entry.ShowSignerName,
		Label:          entry.Label,
		SignerName:     signerName,
	}, image, at)
	if err != nil {
		return "", err
	}

	stamped, err := s.stamper.Apply(base, []pdf.Overlay{overlay})
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeGeneration, "stamp signature", err)
	}
	ref, err := s.blobs.Store(ctx, stamped, doc.Name+".pdf", "application/pdf")
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "store stamped document", err)
	}
	return ref, nil
}

// Cancel withdraws a document before completion. A second cancel is rejected
// with a state error, it is not a silent no-op.
func (s *Service) Cancel(ctx context.Context, orgID id.OrgID, documentID id.DocumentID, reason string, actor audit.Actor) (*GeneratedDocument, error) {
	doc, err := s.Get(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}
	previous := doc.Status
	now := requestcontext.Now(ctx).UTC()
	if err := doc.ApplyCancel(reason, now); err != nil {
		return nil, err
	}
	doc.UpdatedAt = now
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update document", err)
	}

	s.metrics.DocumentsCancelled.Inc()
	if _, err := s.audit.LogModelChange(ctx, audit.Entry{
		Type:       audit.TypeContent,
		Action:     "document.cancelled",
		Actor:      actor,
		Target:     audit.Target{ID: doc.ID.String(), Type: "document", OrgID: doc.OrgID},
		ChangeData: map[string]any{"reason": reason},
	}, map[string][2]any{"status": {previous, doc.Status}}); err != nil {
		s.log.Error("audit write failed", "action", "document.cancelled", "error", err)
	}
	return doc, nil
}

// AssignSigner fills a slot whose signer could not be resolved at generation
// time. Only pending, unassigned slots may be assigned.
func (s *Service) AssignSigner(ctx context.Context, orgID id.OrgID, documentID id.DocumentID, signatoryID id.SignatoryID, userID id.UserID, actor audit.Actor) (*GeneratedDocument, error) {
	doc, err := s.Get(ctx, orgID, documentID)
	if err != nil {
		return nil, err
	}
	entry, err := doc.Entry(signatoryID)
	if err != nil {
		return nil, err
	}
	if entry.State != SignaturePending {
		return nil, dErrors.New(dErrors.CodeInvalidState, "slot is already signed")
	}
	user, err := s.directory.FindByID(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeNotFound, "resolve assignee", err)
	}
	if user.OrgID != orgID {
		return nil, dErrors.New(dErrors.CodeForbidden, "assignee belongs to another organization")
	}

	entry.UserID = userID
	doc.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update document", err)
	}
	s.audit.LogAsync(ctx, audit.Entry{
		Type:      audit.TypeContent,
		Action:    "document.signer_assigned",
		Actor:     actor,
		Target:    audit.Target{ID: doc.ID.String(), Type: "document", OrgID: doc.OrgID},
		NewValues: map[string]any{"signatory_id": signatoryID, "user_id": userID},
	})
	return doc, nil
}
