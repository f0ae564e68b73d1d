package document

import (
	"context"

	id "vellum/pkg/domain"
)

// Store persists generated documents. Update is optimistic: implementations
// match the document's Version against the stored row, increment it on
// success, and return sentinel.ErrVersionConflict on a mismatch.
type Store interface {
	Create(ctx context.Context, doc *GeneratedDocument) error
	Get(ctx context.Context, documentID id.DocumentID) (*GeneratedDocument, error)
	Update(ctx context.Context, doc *GeneratedDocument) error
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*GeneratedDocument, error)
	ListPendingForUser(ctx context.Context, orgID id.OrgID, userID id.UserID) ([]*GeneratedDocument, error)
}
