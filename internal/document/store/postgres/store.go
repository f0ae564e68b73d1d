// Package postgres persists generated documents. Signing slots and the
// resolved variable snapshot travel as jsonb: they are read and written as a
// whole with the document, never queried row-by-row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
	txcontext "vellum/pkg/platform/tx"

	"vellum/internal/document"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction carried by the context, if any, so a document
// write can commit atomically with related statements.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectColumns = `
	SELECT id, org_id, template_id, name, status,
	       file_ref, resolved_values, sequential, signatures,
	       employee_id, created_by, version,
	       created_at, updated_at, completed_at, cancelled_at, cancel_reason`

func (s *Store) Create(ctx context.Context, doc *document.GeneratedDocument) error {
	resolved, signatures, err := marshalPayload(doc)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO generated_documents (
			id, org_id, template_id, name, status,
			file_ref, resolved_values, sequential, signatures,
			employee_id, created_by, version,
			created_at, updated_at, completed_at, cancelled_at, cancel_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		        $10, $11, $12, $13, $14, $15, $16, $17)`,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.OrgID),
		uuid.UUID(doc.TemplateID),
		doc.Name,
		string(doc.Status),
		doc.FileRef,
		resolved,
		doc.Sequential,
		signatures,
		nullableUUID(uuid.UUID(doc.EmployeeID)),
		uuid.UUID(doc.CreatedBy),
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
		doc.CompletedAt,
		doc.CancelledAt,
		doc.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, documentID id.DocumentID) (*document.GeneratedDocument, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		selectColumns+` FROM generated_documents WHERE id = $1`, uuid.UUID(documentID))
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return doc, err
}

// Update applies the optimistic version check in the WHERE clause. Zero rows
// updated means either a stale version or a missing document; the follow-up
// existence probe tells them apart.
func (s *Store) Update(ctx context.Context, doc *document.GeneratedDocument) error {
	resolved, signatures, err := marshalPayload(doc)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE generated_documents
		SET name = $1, status = $2, file_ref = $3, resolved_values = $4,
		    signatures = $5, version = version + 1, updated_at = $6,
		    completed_at = $7, cancelled_at = $8, cancel_reason = $9
		WHERE id = $10 AND version = $11`,
		doc.Name,
		string(doc.Status),
		doc.FileRef,
		resolved,
		signatures,
		doc.UpdatedAt,
		doc.CompletedAt,
		doc.CancelledAt,
		doc.CancelReason,
		uuid.UUID(doc.ID),
		doc.Version,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.q(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM generated_documents WHERE id = $1)`,
			uuid.UUID(doc.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("probe document: %w", err)
		}
		if exists {
			return sentinel.ErrVersionConflict
		}
		return sentinel.ErrNotFound
	}
	doc.Version++
	return nil
}

func (s *Store) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*document.GeneratedDocument, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		selectColumns+` FROM generated_documents WHERE org_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *Store) ListPendingForUser(ctx context.Context, orgID id.OrgID, userID id.UserID) ([]*document.GeneratedDocument, error) {
	pendingSlot := fmt.Sprintf(`[{"user_id": %q, "state": %q}]`,
		uuid.UUID(userID), document.SignaturePending)
	rows, err := s.q(ctx).QueryContext(ctx,
		selectColumns+` FROM generated_documents
		 WHERE org_id = $1 AND status = $2 AND signatures @> $3
		 ORDER BY created_at DESC`,
		uuid.UUID(orgID), string(document.StatusPendingSignatures), pendingSlot)
	if err != nil {
		return nil, fmt.Errorf("query pending documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func marshalPayload(doc *document.GeneratedDocument) (resolved, signatures []byte, err error) {
	resolved, err = json.Marshal(doc.ResolvedValues)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal resolved values: %w", err)
	}
	signatures, err = json.Marshal(doc.Signatures)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal signatures: %w", err)
	}
	return resolved, signatures, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.GeneratedDocument, error) {
	var (
		doc        document.GeneratedDocument
		docID      uuid.UUID
		orgID      uuid.UUID
		templateID uuid.UUID
		status     string
		resolved   []byte
		signatures []byte
		employeeID *uuid.UUID
		createdBy  uuid.UUID
	)
	err := row.Scan(
		&docID, &orgID, &templateID, &doc.Name, &status,
		&doc.FileRef, &resolved, &doc.Sequential, &signatures,
		&employeeID, &createdBy, &doc.Version,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.CompletedAt, &doc.CancelledAt, &doc.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.OrgID = id.OrgID(orgID)
	doc.TemplateID = id.TemplateID(templateID)
	doc.Status = document.Status(status)
	doc.CreatedBy = id.UserID(createdBy)
	if employeeID != nil {
		doc.EmployeeID = id.UserID(*employeeID)
	}
	if len(resolved) > 0 && string(resolved) != "null" {
		if err := json.Unmarshal(resolved, &doc.ResolvedValues); err != nil {
			return nil, fmt.Errorf("unmarshal resolved values: %w", err)
		}
	}
	if len(signatures) > 0 && string(signatures) != "null" {
		if err := json.Unmarshal(signatures, &doc.Signatures); err != nil {
			return nil, fmt.Errorf("unmarshal signatures: %w", err)
		}
	}
	return &doc, nil
}

func scanDocuments(rows *sql.Rows) ([]*document.GeneratedDocument, error) {
	var documents []*document.GeneratedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
