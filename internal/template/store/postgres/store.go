// Package postgres persists templates. Signatories travel as jsonb: they are
// authored and read as one layout, never queried individually.
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

	"vellum/internal/template"
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

// q returns the transaction carried by the context, if any, so callers can
// group template writes with other statements.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const selectColumns = `
	SELECT id, org_id, name, module_type, main_category, category, status,
	       file_ref, variables, variable_mappings, sequential_signing,
	       pdf_width, pdf_height, page_count, signatories,
	       created_at, updated_at`

func (s *Store) Create(ctx context.Context, tpl *template.Template) error {
	variables, mappings, signatories, err := marshalPayload(tpl)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO templates (
			id, org_id, name, module_type, main_category, category, status,
			file_ref, variables, variable_mappings, sequential_signing,
			pdf_width, pdf_height, page_count, signatories,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17)`,
		uuid.UUID(tpl.ID),
		uuid.UUID(tpl.OrgID),
		tpl.Name,
		tpl.ModuleType,
		tpl.MainCategory,
		tpl.Category,
		string(tpl.Status),
		tpl.FileRef,
		variables,
		mappings,
		tpl.SequentialSigning,
		tpl.PDFWidth,
		tpl.PDFHeight,
		tpl.PageCount,
		signatories,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, templateID id.TemplateID) (*template.Template, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		selectColumns+` FROM templates WHERE id = $1`, uuid.UUID(templateID))
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	return tpl, err
}

func (s *Store) Update(ctx context.Context, tpl *template.Template) error {
	variables, mappings, signatories, err := marshalPayload(tpl)
	if err != nil {
		return err
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE templates
		SET name = $1, module_type = $2, main_category = $3, category = $4,
		    status = $5, file_ref = $6, variables = $7, variable_mappings = $8,
		    sequential_signing = $9, pdf_width = $10, pdf_height = $11,
		    page_count = $12, signatories = $13, updated_at = $14
		WHERE id = $15`,
		tpl.Name, tpl.ModuleType, tpl.MainCategory, tpl.Category,
		string(tpl.Status), tpl.FileRef, variables, mappings,
		tpl.SequentialSigning, tpl.PDFWidth, tpl.PDFHeight,
		tpl.PageCount, signatories, tpl.UpdatedAt,
		uuid.UUID(tpl.ID),
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*template.Template, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		selectColumns+` FROM templates WHERE org_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*template.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

func marshalPayload(tpl *template.Template) (variables, mappings, signatories []byte, err error) {
	variables, err = json.Marshal(tpl.Variables)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal variables: %w", err)
	}
	mappings, err = json.Marshal(tpl.VariableMappings)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal variable mappings: %w", err)
	}
	signatories, err = json.Marshal(tpl.Signatories)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal signatories: %w", err)
	}
	return variables, mappings, signatories, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*template.Template, error) {
	var (
		tpl         template.Template
		templateID  uuid.UUID
		orgID       uuid.UUID
		status      string
		variables   []byte
		mappings    []byte
		signatories []byte
	)
	err := row.Scan(
		&templateID, &orgID, &tpl.Name, &tpl.ModuleType, &tpl.MainCategory,
		&tpl.Category, &status, &tpl.FileRef, &variables, &mappings,
		&tpl.SequentialSigning, &tpl.PDFWidth, &tpl.PDFHeight, &tpl.PageCount,
		&signatories, &tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tpl.ID = id.TemplateID(templateID)
	tpl.OrgID = id.OrgID(orgID)
	tpl.Status = template.Status(status)
	if err := unmarshalInto(variables, &tpl.Variables); err != nil {
		return nil, err
	}
	if err := unmarshalInto(mappings, &tpl.VariableMappings); err != nil {
		return nil, err
	}
	if err := unmarshalInto(signatories, &tpl.Signatories); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func unmarshalInto[T any](raw []byte, dst *T) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal template payload: %w", err)
	}
	return nil
}
