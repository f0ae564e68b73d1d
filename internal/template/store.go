package template

import (
	"context"

	id "vellum/pkg/domain"
)

// Store persists templates.
type Store interface {
	Create(ctx context.Context, tpl *Template) error
	Get(ctx context.Context, templateID id.TemplateID) (*Template, error)
	Update(ctx context.Context, tpl *Template) error
	ListByOrg(ctx context.Context, orgID id.OrgID) ([]*Template, error)
}
