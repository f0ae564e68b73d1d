package handler

import (
	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/signature"
	"vellum/internal/variables"
)

// GenerateRequest is the POST /documents payload. The employee, organization,
// and request objects feed the variable resolver as-is.
type GenerateRequest struct {
	TemplateID   string         `json:"template_id"`
	Name         string         `json:"name,omitempty"`
	EmployeeID   string         `json:"employee_id,omitempty"`
	Employee     map[string]any `json:"employee,omitempty"`
	Organization map[string]any `json:"organization,omitempty"`
	Request      map[string]any `json:"request,omitempty"`
}

func (r *GenerateRequest) Validate() error {
	if r.TemplateID == "" {
		return dErrors.New(dErrors.CodeValidation, "template_id is required")
	}
	return nil
}

// ResolutionContext assembles the resolver context from the payload.
func (r *GenerateRequest) ResolutionContext() variables.Context {
	ctx := variables.Context{}
	if r.Employee != nil {
		ctx.Employee = variables.MapProvider(r.Employee)
	}
	if r.Organization != nil {
		ctx.Organization = variables.MapProvider(r.Organization)
	}
	if r.Request != nil {
		ctx.Request = variables.MapProvider(r.Request)
	}
	return ctx
}

// SignRequest is the POST /documents/{id}/sign payload.
type SignRequest struct {
	CustomPosition *signature.Position `json:"custom_position,omitempty"`
}

// CancelRequest is the POST /documents/{id}/cancel payload.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AssignRequest is the POST /documents/{id}/signers payload.
type AssignRequest struct {
	SignatoryID string `json:"signatory_id"`
	UserID      string `json:"user_id"`
}

func (r *AssignRequest) Validate() error {
	if r.SignatoryID == "" || r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "signatory_id and user_id are required")
	}
	return nil
}
