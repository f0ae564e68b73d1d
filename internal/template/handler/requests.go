package handler

import (
	"encoding/base64"

	dErrors "vellum/pkg/domain-errors"

	"vellum/internal/signature"
	"vellum/internal/template"
)

// RegisterRequest is the POST /templates payload. Content arrives base64
// encoded; the gateway caps body sizes upstream.
type RegisterRequest struct {
	Name              string             `json:"name"`
	ModuleType        string             `json:"module_type"`
	MainCategory      string             `json:"main_category"`
	Category          string             `json:"category"`
	ContentBase64     string             `json:"content_base64"`
	ContentType       string             `json:"content_type"`
	SequentialSigning bool               `json:"sequential_signing"`
	Signatories       []SignatoryRequest `json:"signatories"`
	Mappings          map[string]string  `json:"mappings"`
}

func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.ContentBase64 == "" {
		return dErrors.New(dErrors.CodeValidation, "content_base64 is required")
	}
	if _, err := base64.StdEncoding.DecodeString(r.ContentBase64); err != nil {
		return dErrors.New(dErrors.CodeValidation, "content_base64 is not valid base64")
	}
	return nil
}

func (r *RegisterRequest) Content() []byte {
	content, _ := base64.StdEncoding.DecodeString(r.ContentBase64)
	return content
}

// SignatoryRequest is one signing slot in a register or update payload.
type SignatoryRequest struct {
	Role           string             `json:"role,omitempty"`
	TypeCode       string             `json:"type_code,omitempty"`
	Label          string             `json:"label"`
	Position       int                `json:"position"`
	Required       bool               `json:"required"`
	Box            signature.Position `json:"box"`
	DatePosition   string             `json:"date_position"`
	ShowLabel      bool               `json:"show_label"`
	ShowSignerName bool               `json:"show_signer_name"`
	UserOverride   string             `json:"user_override,omitempty"`
	EmailOverride  string             `json:"email_override,omitempty"`
}

// SignatoriesRequest is the PUT /templates/{id}/signatories payload.
type SignatoriesRequest struct {
	Signatories []SignatoryRequest `json:"signatories"`
}

// MappingsRequest is the PUT /templates/{id}/mappings payload.
type MappingsRequest struct {
	Mappings map[string]string `json:"mappings"`
}

func toSignatories(reqs []SignatoryRequest) ([]template.Signatory, error) {
	out := make([]template.Signatory, 0, len(reqs))
	for _, req := range reqs {
		signatory := template.Signatory{
			Role:           req.Role,
			TypeCode:       req.TypeCode,
			Label:          req.Label,
			Position:       req.Position,
			Required:       req.Required,
			Box:            req.Box,
			DatePosition:   signature.DatePosition(req.DatePosition),
			ShowLabel:      req.ShowLabel,
			ShowSignerName: req.ShowSignerName,
			EmailOverride:  req.EmailOverride,
		}
		if signatory.DatePosition == "" {
			signatory.DatePosition = signature.DateNone
		}
		if req.UserOverride != "" {
			userID, err := parseUserOverride(req.UserOverride)
			if err != nil {
				return nil, err
			}
			signatory.UserOverride = userID
		}
		if err := signatory.Validate(); err != nil {
			return nil, err
		}
		out = append(out, signatory)
	}
	return out, nil
}
