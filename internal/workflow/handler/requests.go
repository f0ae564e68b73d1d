package handler

import (
	dErrors "vellum/pkg/domain-errors"
)

// StartRequest is the POST /workflows payload.
type StartRequest struct {
	Definition  string `json:"definition"`
	SubjectType string `json:"subject_type,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
}

func (r *StartRequest) Validate() error {
	if r.Definition == "" {
		return dErrors.New(dErrors.CodeValidation, "definition is required")
	}
	return nil
}

// TransitionRequest is the POST /workflows/{id}/transition payload.
type TransitionRequest struct {
	State   string `json:"state"`
	Comment string `json:"comment,omitempty"`
}

func (r *TransitionRequest) Validate() error {
	if r.State == "" {
		return dErrors.New(dErrors.CodeValidation, "state is required")
	}
	return nil
}

// ReasonRequest carries the optional reason for cancel and escalate calls.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CommentRequest carries the optional completion comment.
type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}
