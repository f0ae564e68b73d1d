package domain

import (
	"github.com/google/uuid"

	dErrors "vellum/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment at compile time. A DocumentID can
// never be passed where a TemplateID is expected, which matters in a codebase
// where most operations take two or three UUIDs.
type (
	OrgID       uuid.UUID
	UserID      uuid.UUID
	TemplateID  uuid.UUID
	SignatoryID uuid.UUID
	DocumentID  uuid.UUID
	EventID     uuid.UUID
	InstanceID  uuid.UUID
	TaskID      uuid.UUID
)

func NewOrgID() OrgID             { return OrgID(uuid.New()) }
func NewUserID() UserID           { return UserID(uuid.New()) }
func NewTemplateID() TemplateID   { return TemplateID(uuid.New()) }
func NewSignatoryID() SignatoryID { return SignatoryID(uuid.New()) }
func NewDocumentID() DocumentID   { return DocumentID(uuid.New()) }
func NewEventID() EventID         { return EventID(uuid.New()) }
func NewInstanceID() InstanceID   { return InstanceID(uuid.New()) }
func NewTaskID() TaskID           { return TaskID(uuid.New()) }

func (id OrgID) String() string       { return uuid.UUID(id).String() }
func (id UserID) String() string      { return uuid.UUID(id).String() }
func (id TemplateID) String() string  { return uuid.UUID(id).String() }
func (id SignatoryID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string  { return uuid.UUID(id).String() }
func (id EventID) String() string     { return uuid.UUID(id).String() }
func (id InstanceID) String() string  { return uuid.UUID(id).String() }
func (id TaskID) String() string      { return uuid.UUID(id).String() }

func (id OrgID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id InstanceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// The text marshalers keep IDs rendering as canonical UUID strings through
// encoding/json; without them a defined uuid type encodes as a byte array.

func (id OrgID) MarshalText() ([]byte, error)       { return marshalUUID(uuid.UUID(id)) }
func (id UserID) MarshalText() ([]byte, error)      { return marshalUUID(uuid.UUID(id)) }
func (id TemplateID) MarshalText() ([]byte, error)  { return marshalUUID(uuid.UUID(id)) }
func (id SignatoryID) MarshalText() ([]byte, error) { return marshalUUID(uuid.UUID(id)) }
func (id DocumentID) MarshalText() ([]byte, error)  { return marshalUUID(uuid.UUID(id)) }
func (id EventID) MarshalText() ([]byte, error)     { return marshalUUID(uuid.UUID(id)) }
func (id InstanceID) MarshalText() ([]byte, error)  { return marshalUUID(uuid.UUID(id)) }
func (id TaskID) MarshalText() ([]byte, error)      { return marshalUUID(uuid.UUID(id)) }

func (id *OrgID) UnmarshalText(b []byte) error       { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *UserID) UnmarshalText(b []byte) error      { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *TemplateID) UnmarshalText(b []byte) error  { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *SignatoryID) UnmarshalText(b []byte) error { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *DocumentID) UnmarshalText(b []byte) error  { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *EventID) UnmarshalText(b []byte) error     { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *InstanceID) UnmarshalText(b []byte) error  { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *TaskID) UnmarshalText(b []byte) error      { return unmarshalUUID((*uuid.UUID)(id), b) }

func marshalUUID(u uuid.UUID) ([]byte, error) {
	return []byte(u.String()), nil
}

func unmarshalUUID(dst *uuid.UUID, b []byte) error {
	if len(b) == 0 {
		*dst = uuid.Nil
		return nil
	}
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	*dst = parsed
	return nil
}

// parseUUID enforces the trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

func ParseOrgID(raw string) (OrgID, error) {
	u, err := parseUUID(raw)
	return OrgID(u), err
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw)
	return UserID(u), err
}

func ParseTemplateID(raw string) (TemplateID, error) {
	u, err := parseUUID(raw)
	return TemplateID(u), err
}

func ParseSignatoryID(raw string) (SignatoryID, error) {
	u, err := parseUUID(raw)
	return SignatoryID(u), err
}

func ParseDocumentID(raw string) (DocumentID, error) {
	u, err := parseUUID(raw)
	return DocumentID(u), err
}

func ParseInstanceID(raw string) (InstanceID, error) {
	u, err := parseUUID(raw)
	return InstanceID(u), err
}

func ParseTaskID(raw string) (TaskID, error) {
	u, err := parseUUID(raw)
	return TaskID(u), err
}
