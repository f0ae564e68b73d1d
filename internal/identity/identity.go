// Package identity is the port to the excluded identity collaborator. The core
// consumes users and role lookups; it never manages credentials or sessions.
package identity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	id "vellum/pkg/domain"
	"vellum/pkg/platform/sentinel"
)

// User is the identity shape the core consumes.
type User struct {
	ID       id.UserID
	FullName string
	Email    string
	OrgID    id.OrgID
	Roles    []string
}

// HasRole reports whether the user carries the given role (case-insensitive).
func (u *User) HasRole(role string) bool {
	return slices.ContainsFunc(u.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// Directory resolves users within an organization.
type Directory interface {
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByEmail(ctx context.Context, orgID id.OrgID, email string) (*User, error)
	// FindUserWithRole returns one user holding the role within the
	// organization, or sentinel.ErrNotFound when nobody does.
	FindUserWithRole(ctx context.Context, role string, orgID id.OrgID) (*User, error)
}

// SignatureAsset is a stored signature image belonging to a user. Signing
// requires an active asset; the image bytes live in binary storage under Ref.
type SignatureAsset struct {
	UserID    id.UserID
	Ref       string
	Width     float64
	Height    float64
	Active    bool
	CreatedAt time.Time
}

// SignatureAssets resolves the usable signature image for a signer.
type SignatureAssets interface {
	ActiveFor(ctx context.Context, userID id.UserID) (*SignatureAsset, error)
}

// -----------------------------------------------------------------------------
// In-memory implementations, used in tests and development wiring.
// -----------------------------------------------------------------------------

type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[id.UserID]*User)}
}

func (d *MemoryDirectory) Add(user *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *MemoryDirectory) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if user, ok := d.users[userID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, orgID id.OrgID, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, user := range d.users {
		if user.OrgID == orgID && strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (d *MemoryDirectory) FindUserWithRole(_ context.Context, role string, orgID id.OrgID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, user := range d.users {
		if user.OrgID == orgID && user.HasRole(role) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

type MemorySignatureAssets struct {
	mu     sync.RWMutex
	assets map[id.UserID]*SignatureAsset
}

func NewMemorySignatureAssets() *MemorySignatureAssets {
	return &MemorySignatureAssets{assets: make(map[id.UserID]*SignatureAsset)}
}

func (s *MemorySignatureAssets) Put(asset *SignatureAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[asset.UserID] = asset
}

func (s *MemorySignatureAssets) ActiveFor(_ context.Context, userID id.UserID) (*SignatureAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[userID]
	if !ok || !asset.Active {
		return nil, sentinel.ErrNotFound
	}
	copied := *asset
	return &copied, nil
}
