// Package identity resolves authenticated users of the ticket app into the
// display attributes the chat subsystem needs.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/signalbox/internal/models"
	"gorm.io/gorm"
)

// ErrUnknownIdentity is returned when a user id has no directory entry.
var ErrUnknownIdentity = errors.New("identity: unknown identity")

// Identity is an authenticated user. It is immutable from signalbox's point
// of view.
type Identity struct {
	ID       uint
	Username string
	Role     string
	Avatar   string
	Email    string
}

// FromUser converts a ticket app user row.
func FromUser(u models.User) Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Avatar:   u.Avatar(),
		Email:    u.Email,
	}
}

// Directory lists every known identity.
type Directory interface {
	Lookup(ctx context.Context, id uint) (Identity, error)
	All(ctx context.Context) ([]Identity, error)
}

// GormDirectory reads identities from the ticket app's users table.
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory creates a directory over db.
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Lookup returns the identity for id, or ErrUnknownIdentity.
func (d *GormDirectory) Lookup(ctx context.Context, id uint) (Identity, error) {
	if id == 0 {
		return Identity{}, ErrUnknownIdentity
	}
	var u models.User
	err := d.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("identity: lookup %d: %w", id, err)
	}
	return FromUser(u), nil
}

// All returns every identity ordered by id.
func (d *GormDirectory) All(ctx context.Context) ([]Identity, error) {
	var users []models.User
	if err := d.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("identity: list: %w", err)
	}
	out := make([]Identity, len(users))
	for i, u := range users {
		out[i] = FromUser(u)
	}
	return out, nil
}
