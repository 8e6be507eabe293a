package repository

import (
	"context"

	"github.com/amirk1998/serendib-banking/internal/models"
)

// UserDirectory is the registry of onboarded customers. Lookups by username
// are case-insensitive. Returned users are copies; changes go through Update.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByNIC(ctx context.Context, nic string) (*models.User, error)
	FindByAccount(ctx context.Context, accountNumber string) (*models.User, error)
	Add(ctx context.Context, user *models.User) error
	// Update applies fn to the stored user atomically with respect to every
	// other Update of the same username and returns the result. An error
	// from fn discards the change.
	Update(ctx context.Context, username string, fn func(*models.User) error) (*models.User, error)
}
