// Package broker talks to the identity-record store holding user
// entities. The engine owns no persistence of its own: every holder
// record lives behind this contract and is mutated through
// read-modify-write round-trips.
package broker

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-wallet-exchange/internal/domain"
)

// Common errors
var (
	ErrNotFound     = errors.New("entity not found")
	ErrAlreadyExist = errors.New("entity already exists")
	ErrUnavailable  = errors.New("broker unavailable")
)

// Broker is the external identity-record store contract.
type Broker interface {
	// PostEntity creates a new holder record.
	PostEntity(ctx context.Context, entity domain.UserEntity) error

	// GetEntityByID retrieves the holder record for userID. The boolean
	// reports presence; an absent record is not an error.
	GetEntityByID(ctx context.Context, userID string) (domain.UserEntity, bool, error)

	// UpdateEntity replaces the attributes of an existing holder record.
	UpdateEntity(ctx context.Context, userID string, entity domain.UserEntity) error

	// Close releases underlying connections.
	Close(ctx context.Context) error
}
