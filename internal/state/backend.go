// Package state implements the state store: named value slots, change
// subscriptions and the backends that persist the slots.
package state

import (
	"context"
	"errors"

	"github.com/chrissnell/homewx/internal/types"
)

// ErrNotFound is returned when a state slot does not exist.
var ErrNotFound = errors.New("state not found")

// Backend persists state slots.
type Backend interface {
	Get(ctx context.Context, id string) (*types.State, error)
	Put(ctx context.Context, st types.State) error
	List(ctx context.Context) ([]types.State, error)
	Close() error
}
