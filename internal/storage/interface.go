// Package storage defines the interface of the backends that state changes
// are forwarded to.
package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/homewx/internal/types"
)

// StorageEngineInterface is an interface that provides a few standardized
// methods for various storage backends
type StorageEngineInterface interface {
	StartStorageEngine(context.Context, *sync.WaitGroup) chan<- types.StateChange
}
