package storage

import (
	"context"
	"sync"

	"github.com/chrissnell/homewx/internal/log"
	"github.com/chrissnell/homewx/internal/types"
)

// ProcessChanges feeds every change received on changes to processor until
// ctx is cancelled. Processor errors are logged and do not stop the loop.
func ProcessChanges(ctx context.Context, wg *sync.WaitGroup, changes <-chan types.StateChange, processor func(types.StateChange) error, name string) {
	defer wg.Done()

	for {
		select {
		case c := <-changes:
			if err := processor(c); err != nil {
				log.Errorf("%s change processor error: %v", name, err)
			}
		case <-ctx.Done():
			log.Infof("cancellation request received. Cancelling %s change processor", name)
			return
		}
	}
}
