package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/homewx/internal/metrics"
	"github.com/chrissnell/homewx/internal/storage"
	"github.com/chrissnell/homewx/internal/storage/mqtt"
	"github.com/chrissnell/homewx/internal/storage/timescaledb"
	"github.com/chrissnell/homewx/internal/types"
	"github.com/chrissnell/homewx/pkg/config"
	"go.uber.org/zap"
)

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines           []StorageEngine
	ChangeDistributor chan types.StateChange

	// TimescaleDB is set when that engine is configured; it doubles as the
	// long-term history.
	TimescaleDB *timescaledb.Storage
	MQTT        *mqtt.Storage

	logger *zap.SugaredLogger
}

// StorageEngine holds a backend storage engine's interface as well as
// a channel for passing state changes to the engine
type StorageEngine struct {
	Name   string
	Engine storage.StorageEngineInterface
	C      chan<- types.StateChange
}

// NewStorageManager creates a StorageManager object, populated with all
// configured StorageEngines. It consumes changes, the channel the state store
// was created with. set lets MQTT clients write states.
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, c config.StorageData, changes chan types.StateChange, set mqtt.Setter, m *metrics.Metrics, logger *zap.SugaredLogger) (*StorageManager, error) {
	s := &StorageManager{
		ChangeDistributor: changes,
		logger:            logger.Named("storage"),
	}

	// Check the configuration file for various supported storage backends
	// and enable them if found

	if c.TimescaleDB != nil {
		ts, err := timescaledb.New(ctx, c.TimescaleDB.ConnectionString, m)
		if err != nil {
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.TimescaleDB = ts
		s.AddEngine(ctx, wg, "timescaledb", ts)
	}

	if c.MQTT != nil {
		mq, err := mqtt.New(c.MQTT.ListenAddr, c.MQTT.TopicPrefix, set, logger)
		if err != nil {
			return nil, fmt.Errorf("could not add MQTT storage backend: %w", err)
		}
		s.MQTT = mq
		s.AddEngine(ctx, wg, "mqtt", mq)
	}

	// Start our distributor to distribute state changes to storage backends
	wg.Add(1)
	go s.startChangeDistributor(ctx, wg)

	return s, nil
}

// AddEngine starts engine and adds it to the fan-out.
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, name string, engine storage.StorageEngineInterface) {
	s.Engines = append(s.Engines, StorageEngine{
		Name:   name,
		Engine: engine,
		C:      engine.StartStorageEngine(ctx, wg),
	})
	s.logger.Infof("storage engine %s started", name)
}

// startChangeDistributor receives state changes and fans them out to the
// various storage backends
func (s *StorageManager) startChangeDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case c := <-s.ChangeDistributor:
			for _, e := range s.Engines {
				select {
				case e.C <- c:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
