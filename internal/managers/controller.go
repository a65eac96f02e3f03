package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/homewx/internal/controllers/restserver"
	"github.com/chrissnell/homewx/internal/history"
	"github.com/chrissnell/homewx/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ControllerManager interface for the controller manager
type ControllerManager interface {
	StartControllers() error
}

// Controller is an interface that provides standard methods for various controller backends
type Controller interface {
	StartController() error
}

// NewControllerManager creates a new controller manager
func NewControllerManager(ctx context.Context, wg *sync.WaitGroup, c config.ControllerData, store restserver.Store, hist history.Querier, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) (ControllerManager, error) {
	cm := &controllerManager{
		logger:      logger,
		controllers: make([]Controller, 0),
	}

	if c.RESTServer != nil {
		rest, err := restserver.NewController(ctx, wg, *c.RESTServer, store, hist, gatherer, logger)
		if err != nil {
			return nil, fmt.Errorf("error creating REST controller: %w", err)
		}
		cm.controllers = append(cm.controllers, rest)
	}

	return cm, nil
}

type controllerManager struct {
	logger      *zap.SugaredLogger
	controllers []Controller
}

func (c *controllerManager) StartControllers() error {
	c.logger.Info("Starting controller manager...")

	for _, controller := range c.controllers {
		if err := controller.StartController(); err != nil {
			return fmt.Errorf("error starting controller: %w", err)
		}
	}

	c.logger.Infof("Started %d controllers successfully", len(c.controllers))
	return nil
}
