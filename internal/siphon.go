package internal

import (
	"context"
	"fmt"

	"github.com/hbomb79/Siphon/internal/api"
	"github.com/hbomb79/Siphon/internal/extraction"
	"github.com/hbomb79/Siphon/internal/storage"
	"github.com/hbomb79/Siphon/internal/ytdlp"
	"github.com/hbomb79/Siphon/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// Siphon represents the top-level object for the server, and is responsible
	// for constructing the storage area, the engine adapter and the HTTP gateway.
	Siphon struct {
		config      Config
		store       *storage.Store
		client      *extraction.Client
		restGateway RunnableService
	}
)

// New validates the configuration and constructs all of Siphon's services. The
// storage directory is created here if it does not already exist.
func New(config Config) (*Siphon, error) {
	log.Emit(logger.DEBUG, "Bootstrapping Siphon services using config: %#v\n", config)

	store, err := storage.New(config.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise storage area: %w", err)
	}

	engine, err := ytdlp.New(config.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise media engine: %w", err)
	}

	client := extraction.New(engine, store)
	return &Siphon{
		config:      config,
		store:       store,
		client:      client,
		restGateway: api.NewRestGateway(&config.RestConfig, client, store),
	}, nil
}

// Run starts the HTTP gateway and blocks until the context is cancelled, or
// the gateway fails in a way it cannot recover from.
func (siphon *Siphon) Run(ctx context.Context) error {
	log.Emit(logger.INFO, "Storing downloads in %s\n", siphon.store.Dir())
	if err := siphon.restGateway.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Service crash (rest-gateway)! %s\n", err.Error())
		return err
	}

	log.Emit(logger.STOP, "Siphon stopped\n")
	return nil
}
