package vectorstore

import (
	"context"
	"fmt"

	"prospect/internal/config"
)

// Backend names accepted in configuration.
const (
	BackendChromem  = "chromem"
	BackendQdrant   = "qdrant"
	BackendPgVector = "pgvector"
)

// Open builds a Gateway for the configured backend.
func Open(ctx context.Context, cfg config.Vector) (*Gateway, error) {
	var driver Driver
	var err error

	switch cfg.Backend {
	case BackendChromem, "":
		driver, err = NewChromemDriver(cfg.Path, cfg.Collection)
	case BackendQdrant:
		driver, err = NewQdrantDriver(ctx, QdrantOptions{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		}, cfg.Collection, cfg.Dimension)
	case BackendPgVector:
		driver, err = NewPgVectorDriver(ctx, cfg.DatabaseURL, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown vector backend %q (supported: %s, %s, %s)",
			cfg.Backend, BackendChromem, BackendQdrant, BackendPgVector)
	}
	if err != nil {
		return nil, err
	}
	return NewGateway(driver, cfg.Dimension, CompanySchema()), nil
}
