package cmd

import (
	"context"
	"fmt"

	"prospect/internal/config"
	"prospect/internal/docstore"
	"prospect/internal/llm"
	"prospect/internal/logger"
	"prospect/internal/progress"
	"prospect/internal/research"
	"prospect/internal/search"
	"prospect/internal/segment"
	"prospect/internal/similarity"
	"prospect/internal/vectorstore"
)

// app is the shared composition root for all subcommands.
type app struct {
	cfg       *config.Config
	provider  llm.Provider
	store     *docstore.Store
	gateway   *vectorstore.Gateway
	bus       *progress.Bus
	registry  *search.Registry
	engine    *research.Engine
	similar   *similarity.Discoverer
	segmenter *segment.Segmenter
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	store, err := docstore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	gateway, err := vectorstore.Open(ctx, cfg.Vector)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	bus := progress.NewBus()
	registry := search.FromConfig(cfg.Search)
	engine := research.FromConfig(provider, store, gateway, bus, registry, cfg)

	similar := similarity.New(provider, gateway, store,
		similarity.WithThreshold(cfg.Similarity.Threshold),
		similarity.WithTopK(cfg.Similarity.TopK),
		similarity.WithLLMCandidates(cfg.Similarity.LLMCandidates),
		similarity.WithResearchBudget(cfg.Similarity.ResearchBudget),
		similarity.WithWeights(similarity.Weights{
			Industry:      cfg.Similarity.Weights.Industry,
			BusinessModel: cfg.Similarity.Weights.BusinessModel,
			TargetMarket:  cfg.Similarity.Weights.TargetMarket,
			KeyServices:   cfg.Similarity.Weights.KeyServices,
			TechStack:     cfg.Similarity.Weights.TechStack,
		}),
		similarity.WithResearcher(engine),
		similarity.WithSearchRegistry(registry),
	)

	return &app{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		gateway:   gateway,
		bus:       bus,
		registry:  registry,
		engine:    engine,
		similar:   similar,
		segmenter: segment.New(store),
	}, nil
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.AI.Provider {
	case "mock":
		return llm.NewMock(cfg.Vector.Dimension), nil
	case "gemini", "":
		return llm.NewClient(cfg.AI.Gemini.Model,
			llm.WithEmbeddingModel(cfg.AI.Gemini.EmbeddingModel),
			llm.WithEmbeddingDimensions(int32(cfg.AI.Gemini.EmbeddingDimensions)),
		)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}

func (a *app) Close() {
	a.bus.Close()
	if err := a.gateway.Close(); err != nil {
		logger.Warn("closing vector store", "error", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("closing document store", "error", err)
	}
}
