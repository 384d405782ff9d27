package service

import (
	"context"
	"fmt"
	"time"

	commonllm "clearcheck.app/engine/common/llm"
	"clearcheck.app/engine/core/config"
	"clearcheck.app/engine/internal/capability"
	"clearcheck.app/engine/internal/capability/fetch"
	capllm "clearcheck.app/engine/internal/capability/llm"
	"clearcheck.app/engine/internal/engine"
	"clearcheck.app/engine/internal/model"
)

// VerifyService owns the orchestration engine and its capability wiring.
// Both the API server (sync verify) and the worker (queued verify) run
// sessions through it.
type VerifyService struct {
	engine *engine.Engine
}

func NewVerifyService(cfg config.Config) (*VerifyService, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(registry, engine.Options{
		Queue: engine.QueueConfig{
			Ceilings: map[engine.Stage]int{
				engine.StageExpansion:    cfg.Engine.ExpansionCeiling,
				engine.StageExtraction:   cfg.Engine.ExtractionCeiling,
				engine.StageEvidence:     cfg.Engine.EvidenceCeiling,
				engine.StageAdjudication: cfg.Engine.AdjudicationCeiling,
				engine.StageHedge:        cfg.Engine.AdjudicationCeiling,
			},
			SoftCap:   cfg.Engine.QueueSoftCap,
			AgingRate: cfg.Engine.AgingRate,
		},
		Pool: engine.PoolConfig{
			Workers: cfg.Engine.Workers,
			Retry: map[engine.Stage]engine.RetryPolicy{
				engine.StageExtraction: {MaxAttempts: cfg.Engine.RetryMaxAttempts, Backoff: cfg.Engine.RetryBackoff},
				engine.StageEvidence:   {MaxAttempts: cfg.Engine.RetryMaxAttempts, Backoff: cfg.Engine.RetryBackoff},
			},
		},
		Timeouts: engine.StageTimeouts{
			Expand:     cfg.Engine.ExpandTimeout,
			Extract:    cfg.Engine.ExtractTimeout,
			Evidence:   cfg.Engine.EvidenceTimeout,
			Adjudicate: cfg.Engine.AdjudicateTimeout,
			Hedge:      cfg.Engine.AdjudicateTimeout,
			Fallback:   cfg.Engine.ExtractTimeout,
		},
		DefaultDeadline: cfg.Engine.SessionDeadline,
		Grace:           cfg.Engine.Grace,
	})
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	return &VerifyService{engine: eng}, nil
}

func buildRegistry(cfg config.Config) (*capability.Registry, error) {
	extractorClient, err := commonllm.New(toLLMConfig(cfg.ExtractorLLM))
	if err != nil {
		return nil, fmt.Errorf("extractor llm: %w", err)
	}
	adjudicatorClient, err := commonllm.New(toLLMConfig(cfg.AdjudicatorLLM))
	if err != nil {
		return nil, fmt.Errorf("adjudicator llm: %w", err)
	}

	// Hedge and fallback fall back to the other clients when not configured
	// separately; they are safety nets, not required deployments.
	hedgeClient := adjudicatorClient
	if cfg.HedgeLLM.Enabled() {
		hedgeClient, err = commonllm.New(toLLMConfig(cfg.HedgeLLM))
		if err != nil {
			return nil, fmt.Errorf("hedge llm: %w", err)
		}
	}
	fallbackClient := extractorClient
	if cfg.FallbackLLM.Enabled() {
		fallbackClient, err = commonllm.New(toLLMConfig(cfg.FallbackLLM))
		if err != nil {
			return nil, fmt.Errorf("fallback llm: %w", err)
		}
	}

	registry := &capability.Registry{
		Expander:  fetch.NewLinkExpander(),
		Extractor: capllm.NewExtractor(extractorClient),
		Primary:   capllm.NewAdjudicator(adjudicatorClient),
		Hedge:     capllm.NewHedgeAdjudicator(hedgeClient),
		Fallback:  capllm.NewFallback(fallbackClient),
	}
	// Web search is the default evidence source; the fact-check index layers
	// published verdicts on top of it when configured.
	if cfg.WebSearch.Enabled() {
		registry.Evidence = append(registry.Evidence,
			fetch.NewWebSearchGatherer(cfg.WebSearch.APIKey, cfg.WebSearch.BaseURL,
				fetch.WithWebSearchMaxResults(cfg.WebSearch.MaxResults)))
	}
	if cfg.FactCheck.Enabled() {
		registry.Evidence = append(registry.Evidence,
			fetch.NewFactCheckGatherer(cfg.FactCheck.APIKey, cfg.FactCheck.BaseURL))
	}
	return registry, nil
}

func toLLMConfig(cfg config.LLMConfig) commonllm.Config {
	return commonllm.Config{
		Provider:        cfg.Provider,
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		Model:           cfg.Model,
		MaxTokens:       cfg.MaxTokens,
		ReasoningEffort: commonllm.ReasoningEffort(cfg.ReasoningEffort),
	}
}

// Start launches the engine's worker pool.
func (s *VerifyService) Start(ctx context.Context) {
	s.engine.Start(ctx)
}

// Shutdown drains the engine.
func (s *VerifyService) Shutdown() {
	s.engine.Shutdown()
}

// Verify runs one verification session.
func (s *VerifyService) Verify(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
	return s.engine.Verify(ctx, units, deadline)
}
