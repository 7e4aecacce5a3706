package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funnel-optimizer/internal/artifact"
	"github.com/sells-group/funnel-optimizer/internal/governor"
	"github.com/sells-group/funnel-optimizer/internal/narrative"
	"github.com/sells-group/funnel-optimizer/internal/orchestrator"
	"github.com/sells-group/funnel-optimizer/internal/rebalance"
	"github.com/sells-group/funnel-optimizer/internal/report"
	"github.com/sells-group/funnel-optimizer/internal/store"
	anthropicpkg "github.com/sells-group/funnel-optimizer/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "funnel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGovernor(st store.Store) (*governor.Governor, error) {
	gov := governor.New(st, cfg.Policy)
	if cfg.Governor.PolicyFile != "" {
		rules, err := governor.LoadRules(cfg.Governor.PolicyFile)
		if err != nil {
			return nil, err
		}
		gov = gov.WithRules(rules)
		zap.L().Info("loaded policy override file",
			zap.String("path", cfg.Governor.PolicyFile),
			zap.Int("rules", len(rules)),
		)
	}
	return gov, nil
}

// initRunner assembles the full engine. A missing Anthropic key is not an
// error; the narrative layer falls back to its rule-based summaries.
func initRunner(st store.Store) (*orchestrator.Runner, error) {
	gov, err := initGovernor(st)
	if err != nil {
		return nil, err
	}

	var client anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		client = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("no anthropic key configured, narratives use the rule-based fallback")
	}

	art, err := artifact.NewFSStore(cfg.Report.ArtifactDir)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(
		st, cfg, gov,
		rebalance.New(st, gov, cfg.Policy),
		narrative.New(client, cfg.Anthropic),
		report.New(st, art),
	)
}
