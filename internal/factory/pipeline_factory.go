package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/config"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/utils"
)

// Pipeline bundles the classification stack built from configuration.
type Pipeline struct {
	Triager  intake.Triager
	Unified  *core.UnifiedClassifier
	Ensemble *core.EnsembleClassifier
	Feedback *core.FeedbackTracker
	Stats    core.StatsRepository

	stops []func()
}

// Stop releases pipeline resources in reverse construction order.
func (p *Pipeline) Stop() {
	for i := len(p.stops) - 1; i >= 0; i-- {
		p.stops[i]()
	}
}

// Categories returns the category set selected by configuration.
func Categories(cfg *config.Config) core.CategorySet {
	if cfg.Classifier.FineGrainedCategories {
		return core.FineGrainedCategories()
	}
	return core.DefaultCategories()
}

// NewPipeline wires the full classification stack: stats store, the three
// layers, the configured orchestrator, and the feedback tracker.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{}

	statsRepo, stopStats, err := NewStatsRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.Stats = statsRepo
	p.stops = append(p.stops, stopStats)

	categories := Categories(cfg)
	textProcessor := utils.NewTextProcessor(logger)

	llmLayer, closeLLM, err := NewLLMClassifier(ctx, cfg, categories, textProcessor, logger)
	if err != nil {
		p.Stop()
		return nil, err
	}
	p.stops = append(p.stops, closeLLM)

	rules := core.NewRuleClassifier(logger)
	history := core.NewHistoryClassifier(statsRepo, logger, cfg.History.MinSenderEmails, cfg.History.MinDomainEmails)

	switch cfg.Classifier.Mode {
	case "unified":
		p.Unified = core.NewUnifiedClassifier(rules, history, llmLayer,
			cfg.Classifier.HighConfidence, cfg.Classifier.MediumConfidence, logger)
		p.Triager = &unifiedTriager{classifier: p.Unified, forceLLM: cfg.Classifier.ForceLLM}
	case "ensemble":
		ensembleCfg := core.EnsembleConfig{
			ProductionWeights: core.EnsembleWeights{
				Rule:    cfg.Ensemble.RuleWeight,
				History: cfg.Ensemble.HistoryWeight,
				LLM:     cfg.Ensemble.LLMWeight,
			},
			BootstrapWeights: core.EnsembleWeights{
				Rule:    cfg.Ensemble.BootstrapRuleWeight,
				History: cfg.Ensemble.BootstrapHistoryWeight,
				LLM:     cfg.Ensemble.BootstrapLLMWeight,
			},
			BootstrapMaxAge: cfg.Ensemble.BootstrapMaxAge,
			SmartLLMSkip:    cfg.Ensemble.SmartLLMSkip,
			AllowDegraded:   cfg.Ensemble.AllowDegraded,
		}
		p.Ensemble = core.NewEnsembleClassifier(rules, history, llmLayer, core.NoAccountAge{}, ensembleCfg, logger)
		p.Triager = &ensembleTriager{classifier: p.Ensemble, forceLLM: cfg.Classifier.ForceLLM}
	default:
		p.Stop()
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}

	p.Feedback = core.NewFeedbackTracker(statsRepo, logger, cfg.Feedback.EMAAlpha, cfg.Feedback.MinObservationsForEMA)

	return p, nil
}

type unifiedTriager struct {
	classifier *core.UnifiedClassifier
	forceLLM   bool
}

func (t *unifiedTriager) Triage(ctx context.Context, email *core.Email) (*intake.Outcome, error) {
	res, err := t.classifier.Classify(ctx, email, t.forceLLM)
	if err != nil {
		return nil, err
	}
	return &intake.Outcome{
		Category:   res.Category,
		Importance: res.Importance,
		Confidence: res.Confidence,
		Layer:      res.LayerUsed,
		Provider:   res.ProviderUsed,
		Reasoning:  res.Reasoning,
	}, nil
}

type ensembleTriager struct {
	classifier *core.EnsembleClassifier
	forceLLM   bool
}

func (t *ensembleTriager) Triage(ctx context.Context, email *core.Email) (*intake.Outcome, error) {
	res, err := t.classifier.Classify(ctx, email, t.forceLLM)
	if err != nil {
		return nil, err
	}
	outcome := &intake.Outcome{
		Category:   res.Category,
		Importance: res.Importance,
		Confidence: res.Confidence,
		Layer:      res.LayerUsed,
		Provider:   res.ProviderUsed,
		Reasoning:  res.Reasoning,
	}
	if res.Disagreement != nil {
		outcome.NeedsReview = res.Disagreement.NeedsUserReview
	}
	return outcome, nil
}
