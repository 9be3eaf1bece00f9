package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Confidence adjustments applied to the weighted average based on how far
// the layers agree.
const (
	fullAgreementBoost    = 0.20
	partialAgreementBoost = 0.10
	disagreementPenalty   = 0.20

	// Confidence variance above which a three-way split is routed to a
	// human.
	reviewVarianceThreshold = 0.1
)

// EnsembleConfig holds the tunables of the parallel orchestrator.
type EnsembleConfig struct {
	ProductionWeights EnsembleWeights
	BootstrapWeights  EnsembleWeights

	// BootstrapMaxAge is the account age below which bootstrap weights
	// apply, when the account age can be resolved at all.
	BootstrapMaxAge time.Duration

	// SmartLLMSkip runs rules+history first and skips the LLM when they
	// agree confidently on a not-too-important email.
	SmartLLMSkip        bool
	SkipConfidenceFloor float64
	SkipAvgConfidence   float64
	SkipMaxImportance   float64

	// AllowDegraded combines rules+history when both LLM providers fail,
	// instead of failing the classification.
	AllowDegraded bool
}

func (cfg EnsembleConfig) withDefaults() EnsembleConfig {
	zero := EnsembleWeights{}
	if cfg.ProductionWeights == zero {
		cfg.ProductionWeights = EnsembleWeights{Rule: 0.2, History: 0.3, LLM: 0.5}
	}
	if cfg.BootstrapWeights == zero {
		cfg.BootstrapWeights = EnsembleWeights{Rule: 0.4, History: 0.2, LLM: 0.4}
	}
	if cfg.BootstrapMaxAge <= 0 {
		cfg.BootstrapMaxAge = 14 * 24 * time.Hour
	}
	if cfg.SkipConfidenceFloor <= 0 {
		cfg.SkipConfidenceFloor = 0.70
	}
	if cfg.SkipAvgConfidence <= 0 {
		cfg.SkipAvgConfidence = 0.75
	}
	if cfg.SkipMaxImportance <= 0 {
		cfg.SkipMaxImportance = 0.80
	}
	return cfg
}

// EnsembleClassifier runs all layers and merges their verdicts through
// configurable weights, deriving agreement/disagreement signals along the
// way. The combination step is a pure function of the completed results;
// concurrent layer execution introduces no nondeterminism.
type EnsembleClassifier struct {
	rules      Layer
	history    Layer
	llm        ContextLayer
	accountAge AccountAgeProvider
	cfg        EnsembleConfig
	logger     *zap.Logger
}

// NewEnsembleClassifier creates a new parallel orchestrator. accountAge may
// be nil, in which case production weights are always selected.
func NewEnsembleClassifier(rules Layer, history Layer, llm ContextLayer, accountAge AccountAgeProvider, cfg EnsembleConfig, logger *zap.Logger) *EnsembleClassifier {
	if accountAge == nil {
		accountAge = NoAccountAge{}
	}
	return &EnsembleClassifier{
		rules:      rules,
		history:    history,
		llm:        llm,
		accountAge: accountAge,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Classify runs the ensemble. forceLLM disables smart-skip for this call.
func (c *EnsembleClassifier) Classify(ctx context.Context, email *Email, forceLLM bool) (*EnsembleClassification, error) {
	start := time.Now()
	weights := c.weightsFor(ctx, email.AccountID)

	var ruleRes, histRes, llmRes *LayerResult
	var llmErr error
	llmSkipped := false

	if c.cfg.SmartLLMSkip && !forceLLM {
		// Rules and history first, concurrently with each other.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if ruleRes, err = c.rules.Classify(gctx, email); err != nil {
				return &LayerError{Layer: LayerRules, Err: err}
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if histRes, err = c.history.Classify(gctx, email); err != nil {
				return &LayerError{Layer: LayerHistory, Err: err}
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if c.skipEligible(ruleRes, histRes) {
			llmSkipped = true
			c.logger.Debug("Skipping LLM layer",
				zap.String("category", string(ruleRes.Category)),
				zap.Float64("rule_confidence", ruleRes.Confidence),
				zap.Float64("history_confidence", histRes.Confidence))
		} else {
			llmRes, llmErr = c.llm.ClassifyWithContext(ctx, email, ruleRes, histRes)
		}
	} else {
		// Full parallel: all three issued concurrently, joined before
		// combining. The LLM gets no prior context here since the other
		// layers have not finished when its task starts.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if ruleRes, err = c.rules.Classify(gctx, email); err != nil {
				return &LayerError{Layer: LayerRules, Err: err}
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if histRes, err = c.history.Classify(gctx, email); err != nil {
				return &LayerError{Layer: LayerHistory, Err: err}
			}
			return nil
		})
		g.Go(func() error {
			// LLM failure is not a group failure; degraded handling below
			// decides what to do with it.
			llmRes, llmErr = c.llm.ClassifyWithContext(gctx, email, nil, nil)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	degraded := false
	if llmErr != nil {
		if !c.cfg.AllowDegraded {
			return nil, llmErr
		}
		c.logger.Error("LLM layer failed, combining remaining layers",
			zap.Error(llmErr))
		llmRes = nil
		degraded = true
	}

	return c.combine(ruleRes, histRes, llmRes, weights, llmSkipped, degraded, start), nil
}

// weightsFor selects bootstrap weights for accounts younger than the
// configured age. The default AccountAgeProvider never resolves an age, so
// production weights apply unless a real provider is injected.
func (c *EnsembleClassifier) weightsFor(ctx context.Context, accountID string) EnsembleWeights {
	if age, ok := c.accountAge.AccountAge(ctx, accountID); ok && age <= c.cfg.BootstrapMaxAge {
		return c.cfg.BootstrapWeights
	}
	return c.cfg.ProductionWeights
}

// skipEligible checks the three smart-skip conditions: category agreement,
// per-layer confidence floor with a joint average floor, and an importance
// ceiling. High-importance mail is never decided without the LLM.
func (c *EnsembleClassifier) skipEligible(rule, history *LayerResult) bool {
	if rule.Category != history.Category {
		return false
	}
	if rule.Confidence < c.cfg.SkipConfidenceFloor || history.Confidence < c.cfg.SkipConfidenceFloor {
		return false
	}
	if (rule.Confidence+history.Confidence)/2 < c.cfg.SkipAvgConfidence {
		return false
	}
	if (rule.Importance+history.Importance)/2 > c.cfg.SkipMaxImportance {
		return false
	}
	return true
}

func (c *EnsembleClassifier) combine(rule, history, llm *LayerResult, weights EnsembleWeights, llmSkipped, degraded bool, start time.Time) *EnsembleClassification {
	used := weights
	if llm == nil {
		used.LLM = 0
	}
	total := used.Rule + used.History + used.LLM
	used.Rule /= total
	used.History /= total
	used.LLM /= total

	importance := used.Rule*rule.Importance + used.History*history.Importance
	confidence := used.Rule*rule.Confidence + used.History*history.Confidence
	if llm != nil {
		importance += used.LLM * llm.Importance
		confidence += used.LLM * llm.Confidence
	}

	agreement, category := c.agree(rule, history, llm, used)
	switch {
	case agreement.AllAgree:
		confidence += fullAgreementBoost
	case agreement.PartialAgree:
		confidence += partialAgreementBoost
	default:
		confidence -= disagreementPenalty
	}

	var disagreement *Disagreement
	if !agreement.AllAgree && llm != nil {
		variance := popVariance(rule.Confidence, history.Confidence, llm.Confidence)
		disagreement = &Disagreement{
			RuleCategory:       rule.Category,
			HistoryCategory:    history.Category,
			LLMCategory:        llm.Category,
			ConfidenceVariance: variance,
			NeedsUserReview:    !agreement.PartialAgree && variance > reviewVarianceThreshold,
		}
	}

	provider := ProviderNone
	if llm != nil {
		provider = llm.Provider
	}

	result := &EnsembleClassification{
		ClassificationResult: ClassificationResult{
			Category:         category,
			Importance:       Clamp01(importance),
			Confidence:       Clamp01(confidence),
			Reasoning:        c.describe(rule, history, llm, agreement, llmSkipped, degraded),
			LayerUsed:        "ensemble",
			ProviderUsed:     provider,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
		},
		RuleResult:    rule,
		HistoryResult: history,
		LLMResult:     llm,
		Weights:       used,
		Agreement:     agreement,
		Disagreement:  disagreement,
		LLMSkipped:    llmSkipped,
		Degraded:      degraded,
	}

	c.logger.Debug("Ensemble classification complete",
		zap.String("category", string(result.Category)),
		zap.Float64("importance", result.Importance),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("agreement_score", agreement.Score),
		zap.Bool("llm_skipped", llmSkipped),
		zap.Bool("degraded", degraded))
	return result
}

// agree derives the agreement descriptor and the final category from the
// layers that ran.
func (c *EnsembleClassifier) agree(rule, history, llm *LayerResult, weights EnsembleWeights) (Agreement, Category) {
	if llm == nil {
		if rule.Category == history.Category {
			return Agreement{AllAgree: true, Score: 1.0}, rule.Category
		}
		category := rule.Category
		if weights.History > weights.Rule {
			category = history.Category
		}
		return Agreement{Score: 0.5}, category
	}

	counts := map[Category]int{}
	counts[rule.Category]++
	counts[history.Category]++
	counts[llm.Category]++

	var majority Category
	max := 0
	for cat, n := range counts {
		if n > max {
			majority, max = cat, n
		}
	}

	switch max {
	case 3:
		return Agreement{AllAgree: true, Score: 1.0}, majority
	case 2:
		return Agreement{PartialAgree: true, Score: 2.0 / 3.0}, majority
	default:
		// True three-way split: the single highest-weighted layer decides.
		// Ties break deterministically in the order llm, history, rules.
		category := llm.Category
		best := weights.LLM
		if weights.History > best {
			category, best = history.Category, weights.History
		}
		if weights.Rule > best {
			category = rule.Category
		}
		return Agreement{Score: 0.0}, category
	}
}

func (c *EnsembleClassifier) describe(rule, history, llm *LayerResult, agreement Agreement, llmSkipped, degraded bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ensemble: rules=%s/%.2f, history=%s/%.2f", rule.Category, rule.Confidence, history.Category, history.Confidence)
	if llm != nil {
		fmt.Fprintf(&b, ", llm=%s/%.2f", llm.Category, llm.Confidence)
	}
	switch {
	case llmSkipped:
		b.WriteString("; llm skipped")
	case degraded:
		b.WriteString("; llm unavailable, degraded combination")
	}
	switch {
	case agreement.AllAgree:
		b.WriteString("; full agreement")
	case agreement.PartialAgree:
		fmt.Fprintf(&b, "; partial agreement (score %.2f)", agreement.Score)
	default:
		fmt.Fprintf(&b, "; disagreement (score %.2f)", agreement.Score)
	}
	return b.String()
}

// popVariance is the population variance of the given samples.
func popVariance(samples ...float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	return variance / float64(len(samples))
}
