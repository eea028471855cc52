// Package engine is the public face of the tabular analysis plan engine. It
// wires pattern detection, snippet validation, sandboxed execution, and
// result normalization behind two operations that never fail as a whole:
// partial results always come back in the returned shapes.
package engine

import (
	"context"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tapengine/internal/config"
	"tapengine/internal/normalize"
	"tapengine/internal/patterns"
	"tapengine/internal/plan"
	"tapengine/internal/sandbox"
)

// Engine holds the configured components. It keeps no per-request state, so
// one Engine may serve concurrent requests as long as each call gets its own
// dataset value.
type Engine struct {
	cfg        *config.Config
	log        *zap.Logger
	detector   *patterns.Detector
	validator  *plan.Validator
	normalizer *normalize.Normalizer
}

// New creates an engine. Nil arguments fall back to the default
// configuration and a no-op logger.
func New(cfg *config.Config, log *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		log:        log,
		detector:   patterns.NewDetector(cfg.Patterns, log),
		validator:  plan.NewValidator(log),
		normalizer: normalize.New(cfg.Normalize, log),
	}
}

// DetectPatterns profiles a dataset. It never fails: on an internal error
// the report comes back empty but well shaped.
func (e *Engine) DetectPatterns(df dataframe.DataFrame) patterns.Report {
	log := e.log.With(zap.String("run_id", uuid.NewString()))
	log.Info("detecting patterns",
		zap.Int("rows", df.Nrow()),
		zap.Int("columns", len(df.Names())))
	report := e.detector.Detect(df)
	log.Info("pattern detection complete",
		zap.Int("correlations", len(report.Correlations)),
		zap.Int("categorical", len(report.Categorical)),
		zap.Int("key_metrics", len(report.KeyMetrics)))
	return report
}

// ExecutePlan prepares the dataset once, then validates, executes, and
// normalizes each metric strictly in plan order. A failing metric is
// recorded as an error value for that metric only; the rest of the plan
// still runs. The context bounds how long the engine waits on a snippet,
// not the snippet itself.
func (e *Engine) ExecutePlan(ctx context.Context, df dataframe.DataFrame, p Plan) *PlanResult {
	log := e.log.With(zap.String("run_id", uuid.NewString()))
	result := &PlanResult{Metrics: make(map[string]MetricResult, len(p.Metrics))}

	prepared := sandbox.Prepare(df, e.cfg.Sandbox)
	log.Info("executing analysis plan",
		zap.Int("metrics", len(p.Metrics)),
		zap.Int("rows", prepared.Nrow()),
		zap.Strings("columns", prepared.Names()))

	session, err := sandbox.NewSession(prepared, log)
	if err != nil {
		log.Error("sandbox initialization failed", zap.Error(err))
		for i, m := range p.Metrics {
			key := metricKey(m, i)
			result.Order = append(result.Order, key)
			result.Metrics[key] = MetricResult{Error: fmt.Sprintf("sandbox initialization failed: %v", err)}
		}
		return result
	}

	seen := make(map[string]bool, len(p.Metrics))
	for i, m := range p.Metrics {
		key := metricKey(m, i)
		if seen[key] {
			log.Warn("duplicate metric name, skipping", zap.String("metric", key))
			continue
		}
		seen[key] = true
		result.Order = append(result.Order, key)
		result.Metrics[key] = e.runMetric(ctx, session, prepared, m, key, log)

		// Later metrics see earlier results under the derived identifier;
		// failed metrics are bound as nil.
		bound := result.Metrics[key].Value
		if err := session.Bind(key, bound); err != nil {
			log.Warn("failed to bind prior result", zap.String("metric", key), zap.Error(err))
		}
	}
	return result
}

func (e *Engine) runMetric(ctx context.Context, session *sandbox.Session, prepared dataframe.DataFrame, m MetricSpec, key string, log *zap.Logger) MetricResult {
	if m.Name == "" {
		return MetricResult{Error: "metric name is empty"}
	}

	validation := e.validator.Validate(m.Code)
	if !validation.OK {
		log.Warn("metric validation failed",
			zap.String("metric", key),
			zap.String("code", m.Code),
			zap.String("reason", validation.Message))
		return MetricResult{Error: "validation failed: " + validation.Message}
	}

	raw, err := session.Run(ctx, validation.Rewritten)
	if err != nil {
		log.Warn("metric execution failed",
			zap.String("metric", key),
			zap.String("code", validation.Rewritten),
			zap.Error(err))
		return MetricResult{Error: fmt.Sprintf("execution failed: %v", err)}
	}

	return MetricResult{Value: e.normalizer.Normalize(raw, prepared)}
}

func metricKey(m MetricSpec, index int) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("metric_%d", index+1)
}
