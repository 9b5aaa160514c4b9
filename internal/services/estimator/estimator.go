package estimator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"CryptoScanner/internal/domain/models"
	domrepo "CryptoScanner/internal/domain/repository"
	"CryptoScanner/internal/service/inference"
	"CryptoScanner/internal/services/outcomes"
	"CryptoScanner/internal/services/parse"
	applogger "CryptoScanner/pkg/logger"
)

const (
	probFloor = 0.02
	probCeil  = 0.85

	impactLimit = 50.0
	neutralBand = 2.0 // pct points a neutral outcome may stray from zero

	sampleMaxTokens = 200
)

// Estimator fills probability and impact distributions for an event's
// outcomes by repeated sampling at several temperatures, with median
// aggregation, MECE normalization and sign plausibility checks. A
// failure never rejects the whole event: outcomes that cannot be
// estimated are marked unresolved and the rest proceed.
type Estimator struct {
	ai      inference.Service
	l       *applogger.Logger
	metrics domrepo.Metrics

	temps       []float64
	quorum      int
	extraRounds int
	tolerance   float64
}

// Option configures the estimator.
type Option func(*Estimator)

// WithTemperatures overrides the sampling temperatures.
func WithTemperatures(t []float64) Option { return func(e *Estimator) { e.temps = t } }

// WithQuorum sets the minimum surviving samples before an extra retry
// round is spent.
func WithQuorum(n int) Option { return func(e *Estimator) { e.quorum = n } }

// WithExtraRounds sets how many retry rounds may be spent when fewer
// than the quorum of samples survive.
func WithExtraRounds(n int) Option {
	return func(e *Estimator) {
		if n >= 0 {
			e.extraRounds = n
		}
	}
}

// WithTolerance sets the MECE probability-sum tolerance.
func WithTolerance(tol float64) Option { return func(e *Estimator) { e.tolerance = tol } }

// WithLogger injects a structured logger.
func WithLogger(l *applogger.Logger) Option { return func(e *Estimator) { e.l = l } }

// WithMetrics injects a metrics recorder.
func WithMetrics(m domrepo.Metrics) Option { return func(e *Estimator) { e.metrics = m } }

func NewEstimator(ai inference.Service, opts ...Option) *Estimator {
	e := &Estimator{
		ai:          ai,
		temps:       []float64{0.3, 0.5, 0.7},
		quorum:      2,
		extraRounds: 1,
		tolerance:   0.01,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate fills probability and impact for each outcome. The returned
// slice has the same order as the input; unresolved outcomes carry a
// failure reason instead of numbers.
func (e *Estimator) Estimate(ctx context.Context, ev *models.Event, outs []models.Outcome) []models.Outcome {
	keys := make([]string, 0, len(outs))
	for _, o := range outs {
		keys = append(keys, o.Key)
	}
	if len(keys) < 3 || len(keys) > 4 {
		return markAll(outs, fmt.Sprintf("invalid outcome count %d", len(keys)))
	}

	probs, probN := e.sample(ctx, ev, outs, kindProbability)
	normalizeAggs(probs, e.tolerance)

	impacts, impactN := e.sample(ctx, ev, outs, kindImpact)
	if violatesSignLogic(outs, impacts) {
		e.warn(ev, "impact sign logic violated, re-sampling")
		if e.metrics != nil {
			e.metrics.RecordError("impact_sign_violation")
		}
		impacts, impactN = e.sample(ctx, ev, outs, kindImpact)
		if violatesSignLogic(outs, impacts) {
			e.warn(ev, "impact sign logic still violated, falling back to template defaults")
			impacts = templateDefaults(outs)
			impactN = 0
		}
	}

	filled := make([]models.Outcome, len(outs))
	for i, o := range outs {
		filled[i] = o
		p, pOK := probs[o.Key]
		imp, iOK := impacts[o.Key]
		if !pOK || !iOK {
			filled[i].Status = models.OutcomeUnresolved
			filled[i].FailReason = missingReason(pOK, iOK)
			continue
		}
		filled[i].Probability = f64(p.Value)
		filled[i].ProbabilityLow = f64(p.Low)
		filled[i].ProbabilityHigh = f64(p.High)
		filled[i].ImpactPct = f64(imp.Value)
		filled[i].ImpactLow = f64(imp.Low)
		filled[i].ImpactHigh = f64(imp.High)
		filled[i].Confidence = confidence(p, imp, min(probN, impactN), e.quorum)
		filled[i].Status = models.OutcomeEstimated
		filled[i].FailReason = ""
	}
	return filled
}

type sampleKind int

const (
	kindProbability sampleKind = iota
	kindImpact
)

// sample runs one inference call per temperature, parses and validates
// each response, and aggregates survivors. When fewer than the quorum
// survive, the missing temperatures get extra retry rounds before a
// reduced-quorum aggregate is accepted. Returns the aggregates and the
// number of surviving samples.
func (e *Estimator) sample(ctx context.Context, ev *models.Event, outs []models.Outcome, kind sampleKind) (map[string]Agg, int) {
	prompt := e.buildPrompt(ev, outs, kind)
	expected := make(map[string]bool, len(outs))
	for _, o := range outs {
		expected[o.Key] = true
	}

	set := make(SampleSet, len(outs))
	survived := 0
	rounds := 1 + e.extraRounds
	for round := 0; round < rounds && survived < e.quorum; round++ {
		for _, temp := range e.temps {
			if round > 0 && survived >= e.quorum {
				break
			}
			vec, ok := e.singleSample(ctx, ev, prompt, temp, expected, kind)
			if !ok {
				continue
			}
			set.Add(vec)
			survived++
		}
	}
	if survived == 0 {
		return map[string]Agg{}, 0
	}
	if kind == kindProbability {
		return aggregateProbs(set), survived
	}
	return aggregateImpacts(set), survived
}

func (e *Estimator) singleSample(ctx context.Context, ev *models.Event, prompt string, temp float64, expected map[string]bool, kind sampleKind) (map[string]float64, bool) {
	text, err := e.ai.Infer(ctx, inference.Request{
		Prompt:      prompt,
		Temperature: temp,
		MaxTokens:   sampleMaxTokens,
	})
	if err != nil {
		e.warn(ev, "sample inference failed", applogger.Error(err))
		return nil, false
	}

	raw := map[string]float64{}
	attempts, err := parse.Object(text, &raw)
	for _, a := range attempts {
		if e.l != nil {
			e.l.Debug("sample parse tier failed",
				applogger.String("tier", string(a.Tier)),
				applogger.String("reason", a.Reason))
		}
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordParseFailure("sample")
		}
		return nil, false
	}

	vec := make(map[string]float64, len(expected))
	for k, v := range raw {
		if expected[k] {
			vec[k] = v
		}
	}
	if kind == kindProbability {
		if !validProbVector(vec, expected) {
			e.warn(ev, "invalid probability sample")
			return nil, false
		}
		return clampProbVector(vec), true
	}
	if !validImpactVector(vec, expected) {
		e.warn(ev, "invalid impact sample")
		return nil, false
	}
	return clampImpactVector(vec), true
}

// validProbVector checks key coverage, [0,1] bounds and a loose sum
// band: wildly un-normalized judgments are noise, mild drift is fixed
// by clamping and rescaling.
func validProbVector(vec map[string]float64, expected map[string]bool) bool {
	if len(vec) != len(expected) {
		return false
	}
	sum := 0.0
	for _, v := range vec {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return sum >= 0.8 && sum <= 1.2
}

func clampProbVector(vec map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(vec))
	total := 0.0
	for k, v := range vec {
		c := math.Max(probFloor, math.Min(probCeil, v))
		out[k] = c
		total += c
	}
	for k, v := range out {
		out[k] = round4(v / total)
	}
	return out
}

func validImpactVector(vec map[string]float64, expected map[string]bool) bool {
	if len(vec) != len(expected) {
		return false
	}
	for _, v := range vec {
		if v < -impactLimit || v > impactLimit {
			return false
		}
	}
	return true
}

func clampImpactVector(vec map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(vec))
	for k, v := range vec {
		out[k] = round2(math.Max(-impactLimit, math.Min(impactLimit, v)))
	}
	return out
}

// violatesSignLogic flags degenerate impact judgments: every outcome
// sharing one sign points at systematic model bias, and per-category
// sign mismatches (a negative "positive" branch, a non-zero-ish
// neutral) are equally implausible.
func violatesSignLogic(outs []models.Outcome, aggs map[string]Agg) bool {
	if len(aggs) == 0 {
		return false // nothing to validate; handled as unresolved
	}
	nonZero := 0
	pos, neg := 0, 0
	for _, a := range aggs {
		if a.Value > 0 {
			pos++
			nonZero++
		} else if a.Value < 0 {
			neg++
			nonZero++
		}
	}
	if nonZero >= 2 && (pos == nonZero || neg == nonZero) {
		return true
	}
	for _, o := range outs {
		a, ok := aggs[o.Key]
		if !ok {
			continue
		}
		switch o.Category {
		case models.CategoryPositive:
			if a.Value < 0 {
				return true
			}
		case models.CategoryNegative, models.CategoryCancelled:
			if a.Value > 0 {
				return true
			}
		case models.CategoryNeutral:
			if math.Abs(a.Value) > neutralBand {
				return true
			}
		}
	}
	return false
}

// templateDefaults builds the category-default impact aggregates used
// when re-sampling cannot shake a degenerate judgment.
func templateDefaults(outs []models.Outcome) map[string]Agg {
	aggs := make(map[string]Agg, len(outs))
	for _, o := range outs {
		v := outcomes.DefaultImpact(o.Category)
		d := math.Max(math.Abs(v)*0.3, 1.0)
		aggs[o.Key] = Agg{Value: v, Low: round2(v - d), High: round2(v + d), N: 0}
	}
	return aggs
}

// confidence grades sample agreement: reduced quorum is always low,
// tight bands on both distributions are high, anything else medium.
func confidence(p, imp Agg, survived, quorum int) models.Confidence {
	if survived < quorum {
		return models.ConfidenceLow
	}
	probSpread := p.High - p.Low
	impSpread := imp.High - imp.Low
	impTight := math.Max(2.0, 0.4*math.Abs(imp.Value))
	if probSpread <= 0.10 && impSpread <= impTight {
		return models.ConfidenceHigh
	}
	return models.ConfidenceMedium
}

const probPromptTmpl = `You estimate probabilities for crypto token event outcomes.

Event: {title}
Token: {coin_symbol} | Type: {event_type} | Date: {date_event} | Importance: {importance}

Outcomes:
{outcomes_text}

Assign each outcome a probability between 0 and 1. The probabilities
must sum to 1. Respond with ONLY a JSON object mapping outcome key to
probability, e.g. {"A":0.55,"B":0.25,"C":0.20}`

const impactPromptTmpl = `You estimate the 24h price impact of crypto token event outcomes.

Event: {title}
Token: {coin_symbol} | Type: {event_type} | Date: {date_event} | Importance: {importance}

Outcomes:
{outcomes_text}

For each outcome give the expected price impact in percent, from -50 to
+50. Positive outcomes push price up, negative ones down. Respond with
ONLY a JSON object mapping outcome key to impact, e.g. {"A":8.0,"B":0.0,"C":-5.0}`

func (e *Estimator) buildPrompt(ev *models.Event, outs []models.Outcome, kind sampleKind) string {
	tmpl := probPromptTmpl
	if kind == kindImpact {
		tmpl = impactPromptTmpl
	}
	lines := make([]string, 0, len(outs))
	for _, o := range outs {
		lines = append(lines, fmt.Sprintf("%s) [%s] %s", o.Key, o.Category, o.Label))
	}
	date := "unknown"
	if ev.ScheduledAt != nil {
		date = ev.ScheduledAt.Format("2006-01-02")
	}
	imp := string(ev.Importance)
	if imp == "" {
		imp = string(models.ImportanceMedium)
	}
	return strings.NewReplacer(
		"{coin_symbol}", ev.Symbol,
		"{event_type}", string(ev.Type),
		"{title}", ev.Title,
		"{date_event}", date,
		"{importance}", imp,
		"{outcomes_text}", strings.Join(lines, "\n"),
	).Replace(tmpl)
}

func markAll(outs []models.Outcome, reason string) []models.Outcome {
	marked := make([]models.Outcome, len(outs))
	for i, o := range outs {
		marked[i] = o
		marked[i].Status = models.OutcomeUnresolved
		marked[i].FailReason = reason
	}
	return marked
}

func missingReason(pOK, iOK bool) string {
	switch {
	case !pOK && !iOK:
		return "probability and impact estimation failed"
	case !pOK:
		return "probability estimation failed"
	default:
		return "impact estimation failed"
	}
}

func f64(v float64) *float64 { return &v }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (e *Estimator) warn(ev *models.Event, msg string, fields ...applogger.Field) {
	if e.l == nil {
		return
	}
	fields = append([]applogger.Field{applogger.String("symbol", ev.Symbol)}, fields...)
	e.l.Warn(msg, fields...)
}
