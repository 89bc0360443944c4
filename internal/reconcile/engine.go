package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/docpipe/internal/model"
)

// Strategy selects the field comparison mode.
type Strategy string

const (
	// Strict is exact equality after type-aware normalization.
	Strict Strategy = "STRICT"
	// Loose is equality after case folding, whitespace collapse, punctuation
	// stripping, canonical date representation, and numeric tolerance.
	Loose Strategy = "LOOSE"
	// Fuzzy scores similarity in [0,1] and classifies against a threshold.
	Fuzzy Strategy = "FUZZY"
)

// StrategyError reports an unknown or unsupported strategy name. The engine
// never falls back to a default strategy.
type StrategyError struct {
	Name string
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("reconcile: unknown strategy %q (valid: STRICT, LOOSE, FUZZY)", e.Name)
}

// ParseStrategy converts a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToUpper(strings.TrimSpace(s))) {
	case Strict:
		return Strict, nil
	case Loose:
		return Loose, nil
	case Fuzzy:
		return Fuzzy, nil
	default:
		return "", &StrategyError{Name: s}
	}
}

// Options tunes the comparison functions.
type Options struct {
	// FuzzyThreshold is the minimum FUZZY score classified as MATCH.
	// Default 0.85.
	FuzzyThreshold float64
	// NumericTolerance is the relative tolerance for LOOSE numeric
	// equality. Default 0.0001 (0.01%).
	NumericTolerance float64
	// DateToleranceDays widens LOOSE date equality. Default 0: same
	// calendar day.
	DateToleranceDays int
	// Weights are optional per-field weights for the overall score.
	// Absent fields weigh 1.
	Weights map[string]float64
}

func (o Options) withDefaults() Options {
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = 0.85
	}
	if o.NumericTolerance <= 0 {
		o.NumericTolerance = 0.0001
	}
	if o.DateToleranceDays < 0 {
		o.DateToleranceDays = 0
	}
	return o
}

// Engine compares a corrected extraction snapshot against fetched comparator
// payloads.
//
// When multiple targets succeeded, the engine selects — per field,
// independently — the comparator value from whichever target yields the
// highest match score for that field. This best-of-N-per-field policy favors
// data completeness over a single authoritative source; each FieldDiff names
// the target that supplied its compared value.
type Engine struct {
	opts Options
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

type candidate struct {
	target string
	value  model.Value
}

// Reconcile produces a scored diff across the union of fields present in the
// source snapshot or any successful target payload. Fields missing on one
// side score 0 and count in the overall denominator. An unknown strategy
// fails before any comparison executes.
func (e *Engine) Reconcile(strategy Strategy, source model.Snapshot, results []model.FetchResult) (*model.ReconciliationResult, error) {
	switch strategy {
	case Strict, Loose, Fuzzy:
	default:
		return nil, &StrategyError{Name: string(strategy)}
	}

	candidates := make(map[string][]candidate)
	for _, r := range results {
		if r.Status != model.FetchSuccess {
			continue
		}
		for field, v := range r.Payload {
			candidates[field] = append(candidates[field], candidate{target: r.Target, value: v})
		}
	}

	fieldSet := make(map[string]struct{}, len(source)+len(candidates))
	for f := range source {
		fieldSet[f] = struct{}{}
	}
	for f := range candidates {
		fieldSet[f] = struct{}{}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	result := &model.ReconciliationResult{
		Strategy:  string(strategy),
		Diffs:     make([]model.FieldDiff, 0, len(fields)),
		CreatedAt: time.Now().UTC(),
	}

	var weightedSum, weightTotal float64
	for _, field := range fields {
		diff := e.compareField(strategy, field, source, candidates[field])
		result.Diffs = append(result.Diffs, diff)

		w := 1.0
		if fw, ok := e.opts.Weights[field]; ok && fw > 0 {
			w = fw
		}
		weightedSum += diff.Score * w
		weightTotal += w
	}
	if weightTotal > 0 {
		result.OverallScore = weightedSum / weightTotal
	}
	return result, nil
}

func (e *Engine) compareField(strategy Strategy, field string, source model.Snapshot, cands []candidate) model.FieldDiff {
	diff := model.FieldDiff{Field: field}

	sourceFV, hasSource := source[field]
	if hasSource {
		sv := sourceFV.Value
		diff.Source = &sv
	}

	switch {
	case !hasSource:
		diff.Status = model.DiffMissingSource
		tv := cands[0].value
		diff.Target = &tv
		diff.TargetName = cands[0].target
		return diff
	case len(cands) == 0:
		diff.Status = model.DiffMissingTarget
		return diff
	}

	// Best-of-N: the target with the highest score wins this field.
	best := cands[0]
	bestScore := e.score(strategy, sourceFV.Value, best.value)
	for _, c := range cands[1:] {
		if s := e.score(strategy, sourceFV.Value, c.value); s > bestScore {
			best, bestScore = c, s
		}
	}

	tv := best.value
	diff.Target = &tv
	diff.TargetName = best.target
	diff.Score = bestScore

	matched := bestScore >= 1
	if strategy == Fuzzy {
		matched = bestScore >= e.opts.FuzzyThreshold
	}
	if matched {
		diff.Status = model.DiffMatch
	} else {
		diff.Status = model.DiffMismatch
	}
	return diff
}

// score computes the per-field match score for one comparator candidate.
// STRICT and LOOSE are binary; FUZZY returns a similarity in [0,1].
func (e *Engine) score(strategy Strategy, source, target model.Value) float64 {
	switch strategy {
	case Strict:
		if e.strictEqual(source, target) {
			return 1
		}
		return 0
	case Loose:
		if e.looseEqual(source, target) {
			return 1
		}
		return 0
	default:
		return e.fuzzyScore(source, target)
	}
}

// strictEqual is exact equality after type-aware normalization: numeric
// values compare as numbers regardless of formatting, dates as calendar
// days.
func (e *Engine) strictEqual(a, b model.Value) bool {
	if an, aok := numericValue(a); aok {
		if bn, bok := numericValue(b); bok {
			return an == bn
		}
		return false
	}
	if ad, aok := dateValue(a); aok {
		if bd, bok := dateValue(b); bok {
			return ad.Equal(bd)
		}
		return false
	}
	if a.Kind == model.KindBool && b.Kind == model.KindBool {
		return a.Bool == b.Bool
	}
	if a.Kind == model.KindList && b.Kind == model.KindList {
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !e.strictEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	if a.Kind == model.KindString && b.Kind == model.KindString {
		return a.Str == b.Str
	}
	return false
}

func (e *Engine) looseEqual(a, b model.Value) bool {
	if an, aok := numericValue(a); aok {
		if bn, bok := numericValue(b); bok {
			return numericEqual(an, bn, e.opts.NumericTolerance)
		}
	}
	if ad, aok := dateValue(a); aok {
		if bd, bok := dateValue(b); bok {
			days := ad.Sub(bd).Hours() / 24
			if days < 0 {
				days = -days
			}
			return int(days) <= e.opts.DateToleranceDays
		}
	}
	if a.Kind == model.KindBool && b.Kind == model.KindBool {
		return a.Bool == b.Bool
	}
	if a.Kind == model.KindList && b.Kind == model.KindList {
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !e.looseEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	}
	return normalizeString(a.Display()) == normalizeString(b.Display())
}

func (e *Engine) fuzzyScore(a, b model.Value) float64 {
	if e.looseEqual(a, b) {
		return 1
	}
	if an, aok := numericValue(a); aok {
		if bn, bok := numericValue(b); bok {
			return numericSimilarity(an, bn)
		}
	}
	if a.Kind == model.KindBool || b.Kind == model.KindBool {
		return 0
	}
	return stringSimilarity(a.Display(), b.Display())
}
