package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// ConditionEnv is the immutable input of a condition evaluation: the trigger
// event and the user's prior events in ascending occurrence order. The
// trigger event is never part of History.
type ConditionEnv struct {
	Event   *Event
	History []*Event
}

type conditionEvaluator func(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error)

// ConditionRegistry maps condition type tags to evaluators.
type ConditionRegistry struct {
	logger      *zap.Logger
	scriptHost  ScriptHost
	evaluators  map[string]conditionEvaluator
	knownParams map[string][]string
}

// NewConditionRegistry builds the canonical condition catalogue. The script
// host may be nil, in which case customScript conditions evaluate to false.
func NewConditionRegistry(logger *zap.Logger, scriptHost ScriptHost) *ConditionRegistry {
	r := &ConditionRegistry{
		logger:     logger,
		scriptHost: scriptHost,
		knownParams: map[string][]string{
			ConditionAlwaysTrue:         {},
			ConditionAttributeEquals:    {"attributeName", "expectedValue"},
			ConditionCount:              {"eventType", "comparator", "threshold", "attributes"},
			ConditionThreshold:          {"attributeName", "comparator", "threshold"},
			ConditionSequence:           {"pattern", "maxWindowSec", "maxWindow"},
			ConditionTimeSinceLastEvent: {"eventType", "comparator", "thresholdSec", "threshold"},
			ConditionFirstOccurrence:    {"eventType", "maxOccurrences"},
			ConditionCustomScript:       {"script"},
		},
	}
	r.evaluators = map[string]conditionEvaluator{
		ConditionAlwaysTrue:         r.evalAlwaysTrue,
		ConditionAttributeEquals:    r.evalAttributeEquals,
		ConditionCount:              r.evalCount,
		ConditionThreshold:          r.evalThreshold,
		ConditionSequence:           r.evalSequence,
		ConditionTimeSinceLastEvent: r.evalTimeSinceLastEvent,
		ConditionFirstOccurrence:    r.evalFirstOccurrence,
		ConditionCustomScript:       r.evalCustomScript,
	}
	return r
}

// Supports reports whether a condition type tag is known.
func (r *ConditionRegistry) Supports(conditionType string) bool {
	_, ok := r.evaluators[conditionType]
	return ok
}

// Evaluate applies the conditions with "all" or "any" aggregation. Unknown
// condition types and unknown logic fail with ErrInvalidRuleConfig; a
// runtime failure inside an evaluator counts as false and is logged.
func (r *ConditionRegistry) Evaluate(ctx context.Context, conditions []*Condition, env *ConditionEnv, logic string) (bool, error) {
	if logic == "" {
		logic = RuleLogicAll
	}
	if logic != RuleLogicAll && logic != RuleLogicAny {
		return false, ErrInvalidRuleConfig
	}
	for _, cond := range conditions {
		if !r.Supports(cond.Type) {
			return false, fmt.Errorf("%w: unknown condition type %q", ErrInvalidRuleConfig, cond.Type)
		}
	}
	for _, cond := range conditions {
		ok, _, err := r.EvaluateOne(ctx, cond, env)
		if err != nil {
			r.logger.Warn("condition evaluation failed, treating as false",
				zap.String("condition_type", cond.Type),
				zap.Error(err))
			ok = false
		}
		if logic == RuleLogicAll && !ok {
			return false, nil
		}
		if logic == RuleLogicAny && ok {
			return true, nil
		}
	}
	return logic == RuleLogicAll, nil
}

// EvaluateOne dispatches a single condition and returns its result with the
// evaluator's detail map.
func (r *ConditionRegistry) EvaluateOne(ctx context.Context, cond *Condition, env *ConditionEnv) (bool, map[string]any, error) {
	eval, ok := r.evaluators[cond.Type]
	if !ok {
		return false, nil, NewError(fmt.Sprintf("unknown condition type %q", cond.Type), INVALID_ARGUMENT_ERROR_CODE)
	}
	r.logUnknownParams(cond)
	return eval(ctx, env, cond)
}

func (r *ConditionRegistry) logUnknownParams(cond *Condition) {
	known := r.knownParams[cond.Type]
	for key := range cond.Parameters {
		found := false
		for _, k := range known {
			if k == key {
				found = true
				break
			}
		}
		if !found {
			r.logger.Debug("ignoring unknown condition parameter",
				zap.String("condition_type", cond.Type),
				zap.String("parameter", key))
		}
	}
}

func (r *ConditionRegistry) evalAlwaysTrue(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	return true, nil, nil
}

func (r *ConditionRegistry) evalAttributeEquals(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	name, ok := paramString(cond.Parameters, "attributeName")
	if !ok {
		return false, nil, NewError("attributeEquals requires attributeName", INVALID_ARGUMENT_ERROR_CODE)
	}
	expected, hasExpected := cond.Parameters["expectedValue"]
	if !hasExpected {
		return false, nil, NewError("attributeEquals requires expectedValue", INVALID_ARGUMENT_ERROR_CODE)
	}
	actual, found := lookupAttribute(env.Event.Attributes, name)
	details := map[string]any{"attributeName": name, "expectedValue": expected, "found": found}
	if !found {
		// A missing attribute is distinct from null and equals nothing.
		return false, details, nil
	}
	details["actualValue"] = actual
	return valueEquals(actual, expected), details, nil
}

func (r *ConditionRegistry) evalCount(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	target, ok := paramString(cond.Parameters, "eventType")
	if !ok {
		return false, nil, NewError("count requires eventType", INVALID_ARGUMENT_ERROR_CODE)
	}
	comparator := paramStringDefault(cond.Parameters, "comparator", ">=")
	threshold := paramFloat64Default(cond.Parameters, "threshold", 0)
	filters, _ := cond.Parameters["attributes"].(map[string]any)

	count := 0
	for _, e := range env.History {
		if !strings.EqualFold(e.EventType, target) {
			continue
		}
		if !attributesMatch(e.Attributes, filters) {
			continue
		}
		count++
	}
	ok, err := compareFloat(comparator, float64(count), threshold)
	if err != nil {
		return false, nil, err
	}
	return ok, map[string]any{"count": count, "comparator": comparator, "threshold": threshold}, nil
}

func (r *ConditionRegistry) evalThreshold(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	name, ok := paramString(cond.Parameters, "attributeName")
	if !ok {
		return false, nil, NewError("threshold requires attributeName", INVALID_ARGUMENT_ERROR_CODE)
	}
	threshold, ok := paramFloat64(cond.Parameters, "threshold")
	if !ok {
		return false, nil, NewError("threshold requires a numeric threshold", INVALID_ARGUMENT_ERROR_CODE)
	}
	comparator := paramStringDefault(cond.Parameters, "comparator", ">=")
	raw, found := lookupAttribute(env.Event.Attributes, name)
	details := map[string]any{"attributeName": name, "comparator": comparator, "threshold": threshold, "found": found}
	if !found {
		return false, details, nil
	}
	value, ok := toFloat(raw)
	if !ok {
		details["nonNumeric"] = true
		return false, details, nil
	}
	details["actualValue"] = value
	result, err := compareFloat(comparator, value, threshold)
	if err != nil {
		return false, details, err
	}
	return result, details, nil
}

func (r *ConditionRegistry) evalSequence(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	pattern, ok := paramStringSlice(cond.Parameters, "pattern")
	if !ok || len(pattern) == 0 {
		return false, nil, NewError("sequence requires a non-empty pattern", INVALID_ARGUMENT_ERROR_CODE)
	}
	maxWindow, hasWindow := paramDuration(cond.Parameters, "maxWindow", "maxWindowSec")

	// The trigger event is the final element of the sequence under test.
	combined := append(append([]*Event{}, env.History...), env.Event)
	details := map[string]any{"pattern": pattern, "sequenceLength": len(combined)}
	if len(combined) < len(pattern) {
		return false, details, nil
	}
	tail := combined[len(combined)-len(pattern):]
	for i, want := range pattern {
		if !strings.EqualFold(tail[i].EventType, want) {
			details["mismatchIndex"] = i
			return false, details, nil
		}
	}
	if hasWindow {
		elapsed := env.Event.OccurredAt.Sub(tail[0].OccurredAt)
		details["elapsedSec"] = elapsed.Seconds()
		if elapsed > maxWindow {
			return false, details, nil
		}
	}
	return true, details, nil
}

func (r *ConditionRegistry) evalTimeSinceLastEvent(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	target, ok := paramString(cond.Parameters, "eventType")
	if !ok {
		return false, nil, NewError("timeSinceLastEvent requires eventType", INVALID_ARGUMENT_ERROR_CODE)
	}
	threshold, ok := paramDuration(cond.Parameters, "threshold", "thresholdSec")
	if !ok {
		return false, nil, NewError("timeSinceLastEvent requires a threshold duration", INVALID_ARGUMENT_ERROR_CODE)
	}
	comparator := paramStringDefault(cond.Parameters, "comparator", ">")
	if comparator != ">" && comparator != "<" {
		return false, nil, NewError("timeSinceLastEvent comparator must be \">\" or \"<\"", INVALID_ARGUMENT_ERROR_CODE)
	}

	var last *Event
	for i := len(env.History) - 1; i >= 0; i-- {
		if strings.EqualFold(env.History[i].EventType, target) {
			last = env.History[i]
			break
		}
	}
	details := map[string]any{"eventType": target, "comparator": comparator, "thresholdSec": threshold.Seconds()}
	if last == nil {
		// No prior event counts as infinitely long ago.
		details["priorEvent"] = false
		return comparator == ">", details, nil
	}
	elapsed := env.Event.OccurredAt.Sub(last.OccurredAt)
	details["priorEvent"] = true
	details["elapsedSec"] = elapsed.Seconds()
	if comparator == ">" {
		return elapsed > threshold, details, nil
	}
	return elapsed < threshold, details, nil
}

func (r *ConditionRegistry) evalFirstOccurrence(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	target := paramStringDefault(cond.Parameters, "eventType", env.Event.EventType)
	maxOccurrences := paramInt64Default(cond.Parameters, "maxOccurrences", 1)
	prior := 0
	for _, e := range env.History {
		if strings.EqualFold(e.EventType, target) {
			prior++
		}
	}
	details := map[string]any{"eventType": target, "priorOccurrences": prior, "maxOccurrences": maxOccurrences}
	// The trigger event itself counts as one occurrence.
	return maxOccurrences >= 1 && int64(prior) < maxOccurrences, details, nil
}

func (r *ConditionRegistry) evalCustomScript(ctx context.Context, env *ConditionEnv, cond *Condition) (bool, map[string]any, error) {
	if r.scriptHost == nil {
		r.logger.Debug("customScript condition evaluated without a script host")
		return false, map[string]any{"scriptHost": false}, nil
	}
	script, ok := paramString(cond.Parameters, "script")
	if !ok {
		return false, nil, NewError("customScript requires script", INVALID_ARGUMENT_ERROR_CODE)
	}
	result, err := r.scriptHost.Evaluate(ctx, script, env.Event, env.History, cond.Parameters)
	if err != nil {
		return false, map[string]any{"scriptHost": true}, err
	}
	return result, map[string]any{"scriptHost": true}, nil
}

// lookupAttribute resolves a possibly dotted path inside the event
// attributes. A plain key hits the map directly; nested paths go through
// gjson over the marshalled attribute document.
func lookupAttribute(attrs map[string]any, path string) (any, bool) {
	if attrs == nil {
		return nil, false
	}
	if v, ok := attrs[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// attributesMatch applies an attribute filter map, every entry must be
// value-equal on the event.
func attributesMatch(attrs map[string]any, filters map[string]any) bool {
	for name, expected := range filters {
		actual, found := lookupAttribute(attrs, name)
		if !found || !valueEquals(actual, expected) {
			return false
		}
	}
	return true
}

// valueEquals compares with numeric coercion: two numeric-looking values
// compare as numbers, everything else compares as case-sensitive strings.
func valueEquals(actual, expected any) bool {
	fa, okA := toFloat(actual)
	fb, okB := toFloat(expected)
	if okA && okB {
		return fa == fb
	}
	sa, okA := actual.(string)
	sb, okB := expected.(string)
	if okA && okB {
		return sa == sb
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func compareFloat(comparator string, a, b float64) (bool, error) {
	switch comparator {
	case "<":
		return a < b, nil
	case "<=", "≤":
		return a <= b, nil
	case "=", "==":
		return a == b, nil
	case ">=", "≥":
		return a >= b, nil
	case ">":
		return a > b, nil
	default:
		return false, NewError(fmt.Sprintf("unknown comparator %q", comparator), INVALID_ARGUMENT_ERROR_CODE)
	}
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func paramStringDefault(params map[string]any, key, fallback string) string {
	if s, ok := paramString(params, key); ok {
		return s
	}
	return fallback
}

func paramFloat64(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func paramFloat64Default(params map[string]any, key string, fallback float64) float64 {
	if f, ok := paramFloat64(params, key); ok {
		return f
	}
	return fallback
}

func paramInt64Default(params map[string]any, key string, fallback int64) int64 {
	if f, ok := paramFloat64(params, key); ok {
		return int64(f)
	}
	return fallback
}

func paramStringSlice(params map[string]any, key string) ([]string, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	switch raw := v.(type) {
	case []string:
		return raw, true
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// paramDuration reads a duration either as a Go duration string under key or
// as a number of seconds under secKey.
func paramDuration(params map[string]any, key, secKey string) (time.Duration, bool) {
	if s, ok := paramString(params, key); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, true
		}
	}
	if f, ok := paramFloat64(params, secKey); ok {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}
