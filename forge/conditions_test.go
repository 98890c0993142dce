package forge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(host ScriptHost) *ConditionRegistry {
	return NewConditionRegistry(zap.NewNop(), host)
}

func envWith(trigger *Event, history ...*Event) *ConditionEnv {
	return &ConditionEnv{Event: trigger, History: history}
}

func TestConditionAlwaysTrue(t *testing.T) {
	r := testRegistry(nil)
	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionAlwaysTrue}, envWith(testEvent("e1", "X", "u1", time.Now())))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionAttributeEquals(t *testing.T) {
	r := testRegistry(nil)
	trigger := &Event{Id: "e1", EventType: "PURCHASE", UserId: "u1", OccurredAt: time.Now(), Attributes: map[string]any{
		"plan":  "pro",
		"price": float64(42),
		"profile": map[string]any{
			"country": "DE",
		},
	}}

	cases := []struct {
		name     string
		params   map[string]any
		expected bool
	}{
		{"string match", map[string]any{"attributeName": "plan", "expectedValue": "pro"}, true},
		{"string case sensitive", map[string]any{"attributeName": "plan", "expectedValue": "Pro"}, false},
		{"numeric coercion", map[string]any{"attributeName": "price", "expectedValue": "42"}, true},
		{"numeric mismatch", map[string]any{"attributeName": "price", "expectedValue": float64(41)}, false},
		{"missing attribute", map[string]any{"attributeName": "absent", "expectedValue": "x"}, false},
		{"missing is not null", map[string]any{"attributeName": "absent", "expectedValue": nil}, false},
		{"nested path", map[string]any{"attributeName": "profile.country", "expectedValue": "DE"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionAttributeEquals, Parameters: tc.params}, envWith(trigger))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ok)
		})
	}
}

func TestConditionCount(t *testing.T) {
	r := testRegistry(nil)
	now := time.Now().UTC()
	trigger := testEvent("t", "LOGIN", "u1", now)
	history := []*Event{
		testEvent("h1", "LOGIN", "u1", now.Add(-3*time.Hour)),
		testEvent("h2", "LOGIN", "u1", now.Add(-2*time.Hour)),
		testEvent("h3", "PURCHASE", "u1", now.Add(-time.Hour)),
	}

	ok, details, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionCount, Parameters: map[string]any{
		"eventType": "LOGIN", "comparator": ">=", "threshold": float64(2),
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, details["count"])

	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionCount, Parameters: map[string]any{
		"eventType": "PURCHASE", "comparator": ">", "threshold": float64(1),
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionCountEmptyHistoryZeroThreshold(t *testing.T) {
	r := testRegistry(nil)
	trigger := testEvent("t", "LOGIN", "u1", time.Now())
	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionCount, Parameters: map[string]any{
		"eventType": "LOGIN", "comparator": ">=", "threshold": float64(0),
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionCountAttributeFilter(t *testing.T) {
	r := testRegistry(nil)
	now := time.Now().UTC()
	trigger := testEvent("t", "PURCHASE", "u1", now)
	big := &Event{Id: "h1", EventType: "PURCHASE", UserId: "u1", OccurredAt: now.Add(-time.Hour), Attributes: map[string]any{"tier": "gold"}}
	small := &Event{Id: "h2", EventType: "PURCHASE", UserId: "u1", OccurredAt: now.Add(-time.Minute), Attributes: map[string]any{"tier": "silver"}}

	ok, details, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionCount, Parameters: map[string]any{
		"eventType":  "PURCHASE",
		"comparator": "=",
		"threshold":  float64(1),
		"attributes": map[string]any{"tier": "gold"},
	}}, envWith(trigger, big, small))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, details["count"])
}

func TestConditionThreshold(t *testing.T) {
	r := testRegistry(nil)
	trigger := &Event{Id: "t", EventType: "PURCHASE", UserId: "u1", OccurredAt: time.Now(), Attributes: map[string]any{"total": float64(150)}}

	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionThreshold, Parameters: map[string]any{
		"attributeName": "total", "comparator": ">", "threshold": float64(100),
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionThreshold, Parameters: map[string]any{
		"attributeName": "missing", "comparator": ">", "threshold": float64(100),
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionSequence(t *testing.T) {
	r := testRegistry(nil)
	now := time.Now().UTC()
	trigger := testEvent("t", "CHECKOUT", "u1", now)
	history := []*Event{
		testEvent("h1", "BROWSE", "u1", now.Add(-30*time.Minute)),
		testEvent("h2", "ADD_TO_CART", "u1", now.Add(-10*time.Minute)),
	}

	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionSequence, Parameters: map[string]any{
		"pattern": []any{"BROWSE", "ADD_TO_CART", "CHECKOUT"},
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.True(t, ok)

	// History shorter than the pattern never matches.
	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionSequence, Parameters: map[string]any{
		"pattern": []any{"A", "B", "C", "D"},
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.False(t, ok)

	// Window too small.
	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionSequence, Parameters: map[string]any{
		"pattern":      []any{"BROWSE", "ADD_TO_CART", "CHECKOUT"},
		"maxWindowSec": float64(60),
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionTimeSinceLastEvent(t *testing.T) {
	r := testRegistry(nil)
	now := time.Now().UTC()
	trigger := testEvent("t", "LOGIN", "u1", now)
	history := []*Event{testEvent("h1", "LOGIN", "u1", now.Add(-48*time.Hour))}

	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionTimeSinceLastEvent, Parameters: map[string]any{
		"eventType": "LOGIN", "comparator": ">", "threshold": "24h",
	}}, envWith(trigger, history...))
	require.NoError(t, err)
	assert.True(t, ok)

	// No prior event is infinitely long ago: ">" true, "<" false.
	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionTimeSinceLastEvent, Parameters: map[string]any{
		"eventType": "LOGIN", "comparator": ">", "threshold": "24h",
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionTimeSinceLastEvent, Parameters: map[string]any{
		"eventType": "LOGIN", "comparator": "<", "threshold": "24h",
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConditionFirstOccurrence(t *testing.T) {
	r := testRegistry(nil)
	now := time.Now().UTC()
	trigger := testEvent("t", "COMMENT", "u1", now)

	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionFirstOccurrence, Parameters: map[string]any{
		"maxOccurrences": float64(1),
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.True(t, ok)

	prior := testEvent("h1", "COMMENT", "u1", now.Add(-time.Hour))
	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionFirstOccurrence, Parameters: map[string]any{
		"maxOccurrences": float64(1),
	}}, envWith(trigger, prior))
	require.NoError(t, err)
	assert.False(t, ok)

	// A higher bound still admits the trigger.
	ok, _, err = r.EvaluateOne(context.Background(), &Condition{Type: ConditionFirstOccurrence, Parameters: map[string]any{
		"maxOccurrences": float64(2),
	}}, envWith(trigger, prior))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConditionCustomScriptWithoutHost(t *testing.T) {
	r := testRegistry(nil)
	ok, details, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionCustomScript, Parameters: map[string]any{
		"script": "true",
	}}, envWith(testEvent("t", "X", "u1", time.Now())))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, false, details["scriptHost"])
}

func TestConditionCustomScriptWithGoja(t *testing.T) {
	r := testRegistry(NewGojaScriptHost(time.Second))
	trigger := &Event{Id: "t", EventType: "PURCHASE", UserId: "u1", OccurredAt: time.Now(), Attributes: map[string]any{"total": float64(120)}}

	ok, _, err := r.EvaluateOne(context.Background(), &Condition{Type: ConditionCustomScript, Parameters: map[string]any{
		"script": "event.attributes.total > 100 && history.length === 0",
	}}, envWith(trigger))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateLogic(t *testing.T) {
	r := testRegistry(nil)
	trigger := testEvent("t", "X", "u1", time.Now())
	truthy := &Condition{Type: ConditionAlwaysTrue}
	falsy := &Condition{Type: ConditionFirstOccurrence, Parameters: map[string]any{"maxOccurrences": float64(0)}}

	ok, err := r.Evaluate(context.Background(), []*Condition{truthy, falsy}, envWith(trigger), RuleLogicAll)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Evaluate(context.Background(), []*Condition{truthy, falsy}, envWith(trigger), RuleLogicAny)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Evaluate(context.Background(), []*Condition{truthy}, envWith(trigger), "most")
	assert.ErrorIs(t, err, ErrInvalidRuleConfig)

	_, err = r.Evaluate(context.Background(), []*Condition{{Type: "nope"}}, envWith(trigger), RuleLogicAll)
	assert.Error(t, err)
}
