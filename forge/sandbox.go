package forge

import (
	"context"
	"time"
)

// DryRunConditionTrace records the outcome of one condition evaluation.
type DryRunConditionTrace struct {
	ConditionId      string         `json:"conditionId,omitempty"`
	Type             string         `json:"type"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	Result           bool           `json:"result"`
	Details          map[string]any `json:"details,omitempty"`
	EvaluationTimeMs float64        `json:"evaluationTimeMs"`
}

// DryRunPredictedReward is one reward a rule would emit.
type DryRunPredictedReward struct {
	Type        string         `json:"type"`
	TargetId    string         `json:"targetId,omitempty"`
	Amount      int64          `json:"amount,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
}

// DryRunRuleTrace records the evaluation of one rule.
type DryRunRuleTrace struct {
	RuleId           string                   `json:"ruleId"`
	Name             string                   `json:"name,omitempty"`
	Description      string                   `json:"description,omitempty"`
	TriggerMatched   bool                     `json:"triggerMatched"`
	Conditions       []*DryRunConditionTrace  `json:"conditions"`
	PredictedRewards []*DryRunPredictedReward `json:"predictedRewards"`
	WouldExecute     bool                     `json:"wouldExecute"`
	EvaluationTimeMs float64                  `json:"evaluationTimeMs"`
}

// DryRunSummary aggregates a trace.
type DryRunSummary struct {
	TotalRulesEvaluated   int      `json:"totalRulesEvaluated"`
	RulesThatWouldExecute int      `json:"rulesThatWouldExecute"`
	TotalPredictedRewards int      `json:"totalPredictedRewards"`
	TotalEvaluationTimeMs float64  `json:"totalEvaluationTimeMs"`
	EventValid            bool     `json:"eventValid"`
	ValidationErrors      []string `json:"validationErrors,omitempty"`
}

// DryRunTrace is the structured result of a sandbox evaluation.
type DryRunTrace struct {
	TriggerEventId string             `json:"triggerEventId"`
	UserId         string             `json:"userId"`
	EventType      string             `json:"eventType"`
	EvaluatedAt    time.Time          `json:"evaluatedAt"`
	Rules          []*DryRunRuleTrace `json:"rules"`
	Summary        *DryRunSummary     `json:"summary"`
}

// SandboxConfig is the data definition for the SandboxSystem type.
type SandboxConfig struct{}

// The SandboxSystem predicts what an event would produce without committing
// it: nothing is stored, enqueued or mutated.
type SandboxSystem interface {
	System

	// DryRun evaluates the candidate event against the active rules and
	// returns the trace. Repositories are read, never written.
	DryRun(ctx context.Context, event *Event) (*DryRunTrace, error)
}
