package forge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MeritSandboxSystem implements the SandboxSystem interface as a thin shell
// over the rule engine's trace evaluation. It never enqueues, stores or
// applies anything.
type MeritSandboxSystem struct {
	config *SandboxConfig
	rules  RulesSystem
}

// NewMeritSandboxSystem creates the sandbox.
func NewMeritSandboxSystem(config *SandboxConfig, rules RulesSystem) *MeritSandboxSystem {
	if config == nil {
		config = &SandboxConfig{}
	}
	return &MeritSandboxSystem{config: config, rules: rules}
}

func (s *MeritSandboxSystem) GetType() SystemType {
	return SystemTypeSandbox
}

func (s *MeritSandboxSystem) GetConfig() any {
	return s.config
}

func (s *MeritSandboxSystem) DryRun(ctx context.Context, event *Event) (*DryRunTrace, error) {
	if event == nil {
		return nil, ErrBadInput
	}
	// The candidate gets the same defaults ingestion would fill in, on a
	// copy so the caller's value is left alone.
	candidate := *event
	if candidate.Id == "" {
		candidate.Id = uuid.NewString()
	}
	if candidate.OccurredAt.IsZero() {
		candidate.OccurredAt = time.Now().UTC()
	} else {
		candidate.OccurredAt = candidate.OccurredAt.UTC()
	}
	return s.rules.EvaluateTrace(ctx, &candidate)
}
