package forge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// MeritRulesSystem implements the RulesSystem interface over a rule
// repository and the condition registry.
type MeritRulesSystem struct {
	config     *RulesConfig
	rules      RuleRepository
	events     EventRepository
	conditions *ConditionRegistry
	logger     *zap.Logger
}

// NewMeritRulesSystem creates the rule engine. The config's rules are not
// seeded here; the composition root loads them through CreateRule so seeding
// shares the validation path.
func NewMeritRulesSystem(config *RulesConfig, rules RuleRepository, events EventRepository, conditions *ConditionRegistry, logger *zap.Logger) *MeritRulesSystem {
	if config == nil {
		config = &RulesConfig{}
	}
	if config.HistoryFetchLimit <= 0 {
		config.HistoryFetchLimit = 1000
	}
	return &MeritRulesSystem{
		config:     config,
		rules:      rules,
		events:     events,
		conditions: conditions,
		logger:     logger,
	}
}

func (s *MeritRulesSystem) GetType() SystemType {
	return SystemTypeRules
}

func (s *MeritRulesSystem) GetConfig() any {
	return s.config
}

func (s *MeritRulesSystem) Evaluate(ctx context.Context, event *Event) ([]*RewardInstruction, error) {
	matched, err := s.matchedRules(ctx, event.EventType)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	env, err := s.buildEnv(ctx, event, matched)
	if err != nil {
		return nil, err
	}

	instructions := make([]*RewardInstruction, 0)
	for _, rule := range matched {
		ok, err := s.conditions.Evaluate(ctx, rule.Conditions, env, rule.Logic)
		if err != nil {
			// Misconfigured rules are skipped, the engine continues.
			s.logger.Warn("skipping rule with invalid configuration",
				zap.String("rule_id", rule.Id),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		for i, reward := range rule.Rewards {
			instructions = append(instructions, &RewardInstruction{
				RuleId:      rule.Id,
				EventId:     event.Id,
				RewardIndex: i,
				UserId:      event.UserId,
				Reward:      reward,
			})
		}
	}
	return instructions, nil
}

func (s *MeritRulesSystem) EvaluateTrace(ctx context.Context, event *Event) (*DryRunTrace, error) {
	trace := &DryRunTrace{
		TriggerEventId: event.Id,
		UserId:         event.UserId,
		EventType:      event.EventType,
		EvaluatedAt:    time.Now().UTC(),
		Rules:          make([]*DryRunRuleTrace, 0),
		Summary:        &DryRunSummary{EventValid: true},
	}
	if err := event.Validate(); err != nil {
		trace.Summary.EventValid = false
		trace.Summary.ValidationErrors = append(trace.Summary.ValidationErrors, err.Error())
		return trace, nil
	}

	matched, err := s.matchedRules(ctx, event.EventType)
	if err != nil {
		return nil, err
	}
	env, err := s.buildEnv(ctx, event, matched)
	if err != nil {
		return nil, err
	}

	totalStart := time.Now()
	for _, rule := range matched {
		ruleStart := time.Now()
		ruleTrace := &DryRunRuleTrace{
			RuleId:           rule.Id,
			Name:             rule.Name,
			Description:      rule.Description,
			TriggerMatched:   true,
			Conditions:       make([]*DryRunConditionTrace, 0, len(rule.Conditions)),
			PredictedRewards: make([]*DryRunPredictedReward, 0),
		}

		logic := rule.Logic
		if logic == "" {
			logic = RuleLogicAll
		}
		holds := logic == RuleLogicAll
		for _, cond := range rule.Conditions {
			condStart := time.Now()
			ok, details, err := s.conditions.EvaluateOne(ctx, cond, env)
			if err != nil {
				if details == nil {
					details = map[string]any{}
				}
				details["error"] = err.Error()
				ok = false
			}
			ruleTrace.Conditions = append(ruleTrace.Conditions, &DryRunConditionTrace{
				ConditionId:      cond.Id,
				Type:             cond.Type,
				Parameters:       cond.Parameters,
				Result:           ok,
				Details:          details,
				EvaluationTimeMs: float64(time.Since(condStart).Microseconds()) / 1000.0,
			})
			if logic == RuleLogicAll {
				holds = holds && ok
			} else {
				holds = holds || ok
			}
		}
		ruleTrace.WouldExecute = holds
		if holds {
			for _, reward := range rule.Rewards {
				predicted := &DryRunPredictedReward{
					Type:       reward.Type,
					TargetId:   reward.TargetId,
					Amount:     reward.Amount,
					Parameters: reward.Parameters,
				}
				ruleTrace.PredictedRewards = append(ruleTrace.PredictedRewards, predicted)
			}
			trace.Summary.RulesThatWouldExecute++
			trace.Summary.TotalPredictedRewards += len(ruleTrace.PredictedRewards)
		}
		ruleTrace.EvaluationTimeMs = float64(time.Since(ruleStart).Microseconds()) / 1000.0
		trace.Rules = append(trace.Rules, ruleTrace)
	}
	trace.Summary.TotalRulesEvaluated = len(trace.Rules)
	trace.Summary.TotalEvaluationTimeMs = float64(time.Since(totalStart).Microseconds()) / 1000.0
	return trace, nil
}

// matchedRules returns the active rules triggered by the event type in
// stable ruleId order.
func (s *MeritRulesSystem) matchedRules(ctx context.Context, eventType string) ([]*Rule, error) {
	all, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]*Rule, 0)
	for _, rule := range all {
		if rule.ShouldTrigger(eventType) {
			matched = append(matched, rule)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Id < matched[j].Id })
	return matched, nil
}

// buildEnv fetches the user's recent events once per evaluation. Rules may
// raise the fetch bound through a historyLimit condition parameter; the
// highest bound wins. The trigger event itself is excluded so conditions see
// only prior history.
func (s *MeritRulesSystem) buildEnv(ctx context.Context, event *Event, matched []*Rule) (*ConditionEnv, error) {
	limit := s.config.HistoryFetchLimit
	for _, rule := range matched {
		for _, cond := range rule.Conditions {
			if requested := paramInt64Default(cond.Parameters, "historyLimit", 0); int(requested) > limit {
				limit = int(requested)
			}
		}
	}
	recent, err := s.events.RecentByUser(ctx, event.UserId, limit)
	if err != nil {
		return nil, err
	}
	history := make([]*Event, 0, len(recent))
	for _, e := range recent {
		if e.Id == event.Id {
			continue
		}
		history = append(history, e)
	}
	return &ConditionEnv{Event: event, History: history}, nil
}

func (s *MeritRulesSystem) ListRules(ctx context.Context) ([]*Rule, error) {
	return s.rules.List(ctx)
}

func (s *MeritRulesSystem) ListActiveRules(ctx context.Context) ([]*Rule, error) {
	all, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*Rule, 0, len(all))
	for _, rule := range all {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (s *MeritRulesSystem) ListRulesByTrigger(ctx context.Context, eventType string) ([]*Rule, error) {
	return s.matchedRules(ctx, eventType)
}

func (s *MeritRulesSystem) GetRule(ctx context.Context, id string) (*Rule, error) {
	return s.rules.GetById(ctx, id)
}

func (s *MeritRulesSystem) CreateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := s.validateRule(rule); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *MeritRulesSystem) UpdateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := s.validateRule(rule); err != nil {
		return nil, err
	}
	existing, err := s.rules.GetById(ctx, rule.Id)
	if err != nil {
		return nil, err
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *MeritRulesSystem) DeleteRule(ctx context.Context, id string) error {
	return s.rules.Delete(ctx, id)
}

func (s *MeritRulesSystem) SetRuleActive(ctx context.Context, id string, active bool) (*Rule, error) {
	rule, err := s.rules.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.IsActive = active
	rule.UpdatedAt = time.Now().UTC()
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// validateRule layers tag checks over the structural Validate: unknown
// condition or reward type tags are rejected rather than silently ignored.
func (s *MeritRulesSystem) validateRule(rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	for _, cond := range rule.Conditions {
		if !s.conditions.Supports(cond.Type) {
			return NewError(fmt.Sprintf("unknown condition type %q", cond.Type), INVALID_ARGUMENT_ERROR_CODE)
		}
	}
	for _, reward := range rule.Rewards {
		switch reward.Type {
		case RewardTypePoints, RewardTypeBadge, RewardTypeTrophy, RewardTypeLevel, RewardTypePenalty:
		default:
			return NewError(fmt.Sprintf("unknown reward type %q", reward.Type), INVALID_ARGUMENT_ERROR_CODE)
		}
	}
	return nil
}
