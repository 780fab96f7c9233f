package sample

import (
	"fmt"
	"strings"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
)

// rule is a validated RuleConfig, ready for matching.
type rule struct {
	name         string
	service      string
	anyService   bool
	operation    string
	anyOperation bool
	contains     bool

	rate        float64
	hasRate     bool
	priority    int
	hasPriority bool
}

// compileRules validates and clamps the configured rules, keeping their
// order. A NaN rate or an invalid priority is an error naming the rule.
func compileRules(cfgs []*config.RuleConfig, lgr logger.Logger) ([]*rule, error) {
	rules := make([]*rule, 0, len(cfgs))
	for i, c := range cfgs {
		field := fmt.Sprintf("Sampler.Priority.Rules[%d]", i)
		if c == nil {
			return nil, &config.ValidationError{Field: field, Message: "rule is empty"}
		}
		r := &rule{
			name:         c.String(),
			service:      strings.TrimSpace(c.Service),
			anyService:   config.IsMatchAny(c.Service),
			operation:    c.Operation,
			anyOperation: config.IsMatchAny(c.Operation),
			contains:     c.OperationMatch == config.MatchContains,
		}
		if c.SampleRate != nil {
			rate, err := clampRate(field+".SampleRate", *c.SampleRate, lgr)
			if err != nil {
				return nil, err
			}
			r.rate, r.hasRate = rate, true
		}
		if c.Priority != nil {
			if err := config.ValidatePriority(field+".Priority", *c.Priority); err != nil {
				return nil, err
			}
			r.priority, r.hasPriority = *c.Priority, true
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (r *rule) matches(service, operation string) bool {
	if !r.anyService && r.service != service {
		return false
	}
	if r.anyOperation {
		return true
	}
	if r.contains {
		return strings.Contains(operation, r.operation)
	}
	return r.operation == operation
}

// firstMatch returns the first rule, in declaration order, that matches.
func firstMatch(rules []*rule, service, operation string) *rule {
	for _, r := range rules {
		if r.matches(service, operation) {
			return r
		}
	}
	return nil
}

// clampRate forces rate into [0,1], logging when it had to change it.
func clampRate(field string, rate float64, lgr logger.Logger) (float64, error) {
	clamped, changed, err := config.ClampRate(field, rate)
	if err != nil {
		return 0, err
	}
	if changed {
		lgr.Warn().WithFields(map[string]any{
			"field":   field,
			"rate":    rate,
			"clamped": clamped,
		}).Logf("sample rate out of range, clamped to %v", clamped)
	}
	return clamped, nil
}
