package sample

import (
	"fmt"
	"math/rand/v2"

	dynsampler "github.com/honeycombio/dynsampler-go"

	"github.com/honeycombio/traceguard/config"
	"github.com/honeycombio/traceguard/logger"
)

// tailPolicy decides traces of one service as soon as they are seen.
type tailPolicy struct {
	name    string
	service string
	action  string
	rate    float64

	// dynamic is set for the dynamic action; keys are service and span name
	dynamic       dynsampler.Sampler
	metricsPrefix string
}

func newTailPolicy(i int, c *config.TailPolicyConfig, lgr logger.Logger) (*tailPolicy, error) {
	field := fmt.Sprintf("Sampler.Tail.Policies[%d]", i)
	if c == nil {
		return nil, &config.ValidationError{Field: field, Message: "policy is empty"}
	}
	p := &tailPolicy{
		name:    c.String(),
		service: config.PolicyService(c.Service),
		action:  c.GetAction(),
	}
	switch p.action {
	case config.ActionSample:
		rate, err := clampRate(field+".SampleRate", c.GetSampleRate(), lgr)
		if err != nil {
			return nil, err
		}
		p.rate = rate
	case config.ActionReject:
	case config.ActionDynamic:
		p.metricsPrefix = fmt.Sprintf("policy%d_", i)
		p.dynamic = &dynsampler.AvgSampleRate{
			GoalSampleRate:         c.GetGoalSampleRate(),
			ClearFrequencyDuration: c.GetClearFrequency(),
			MaxKeys:                c.GetMaxKeys(),
		}
	default:
		return nil, &config.ValidationError{Field: field + ".Action", Message: fmt.Sprintf("unknown policy action %q", p.action)}
	}
	return p, nil
}

func (p *tailPolicy) start() error {
	if p.dynamic != nil {
		return p.dynamic.Start()
	}
	return nil
}

func (p *tailPolicy) stop() error {
	if p.dynamic != nil {
		return p.dynamic.Stop()
	}
	return nil
}

// decide returns the keep decision and the probability it was made with.
// hasRate is false when the decision was unconditional.
func (p *tailPolicy) decide(service, spanName string) (keep bool, rate float64, hasRate bool) {
	switch p.action {
	case config.ActionReject:
		return false, 0, false
	case config.ActionDynamic:
		n := p.dynamic.GetSampleRate(service + ":" + spanName)
		if n < 1 { // protect against dynsampler being broken even though it shouldn't be
			n = 1
		}
		if n == 1 {
			return true, 1, false
		}
		return rand.IntN(n) == 0, 1 / float64(n), true
	default:
		if p.rate >= 1 {
			return true, 1, false
		}
		// a uniform draw rather than the trace id hash; the policy decides
		// once per trace
		return rand.Float64() < p.rate, p.rate, true
	}
}

// policySet finds the policy for a service. A policy without a service
// applies to services with no policy of their own.
type policySet struct {
	byService map[string]*tailPolicy
	fallback  *tailPolicy
	all       []*tailPolicy
}

func newPolicySet(cfgs []*config.TailPolicyConfig, lgr logger.Logger) (*policySet, error) {
	ps := &policySet{byService: make(map[string]*tailPolicy)}
	for i, c := range cfgs {
		p, err := newTailPolicy(i, c, lgr)
		if err != nil {
			return nil, err
		}
		if p.service == "" {
			if ps.fallback == nil {
				ps.fallback = p
			}
		} else if _, ok := ps.byService[p.service]; !ok {
			ps.byService[p.service] = p
		}
		ps.all = append(ps.all, p)
	}
	return ps, nil
}

func (ps *policySet) lookup(service string) *tailPolicy {
	if p, ok := ps.byService[service]; ok {
		return p
	}
	return ps.fallback
}
