package config

import (
	"time"
)

// Sampler types
const (
	PrioritySamplerType    = "priority"
	RateLimitedSamplerType = "ratelimited"
	TailSamplerType        = "tail"
)

// Rule operation matching modes
const (
	MatchExact    = "exact"
	MatchContains = "contains"
)

// Tail policy actions
const (
	ActionSample  = "sample"
	ActionReject  = "reject"
	ActionDynamic = "dynamic"
)

// MatchAny values make a matcher match every span.
var MatchAny = []string{"", "*", "any"}

type SamplerConfig struct {
	Type        string                `yaml:"Type" default:"priority" cmdenv:"SamplerType"`
	Priority    PrioritySamplerConfig `yaml:"Priority"`
	RateLimiter RateLimiterConfig     `yaml:"RateLimiter"`
	Tail        TailSamplerConfig     `yaml:"Tail"`
}

type PrioritySamplerConfig struct {
	DefaultRate          *float64      `yaml:"DefaultRate,omitempty" default:"1"`
	EnableManualPriority *DefaultTrue  `yaml:"EnableManualPriority,omitempty"`
	Rules                []*RuleConfig `yaml:"Rules,omitempty"`
}

// GetDefaultRate returns the rate applied when no rule matches; an unset
// rate keeps everything.
func (p PrioritySamplerConfig) GetDefaultRate() float64 {
	if p.DefaultRate == nil {
		return 1
	}
	return *p.DefaultRate
}

type RuleConfig struct {
	Name           string   `yaml:"Name,omitempty"`
	Service        string   `yaml:"Service,omitempty"`
	Operation      string   `yaml:"Operation,omitempty"`
	OperationMatch string   `yaml:"OperationMatch,omitempty"`
	SampleRate     *float64 `yaml:"SampleRate,omitempty"`
	Priority       *int     `yaml:"Priority,omitempty"`
}

func (r *RuleConfig) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Service + "/" + r.Operation
}

type RateLimiterConfig struct {
	MaxPerSecond int `yaml:"MaxPerSecond" default:"100"`
	// BurstCapacity defaults to twice MaxPerSecond.
	BurstCapacity int      `yaml:"BurstCapacity,omitempty"`
	Window        Duration `yaml:"Window" default:"1s"`
	// Wraps names the sampler type whose calls are gated by the bucket.
	Wraps string `yaml:"Wraps" default:"priority"`
}

func (r RateLimiterConfig) GetBurstCapacity() int {
	if r.BurstCapacity <= 0 {
		return 2 * r.MaxPerSecond
	}
	return r.BurstCapacity
}

func (r RateLimiterConfig) GetWindow() time.Duration {
	if r.Window <= 0 {
		return time.Second
	}
	return time.Duration(r.Window)
}

type TailSamplerConfig struct {
	DecisionTimeout   Duration     `yaml:"DecisionTimeout" default:"30s"`
	MaxBufferedTraces int          `yaml:"MaxBufferedTraces" default:"10000"`
	MaxDecidedTraces  int          `yaml:"MaxDecidedTraces" default:"100000"`
	SampleErrors      *DefaultTrue `yaml:"SampleErrors,omitempty"`
	FallbackRate      *float64     `yaml:"FallbackRate,omitempty" default:"1"`
	// StoreShards is the number of independently locked partitions of
	// the trace store.
	StoreShards int                 `yaml:"StoreShards" default:"64"`
	Policies    []*TailPolicyConfig `yaml:"Policies,omitempty"`
}

func (t TailSamplerConfig) GetDecisionTimeout() time.Duration {
	if t.DecisionTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(t.DecisionTimeout)
}

func (t TailSamplerConfig) GetFallbackRate() float64 {
	if t.FallbackRate == nil {
		return 1
	}
	return *t.FallbackRate
}

func (t TailSamplerConfig) GetMaxDecidedTraces() int {
	if t.MaxDecidedTraces <= 0 {
		return 10 * t.MaxBufferedTraces
	}
	return t.MaxDecidedTraces
}

func (t TailSamplerConfig) GetStoreShards() int {
	if t.StoreShards <= 0 {
		return 64
	}
	return t.StoreShards
}

type TailPolicyConfig struct {
	Name    string `yaml:"Name,omitempty"`
	Service string `yaml:"Service,omitempty"`
	Action  string `yaml:"Action" default:"sample"`
	// SampleRate is the keep probability for the sample action.
	SampleRate *float64 `yaml:"SampleRate,omitempty" default:"1"`
	// GoalSampleRate and ClearFrequency configure the dynamic action.
	GoalSampleRate int      `yaml:"GoalSampleRate,omitempty" default:"10"`
	ClearFrequency Duration `yaml:"ClearFrequency,omitempty" default:"30s"`
	MaxKeys        int      `yaml:"MaxKeys,omitempty" default:"500"`
}

func (p *TailPolicyConfig) GetSampleRate() float64 {
	if p.SampleRate == nil {
		return 1
	}
	return *p.SampleRate
}

func (p *TailPolicyConfig) GetAction() string {
	if p.Action == "" {
		return ActionSample
	}
	return p.Action
}

func (p *TailPolicyConfig) GetGoalSampleRate() int {
	if p.GoalSampleRate < 1 {
		return 10
	}
	return p.GoalSampleRate
}

func (p *TailPolicyConfig) GetClearFrequency() time.Duration {
	if p.ClearFrequency <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.ClearFrequency)
}

func (p *TailPolicyConfig) GetMaxKeys() int {
	if p.MaxKeys <= 0 {
		return 500
	}
	return p.MaxKeys
}

func (p *TailPolicyConfig) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.GetAction() + ":" + p.Service
}
