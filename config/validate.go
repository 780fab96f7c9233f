package config

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/honeycombio/traceguard/generics"
)

// ValidationError identifies the configuration field that failed
// validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failure found in one validation pass.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "config failed validation:\n  " + strings.Join(msgs, "\n  ")
}

func (v *ValidationErrors) add(field, format string, args ...any) {
	*v = append(*v, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// IsValidPriority reports whether p is one of the four sampling priorities.
func IsValidPriority(p int) bool {
	return p >= -1 && p <= 2
}

// ValidatePriority returns a *ValidationError naming field when p is not a
// sampling priority.
func ValidatePriority(field string, p int) error {
	if !IsValidPriority(p) {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%d is not a sampling priority (must be -1, 0, 1 or 2)", p)}
	}
	return nil
}

// ClampRate forces a sampling rate into [0,1]. It reports whether the value
// was changed. NaN is rejected instead of clamped because it has no
// meaningful nearest bound.
func ClampRate(field string, rate float64) (float64, bool, error) {
	if math.IsNaN(rate) {
		return 0, false, &ValidationError{Field: field, Message: "rate is NaN"}
	}
	switch {
	case rate < 0:
		return 0, true, nil
	case rate > 1:
		return 1, true, nil
	default:
		return rate, false, nil
	}
}

// IsMatchAny reports whether a matcher value matches every span.
func IsMatchAny(s string) bool {
	return slices.Contains(MatchAny, strings.ToLower(strings.TrimSpace(s)))
}

// PolicyService returns the service a tail policy is keyed by, or "" for a
// policy that applies to every service. Service names are case sensitive.
func PolicyService(s string) string {
	if IsMatchAny(s) {
		return ""
	}
	return strings.TrimSpace(s)
}

// Validate checks the sampler section. Rates outside [0,1] are not errors;
// the samplers clamp them at construction.
func (s SamplerConfig) Validate() error {
	var errs ValidationErrors

	switch s.Type {
	case PrioritySamplerType, TailSamplerType:
	case RateLimitedSamplerType:
		if s.RateLimiter.Wraps != PrioritySamplerType && s.RateLimiter.Wraps != TailSamplerType {
			errs.add("Sampler.RateLimiter.Wraps", "%q is not a sampler that can be rate limited", s.RateLimiter.Wraps)
		}
	default:
		errs.add("Sampler.Type", "unknown sampler type %q", s.Type)
	}

	errs = append(errs, s.Priority.validate("Sampler.Priority")...)
	errs = append(errs, s.RateLimiter.validate("Sampler.RateLimiter")...)
	errs = append(errs, s.Tail.validate("Sampler.Tail")...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (p PrioritySamplerConfig) validate(prefix string) ValidationErrors {
	var errs ValidationErrors
	if p.DefaultRate != nil && math.IsNaN(*p.DefaultRate) {
		errs.add(prefix+".DefaultRate", "rate is NaN")
	}
	for i, r := range p.Rules {
		field := fmt.Sprintf("%s.Rules[%d]", prefix, i)
		if r == nil {
			errs.add(field, "rule is empty")
			continue
		}
		if r.SampleRate != nil && math.IsNaN(*r.SampleRate) {
			errs.add(field+".SampleRate", "rate is NaN")
		}
		if r.Priority != nil && !IsValidPriority(*r.Priority) {
			errs.add(field+".Priority", "%d is not a sampling priority (must be -1, 0, 1 or 2)", *r.Priority)
		}
		switch r.OperationMatch {
		case "", MatchExact, MatchContains:
		default:
			errs.add(field+".OperationMatch", "unknown match mode %q", r.OperationMatch)
		}
	}
	return errs
}

func (r RateLimiterConfig) validate(prefix string) ValidationErrors {
	var errs ValidationErrors
	if r.MaxPerSecond <= 0 {
		errs.add(prefix+".MaxPerSecond", "must be positive, got %d", r.MaxPerSecond)
	}
	if r.BurstCapacity < 0 {
		errs.add(prefix+".BurstCapacity", "must not be negative, got %d", r.BurstCapacity)
	}
	if r.Window < 0 {
		errs.add(prefix+".Window", "must not be negative, got %s", r.GetWindow())
	}
	return errs
}

func (t TailSamplerConfig) validate(prefix string) ValidationErrors {
	var errs ValidationErrors
	if t.DecisionTimeout < 0 {
		errs.add(prefix+".DecisionTimeout", "must not be negative")
	}
	if t.MaxBufferedTraces <= 0 {
		errs.add(prefix+".MaxBufferedTraces", "must be positive, got %d", t.MaxBufferedTraces)
	}
	if t.MaxDecidedTraces < 0 {
		errs.add(prefix+".MaxDecidedTraces", "must not be negative, got %d", t.MaxDecidedTraces)
	}
	if t.FallbackRate != nil && math.IsNaN(*t.FallbackRate) {
		errs.add(prefix+".FallbackRate", "rate is NaN")
	}
	services := generics.NewSet[string]()
	for i, p := range t.Policies {
		field := fmt.Sprintf("%s.Policies[%d]", prefix, i)
		if p == nil {
			errs.add(field, "policy is empty")
			continue
		}
		if !services.AddNew(PolicyService(p.Service)) {
			errs.add(field+".Service", "more than one policy for service %q", p.Service)
		}
		switch p.Action {
		case "", ActionSample, ActionReject:
		case ActionDynamic:
			if p.GoalSampleRate < 0 {
				errs.add(field+".GoalSampleRate", "must not be negative, got %d", p.GoalSampleRate)
			}
		default:
			errs.add(field+".Action", "unknown policy action %q", p.Action)
		}
		if p.SampleRate != nil && math.IsNaN(*p.SampleRate) {
			errs.add(field+".SampleRate", "rate is NaN")
		}
	}
	return errs
}

func (c *configContents) validate() error {
	var errs ValidationErrors
	switch c.Logger.Type {
	case "logrus", "none":
	default:
		errs.add("Logger.Type", "unknown logger type %q", c.Logger.Type)
	}
	switch c.Logger.Format {
	case "text", "json":
	default:
		errs.add("Logger.Format", "unknown log format %q", c.Logger.Format)
	}
	if c.OTelMetrics.Enabled {
		errs = append(errs, c.OTelMetrics.validate("OTelMetrics")...)
	}
	if err := c.Sampler.Validate(); err != nil {
		errs = append(errs, err.(ValidationErrors)...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (o OTelMetricsConfig) validate(prefix string) ValidationErrors {
	var errs ValidationErrors
	if u, err := url.Parse(o.APIHost); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.add(prefix+".APIHost", "%q is not an http or https URL", o.APIHost)
	}
	switch o.Compression {
	case "gzip", "none":
	default:
		errs.add(prefix+".Compression", "unknown compression %q", o.Compression)
	}
	if o.ReportingInterval <= 0 {
		errs.add(prefix+".ReportingInterval", "must be positive, got %s", time.Duration(o.ReportingInterval))
	}
	return errs
}

// validateRules inspects the raw configuration maps for malformed rules
// and policies before they are decoded into structs, so that the error can
// name the offending entry.
func validateRules(locations []string) ([]string, error) {
	userData := make(map[string]any)
	if err := loadConfigsIntoMap(userData, locations); err != nil {
		return nil, err
	}
	return validateRawRules(userData), nil
}

func validateRawRules(userData map[string]any) []string {
	var failures []string
	sampler, ok := lookupMap(userData, "Sampler")
	if !ok {
		return nil
	}
	if priority, ok := lookupMap(sampler, "Priority"); ok {
		failures = append(failures, validateRawList(priority, "Rules", "Sampler.Priority.Rules",
			[]string{"Name", "Service", "Operation", "OperationMatch"}, []string{"SampleRate", "Priority"})...)
	}
	if tail, ok := lookupMap(sampler, "Tail"); ok {
		failures = append(failures, validateRawList(tail, "Policies", "Sampler.Tail.Policies",
			[]string{"Name", "Service", "Action"}, []string{"SampleRate", "GoalSampleRate", "MaxKeys"})...)
	}
	return failures
}

func validateRawList(parent map[string]any, key, field string, stringKeys, numberKeys []string) []string {
	raw, ok := lookup(parent, key)
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return []string{fmt.Sprintf("%s must be a list, got %T", field, raw)}
	}
	var failures []string
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s[%d] must be a mapping, got %T", field, i, item))
			continue
		}
		for _, k := range stringKeys {
			if v, ok := lookup(m, k); ok {
				if _, isString := v.(string); !isString {
					failures = append(failures, fmt.Sprintf("%s[%d].%s must be a string, got %T", field, i, k, v))
				}
			}
		}
		for _, k := range numberKeys {
			if v, ok := lookup(m, k); ok {
				switch v.(type) {
				case int, int64, uint64, float64:
				default:
					failures = append(failures, fmt.Sprintf("%s[%d].%s must be a number, got %T", field, i, k, v))
				}
			}
		}
	}
	return failures
}

// lookup finds a key case-insensitively, as the struct decoders do.
func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func lookupMap(m map[string]any, key string) (map[string]any, bool) {
	v, ok := lookup(m, key)
	if !ok {
		return nil, false
	}
	mm, ok := v.(map[string]any)
	return mm, ok
}
