package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that can be read from config files as a Go
// duration string ("30s", "500ms").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(dur)
	return nil
}

// DefaultTrue is a bool that is true unless it has been explicitly set to
// false. It is used through a pointer so that an absent value can be told
// apart from an explicit false.
type DefaultTrue bool

func (dt *DefaultTrue) Get() (enabled bool) {
	if dt == nil {
		return true
	}
	return bool(*dt)
}

func NewDefaultTrue(b bool) *DefaultTrue {
	dt := DefaultTrue(b)
	return &dt
}

type fileConfig struct {
	mainConfig *configContents
	mainHash   string
	opts       *CmdEnv
}

type configContents struct {
	General           GeneralConfig           `yaml:"General"`
	Logger            LoggerConfig            `yaml:"Logger"`
	PrometheusMetrics PrometheusMetricsConfig `yaml:"PrometheusMetrics"`
	OTelMetrics       OTelMetricsConfig       `yaml:"OTelMetrics"`
	Sampler           SamplerConfig           `yaml:"Sampler"`
}

type GeneralConfig struct {
	// ServiceName is the service a span belongs to when its attributes do
	// not carry service.name.
	ServiceName     string `yaml:"ServiceName" default:"unknown_service" cmdenv:"ServiceName"`
	AdminListenAddr string `yaml:"AdminListenAddr" default:"localhost:8089" cmdenv:"AdminListenAddr"`
	// DebugServiceAddr is only used when the process runs with --debug.
	// When it is empty the debug service picks a free port from 6060.
	DebugServiceAddr string `yaml:"DebugServiceAddr,omitempty" cmdenv:"DebugServiceAddr"`
}

type LoggerConfig struct {
	Type   string `yaml:"Type" default:"logrus"`
	Level  Level  `yaml:"Level" default:"info"`
	Format string `yaml:"Format" default:"text"`
}

type PrometheusMetricsConfig struct {
	Enabled    bool   `yaml:"Enabled"`
	ListenAddr string `yaml:"ListenAddr" default:"localhost:2112" cmdenv:"PrometheusListenAddr"`
}

// OTelMetricsConfig describes where the process's own metrics are pushed
// over OTLP/HTTP.
type OTelMetricsConfig struct {
	Enabled bool   `yaml:"Enabled"`
	APIHost string `yaml:"APIHost" default:"https://api.honeycomb.io"`
	APIKey  string `yaml:"APIKey,omitempty" cmdenv:"OTelMetricsAPIKey"`
	Dataset string `yaml:"Dataset" default:"Traceguard Metrics"`
	// Headers are sent with every export; APIKey and Dataset take precedence.
	Headers           map[string]string `yaml:"Headers,omitempty"`
	Compression       string            `yaml:"Compression" default:"gzip"`
	ReportingInterval Duration          `yaml:"ReportingInterval" default:"30s"`
}

// NewConfig reads the configuration from the locations named in opts,
// applies defaults and command line overrides, and validates the result.
// Every validation failure is reported; any failure is fatal.
func NewConfig(opts *CmdEnv) (Config, error) {
	if len(opts.ConfigLocations) == 0 {
		return nil, errors.New("no config locations specified")
	}

	failures, err := validateRules(opts.ConfigLocations)
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, fmt.Errorf("rules in config failed validation:\n  %s", strings.Join(failures, "\n  "))
	}

	mainconf := &configContents{}
	mainhash, err := readConfigInto(mainconf, opts.ConfigLocations, opts)
	if err != nil {
		return nil, err
	}

	if err := mainconf.validate(); err != nil {
		return nil, err
	}

	return &fileConfig{
		mainConfig: mainconf,
		mainHash:   mainhash,
		opts:       opts,
	}, nil
}

func (f *fileConfig) GetHash() string {
	return f.mainHash
}

func (f *fileConfig) GetGeneralConfig() GeneralConfig {
	return f.mainConfig.General
}

func (f *fileConfig) GetLoggerType() string {
	return f.mainConfig.Logger.Type
}

func (f *fileConfig) GetLoggerLevel() Level {
	if f.opts != nil && f.opts.LogLevel != "" {
		if lvl := ParseLevel(f.opts.LogLevel); lvl != UnknownLevel {
			return lvl
		}
	}
	return f.mainConfig.Logger.Level
}

func (f *fileConfig) GetLoggerConfig() LoggerConfig {
	return f.mainConfig.Logger
}

func (f *fileConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	return f.mainConfig.PrometheusMetrics
}

func (f *fileConfig) GetOTelMetricsConfig() OTelMetricsConfig {
	return f.mainConfig.OTelMetrics
}

func (f *fileConfig) GetSamplerConfig() SamplerConfig {
	return f.mainConfig.Sampler
}
