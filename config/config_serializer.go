package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SerializeToYAML renders the effective configuration, with defaults and
// command line overrides applied, as YAML.
func SerializeToYAML(cfg Config) (string, error) {
	contents := populateConfigContents(cfg)

	yamlBytes, err := yaml.Marshal(contents)
	if err != nil {
		return "", fmt.Errorf("error serializing config to YAML: %w", err)
	}
	return string(yamlBytes), nil
}

// populateConfigContents creates a configContents struct from a Config interface
func populateConfigContents(cfg Config) configContents {
	contents := configContents{
		General:           cfg.GetGeneralConfig(),
		Logger:            cfg.GetLoggerConfig(),
		PrometheusMetrics: cfg.GetPrometheusMetricsConfig(),
		OTelMetrics:       cfg.GetOTelMetricsConfig(),
		Sampler:           cfg.GetSamplerConfig(),
	}
	if contents.OTelMetrics.APIKey != "" {
		contents.OTelMetrics.APIKey = redacted
	}
	return contents
}

const redacted = "REDACTED"
