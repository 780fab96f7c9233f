package config

// Config defines the interface the rest of the code uses to get items from the
// config. The configuration is read once at startup and is immutable
// afterwards; samplers copy the sections they need when they are constructed.
type Config interface {
	// GetHash returns the MD5 hash of the loaded configuration files.
	GetHash() string

	// GetGeneralConfig returns the process-wide settings such as the
	// service name and the admin listen address.
	GetGeneralConfig() GeneralConfig

	// GetLoggerType returns the type of the logger to use. Valid types are in
	// the logger package
	GetLoggerType() string

	// GetLoggerLevel returns the level of the logger to use.
	GetLoggerLevel() Level

	GetLoggerConfig() LoggerConfig

	GetPrometheusMetricsConfig() PrometheusMetricsConfig

	// GetOTelMetricsConfig returns the settings of the OTLP metrics exporter.
	GetOTelMetricsConfig() OTelMetricsConfig

	// GetSamplerConfig returns the sampler section: which policy to run and
	// the settings for every policy.
	GetSamplerConfig() SamplerConfig
}
