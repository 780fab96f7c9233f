package config

import "sync"

// MockConfig will respond with whatever config it's set to do during
// initialization
type MockConfig struct {
	Hash                    string
	GeneralConfig           GeneralConfig
	LoggerType              string
	LoggerLevel             Level
	LoggerConfig            LoggerConfig
	PrometheusMetricsConfig PrometheusMetricsConfig
	OTelMetricsConfig       OTelMetricsConfig
	SamplerConfig           SamplerConfig
	Mux                     sync.RWMutex
}

func (m *MockConfig) GetHash() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.Hash
}

func (m *MockConfig) GetGeneralConfig() GeneralConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.GeneralConfig
}

func (m *MockConfig) GetLoggerType() string {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.LoggerType
}

func (m *MockConfig) GetLoggerLevel() Level {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.LoggerLevel
}

func (m *MockConfig) GetLoggerConfig() LoggerConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.LoggerConfig
}

func (m *MockConfig) GetPrometheusMetricsConfig() PrometheusMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.PrometheusMetricsConfig
}

func (m *MockConfig) GetOTelMetricsConfig() OTelMetricsConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.OTelMetricsConfig
}

func (m *MockConfig) GetSamplerConfig() SamplerConfig {
	m.Mux.RLock()
	defer m.Mux.RUnlock()
	return m.SamplerConfig
}
