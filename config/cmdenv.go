package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/jessevdk/go-flags"
)

// CmdEnv is a struct that contains all the command line options; it's
// separate from the config struct so that we can apply the command line options
// and env vars after loading the config, and so they don't have to be tied to
// the config struct. Command line options override env vars, and both of them
// override values already in the struct when ApplyTags is called.
// Note that this system uses reflection to establish the relationship between
// the config struct and the command line options.
type CmdEnv struct {
	ConfigLocations      []string `short:"c" long:"config" env:"TRACEGUARD_CONFIG" env-delim:"," default:"/etc/traceguard/config.yaml" description:"config file or URL to load; may be repeated"`
	ServiceName          string   `long:"service-name" env:"TRACEGUARD_SERVICE_NAME" description:"service name for spans without service.name"`
	AdminListenAddr      string   `long:"admin-listen-addr" env:"TRACEGUARD_ADMIN_LISTEN_ADDR" description:"address for the admin API"`
	DebugServiceAddr     string   `long:"debug-service-addr" env:"TRACEGUARD_DEBUG_SERVICE_ADDR" description:"address for the debug service when running with --debug"`
	PrometheusListenAddr string   `long:"prometheus-listen-addr" env:"TRACEGUARD_PROMETHEUS_LISTEN_ADDR" description:"address for the prometheus metrics endpoint"`
	OTelMetricsAPIKey    string   `long:"otel-metrics-api-key" env:"TRACEGUARD_OTEL_METRICS_API_KEY" description:"API key sent with OTLP metrics"`
	SamplerType          string   `long:"sampler" env:"TRACEGUARD_SAMPLER" description:"sampler type: priority, ratelimited or tail"`
	LogLevel             string   `long:"log-level" env:"TRACEGUARD_LOG_LEVEL" description:"log level override"`
	Debug                bool     `short:"d" long:"debug" description:"log the dependency injection graph"`
	Version              bool     `short:"v" long:"version" description:"print version number and exit"`
	Validate             bool     `short:"V" long:"validate" description:"validate the configuration and exit"`
}

func NewCmdEnvOptions(args []string) (*CmdEnv, error) {
	opts := &CmdEnv{}

	if _, err := flags.ParseArgs(opts, args[1:]); err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			return nil, err
		default:
			return nil, err
		}
	}

	return opts, nil
}

// GetField returns the reflect.Value for the field with the given name in the CmdEnv struct.
func (c *CmdEnv) GetField(name string) reflect.Value {
	return reflect.ValueOf(c).Elem().FieldByName(name)
}

// ApplyTags uses reflection to apply the values from the CmdEnv struct to the given struct.
// Any field in the struct that wants to be set from the command line must have a `cmdenv` tag on it that names
// the field in the CmdEnv struct that should be used to set the value. The types must match. If the
// named field in CmdEnv is the zero value, then it will not be applied.
func (c *CmdEnv) ApplyTags(s reflect.Value) error {
	return applyCmdEnvTags(s, c)
}

type getFielder interface {
	GetField(name string) reflect.Value
}

// applyCmdEnvTags is a helper function that applies the values from the given GetFielder to the given struct.
// We do it this way to make it easier to test.
func applyCmdEnvTags(s reflect.Value, fielder getFielder) error {
	switch s.Kind() {
	case reflect.Struct:
		t := s.Type()

		for i := 0; i < s.NumField(); i++ {
			field := s.Field(i)
			fieldType := t.Field(i)

			if tag := fieldType.Tag.Get("cmdenv"); tag != "" {
				value := fielder.GetField(tag)
				if !value.IsValid() {
					// the tag must name a field in CmdEnv
					return fmt.Errorf("programming error -- invalid field name: %s", tag)
				}
				if !field.CanSet() {
					return fmt.Errorf("programming error -- cannot set new value for: %s", fieldType.Name)
				}

				if !value.IsZero() {
					if fieldType.Type != value.Type() {
						return fmt.Errorf("programming error -- types don't match for field: %s (%v and %v)",
							fieldType.Name, fieldType.Type, value.Type())
					}
					field.Set(value)
				}
			}

			// recurse into any nested structs
			if err := applyCmdEnvTags(field, fielder); err != nil {
				return err
			}
		}

	case reflect.Ptr:
		if !s.IsNil() {
			return applyCmdEnvTags(s.Elem(), fielder)
		}
	}
	return nil
}
