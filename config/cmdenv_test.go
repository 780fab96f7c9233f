package config

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestFielder struct {
	S string
	I int
	F float64
}

// implement getFielder
func (t *TestFielder) GetField(name string) reflect.Value {
	return reflect.ValueOf(t).Elem().FieldByName(name)
}

type TestConfig struct {
	St string  `cmdenv:"S"`
	It int     `cmdenv:"I"`
	Fl float64 `cmdenv:"F"`
	No string
}

type NestedTestConfig struct {
	Inner TestConfig
	Ptr   *TestConfig
}

type BadTestConfig1 struct {
	It int `cmdenv:"Q"`
}
type BadTestConfig2 struct {
	It int `cmdenv:"S"`
}

func TestApplyCmdEnvTags(t *testing.T) {
	tests := []struct {
		name    string
		fielder getFielder
		cfg     any
		want    any
		wantErr bool
	}{
		{"normal", &TestFielder{"foo", 1, 2.3}, &TestConfig{}, &TestConfig{"foo", 1, 2.3, ""}, false},
		{"zero values don't overwrite", &TestFielder{"", 0, 0}, &TestConfig{"keep", 5, 1.5, "x"}, &TestConfig{"keep", 5, 1.5, "x"}, false},
		{"nested", &TestFielder{"foo", 1, 2.3}, &NestedTestConfig{Ptr: &TestConfig{}},
			&NestedTestConfig{Inner: TestConfig{"foo", 1, 2.3, ""}, Ptr: &TestConfig{"foo", 1, 2.3, ""}}, false},
		{"bad", &TestFielder{"foo", 1, 2.3}, &BadTestConfig1{}, &BadTestConfig1{}, true},
		{"type mismatch", &TestFielder{"foo", 1, 2.3}, &BadTestConfig2{17}, &BadTestConfig2{17}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := applyCmdEnvTags(reflect.ValueOf(cfg), tt.fielder)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestNewCmdEnvOptions(t *testing.T) {
	t.Setenv("TRACEGUARD_SAMPLER", "tail")
	opts, err := NewCmdEnvOptions([]string{"traceguard", "-c", "a.yaml", "-c", "b.toml", "--service-name", "checkout"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.toml"}, opts.ConfigLocations)
	assert.Equal(t, "checkout", opts.ServiceName)
	assert.Equal(t, "tail", opts.SamplerType)
	assert.False(t, opts.Validate)
}
