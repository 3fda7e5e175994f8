package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "short flag with separate value",
			args:    []string{"-c", "conf.json", "-d", "/tmp/data"},
			allowed: ConfigFlags,
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=alt.json", "-r", "http://localhost"},
			allowed: ConfigFlags,
			want:    []string{"-config=alt.json"},
		},
		{
			name:    "unknown flags and positionals ignored",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: ConfigFlags,
			want:    []string{},
		},
		{
			name:    "flag without value at end",
			args:    []string{"-c"},
			allowed: ConfigFlags,
			want:    []string{"-c"},
		},
		{
			name:    "next dash token is not a value",
			args:    []string{"-c", "-config=alt.json"},
			allowed: ConfigFlags,
			want:    []string{"-c", "-config=alt.json"},
		},
		{
			name:    "value that looks like a flag in equals form",
			args:    []string{"-config=--weird.json"},
			allowed: ConfigFlags,
			want:    []string{"-config=--weird.json"},
		},
		{
			name:    "several allowed flags keep order",
			args:    []string{"-d", "/data", "-c", "conf.json", "-l", "debug", "-q"},
			allowed: []string{"-d", "-l"},
			want:    []string{"-d", "/data", "-l", "debug"},
		},
		{
			name:    "empty args",
			args:    nil,
			allowed: ConfigFlags,
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short", args: []string{"-c", "/path/short.json"}, want: "/path/short.json"},
		{name: "long", args: []string{"-config", "/path/long.json"}, want: "/path/long.json"},
		{name: "equals", args: []string{"-config=/path/eq.json"}, want: "/path/eq.json"},
		{name: "absent", args: []string{"-d", "/data", "-l", "info"}, want: ""},
		{name: "last wins", args: []string{"-c", "/path/1.json", "-config", "/path/2.json"}, want: "/path/2.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}
