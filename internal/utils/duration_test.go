package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "go syntax", input: `"5m"`, expected: 5 * time.Minute},
		{name: "compound", input: `"1h30m"`, expected: 90 * time.Minute},
		{name: "seconds", input: `"45s"`, expected: 45 * time.Second},
		{name: "integer nanoseconds", input: `1000000000`, expected: time.Second},
		{name: "garbage", input: `"soon"`, wantErr: true},
		{name: "wrong type", input: `[1, 2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := yaml.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Std())
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}
