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
			name:    "separate value",
			args:    []string{"-z", "30000", "-a", ":50051"},
			allowed: []string{"-z"},
			want:    []string{"-z", "30000"},
		},
		{
			name:    "equals form",
			args:    []string{"-t=45000", "-a", ":50051"},
			allowed: []string{"-t"},
			want:    []string{"-t=45000"},
		},
		{
			name:    "order preserved",
			args:    []string{"-k=one", "-z", "10", "-q", "1"},
			allowed: []string{"-k", "-z"},
			want:    []string{"-k=one", "-z", "10"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next arg is a flag, not a value",
			args:    []string{"-c", "-other"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowed)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigFile(t *testing.T) {
	assert.Equal(t, "relay.json", ConfigFile([]string{"-a", ":1", "-c", "relay.json"}))
	assert.Equal(t, "edge.json", ConfigFile([]string{"-config=edge.json"}))
	assert.Equal(t, "", ConfigFile([]string{"-a", ":1"}))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b,,c "))
	assert.Nil(t, SplitList(" , "))
}
