package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePortSpec(t *testing.T) {
	tests := []struct {
		in   string
		want PortSpec
	}{
		{"8080", PortSpec{ContainerPort: 8080, Protocol: "tcp"}},
		{"9000:80", PortSpec{HostPort: 9000, ContainerPort: 80, Protocol: "tcp"}},
		{"DB_PORT:5432", PortSpec{Property: "DB_PORT", ContainerPort: 5432, Protocol: "tcp"}},
		{"127.0.0.1:WEB_PORT:80/udp", PortSpec{HostIP: "127.0.0.1", Property: "WEB_PORT", ContainerPort: 80, Protocol: "udp"}},
		{":80", PortSpec{ContainerPort: 80, Protocol: "tcp"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePortSpec(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePortSpecInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "70000", "80/sctp", "nothost:prop:80", "db.port:5432"} {
		_, err := ParsePortSpec(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidSpec), in)
	}
}

func TestDependencies(t *testing.T) {
	spec := ContainerSpec{
		Name:        "app",
		Links:       []string{"db:database", "cache", "db"},
		VolumesFrom: []string{"data", "cache"},
	}
	assert.Equal(t, []string{"db", "cache", "data"}, spec.Dependencies())
}

func TestArguments(t *testing.T) {
	shell := &Arguments{Shell: `run --name my\ app  -v`}
	require.NoError(t, shell.Validate())
	assert.Equal(t, []string{"run", "--name", "my app", "-v"}, shell.Strings())

	exec := &Arguments{Exec: []string{"sh", "-c", "echo hi"}}
	require.NoError(t, exec.Validate())
	assert.Equal(t, []string{"sh", "-c", "echo hi"}, exec.Strings())

	both := &Arguments{Shell: "a", Exec: []string{"b"}}
	assert.ErrorIs(t, both.Validate(), ErrInvalidSpec)
	assert.ErrorIs(t, (&Arguments{}).Validate(), ErrInvalidSpec)
}

func TestWaitSpecProbes(t *testing.T) {
	var nilSpec *WaitSpec
	assert.Nil(t, nilSpec.HTTPProbe())
	assert.Nil(t, nilSpec.LogProbe())

	legacy := &WaitSpec{URL: "http://localhost/"}
	assert.Equal(t, &HTTPProbe{URL: "http://localhost/"}, legacy.HTTPProbe())

	spec := &WaitSpec{Fail: "ERROR"}
	assert.Equal(t, &LogProbe{Failure: "ERROR"}, spec.LogProbe())
}

func TestCycleErrorMessage(t *testing.T) {
	err := &CycleError{Names: []string{"a", "b"}}
	assert.Equal(t, "dependency cycle detected: a -> b -> a", err.Error())
	assert.ErrorIs(t, err, ErrResolution)
}
