package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"migrate", "accounts", "metrics", "risk", "snapshot", "settings"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	set, _, err := root.Find([]string{"settings", "set"})
	require.NoError(t, err)
	assert.Equal(t, "set", set.Name())
}

func TestMetricsRequiresAccount(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"metrics"})
	assert.Error(t, root.Execute())
}
