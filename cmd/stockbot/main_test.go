package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestHelpTree(t *testing.T) {
	out := run(t, "help-tree")
	assert.Contains(t, out, "help\n")
	assert.Contains(t, out, "quote(q) get <short|long> <provider> <ticker>\n")
	assert.Contains(t, out, "scrape stocks <currency> <segment>\n")
}

func TestExecBlocking(t *testing.T) {
	out := run(t, "exec", "--no-color", "quote", "scheduler", "interval", "get")
	assert.Equal(t, "Interval: 3600 seconds\n", out)
}

func TestExecWaitsForTasks(t *testing.T) {
	out := run(t, "exec", "--no-color", "scrape", "stocks", "sek", "nordic", "large", "cap")
	assert.Contains(t, out, "Task started\n")
	assert.Contains(t, out, "Failed: no scraper configured\n")
}

func TestExecUnknown(t *testing.T) {
	out := run(t, "exec", "--no-color", "quoet", "get")
	assert.Contains(t, out, "Does not compute, halp?\n")
}
