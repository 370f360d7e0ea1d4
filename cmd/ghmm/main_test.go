package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/banshee-data/ghmm/internal/monitoring"
	"github.com/banshee-data/ghmm/internal/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(func(string, ...interface{}) {})
	os.Exit(m.Run())
}

var modelIDPattern = regexp.MustCompile(`model ([0-9a-f-]{36}):`)

func runCmd(t *testing.T, command string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(command, args, &out))
	return out.String()
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "models.db")
	input := filepath.Join(dir, "grid.csv")

	out := runCmd(t, "generate", "--output", input, "--trajectories", "5", "--points", "20")
	assert.Contains(t, out, "wrote 5 trajectories of 20 points")

	out = runCmd(t, "learn", "--db", db, "--input", input, "--description", "grid")
	m := modelIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "learn output: %s", out)
	id := m[1]
	assert.Contains(t, out, "5 trajectories")

	out = runCmd(t, "learn", "--db", db, "--input", input, "--model", id)
	assert.Contains(t, out, "model "+id)

	out = runCmd(t, "inspect", "--db", db)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "grid")
	assert.Contains(t, out, "10") // trajectory count after two batches

	out = runCmd(t, "inspect", "--db", db, "--model", id, "--top", "3")
	assert.Contains(t, out, "trajectories=10")
	assert.Contains(t, out, "full_dim=4 observed_dim=2")

	live := filepath.Join(dir, "live.csv")
	require.NoError(t, trajectory.WriteFile(live, trajectory.Grid(1, 5)))
	out = runCmd(t, "track", "--db", db, "--model", id, "--input", live, "--horizon", "3")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 6, "header plus one line per step")
	assert.Contains(t, lines[0], "predicted")

	png := filepath.Join(dir, "topology.png")
	html := filepath.Join(dir, "topology.html")
	out = runCmd(t, "plot", "--db", db, "--model", id, "--png", png, "--html", html)
	assert.Contains(t, out, png)
	assert.FileExists(t, png)
	assert.FileExists(t, html)
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "models.db")
	tests := []struct {
		command string
		args    []string
	}{
		{"bogus", nil},
		{"learn", []string{"--db", db}},
		{"track", []string{"--db", db, "--input", "x.csv"}},
		{"plot", []string{"--db", db, "--model", "m"}},
		{"inspect", nil},
		{"inspect", []string{"--db", db, "--top", "-1"}},
		{"generate", []string{"--output", filepath.Join(dir, "g.csv"), "--points", "0"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.command, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.command, tt.args, &out)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errUsage), "got %v", err)
		})
	}
}

func TestUnknownModel(t *testing.T) {
	db := filepath.Join(t.TempDir(), "models.db")
	var out bytes.Buffer
	err := run("inspect", []string{"--db", db, "--model", "missing"}, &out)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	assert.Contains(t, runCmd(t, "version"), "ghmm ")
}
