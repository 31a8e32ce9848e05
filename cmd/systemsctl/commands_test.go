package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oriumgames/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configPath, logLevel, ticks = "", "", 0
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestGraphCommand(t *testing.T) {
	out := execute(t, "graph")
	assert.Equal(t, []string{
		"main.AdvanceClock",
		"main.Simulation",
		"  main.ApplyGravity",
		"  main.ApplyDrag",
		"  main.Integrate",
		"main.Report",
	}, strings.Split(strings.TrimRight(out, "\n"), "\n"))
}

func TestRunCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\nscheduler:\n  tick_rate: 10ms\n"), 0o600))

	out := execute(t, "run", "--config", path, "--ticks", "200")
	assert.Contains(t, out, "ticks=200 ")
	assert.Contains(t, out, "bounces=")
}

func TestSimulation(t *testing.T) {
	cfg := systems.DefaultConfig()
	s, err := newScheduler(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer s.Dispose()

	for range 100 {
		s.Update()
	}

	body := systems.GetResource[Body](s)
	assert.GreaterOrEqual(t, body.Position.Y(), 0.0)
	assert.Greater(t, body.Position.X(), 0.0)
	assert.Equal(t, uint64(100), systems.GetResource[Clock](s).Tick)
	assert.Positive(t, systems.GetResource[Stats](s).Bounces)
}
