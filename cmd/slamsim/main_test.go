package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slamsim/internal/storage/sqlite"
)

// --- flags ---

func TestParseFlagsDefaults(t *testing.T) {
	t.Parallel()

	o, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "square_room", o.sceneName)
	assert.Equal(t, ":8090", o.listen)
	assert.Empty(t, o.grpcListen)
	assert.False(t, o.goalSet)
	assert.False(t, o.seedSet)
	assert.Equal(t, 6000, o.maxTicks)
}

func TestParseFlagsOverrides(t *testing.T) {
	t.Parallel()

	o, err := parseFlags([]string{
		"-scene", "pillars", "-goal-x", "10", "-seed", "7",
		"-extractor", "ransac", "-duration", "3s", "-grpc-listen", "localhost:0",
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "pillars", o.sceneName)
	assert.True(t, o.goalSet)
	assert.Equal(t, 10.0, o.goalX)
	assert.True(t, o.seedSet)
	assert.Equal(t, int64(7), o.seed)
	assert.Equal(t, 3*time.Second, o.duration)

	cfg, err := loadTuning(o)
	require.NoError(t, err)
	assert.Equal(t, "ransac", cfg.GetFitter())
	assert.Equal(t, int64(7), cfg.GetSeed())
}

func TestParseFlagsRejects(t *testing.T) {
	t.Parallel()

	cases := [][]string{
		{"-extractor", "hough"},
		{"-headless", "-max-ticks", "0"},
		{"-duration", "-1s"},
		{"stray"},
		{"-no-such-flag"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		_, err := parseFlags(args, &stderr)
		assert.Error(t, err, "%v", args)
	}
}

func TestLoadTuningRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadTuning(options{configPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

// --- headless run ---

func TestHeadlessRunRecordsAndPlots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	o, err := parseFlags([]string{
		"-headless", "-max-ticks", "40",
		"-db", filepath.Join(dir, "runs.db"),
		"-plot", filepath.Join(dir, "run.png"),
	}, io.Discard)
	require.NoError(t, err)

	require.NoError(t, run(context.Background(), o))

	data, err := os.ReadFile(o.plotPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	store, err := sqlite.Open(o.dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "square_room", runs[0].Scene)
	assert.Equal(t, uint64(40), runs[0].Ticks)
	assert.NotNil(t, runs[0].FinishedAt)

	poses, err := store.ListPoses(context.Background(), runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, poses, 40)
}

func TestLiveRunStopsAfterDuration(t *testing.T) {
	t.Parallel()

	o, err := parseFlags([]string{"-duration", "200ms", "-listen", "127.0.0.1:0", "-grpc-listen", "127.0.0.1:0"}, io.Discard)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), o) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after -duration")
	}
}
