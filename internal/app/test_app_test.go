package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assemblyline/internal/artifact"
	"assemblyline/internal/config"
	"assemblyline/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.DataDir = t.TempDir()
	cfg.Engine.SkipToolchain = true
	cfg.Storage.Backend = storage.BackendDisk
	cfg.Storage.Dir = cfg.FilesDir()
	cfg.LLM.Provider = "fake"
	return cfg
}

func TestNewWiresEngine(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	adapter, err := a.Engine.Adapter("")
	require.NoError(t, err)
	run, err := a.Engine.Run(context.Background(), []artifact.Fragment{
		artifact.NewFragment("src/index.ts", "export const answer = 42;\n"),
	}, adapter)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusCompleted, run.Status)

	_, err = os.Stat(filepath.Join(cfg.RunsDir(), run.ID+".json"))
	assert.NoError(t, err, "run record is written under the data dir")
	_, err = os.Stat(filepath.Join(cfg.FilesDir(), run.ID, "src", "index.ts"))
	assert.NoError(t, err, "files land in the disk store")

	events, err := a.Logs.Read(run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestHandlerServesHealth(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	res, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestNewRejectsUnknownDefaultStack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.DefaultStack = "cobol"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
