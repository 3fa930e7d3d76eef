package ingester_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfstor/pkg/api/ingester"
	"github.com/ethpandaops/perfstor/pkg/api/storage"
	"github.com/ethpandaops/perfstor/pkg/api/store"
	"github.com/ethpandaops/perfstor/pkg/config"
)

func setup(t *testing.T) (store.Store, storage.Backend, *logrus.Logger) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{
			Path: filepath.Join(t.TempDir(), "perfstor.db"),
		},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	backend := storage.NewLocalBackend(log, &config.LocalStorageConfig{
		Enabled: true,
		Path:    t.TempDir(),
	})

	return st, backend, log
}

func put(t *testing.T, backend storage.Backend, key, body string) {
	t.Helper()

	require.NoError(t, backend.Put(context.Background(), key, []byte(body), "application/json"))
}

func TestIngester_RunOnce(t *testing.T) {
	ctx := context.Background()
	st, backend, log := setup(t)

	put(t, backend, "incoming/single.json",
		`{"id":99,"testName":"load-test-1","timeStart":"2024-01-01T10:00:00","timeEnd":"2024-01-01T10:05:00","duration":300.0}`)
	put(t, backend, "incoming/nightly/batch.json",
		`[{"testName":"soak"},{"testName":"spike","duration":12.5}]`)
	put(t, backend, "incoming/notes.txt", "ignored")
	put(t, backend, "elsewhere/other.json", `{"testName":"outside prefix"}`)

	in := ingester.NewIngester(log, st, backend, "incoming", time.Minute, 2)

	n, err := in.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := st.Runs().FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	names := make([]string, 0, len(runs))
	for _, r := range runs {
		names = append(names, r.TestName)
		assert.NotEqual(t, uint(99), r.ID, "ids from files are not trusted")
	}

	assert.ElementsMatch(t, []string{"load-test-1", "soak", "spike"}, names)

	keys, err := st.ListIngestedKeys(ctx, "local")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"incoming/single.json", "incoming/nightly/batch.json"}, keys)

	// A second pass imports nothing new.
	n, err = in.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	runs, err = st.Runs().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestIngester_BadObjectRetriedNextPass(t *testing.T) {
	ctx := context.Background()
	st, backend, log := setup(t)

	put(t, backend, "incoming/broken.json", `{"testName":`)
	put(t, backend, "incoming/good.json", `{"testName":"ok"}`)

	in := ingester.NewIngester(log, st, backend, "incoming", time.Minute, 0)

	n, err := in.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	keys, err := st.ListIngestedKeys(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, []string{"incoming/good.json"}, keys)

	// Fixing the object lets the next pass pick it up.
	put(t, backend, "incoming/broken.json", `{"testName":"fixed"}`)

	n, err = in.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	runs, err := st.Runs().FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestIngester_StartStop(t *testing.T) {
	st, backend, log := setup(t)

	put(t, backend, "incoming/a.json", `{"testName":"background"}`)

	in := ingester.NewIngester(log, st, backend, "incoming", time.Hour, 1)
	require.NoError(t, in.Start(context.Background()))

	require.Eventually(t, func() bool {
		runs, err := st.Runs().FindAll(context.Background())

		return err == nil && len(runs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, in.Stop())
	require.NoError(t, in.Stop(), "stop is idempotent")
}

func TestDecodeRuns(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "object", input: `{"testName":"a"}`, want: 1},
		{name: "array", input: ` [{"testName":"a"},{"testName":"b"}]`, want: 2},
		{name: "empty array", input: `[]`, want: 0},
		{name: "empty", input: "  ", wantErr: true},
		{name: "bad time", input: `{"timeStart":"noon"}`, wantErr: true},
		{name: "truncated", input: `[{"testName":"a"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := ingester.DecodeRuns([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}
}
