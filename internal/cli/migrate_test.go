package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/tinker/internal/storage"
)

func TestMigrateCommand(t *testing.T) {
	setupServices(t)
	dir := t.TempDir()
	legacy := `goal:
  id: 3f2a9c1d-0000-4000-8000-000000000000
  description: Ship the beta
  time_window_days: 30
messages:
  - role: user
    content: started
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "goals.yaml"), []byte(legacy), 0o644))
	store := storage.NewGoalStore(dir, func() time.Time { return testNow })
	Goals, GoalsFile = store, store

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrated goal store from schema v1 to v3.")

	out, err = run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "already at schema v3")

	gc, err := store.GetContext("3f2a9c1d")
	require.NoError(t, err)
	require.Len(t, gc.Messages, 1)
	assert.Equal(t, "started", gc.Messages[0].Content)
}
