package config_test

import (
	"testing"
	"time"

	"github.com/damione1/collab-notes/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := config.Load()

		require.NoError(t, err)
		assert.Equal(t, config.DriverPocketBase, cfg.StoreDriver)
		assert.Equal(t, "Anonymous", cfg.AnonymousName)
		assert.Equal(t, 4, cfg.PersistWorkers)
		assert.Equal(t, 200*time.Millisecond, cfg.PersistBaseRetryDelay)
		assert.Equal(t, []string{"*"}, cfg.Origins())
	})

	t.Run("reads environment overrides", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("PERSIST_WORKERS", "2")
		t.Setenv("ALLOWED_ORIGINS", "example.com, *.example.org")

		cfg, err := config.Load()

		require.NoError(t, err)
		assert.Equal(t, config.DriverMemory, cfg.StoreDriver)
		assert.Equal(t, 2, cfg.PersistWorkers)
		assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.Origins())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("STORE_DRIVER", "mongo")

		_, err := config.Load()

		assert.Error(t, err)
	})

	t.Run("rejects zero workers", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("PERSIST_WORKERS", "0")

		_, err := config.Load()

		assert.Error(t, err)
	})
}
