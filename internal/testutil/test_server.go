package testutil

import (
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"

	// registers the notes collection migrations
	_ "github.com/damione1/collab-notes/migrations"
)

// NewTestApp creates a PocketBase test app in a temporary data dir with the
// project migrations applied. The app is cleaned up with the test.
func NewTestApp(t *testing.T) core.App {
	t.Helper()

	app, err := tests.NewTestApp(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create test app: %v", err)
	}
	t.Cleanup(app.Cleanup)

	if err := app.RunAppMigrations(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return app
}
