package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Latest-by-room lookups sort on updated_at. Not unique: a room may own
// several documents.
func init() {
	m.Register(func(app core.App) error {
		notes, err := app.FindCollectionByNameOrId("notes")
		if err != nil {
			return err
		}

		notes.RemoveIndex("idx_notes_room")
		notes.AddIndex("idx_notes_room_updated", false, "room_id, updated_at DESC", "")

		return app.Save(notes)
	}, func(app core.App) error {
		notes, err := app.FindCollectionByNameOrId("notes")
		if err != nil {
			return err
		}

		notes.RemoveIndex("idx_notes_room_updated")
		notes.AddIndex("idx_notes_room", false, "room_id", "")

		return app.Save(notes)
	})
}
