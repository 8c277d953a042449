package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		notes := core.NewBaseCollection("notes")
		notes.ListRule = nil
		notes.ViewRule = nil
		notes.CreateRule = nil
		notes.UpdateRule = nil
		notes.DeleteRule = nil

		// room_id is an opaque client identifier, not a relation: rooms are
		// not persisted on their own.
		notes.Fields.Add(&core.TextField{
			Name:     "room_id",
			Required: true,
			Max:      128,
		})

		// content field (empty is a valid document)
		notes.Fields.Add(&core.TextField{
			Name:     "content",
			Required: false,
			Max:      512 * 1024,
		})

		notes.Fields.Add(&core.DateField{
			Name:     "created_at",
			Required: true,
		})

		notes.Fields.Add(&core.DateField{
			Name:     "updated_at",
			Required: true,
		})

		notes.Indexes = []string{
			"CREATE INDEX idx_notes_room ON notes(room_id)",
		}

		return app.Save(notes)
	}, func(app core.App) error {
		notes, err := app.FindCollectionByNameOrId("notes")
		if err != nil {
			return nil
		}
		return app.Delete(notes)
	})
}
