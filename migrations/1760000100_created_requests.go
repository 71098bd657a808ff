package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("requests")

		collection.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.TextField{Name: "track_uri", Required: true},
			&core.TextField{Name: "track_name"},
			&core.TextField{Name: "artist_name"},
			&core.TextField{Name: "album_name"},
			&core.NumberField{Name: "duration_ms", OnlyInt: true},
			&core.TextField{Name: "requester_name", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "approved", "rejected", "played"},
			},
			&core.DateField{Name: "approved_at"},
			&core.DateField{Name: "rejected_at"},
			&core.DateField{Name: "played_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		collection.AddIndex("idx_requests_user_status", false, "user_id, status, created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("requests")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
