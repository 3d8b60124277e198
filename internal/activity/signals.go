package activity

import "github.com/zoobzio/capitan"

// Store mutation signals, emitted by the server.
var (
	Created = capitan.NewSignal(
		"activity.created",
		"Activity created",
	)

	Updated = capitan.NewSignal(
		"activity.updated",
		"Activity checked flag changed",
	)

	Deleted = capitan.NewSignal(
		"activity.deleted",
		"Activity deleted",
	)
)

// Field keys for activity events.
var (
	KeyID          = capitan.NewStringKey("id")
	KeyDescription = capitan.NewStringKey("description")
	KeyChecked     = capitan.NewBoolKey("checked")
)
