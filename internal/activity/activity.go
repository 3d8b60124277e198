// Package activity is a small to-do list application built on fetchz. It
// carries the model, an in-memory store with an HTTP API, and a client that
// drives the list through fetchz executors.
package activity

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ListKey is the resource key of the activity list.
const ListKey = "activities"

// ItemKey returns the resource key of a single activity.
func ItemKey(id string) string {
	return ListKey + "/" + id
}

var validate = validator.New()

// Activity is one entry of the to-do list.
type Activity struct {
	ID          string    `json:"id" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Checked     bool      `json:"checked"`
	Created     time.Time `json:"created" validate:"required"`
}

// Validate implements fetchz.Validator.
func (a Activity) Validate() error {
	return validate.Struct(a)
}

// Activities is the activity list, newest first.
type Activities []Activity

// Validate implements fetchz.Validator by validating every entry.
func (l Activities) Validate() error {
	for i, a := range l {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("activity %d: %w", i, err)
		}
	}
	return nil
}

// Find returns the activity with the given id.
func (l Activities) Find(id string) (Activity, bool) {
	for _, a := range l {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}
