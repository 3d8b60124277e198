package activity

import (
	"fmt"
	"io"

	"github.com/zoobzio/fetchz"
)

// EmptyMessage is rendered for a list without activities.
const EmptyMessage = "No saved activities.."

// Render writes a text view of the list state to w. A request in flight
// renders as "loading" and a failure as its message. Otherwise each activity
// gets one line with a checkbox, its description, id and creation time.
func Render(w io.Writer, state fetchz.RequestState[Activities]) error {
	if state.Status == fetchz.StatusFetching {
		_, err := fmt.Fprintln(w, "loading")
		return err
	}
	if msg, failed := state.Failure(); failed {
		_, err := fmt.Fprintln(w, msg)
		return err
	}

	items, _ := state.Value()
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, EmptyMessage)
		return err
	}
	for _, a := range items {
		if _, err := fmt.Fprintln(w, Line(a)); err != nil {
			return err
		}
	}
	return nil
}

// Line formats a single activity.
func Line(a Activity) string {
	box := "[ ]"
	if a.Checked {
		box = "[x]"
	}
	return fmt.Sprintf("%s %s  (%s, %s at %s)",
		box,
		a.Description,
		a.ID,
		a.Created.Local().Format("Mon Jan 02 2006"),
		a.Created.Local().Format("15:04:05"),
	)
}
