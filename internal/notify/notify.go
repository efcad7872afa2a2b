// Package notify mirrors practice feedback as desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/voxlingua/parla/internal/practice"
)

const appName = "Parla"

// maxBody caps the notification body; desktop daemons truncate or reject
// very long strings.
const maxBody = 160

// Notifier sends desktop notifications for attempt feedback. Notification
// failures are ignored; the CLI output carries the same information.
type Notifier struct {
	enabled bool
}

// New creates a Notifier. When enabled is false every method is a no-op.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// Listening announces that the microphone is open.
func (n *Notifier) Listening(target string) {
	n.notify("Listening", "Say: "+target)
}

// Feedback shows the outcome of one pronunciation attempt.
func (n *Notifier) Feedback(ev practice.FeedbackEvent) {
	n.notify(title(ev.Outcome), ev.Message)
}

func title(o practice.Outcome) string {
	switch o {
	case practice.OutcomePass:
		return "Passed"
	case practice.OutcomeFail:
		return "Not quite"
	default:
		return "Attempt ended"
	}
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled {
		return
	}
	if len(message) > maxBody {
		message = message[:maxBody] + "..."
	}
	_ = beeep.Notify(appName+": "+title, message, "")
}
