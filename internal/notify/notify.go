// Package notify raises desktop notifications when a task fails.
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/beeep"

	"github.com/conneroisu/sitekit/internal/build"
	"github.com/conneroisu/sitekit/internal/logging"
)

// AppName is shown as the notification source where the platform supports it.
const AppName = "sitekit"

// maxBody keeps notification bodies readable.
const maxBody = 200

type sendFunc func(title, message string, icon any) error

// Desktop sends build failures to the desktop notification center.
type Desktop struct {
	logger logging.Logger
	send   sendFunc
}

// NewDesktop returns a notifier backed by beeep.
func NewDesktop(logger logging.Logger) *Desktop {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	beeep.AppName = AppName
	return &Desktop{logger: logger.WithComponent("notify"), send: beeep.Notify}
}

// Notify is a build callback. Only failed runs produce a notification.
func (d *Desktop) Notify(ev build.Event) {
	if ev.Kind != build.EventError {
		return
	}
	title, body := Message(ev)
	if err := d.send(title, body, ""); err != nil {
		d.logger.Warn(context.Background(), err, "Notification failed", "task", ev.Task)
	}
}

// Message formats the title and body for a failed run.
func Message(ev build.Event) (string, string) {
	title := fmt.Sprintf("%s: '%s' failed", AppName, ev.Task)
	if len(ev.Errors) == 0 {
		return title, "See the terminal for details."
	}

	first := ev.Errors[0]
	body := first.Message
	if loc := first.Location(); loc != "" {
		body = loc + "\n" + body
	}
	if n := len(ev.Errors) - 1; n > 0 {
		body += fmt.Sprintf("\n(+%d more)", n)
	}
	body = strings.TrimSpace(body)
	if len(body) > maxBody {
		cut := maxBody - 3
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return title, body
}
