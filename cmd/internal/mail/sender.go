// Package mail delivers activation links to newly registered principals.
//
// Delivery is decoupled from registration: the HTTP layer enqueues a Notice on
// a Dispatcher and returns; failures are logged and counted, never propagated.
package mail

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Notice is the canonical payload for activation delivery.
type Notice struct {
	PrincipalID string
	Handle      string
	Contact     string
	Link        string
}

// Sender delivers one activation notice.
type Sender interface {
	SendActivation(ctx context.Context, n Notice) error
}

// ActivationLink builds <baseURL>/register/activate/<id>.
func ActivationLink(baseURL, principalID string) string {
	return strings.TrimRight(baseURL, "/") + "/register/activate/" + url.PathEscape(principalID)
}

// NoopSender drops every notice.
type NoopSender struct{}

func (NoopSender) SendActivation(context.Context, Notice) error { return nil }

// LogSender writes the activation link to the log instead of sending mail (dev).
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendActivation(ctx context.Context, n Notice) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "mail.activation.dev",
		"principal_id", n.PrincipalID,
		"contact", n.Contact,
		"link", n.Link,
	)
	return nil
}
