package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher pushes realtime messages to connected clients.
type Publisher interface {
	Publish(ctx context.Context, msgType string, payload any) error
	PublishToUser(ctx context.Context, userID, msgType string, payload any) error
}

// Mailer sends a plain text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// Recipient is who an invitation is delivered to.
type Recipient struct {
	ID    string
	Email string
}

// Dispatcher performs the side effects that follow a committed
// transition. Every delivery is best effort: failures are logged and
// never undo the transition.
type Dispatcher struct {
	pub    Publisher
	mail   Mailer
	render func(kind, entityName, message string) (subject, body string)
}

func NewDispatcher(pub Publisher, mail Mailer, render func(kind, entityName, message string) (string, string)) *Dispatcher {
	return &Dispatcher{pub: pub, mail: mail, render: render}
}

// Broadcast announces a change to an entity to every client.
func (d *Dispatcher) Broadcast(ctx context.Context, msgType string, payload any) {
	if d == nil || d.pub == nil {
		return
	}
	if err := d.pub.Publish(ctx, msgType, payload); err != nil {
		log.Warn().Err(err).Str("type", msgType).Msg("publish failed")
	}
}

// Invited tells the recipient about a new inbox entry over the realtime
// channel and by email.
func (d *Dispatcher) Invited(ctx context.Context, to Recipient, kind string, e Entry) {
	if d == nil {
		return
	}
	if d.pub != nil {
		if err := d.pub.PublishToUser(ctx, to.ID, "invitation.created", map[string]any{
			"kind":         kind,
			"notification": e,
		}); err != nil {
			log.Warn().Err(err).Str("user_id", to.ID).Msg("invitation publish failed")
		}
	}
	if d.mail != nil && d.render != nil && to.Email != "" {
		subject, body := d.render(kind, e.EntityName, e.Message)
		if err := d.mail.Send(to.Email, subject, body); err != nil {
			log.Warn().Err(err).Str("user_id", to.ID).Msg("invitation email failed")
		}
	}
}

// Resolved tells the recipient an invitation left their inbox.
func (d *Dispatcher) Resolved(ctx context.Context, userID, kind, entityID, outcome string) {
	if d == nil || d.pub == nil {
		return
	}
	if err := d.pub.PublishToUser(ctx, userID, "invitation."+outcome, map[string]any{
		"kind":     kind,
		"entity_id": entityID,
	}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("invitation publish failed")
	}
}
