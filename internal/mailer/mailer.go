package mailer

import "context"

// Mailer is the outbound delivery port. One call hands one message to the
// outside relay; the relay applies its own throttling and queueing.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
