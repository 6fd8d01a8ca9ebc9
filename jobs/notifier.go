package jobs

import (
	"context"
	"fmt"
)

// Notifier composes account lifecycle mail and hands it to the queue. It
// satisfies the user and auth services' notifier ports.
type Notifier struct {
	client *Client
}

// NewNotifier builds a Notifier on top of a queue client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Welcome enqueues the post-signup greeting.
func (n *Notifier) Welcome(ctx context.Context, email, fullName string) error {
	_, err := n.client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: "Welcome aboard",
		Body:    fmt.Sprintf("Hi %s,\n\nYour account is ready. You can sign in with this email address.\n", fullName),
	})
	return err
}

// PasswordResetCode enqueues the one-time reset code mail.
func (n *Notifier) PasswordResetCode(ctx context.Context, email, code string) error {
	_, err := n.client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      email,
		Subject: "Your password reset code",
		Body:    fmt.Sprintf("Use code %s to reset your password. It expires in 10 minutes.\n", code),
	})
	return err
}
