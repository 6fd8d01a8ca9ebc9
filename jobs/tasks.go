package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSweepExpired is the task type for purging expired sessions and
	// reset codes.
	TaskTypeSweepExpired = "auth:sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers one message. Satisfied by the SMTP mailer.
type Mailer interface {
	Send(to, subject, body string) error
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewSendEmailHandler builds the handler processing TaskTypeSendEmail tasks.
func NewSendEmailHandler(mailer Mailer, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("send_email")
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		return tracker.End(mailer.Send(payload.To, payload.Subject, payload.Body))
	}
}

// NewSweepExpiredTask constructs the periodic cleanup task.
func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepExpired, nil)
}

// NewSweepExpiredHandler builds the handler deleting expired session audit
// rows and burnt or expired reset codes.
func NewSweepExpiredHandler(pool *pgxpool.Pool, metrics *Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("sweep_expired")
		if _, err := pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`); err != nil {
			return tracker.End(err)
		}
		_, err := pool.Exec(ctx, `DELETE FROM otps WHERE used OR expires_at < now()`)
		return tracker.End(err)
	}
}
