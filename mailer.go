package identity

import "context"

// MailKind selects the template the dispatcher renders around a raw secret.
type MailKind string

const (
	// MailKindEmailVerification carries an email-verification link
	MailKindEmailVerification MailKind = "email_verification"
	// MailKindOrganizationInvite carries a password-setup invite link
	MailKindOrganizationInvite MailKind = "organization_invite"
	// MailKindPasswordReset carries a password-reset link
	MailKindPasswordReset MailKind = "password_reset"
)

// Mailer hands a raw secret to the delivery collaborator. A non-nil error
// means the message was not accepted for delivery; registration treats that
// as fatal, recovery logs and stays silent.
type Mailer interface {
	Send(ctx context.Context, kind MailKind, recipient, rawToken string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, kind MailKind, recipient, rawToken string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, kind MailKind, recipient, rawToken string) error {
	if f == nil {
		return nil
	}
	return f(ctx, kind, recipient, rawToken)
}

// LogMailer prints the notification instead of delivering it. Development
// only: it writes raw secrets to the log.
type LogMailer struct {
	Logger Logger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, kind MailKind, recipient, rawToken string) error {
	logger := normalizeLogger(m.Logger)
	logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	logger.Info("kind: %s to: %s", kind, recipient)
	logger.Info("token: %s", rawToken)
	return nil
}
