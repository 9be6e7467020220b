package notification

import (
	"context"
	"errors"
	"fmt"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

type NotificationType string

const (
	NotificationEmailVerification NotificationType = "email_verification"
	NotificationPasswordReset     NotificationType = "password_reset"
)

type Message struct {
	Type    NotificationType
	To      string
	Subject string
	Body    string
}

// Mailer delivers a message or reports why it could not. Implementations must
// honour the context deadline.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// VerificationEmail builds the message carrying a new account's one-time code.
func VerificationEmail(to, username, code string) Message {
	return Message{
		Type:    NotificationEmailVerification,
		To:      to,
		Subject: "Verify your email",
		Body: fmt.Sprintf("Hello %s,\n\nYour verification code is: %s\n\n"+
			"Enter it in the game to activate your account.", username, code),
	}
}

func PasswordResetEmail(to, username, code string) Message {
	return Message{
		Type:    NotificationPasswordReset,
		To:      to,
		Subject: "Password reset",
		Body: fmt.Sprintf("Hello %s,\n\nYour password reset code is: %s\n\n"+
			"If you did not request a reset you can ignore this email.", username, code),
	}
}
