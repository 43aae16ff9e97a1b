package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// EmailConfig holds configuration for the Postmark-backed notifier.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN,required"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN,required"`
	SenderEmail          string `env:"NOTIFY_SENDER_EMAIL,required"`
	SupportEmail         string `env:"NOTIFY_SUPPORT_EMAIL,required"`
}

// EmailNotifier delivers notifications over Postmark's transactional API.
type EmailNotifier struct {
	client *postmark.Client
	config EmailConfig
}

// NewEmailNotifier creates a Postmark-backed notifier. Both tokens are
// required so a misconfigured deployment fails at startup rather than
// silently dropping mail.
func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}

	return &EmailNotifier{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func (n *EmailNotifier) Send(ctx context.Context, notification Notification) error {
	if notification.Email == "" {
		return ErrMissingRecipient
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:     n.config.SenderEmail,
		ReplyTo:  n.config.SupportEmail,
		To:       notification.Email,
		Subject:  notification.Title,
		TextBody: notification.Message,
		Tag:      string(notification.Kind),
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
