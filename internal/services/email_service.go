package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender defines the interface for delivering challenge emails
type EmailSender interface {
	SendChallenge(ctx context.Context, email, code, magicLink string, expiresAt time.Time) error
}

// SESEmailSender delivers challenge emails using AWS SES
type SESEmailSender struct {
	sesClient   *ses.Client
	fromAddress string
	siteName    string
	logger      *slog.Logger
}

// NewSESEmailSender creates a new AWS SES email sender
func NewSESEmailSender(region, fromAddress, siteName string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		siteName:    siteName,
		logger:      logger,
	}, nil
}

// SendChallenge sends the one-time code and magic link to the user
func (s *SESEmailSender) SendChallenge(ctx context.Context, email, code, magicLink string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 16px; background-color: #f8f9fa; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s sign-in code</h1>
        </div>
        <p>Enter this code to finish signing in:</p>
        <div class="code">%s</div>
        <p>Or click the link below to verify directly:</p>
        <p><a href="%s" class="button">Verify sign-in</a></p>
        <p>This code expires in %d minutes.</p>
        <div class="footer">
            <p>If you did not try to sign in, you can ignore this email.</p>
            <p>This is an automated message. Please do not reply.</p>
        </div>
    </div>
</body>
</html>
`, s.siteName, code, magicLink, minutes)

	textBody := fmt.Sprintf(`%s sign-in code

Enter this code to finish signing in: %s

Or open this link to verify directly:
%s

This code expires in %d minutes.

If you did not try to sign in, you can ignore this email.
`, s.siteName, code, magicLink, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(fmt.Sprintf("Your %s sign-in code", s.siteName)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send challenge email via SES",
			slog.String("email", email),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("challenge email sent",
		slog.String("email", email),
		slog.String("message_id", *result.MessageId))

	return nil
}
