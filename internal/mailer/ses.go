package mailer

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/maisondore/newsletter/internal/config"
)

// Sender delivers a confirmation message carrying the given link.
type Sender interface {
	SendConfirmation(ctx context.Context, to, confirmURL string) error
}

// SESSender sends confirmation emails through AWS SES v2.
type SESSender struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
	brandName string
}

// NewSESSender builds an SES v2 client from static credentials.
func NewSESSender(ctx context.Context, cfg appconfig.SESConfig, brandName string) (*SESSender, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESSender{
		client:    sesv2.NewFromConfig(awsCfg),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		brandName: brandName,
	}, nil
}

// SendConfirmation renders and sends the confirmation email.
func (s *SESSender) SendConfirmation(ctx context.Context, to, confirmURL string) error {
	html, err := RenderConfirmation(s.brandName, confirmURL)
	if err != nil {
		return err
	}

	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data: aws.String(fmt.Sprintf("Confirm your %s subscription", s.brandName)),
				},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html)},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}
	return nil
}

// ConfirmURL builds the confirmation link for a token.
func ConfirmURL(base, token string) string {
	return fmt.Sprintf("%s?token=%s", base, url.QueryEscape(token))
}
