// Package email mails daily and weekly reports to managers.
package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type Sender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

// ErrNoSender is returned by NewSESSender when no From address is configured.
var ErrNoSender = errors.New("email: no sender address configured")

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client    sesAPI
	fromEmail string
}

func NewSESSender(cfg aws.Config, from string) (*SESSender, error) {
	if from == "" {
		return nil, ErrNoSender
	}
	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: from,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("email: empty recipient for %q", subject)
	}
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	return nil
}
