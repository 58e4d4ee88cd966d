// Package ses delivers client emails through Amazon SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/infrastructure/mail"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
)

type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type Mailer struct {
	client           API
	from             string
	configurationSet string
	executor         *resilience.Executor
}

func New(client API, from, configurationSet string, executor *resilience.Executor) (*Mailer, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is nil")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("ses sender address is required")
	}
	return &Mailer{
		client:           client,
		from:             from,
		configurationSet: strings.TrimSpace(configurationSet),
		executor:         executor,
	}, nil
}

func NewClient(cfg aws.Config) *sesv2.Client {
	return sesv2.NewFromConfig(cfg)
}

func (m *Mailer) SendInvitation(ctx context.Context, inv ports.Invitation) (string, error) {
	return m.send(ctx, mail.KindInvitation, inv)
}

func (m *Mailer) SendReminder(ctx context.Context, inv ports.Invitation) (string, error) {
	return m.send(ctx, mail.KindReminder, inv)
}

func (m *Mailer) send(ctx context.Context, kind mail.Kind, inv ports.Invitation) (string, error) {
	msg, err := mail.Compose(kind, inv)
	if err != nil {
		return "", err
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("kind"), Value: aws.String(string(kind))},
		},
	}
	if m.configurationSet != "" {
		input.ConfigurationSetName = aws.String(m.configurationSet)
	}

	var messageID string
	call := func(ctx context.Context) error {
		out, err := m.client.SendEmail(ctx, input)
		if err != nil {
			return fmt.Errorf("ses send %s: %w", kind, err)
		}
		messageID = aws.ToString(out.MessageId)
		return nil
	}
	if m.executor != nil {
		err = m.executor.Execute(ctx, "ses.send_email", call, classifySESError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.WrapTemporary("ses send email", err, classifySESError)
	}
	return messageID, nil
}

func classifySESError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return resilience.Transient
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		return resilience.ClassifyHTTPStatus(status.HTTPStatusCode())
	}
	return resilience.Permanent
}
