// internal/common/notify/email.go
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
)

// OpsEmailNotifier mails the operations inbox when a case exhausts all waves
// and needs a human. Other event types pass through silently; candidates get
// their offers and nudges over SNS fan-out, not direct email.
type OpsEmailNotifier struct {
	ses      SESService
	from     string
	opsEmail string
	logger   logger.Logger
}

func NewOpsEmailNotifier(ctx context.Context, region, from, opsEmail string, log logger.Logger) (*OpsEmailNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &OpsEmailNotifier{
		ses:      ses.NewFromConfig(awsCfg),
		from:     from,
		opsEmail: opsEmail,
		logger:   log,
	}, nil
}

// NewOpsEmailNotifierWithClient injects a prebuilt SES client (tests).
func NewOpsEmailNotifierWithClient(client SESService, from, opsEmail string, log logger.Logger) *OpsEmailNotifier {
	return &OpsEmailNotifier{ses: client, from: from, opsEmail: opsEmail, logger: log}
}

func (n *OpsEmailNotifier) Notify(ctx context.Context, event Event) error {
	if event.Type != "unallocated" {
		return nil
	}

	subject := fmt.Sprintf("Case %s needs manual allocation", event.CaseID)
	body := fmt.Sprintf("All allocation waves exhausted for case %s.\n\n%s\n", event.CaseID, event.Message)

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.opsEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		n.logger.Error("ops email send failed", map[string]interface{}{
			"caseId": event.CaseID,
			"error":  err,
		})
		return errors.NewNotificationSendFailedError(event.Type, err)
	}
	return nil
}

// Fanout delivers each event to every notifier, returning the first error
// after all of them have been tried.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
