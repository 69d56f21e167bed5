// internal/common/notify/aws.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/logger"
)

// Interfaces over the AWS clients so tests can mock them.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AWSNotifier publishes allocation events to an SNS topic. Downstream
// consumers fan out to email/SMS/push.
type AWSNotifier struct {
	sns      SNSService
	topicARN string
	logger   logger.Logger
}

func NewAWSNotifier(ctx context.Context, region, topicARN string, log logger.Logger) (*AWSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &AWSNotifier{
		sns:      sns.NewFromConfig(awsCfg),
		topicARN: topicARN,
		logger:   log,
	}, nil
}

// NewAWSNotifierWithClient injects a prebuilt SNS client (tests).
func NewAWSNotifierWithClient(client SNSService, topicARN string, log logger.Logger) *AWSNotifier {
	return &AWSNotifier{sns: client, topicARN: topicARN, logger: log}
}

func (n *AWSNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.NewNotificationSendFailedError(event.Type, err)
	}

	msg := string(payload)
	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: &n.topicARN,
		Message:  &msg,
	})
	if err != nil {
		n.logger.Error("notification publish failed", map[string]interface{}{
			"type":   event.Type,
			"caseId": event.CaseID,
			"error":  err,
		})
		return errors.NewNotificationSendFailedError(event.Type, err)
	}

	n.logger.Debug("notification published", map[string]interface{}{
		"type":        event.Type,
		"caseId":      event.CaseID,
		"candidateId": event.CandidateID,
	})
	return nil
}
