package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/realestate-marketplace/internal/config"
	"github.com/wolfman30/realestate-marketplace/internal/contracts"
	"github.com/wolfman30/realestate-marketplace/internal/events"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// BuildEmailSender picks the relay for High priority notifications from
// EMAIL_PROVIDER. A provider missing its credentials degrades to the stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			logger.Info("email relay enabled", "provider", "sendgrid")
			return sender, nil
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY empty; using stub")
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) == "" {
			logger.Warn("ses selected but SES_FROM_EMAIL empty; using stub")
			break
		}
		logger.Info("email relay enabled", "provider", "ses", "region", awsCfg.Region)
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail:        cfg.SESFromEmail,
			FromName:         cfg.EmailFromName,
			ConfigurationSet: cfg.SESConfigurationSet,
		}, logger), nil
	case "", "stub":
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), nil
}

// BuildOutboxHandler publishes proposal events to SQS when a queue is
// configured and logs them otherwise.
func BuildOutboxHandler(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) events.DeliveryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.ProposalEventsQueueURL) == "" {
		return events.NewLogHandler(logger)
	}
	logger.Info("proposal events published to sqs", "queue_url", cfg.ProposalEventsQueueURL)
	return events.NewSQSHandler(sqs.NewFromConfig(awsCfg), cfg.ProposalEventsQueueURL)
}

// BuildContractArchive returns the S3 document archive, or nil when
// CONTRACT_DOCUMENTS_BUCKET is unset. LocalStack needs path-style addressing.
func BuildContractArchive(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *contracts.Archive {
	if cfg == nil || strings.TrimSpace(cfg.ContractDocumentsBucket) == "" {
		return nil
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return contracts.NewArchive(client, strings.TrimSpace(cfg.ContractDocumentsBucket), logger)
}
