package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/ramurama/populardoctor-webapi/internal/config"
	"github.com/ramurama/populardoctor-webapi/internal/notify"
	"github.com/ramurama/populardoctor-webapi/pkg/logging"
)

// BuildEmailSender selects the email provider. Without credentials the stub
// sender is returned, so callers always get a usable sender.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.NotifyEmailProvider)) {
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.EmailFromName,
			}, logger), "ses"
		}
		logger.Warn("ses selected but aws config or sender missing; using stub")
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("sendgrid selected but api key missing; using stub")
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildNotifier fans notifications out to email and, when a queue is
// configured, the push queue.
func BuildNotifier(cfg *appconfig.Config, awsCfg *aws.Config, contacts notify.ContactResolver, logger *logging.Logger) notify.Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	sender, provider := BuildEmailSender(cfg, awsCfg, logger)
	out := notify.Multi{notify.NewEmailNotifier(contacts, sender, logger)}
	if cfg != nil && cfg.NotificationQueueURL != "" && awsCfg != nil {
		out = append(out, notify.NewPushQueue(sqs.NewFromConfig(*awsCfg), cfg.NotificationQueueURL))
		logger.Info("push notifications enabled", "queue", cfg.NotificationQueueURL)
	}
	logger.Info("notifier ready", "email_provider", provider, "channels", len(out))
	return out
}
