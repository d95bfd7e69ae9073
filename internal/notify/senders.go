package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VladKvetkin/ofinta/internal/services/converter"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

func initClient() *resty.Client {
	client := resty.New()

	client.
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return client
}

// FCMSender talks to the legacy FCM HTTP endpoint.
type FCMSender struct {
	client    *resty.Client
	url       string
	serverKey string
}

func NewFCMSender(url string, serverKey string) *FCMSender {
	return &FCMSender{
		client:    initClient(),
		url:       url,
		serverKey: serverKey,
	}
}

func (s *FCMSender) SendPush(ctx context.Context, registrationID string, data map[string]any) error {
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "key="+s.serverKey).
		SetBody(map[string]any{
			"to":   registrationID,
			"data": data,
		}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("error send push: %w", err)
	}

	if response.StatusCode() != http.StatusOK {
		return fmt.Errorf("error send push, invalid status: %v", response.Status())
	}

	return nil
}

// AfricasTalkingSender sends SMS through the Africa's Talking messaging API.
type AfricasTalkingSender struct {
	client   *resty.Client
	url      string
	username string
	apiKey   string
}

func NewAfricasTalkingSender(url string, username string, apiKey string) *AfricasTalkingSender {
	return &AfricasTalkingSender{
		client:   initClient(),
		url:      url,
		username: username,
		apiKey:   apiKey,
	}
}

func (s *AfricasTalkingSender) SendSMS(ctx context.Context, phone string, message string) error {
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("apiKey", s.apiKey).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{
			"username": s.username,
			"to":       converter.InternationalPhone(phone),
			"message":  message,
		}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("error send sms: %w", err)
	}

	if response.StatusCode() != http.StatusOK && response.StatusCode() != http.StatusCreated {
		return fmt.Errorf("error send sms, invalid status: %v", response.Status())
	}

	return nil
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESSender struct {
	client sesAPI
	from   string
}

func NewSESSender(ctx context.Context, from string) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("error load aws config: %w", err)
	}

	return &SESSender{
		client: sesv2.NewFromConfig(cfg),
		from:   from,
	}, nil
}

func (s *SESSender) SendEmail(ctx context.Context, to string, subject string, body string) error {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("error send email: %w", err)
	}

	return nil
}

// LogSender only logs. Used for channels that have no credentials configured.
type LogSender struct{}

func (LogSender) SendPush(_ context.Context, registrationID string, data map[string]any) error {
	zap.L().Info("push", zap.String("registration_id", registrationID), zap.Any("status", data["status"]))
	return nil
}

func (LogSender) SendSMS(_ context.Context, phone string, message string) error {
	zap.L().Info("sms", zap.String("phone", phone), zap.Int("length", len(message)))
	return nil
}

func (LogSender) SendEmail(_ context.Context, to string, subject string, _ string) error {
	zap.L().Info("email", zap.String("to", to), zap.String("subject", subject))
	return nil
}
