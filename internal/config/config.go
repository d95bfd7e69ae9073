package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
)

type Config struct {
	Address     string `env:"RUN_ADDRESS" envDefault:"localhost:8080"`
	DatabaseURI string `env:"DATABASE_URI"`
	RedisURL    string `env:"REDIS_URL"`
	// LockTTL is how long an order lock outlives a holder that stopped
	// refreshing it.
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// PaymentLinkBaseURL prefixes payment link ids in responses and SMS.
	PaymentLinkBaseURL string `env:"PAYMENT_LINK_BASE_URL" envDefault:"http://localhost:8080/pl/"`

	Mpesa  MpesaConfig  `envPrefix:"MPESA_"`
	Notify NotifyConfig `envPrefix:"NOTIFY_"`
}

type MpesaConfig struct {
	TestMode bool `env:"TEST_MODE" envDefault:"false"`
	// TestResponseStatusCode is the canned STK push status used in test mode.
	TestResponseStatusCode int `env:"TEST_RESPONSE_STATUS_CODE" envDefault:"200"`

	OAuthTokenURL string `env:"OAUTH2TOKEN_URL" envDefault:"https://sandbox.safaricom.co.ke/oauth/v1/generate"`
	STKPushURL    string `env:"STK_PUSH_URL" envDefault:"https://sandbox.safaricom.co.ke/mpesa/stkpush/v1/processrequest"`
	ReversalURL   string `env:"STK_REVERSAL_URL" envDefault:"https://sandbox.safaricom.co.ke/mpesa/reversal/v1/request"`

	ConsumerKey        string `env:"CONSUMER_KEY"`
	ConsumerSecret     string `env:"CONSUMER_SECRET"`
	BusinessShortCode  string `env:"BUSINESS_SHORT_CODE" envDefault:"174379"`
	Passkey            string `env:"PASSKEY"`
	SecurityCredential string `env:"SECURITY_CREDENTIAL"`
	AccountReference   string `env:"ACCOUNT_REFERENCE" envDefault:"Ofinta"`

	ResultURL  string `env:"RESULT_URL" envDefault:"http://localhost:8080/mpesa-result/"`
	TimeoutURL string `env:"TIMEOUT_URL" envDefault:"http://localhost:8080/mpesa-timeout/"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"2m"`
	// ExpireInterval is how often NEW transactions past RequestTimeout are
	// failed in the background. Zero disables the sweep.
	ExpireInterval time.Duration `env:"EXPIRE_INTERVAL" envDefault:"1m"`
}

type NotifyConfig struct {
	Workers   int `env:"WORKERS" envDefault:"4"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`

	FCMURL       string `env:"FCM_URL" envDefault:"https://fcm.googleapis.com/fcm/send"`
	FCMServerKey string `env:"FCM_SERVER_KEY"`

	SMSURL      string `env:"SMS_URL" envDefault:"https://api.africastalking.com/version1/messaging"`
	SMSUsername string `env:"SMS_USERNAME"`
	SMSAPIKey   string `env:"SMS_API_KEY"`

	// Email goes out through SES only when enabled; credentials come from
	// the default AWS chain.
	SESEnabled bool   `env:"SES_ENABLED" envDefault:"false"`
	EmailFrom  string `env:"EMAIL_FROM" envDefault:"notifications@ofinta.com"`
}

func NewConfig() (Config, error) {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()

	return newConfig(os.Args[1:])
}

func newConfig(args []string) (Config, error) {
	config := Config{}

	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	if err := config.parseFlags(args); err != nil {
		return Config{}, err
	}

	if err := config.validateConfig(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// parseFlags lets command line flags override the environment.
func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("dispatch", flag.ContinueOnError)

	flags.StringVar(&c.Address, "a", c.Address, "Service address")
	flags.StringVar(&c.DatabaseURI, "d", c.DatabaseURI, "Database URI")
	flags.StringVar(&c.RedisURL, "r", c.RedisURL, "Redis URL")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "Log level")

	return flags.Parse(args)
}

func (c *Config) validateConfig() error {
	if c.DatabaseURI == "" {
		return errors.New("database URI is required")
	}

	if c.JWTSecret == "" {
		return errors.New("JWT secret is required")
	}

	for _, URI := range []string{c.Mpesa.ResultURL, c.Mpesa.TimeoutURL, c.PaymentLinkBaseURL} {
		if _, err := url.ParseRequestURI(URI); err != nil {
			return fmt.Errorf("invalid url %q: %w", URI, err)
		}
	}

	if !c.Mpesa.TestMode {
		for _, URI := range []string{c.Mpesa.OAuthTokenURL, c.Mpesa.STKPushURL, c.Mpesa.ReversalURL} {
			if _, err := url.ParseRequestURI(URI); err != nil {
				return fmt.Errorf("invalid mpesa url %q: %w", URI, err)
			}
		}
	}

	if c.LockTTL <= 0 {
		return errors.New("lock ttl must be positive")
	}

	if c.Notify.Workers < 1 {
		return errors.New("notify workers must be positive")
	}

	return nil
}
