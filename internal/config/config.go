package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Auth       AuthConfig
	Gateways   GatewaysConfig
	Billing    BillingConfig
}

type DeploymentConfig struct {
	Mode RunMode `validate:"required"`
}

// RunMode is the deployment mode of the process
type RunMode string

const (
	ModeLocal RunMode = "local"
	ModeProd  RunMode = "prod"
)

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level LogLevel `validate:"required"`
}

// LogLevel is the minimum level emitted by the logger
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type AuthConfig struct {
	JWTSecret string
}

// GatewaysConfig is loaded at startup and reloaded explicitly on admin
// update; it is never mutated in place by request handlers.
type GatewaysConfig struct {
	Stripe   StripeConfig
	Razorpay RazorpayConfig
	PayPal   PayPalConfig
	// Timeout applies to every outbound gateway call
	Timeout time.Duration
}

type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

type PayPalConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookID     string
	BaseURL       string
}

type BillingConfig struct {
	// GraceDays is how long a past_due subscription keeps access before
	// forced cancellation
	GraceDays int
	// AutoPayInterval is how often the autopay sweep runs
	AutoPayInterval time.Duration
	// AutoPayLeadWindow selects subscriptions whose period ends within
	// this window (or already ended)
	AutoPayLeadWindow time.Duration
	// AutoPayRetryDelay is how long a pending renewal charge waits for a
	// webhook to settle it before the sweep re-issues the charge
	AutoPayRetryDelay time.Duration
	// BoundarySweepInterval is how often trial/cancel-at-period-end
	// boundaries are processed
	BoundarySweepInterval time.Duration
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/siteassist")

	v.SetEnvPrefix("SITEASSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(ModeLocal))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("gateways.timeout", 5*time.Second)
	v.SetDefault("gateways.razorpay.baseurl", "https://api.razorpay.com")
	v.SetDefault("gateways.paypal.baseurl", "https://api-m.paypal.com")
	v.SetDefault("billing.gracedays", 3)
	v.SetDefault("billing.autopayinterval", 4*time.Hour)
	v.SetDefault("billing.autopayleadwindow", 24*time.Hour)
	v.SetDefault("billing.autopayretrydelay", time.Hour)
	v.SetDefault("billing.boundarysweepinterval", time.Hour)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: LogLevelDebug},
		Gateways: GatewaysConfig{
			Timeout: 5 * time.Second,
		},
		Billing: BillingConfig{
			GraceDays:             3,
			AutoPayInterval:       4 * time.Hour,
			AutoPayLeadWindow:     24 * time.Hour,
			AutoPayRetryDelay:     time.Hour,
			BoundarySweepInterval: time.Hour,
		},
	}
}
