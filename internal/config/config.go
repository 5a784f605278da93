package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	JWTSecret  string `envconfig:"JWT_SECRET" required:"true"`
	CronSecret string `envconfig:"CRON_SECRET" required:"true"`

	// R2 object storage settings
	R2AccountID       string `envconfig:"R2_ACCOUNT_ID" required:"true"`
	R2AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID" required:"true"`
	R2SecretAccessKey string `envconfig:"R2_SECRET_ACCESS_KEY" required:"true"`
	R2Bucket          string `envconfig:"R2_BUCKET_NAME" required:"true"`
	R2PublicURL       string `envconfig:"R2_PUBLIC_URL" required:"true"`

	// Redis settings for the rate limiter. Optional: rate limiting is
	// disabled (fail-open) when unset.
	RedisURL string `envconfig:"REDIS_URL"`

	// Stripe settings
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`

	// Price IDs from the Stripe dashboard, mapped to plan tiers.
	StripePriceHobbyMonthly string `envconfig:"STRIPE_HOBBY_MONTHLY_PRICE_ID"`
	StripePriceHobbyYearly  string `envconfig:"STRIPE_HOBBY_YEARLY_PRICE_ID"`
	StripePriceProMonthly   string `envconfig:"STRIPE_PRO_MONTHLY_PRICE_ID"`
	StripePriceProYearly    string `envconfig:"STRIPE_PRO_YEARLY_PRICE_ID"`

	StripeCheckoutSuccessURL string `envconfig:"STRIPE_CHECKOUT_SUCCESS_URL" required:"true"`
	StripeCheckoutCancelURL  string `envconfig:"STRIPE_CHECKOUT_CANCEL_URL" required:"true"`
	StripePortalReturnURL    string `envconfig:"STRIPE_PORTAL_RETURN_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
