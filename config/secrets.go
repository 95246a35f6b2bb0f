package config

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsClient is satisfied by *secretsmanager.Client.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretFields maps secret JSON keys to the config fields they override.
var secretFields = map[string]func(c *Config) *string{
	"DATABASE_URL":           func(c *Config) *string { return &c.DatabaseURL },
	"JWT_SECRET_KEY":         func(c *Config) *string { return &c.JWTSecretKey },
	"TOKEN_ENCRYPTION_KEY":   func(c *Config) *string { return &c.TokenEncryptionKey },
	"DISCORD_CLIENT_SECRET":  func(c *Config) *string { return &c.DiscordClientSecret },
	"DISCORD_WEBHOOK_URL":    func(c *Config) *string { return &c.DiscordWebhookURL },
	"CONCEPT2_CLIENT_SECRET": func(c *Config) *string { return &c.Concept2ClientSecret },
	"WEBHOOK_SECRET":         func(c *Config) *string { return &c.WebhookSecret },
	"R2_ACCESS_KEY_ID":       func(c *Config) *string { return &c.R2AccessKeyID },
	"R2_SECRET_ACCESS_KEY":   func(c *Config) *string { return &c.R2SecretAccessKey },
}

func isSecretKey(key string) bool {
	_, ok := secretFields[key]
	return ok
}

// ApplySecrets overrides secret-bearing settings with the JSON object stored
// in AWS Secrets Manager under cfg.SecretsARN. It is a no-op when no ARN is
// configured.
func ApplySecrets(ctx context.Context, cfg *Config) error {
	if cfg.SecretsARN == "" {
		return nil
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	return applySecrets(ctx, cfg, secretsmanager.NewFromConfig(sdkCfg))
}

func applySecrets(ctx context.Context, cfg *Config, client SecretsClient) error {
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &cfg.SecretsARN,
	})
	if err != nil {
		return fmt.Errorf("failed to read secret %s: %w", cfg.SecretsARN, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", cfg.SecretsARN)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("secret %s is not a JSON object of strings: %w", cfg.SecretsARN, err)
	}
	for key, value := range values {
		field, ok := secretFields[key]
		if !ok || value == "" {
			continue
		}
		*field(cfg) = value
	}
	return cfg.Validate()
}
