package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SMTPSecret is the JSON document stored in AWS Secrets Manager for the relay.
type SMTPSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SecretGetter is the subset of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsManagerClient creates a Secrets Manager client from the default AWS
// credential chain (env, shared config, or the execution role).
func NewSecretsManagerClient(ctx context.Context) (*secretsmanager.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// ResolveSecrets fills SMTP credentials from Secrets Manager when
// email.smtp.password_secret is set. Values already present in the config win.
func ResolveSecrets(ctx context.Context, cfg *Config, client SecretGetter) error {
	name := cfg.Email.SMTP.PasswordSecret
	if name == "" {
		return nil
	}

	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("fetch secret %q from secrets manager: %w", name, err)
	}

	if output.SecretString == nil {
		return fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}

	var secret SMTPSecret
	if err := json.Unmarshal([]byte(*output.SecretString), &secret); err != nil {
		return fmt.Errorf("parse secret %q as JSON: %w", name, err)
	}

	if secret.Password == "" {
		return fmt.Errorf("secret %q missing required field: password", name)
	}

	if cfg.Email.SMTP.Username == "" {
		cfg.Email.SMTP.Username = secret.Username
	}
	if cfg.Email.SMTP.Password == "" {
		cfg.Email.SMTP.Password = secret.Password
	}

	return nil
}
