package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const secretsTimeout = 15 * time.Second

// resolveAWSSecretsManager resolves an AWS Secrets Manager reference.
// Format: secret-name or secret-name#json-key
func resolveAWSSecretsManager(ref string) (string, error) {
	name, key, hasKey := strings.Cut(ref, "#")

	ctx, cancel := context.WithTimeout(context.Background(), secretsTimeout)
	defer cancel()

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}
	if !hasKey {
		return *out.SecretString, nil
	}
	return jsonSecretField(*out.SecretString, key, name)
}

// jsonSecretField extracts one key of a JSON object secret, the layout used
// by RDS-managed database credentials.
func jsonSecretField(secret, key, name string) (string, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(secret), &data); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", name, err)
	}
	return secretField(data, key, "secret "+name)
}
