package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterStoreValue reads a single parameter from AWS SSM Parameter Store.
func ParameterStoreValue(ctx context.Context, parameterName string, decrypt bool) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", parameterName, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", parameterName)
	}

	return *result.Parameter.Value, nil
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	v, err := ParameterStoreValue(context.Background(), parameterName, decrypt)
	if err != nil {
		return ""
	}
	return v
}

// ResolveKey returns the hex encoded signing key. An empty result means the
// client runs read-only.
func (s SignerConfig) ResolveKey(ctx context.Context, env string) (string, error) {
	if env != "prod" || s.Parameter == "" {
		return s.PrivateKey, nil
	}
	return ParameterStoreValue(ctx, s.Parameter, true)
}
