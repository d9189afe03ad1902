// Package secrets retrieves the bearer token used to authenticate against
// the quality API.
package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Provider supplies a bearer token for outbound API requests.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// RetrievalError indicates the token could not be retrieved from its source.
type RetrievalError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("secret retrieval failed (source %s): %v", e.Source, e.Err)
	}
	return fmt.Sprintf("secret retrieval failed (source %s)", e.Source)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Static is a fixed token, typically injected from the environment.
type Static string

// Token returns the static token value.
func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", &RetrievalError{Source: "static"}
	}
	return string(s), nil
}

// secretsManagerAPI is the subset of the Secrets Manager client used here.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager retrieves the token from AWS Secrets Manager.
type SecretsManager struct {
	client   secretsManagerAPI
	secretID string
}

// NewSecretsManager creates a provider backed by AWS Secrets Manager.
func NewSecretsManager(client secretsManagerAPI, secretID string) *SecretsManager {
	return &SecretsManager{
		client:   client,
		secretID: secretID,
	}
}

// Token fetches the secret value holding the bearer token.
func (p *SecretsManager) Token(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return "", &RetrievalError{Source: p.secretID, Err: err}
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", &RetrievalError{Source: p.secretID, Err: fmt.Errorf("secret has no string value")}
	}
	return *out.SecretString, nil
}
