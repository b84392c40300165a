package ssmkeys

import (
	"context"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrNotConfigured is returned by Load when neither a file nor a parameter is set.
var ErrNotConfigured = errors.New("no key source configured")

// ParameterGetter is the subset of the SSM client used to read keys.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Source names where a PEM encoded key lives
type Source struct {
	// File path (for local development)
	Path string
	// SSM parameter name (for production), takes precedence over Path
	Parameter string
}

// Configured reports whether any location is set.
func (s Source) Configured() bool {
	return s.Path != "" || s.Parameter != ""
}

func (s Source) String() string {
	if s.Parameter != "" {
		return "ssm:" + s.Parameter
	}
	return s.Path
}

// Load reads the key from SSM when a parameter is set, otherwise from the file.
// The default AWS configuration is only loaded for the SSM case.
func Load(ctx context.Context, src Source) ([]byte, error) {
	if src.Parameter == "" {
		return LoadWith(ctx, nil, src)
	}

	awsConfig, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return LoadWith(ctx, ssm.NewFromConfig(awsConfig), src)
}

// LoadWith is Load with an explicit SSM client.
func LoadWith(ctx context.Context, client ParameterGetter, src Source) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case src.Parameter != "":
		if client == nil {
			return nil, errors.New("ssm client is required to load a parameter")
		}
		var value string
		value, err = getParameter(ctx, client, src.Parameter)
		if err != nil {
			return nil, fmt.Errorf("failed to load key from SSM: %w", err)
		}
		data = []byte(value)
	case src.Path != "":
		data, err = os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	default:
		return nil, ErrNotConfigured
	}

	if err := validatePEM(data); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	return data, nil
}

// getParameter fetches a parameter from SSM
func getParameter(ctx context.Context, client ParameterGetter, name string) (string, error) {
	output, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *output.Parameter.Value, nil
}

func validatePEM(data []byte) error {
	block, _ := pem.Decode(data)
	if block == nil {
		return errors.New("invalid key PEM")
	}
	return nil
}
