package payment

import (
	"errors"
	"fmt"
)

// ErrInvalidNotification marks a webhook body that could not be parsed or
// failed signature verification.
var ErrInvalidNotification = errors.New("invalid payment notification")

// ConfigurationError is an operator-fixable setup problem such as missing
// credentials. It is never retried.
type ConfigurationError struct {
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s configuration error: %s", e.Provider, e.Reason)
}

// GatewayError wraps a non-success response from the provider.
type GatewayError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
