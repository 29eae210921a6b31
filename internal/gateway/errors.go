package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

// ErrGatewayUnavailable covers an unconfigured adapter and transport failures.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// RequestError is a non-2xx (or unusable 2xx) broker response.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("payment gateway returned status %d: %s", e.StatusCode, e.Message)
}

func unavailable(op string, cause error) error {
	err := ErrGatewayUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrGatewayUnavailable, cause)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, op)
}

func requestFailed(op string, status int, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeGatewayRequest, &RequestError{StatusCode: status, Message: message}, op)
}

// errorMessage pulls `message` or `error.message` out of a broker error body.
func errorMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
			return text
		}
		return fallback
	}
	if len(parsed.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(parsed.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if parsed.Detail != "" {
		return parsed.Detail
	}
	return fallback
}
