package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the exchange.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("exchange api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("exchange api error (%d)", e.StatusCode)
}

// IsRestricted reports a regional block (HTTP 451).
func (e *APIError) IsRestricted() bool {
	return e.StatusCode == http.StatusUnavailableForLegalReasons
}

// NetworkError wraps transport level failures such as timeouts and refused
// connections.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("exchange network error (%s): %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRestricted reports whether err carries a regional block signal.
func IsRestricted(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRestricted()
}

func parseAPIError(status int, payload []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: payload}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Msg != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Msg
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(payload))
	return apiErr
}
