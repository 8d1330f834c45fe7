package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/textflow/types"
)

// mapHTTPError maps an upstream HTTP status to the engine error taxonomy
// with the appropriate retryable flag.
func mapHTTPError(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, msg).
			WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(status).
			WithRetryable(true)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidRequest, msg).
			WithHTTPStatus(status)
	default:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}
}

// readErrorMessage extracts a human-readable message from an upstream
// error body, falling back to the raw text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}

	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return string(data)
}
