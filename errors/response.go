package errors

import (
	"encoding/json"
	stderrors "errors"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error fields sent to clients.
type ErrorBody struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError into its JSON body.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:      e.Code,
			Message:   e.Message,
			Retryable: e.Retryable,
			Details:   e.Details,
		},
	}
}

// ParseResponse decodes an error body written by ToResponse. It returns
// false if body is not one.
func ParseResponse(status int, body []byte) (*AppError, bool) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Code == "" {
		return nil, false
	}
	return &AppError{
		Code:       resp.Error.Code,
		Message:    resp.Error.Message,
		Retryable:  resp.Error.Retryable,
		HTTPStatus: status,
		Details:    resp.Error.Details,
	}, true
}

// AsAppError returns the AppError in err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
