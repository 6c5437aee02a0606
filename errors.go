package main

type ErrorCode string

const (
	// Client-side errors
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrInvalidJSON         ErrorCode = "INVALID_JSON"
	ErrValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrGatewayNotSupported ErrorCode = "GATEWAY_NOT_SUPPORTED"
	ErrTransactionMissing  ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrPayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrUnsupportedMedia    ErrorCode = "UNSUPPORTED_MEDIA_TYPE"

	// System errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrPanic         ErrorCode = "PANIC"
)

type ErrorResponse struct {
	Success   bool                `json:"success"`
	ErrorCode ErrorCode           `json:"errorCode"`
	Message   string              `json:"message"`
	Error     string              `json:"error,omitempty"`
	Details   string              `json:"details,omitempty"`
	Fields    map[string][]string `json:"fields,omitempty"`

	TransactionID string `json:"transactionId,omitempty"`
}

func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		ErrorCode: code,
		Message:   message,
		Error:     message,
		Details:   details,
	}
}

func NewValidationErrorResponse(errs ValidationErrors) ErrorResponse {
	resp := NewErrorResponse(ErrValidationFailed, "One or more validation errors occurred", "")
	resp.Fields = errs
	return resp
}
