package apperrors

// ErrorCode identifies a hub failure class.
type ErrorCode string

const (
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError     ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrorCodeDeviceNotFound      ErrorCode = "DEVICE_NOT_FOUND"
	ErrorCodeDeviceUnreachable   ErrorCode = "DEVICE_UNREACHABLE"
	ErrorCodeMaxReconnects       ErrorCode = "MAX_RECONNECTS_REACHED"
	ErrorCodeCommandRejected     ErrorCode = "COMMAND_REJECTED"
	ErrorCodeExportNotConfigured ErrorCode = "EXPORT_NOT_CONFIGURED"
	ErrorCodeUnsupportedProperty ErrorCode = "UNSUPPORTED_PROPERTY"
	ErrorCodePropertyReadOnly    ErrorCode = "PROPERTY_READ_ONLY"
)

// ErrorBody is the serialized error payload.
type ErrorBody struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (err *AppError) Error() string {
	return err.Message
}

func (err *AppError) ErrorBody() ErrorBody {
	return ErrorBody{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrorCodeUnauthorized, message, 401, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewDeviceNotFound(id string) *AppError {
	return NewAppError(ErrorCodeDeviceNotFound, "device not found: "+id, 404, map[string]any{"id": id})
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
