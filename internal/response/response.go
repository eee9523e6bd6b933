package response

// Error codes shared by every HTTP surface.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeInternalError  = "INTERNAL_ERROR"
	CodeCheckoutDenied = "CHECKOUT_DENIED"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Details carries structured context such as a checkout denial.
	Details any `json:"details,omitempty"`
}

// InvalidInput builds the body for a malformed request.
func InvalidInput(message string) ErrorResponse {
	return ErrorResponse{Code: CodeInvalidInput, Message: message}
}
