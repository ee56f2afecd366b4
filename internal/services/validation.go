package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// maxRequestBody caps JSON request bodies at 1 MB. Savings-book payloads are
// a few hundred bytes at most.
const maxRequestBody = 1_048_576

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// DecodeAndValidate reads a single JSON object into dst and validates it.
// On failure it writes the error response and returns false; handlers just
// return early. Unknown fields and trailing data are rejected so a typoed
// field name in a deposit form fails loudly instead of zeroing the amount.
func (vh *ValidationHelper) DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}

	return true
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErrors, ok := validationErr.(validator.ValidationErrors); ok {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErrors {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
