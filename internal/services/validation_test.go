package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid request", func(t *testing.T) {
		valid := StudentRequest{
			NIS:       "24001",
			Name:      "Balkhi",
			ClassName: "9a",
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("missing and short fields", func(t *testing.T) {
		invalid := StudentRequest{
			Name: "B", // too short, NIS and class missing
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})

	t.Run("non-alphanumeric NIS", func(t *testing.T) {
		invalid := StudentRequest{
			NIS:       "24-001",
			Name:      "Balkhi",
			ClassName: "9a",
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 1)
		assert.Equal(t, "NIS", validationErrors[0].Field())
		assert.Equal(t, "alphanum", validationErrors[0].Tag())
	})
}

func TestValidationHelper_DecodeAndValidate(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid body decodes", func(t *testing.T) {
		body := strings.NewReader(`{"nis":"24001","name":"Balkhi","class":"9a"}`)
		r := httptest.NewRequest(http.MethodPost, "/students", body)
		w := httptest.NewRecorder()

		var req StudentRequest
		assert.True(t, vh.DecodeAndValidate(w, r, &req))
		assert.Equal(t, "24001", req.NIS)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		body := strings.NewReader(`{"nis":"24001","name":"Balkhi","class":"9a","amout":5000}`)
		r := httptest.NewRequest(http.MethodPost, "/students", body)
		w := httptest.NewRecorder()

		var req StudentRequest
		assert.False(t, vh.DecodeAndValidate(w, r, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid request body")
	})

	t.Run("trailing second object rejected", func(t *testing.T) {
		body := strings.NewReader(`{"nis":"24001","name":"Balkhi","class":"9a"}{}`)
		r := httptest.NewRequest(http.MethodPost, "/students", body)
		w := httptest.NewRecorder()

		var req StudentRequest
		assert.False(t, vh.DecodeAndValidate(w, r, &req))
		assert.Contains(t, w.Body.String(), "single JSON object")
	})

	t.Run("validation failure writes field details", func(t *testing.T) {
		body := strings.NewReader(`{"nis":"24001","name":"B","class":"9a"}`)
		r := httptest.NewRequest(http.MethodPost, "/students", body)
		w := httptest.NewRecorder()

		var req StudentRequest
		assert.False(t, vh.DecodeAndValidate(w, r, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Details, "Name")
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Student not found", http.StatusNotFound, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Student not found", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation details", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := StudentRequest{Name: "B"}

		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "NIS")
		assert.Contains(t, response.Details, "Name")
		assert.Contains(t, response.Details, "ClassName")
	})
}
