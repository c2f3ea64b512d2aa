package handler

import (
	"net/http"

	apperrors "github.com/labnode/lims-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// HTTPStatus maps the error taxonomy to response codes: validation, missing
// references and conflicts surface as 4xx; persistence failures as 5xx with
// the cause kept server-side.
func HTTPStatus(err error) int {
	switch apperrors.Code(err) {
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
