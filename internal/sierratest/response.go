package sierratest

import (
	"encoding/json"
	"net/http"
)

// apiError is the error document Sierra returns for failed resource calls.
type apiError struct {
	Code         int    `json:"code"`
	SpecificCode int    `json:"specificCode"`
	HTTPStatus   int    `json:"httpStatus"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
}

var (
	errRecordNotFound = apiError{Code: 107, HTTPStatus: http.StatusNotFound, Name: "Record not found"}
	errUnauthorized   = apiError{Code: 123, HTTPStatus: http.StatusUnauthorized, Name: "Unauthorized"}
	errInvalidJSON    = apiError{Code: 130, HTTPStatus: http.StatusBadRequest, Name: "Invalid JSON"}
	errInvalidParam   = apiError{Code: 108, HTTPStatus: http.StatusBadRequest, Name: "Invalid parameter"}
)

func (e apiError) withDescription(desc string) apiError {
	e.Description = desc
	return e
}

func (e apiError) write(w http.ResponseWriter) {
	writeJSON(w, e.HTTPStatus, e)
}

// oauthError is the RFC 6749 error document of the token endpoint.
type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeJSON writes v with status code. Token responses must not be cached.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// cannedResponse is a status and raw body a test forces the server to send.
type cannedResponse struct {
	status int
	body   string
}

func (c cannedResponse) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(c.status)
	_, _ = w.Write([]byte(c.body))
}
