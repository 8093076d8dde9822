package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response body shape shared by every endpoint
type Envelope map[string]interface{}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 envelope with success=true and the given fields
func WriteOK(w http.ResponseWriter, fields Envelope) error {
	return writeSuccess(w, http.StatusOK, fields)
}

// WriteCreated writes a 201 envelope with success=true and the given fields
func WriteCreated(w http.ResponseWriter, fields Envelope) error {
	return writeSuccess(w, http.StatusCreated, fields)
}

func writeSuccess(w http.ResponseWriter, status int, fields Envelope) error {
	body := Envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return WriteJSON(w, status, body)
}

// WriteError writes an error envelope with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes {success:false, error:message}
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteDetailedError(w, status, message, nil)
}

// WriteDetailedError writes an error envelope carrying extra fields
func WriteDetailedError(w http.ResponseWriter, status int, message string, fields Envelope) {
	body := Envelope{}
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = false
	body["error"] = message
	WriteJSON(w, status, body)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError writes a 500 without leaking the underlying error
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
