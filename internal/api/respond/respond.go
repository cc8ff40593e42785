// Package respond contains helpers for writing uniform JSON API responses.
package respond

import (
	"encoding/json"
	"net/http"
)

type response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes a 200 response with the given result.
func OK(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusOK, response{Result: result})
}

// Created writes a 201 response with the given result.
func Created(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusCreated, response{Result: result})
}

// Fail writes an error response with the given status code.
func Fail(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, response{Error: err.Error()})
}
