package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-zigbee/internal/bridges/zigbee"
	"github.com/nerrad567/gray-logic-zigbee/internal/capability"
)

// Error codes carried in every error body.
const (
	CodeBadRequest         = "bad_request"
	CodeNotFound           = "not_found"
	CodeValidation         = "validation_error"
	CodePublishFailed      = "publish_failed"
	CodeServiceUnavailable = "service_unavailable"
	CodeInternal           = "internal_error"
)

// errHistoryDisabled is returned by the history endpoint when no store is
// configured.
var errHistoryDisabled = errors.New("state history is disabled")

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// failureMapping turns a class of bridge error into a response. The
// error text is shown to the client; unmapped errors are not.
type failureMapping struct {
	match  func(error) bool
	status int
	code   string
}

// failureMappings is checked in order. Read-only capabilities wrap
// capability.ErrValidation and land on the validation row.
var failureMappings = []failureMapping{
	{zigbee.IsNotFound, http.StatusNotFound, CodeNotFound},
	{matches(capability.ErrValidation), http.StatusBadRequest, CodeValidation},
	{matches(zigbee.ErrPublishFailed), http.StatusBadGateway, CodePublishFailed},
	{matches(errHistoryDisabled), http.StatusServiceUnavailable, CodeServiceUnavailable},
}

func matches(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Status: status, Code: code, Message: message})
}

// writeBadRequest rejects a request the handler could not parse.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, CodeBadRequest, message)
}

// writeInternalError hides the cause; handlers log it first.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, CodeInternal, message)
}

// writeFailure answers with the first mapping that matches err, or a 500
// with a generic message.
func writeFailure(w http.ResponseWriter, err error) {
	for _, m := range failureMappings {
		if m.match(err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	writeInternalError(w, "internal server error")
}
