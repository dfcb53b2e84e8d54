// Error handling utilities for the admin API.
// Known engine and store failures map to fixed codes; anything else is
// logged and sanitized so internal details do not leak.

package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// Safe error messages for client responses.
const (
	ErrMsgInternalError   = "An internal error occurred"
	ErrMsgInvalidJSON     = "Invalid JSON in request body"
	ErrMsgInvalidPort     = "Port must be an integer between 1 and 65535"
	ErrMsgInvalidQuery    = "Invalid query parameter"
	ErrMsgNotFound        = "Resource not found"
	ErrMsgCollectionGone  = "Collection not found"
	ErrMsgNotRunning      = "No server is running on this port"
	ErrMsgAlreadyRunning  = "A server is already running on this port"
	ErrMsgPortUnavailable = "The port could not be bound; pick another port for the collection"
)

// errorKind maps an error to its HTTP status, code and client message.
func errorKind(err error) (status int, code, message string) {
	var verr *route.ValidationError
	switch {
	case errors.Is(err, engine.ErrCollectionNotFound):
		return http.StatusNotFound, "collection_not_found", ErrMsgCollectionGone
	case errors.Is(err, engine.ErrNotRunning):
		return http.StatusNotFound, "not_running", ErrMsgNotRunning
	case errors.Is(err, engine.ErrAlreadyRunning):
		return http.StatusConflict, "already_running", ErrMsgAlreadyRunning
	case errors.Is(err, engine.ErrBind):
		return http.StatusConflict, "port_unavailable", ErrMsgPortUnavailable
	case errors.Is(err, engine.ErrInvalidPort):
		return http.StatusBadRequest, "invalid_port", ErrMsgInvalidPort
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", ErrMsgNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_error", verr.Error()
	}
	return http.StatusInternalServerError, "internal_error", ErrMsgInternalError
}

// writeError answers with the mapped error. Unexpected errors are logged in
// full server side.
func writeError(c *gin.Context, log *slog.Logger, err error, operation string) {
	status, code, message := errorKind(err)
	resp := ErrorResponse{Error: code, Message: message}

	var serr *engine.ServerError
	if errors.As(err, &serr) {
		resp.Port = serr.Port
		resp.CollectionID = serr.CollectionID
	}

	if status == http.StatusInternalServerError {
		log.Error("operation failed", "operation", operation, "error", err)
	} else {
		log.Debug("operation rejected", "operation", operation, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

// writeBadRequest answers 400 with a fixed code and message.
func writeBadRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}
