package admin

import (
	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/route"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Port         int    `json:"port,omitempty"`
	CollectionID string `json:"collectionId,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  int    `json:"uptime"`
	Version string `json:"version,omitempty"`
}

// StartServerRequest is the body of POST /servers.
type StartServerRequest struct {
	CollectionID string `json:"collectionId" binding:"required"`
}

// ServersResponse is the body of GET /servers.
type ServersResponse struct {
	Servers []engine.ServerStatus `json:"servers"`
	Count   int                   `json:"count"`
}

// RequestsResponse is the body of GET /servers/:port/requests.
type RequestsResponse struct {
	Port     int                 `json:"port"`
	Requests []*requestlog.Entry `json:"requests"`
	Count    int                 `json:"count"`
}

// RoutesResponse is the body of GET /collections/:id/routes.
type RoutesResponse struct {
	CollectionID string         `json:"collectionId"`
	Routes       []*route.Route `json:"routes"`
	Count        int            `json:"count"`
}
