package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mocify/mocify/pkg/engine"
	"github.com/mocify/mocify/pkg/requestlog"
	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// DefaultRequestLimit caps GET /servers/:port/requests without ?limit.
const DefaultRequestLimit = 100

// handleHealth handles GET /health.
func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  a.Uptime(),
		Version: a.version,
	})
}

// handleListServers handles GET /servers.
func (a *API) handleListServers(c *gin.Context) {
	servers, err := a.engine.ListRunningServers(c.Request.Context())
	if err != nil {
		writeError(c, a.log, err, "list servers")
		return
	}
	if servers == nil {
		servers = []engine.ServerStatus{}
	}
	c.JSON(http.StatusOK, ServersResponse{Servers: servers, Count: len(servers)})
}

// handleStartServer handles POST /servers.
func (a *API) handleStartServer(c *gin.Context) {
	var req StartServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.log.Debug("invalid start request", "error", err)
		writeBadRequest(c, "invalid_request", ErrMsgInvalidJSON)
		return
	}

	status, err := a.engine.StartServer(c.Request.Context(), req.CollectionID)
	if err != nil {
		writeError(c, a.log, err, "start server")
		return
	}
	c.JSON(http.StatusCreated, status)
}

// handleStopServer handles DELETE /servers/:port.
func (a *API) handleStopServer(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}
	if err := a.engine.StopServer(port); err != nil {
		writeError(c, a.log, err, "stop server")
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListRequests handles GET /servers/:port/requests.
//
// Query parameters: limit, offset, method, path (prefix), status, matched.
func (a *API) handleListRequests(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}
	filter, ok := requestFilter(c)
	if !ok {
		return
	}

	entries, err := a.engine.Requests(port, filter)
	if err != nil {
		writeError(c, a.log, err, "list requests")
		return
	}
	if entries == nil {
		entries = []*requestlog.Entry{}
	}
	c.JSON(http.StatusOK, RequestsResponse{Port: port, Requests: entries, Count: len(entries)})
}

// handleListRoutes handles GET /collections/:id/routes.
func (a *API) handleListRoutes(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if cs, ok := a.routes.(store.CollectionStore); ok {
		if _, err := cs.GetCollection(ctx, id); err != nil {
			writeError(c, a.log, err, "get collection")
			return
		}
	}

	routes, err := a.routes.ListRoutes(ctx, id)
	if err != nil {
		writeError(c, a.log, err, "list routes")
		return
	}
	if routes == nil {
		routes = []*route.Route{}
	}
	c.JSON(http.StatusOK, RoutesResponse{CollectionID: id, Routes: routes, Count: len(routes)})
}

// handleReloadSeed handles POST /seed/reload. Seed problems are the
// caller's own files, so their message is returned as is.
func (a *API) handleReloadSeed(c *gin.Context) {
	res, err := a.reloader.Sync(c.Request.Context())
	if err != nil {
		a.log.Warn("seed reload failed", "error", err)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "seed_failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func portParam(c *gin.Context) (int, bool) {
	port, err := strconv.Atoi(c.Param("port"))
	if err != nil || port < 1 || port > 65535 {
		writeBadRequest(c, "invalid_port", ErrMsgInvalidPort)
		return 0, false
	}
	return port, true
}

func requestFilter(c *gin.Context) (*requestlog.Filter, bool) {
	f := &requestlog.Filter{
		Method: c.Query("method"),
		Path:   c.Query("path"),
		Limit:  DefaultRequestLimit,
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
		{"status", &f.StatusCode},
	}
	for _, p := range ints {
		raw, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(c, "invalid_query", ErrMsgInvalidQuery+": "+p.name)
			return nil, false
		}
		*p.dst = n
	}

	if raw, ok := c.GetQuery("matched"); ok {
		matched, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(c, "invalid_query", ErrMsgInvalidQuery+": matched")
			return nil, false
		}
		f.Matched = &matched
	}
	return f, true
}
