package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/isoctl/internal/protocol"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": s.version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/rpc", s.handleRPC)
	s.router.GET("/events", s.handleEvents)
}

// handleRPC decodes one request envelope and routes it by target scope.
// Every outcome is a 200 with a response envelope; transport-level errors
// only occur when the body itself is unreadable or unparseable.
func (s *Server) handleRPC(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.ErrorResponse(nil,
			protocol.CodeInvalidRequest, "unreadable request body"))
		return
	}

	req, err := protocol.ParseRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, protocol.ErrorResponse(nil,
			protocol.CodeInvalidRequest, err.Error()))
		return
	}

	var resp protocol.Response
	if req.Isolate == "" {
		resp = s.disp.HandleRootRequest(req)
	} else {
		resp = s.disp.HandleIsolateRequest(req.Isolate, req)
	}
	c.JSON(http.StatusOK, resp)
}
