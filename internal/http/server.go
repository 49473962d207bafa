package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/models"
	"github.com/example/formflow/internal/service"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderUserDepartment = "X-User-Department"
)

const principalKey = "principal"

// Server wraps the gin engine and collaborators needed to handle API requests.
type Server struct {
	Engine *gin.Engine
	forms  *service.FormService
}

// NewServer constructs a new API server and registers routes. An empty
// metricsPath disables the Prometheus endpoint.
func NewServer(forms *service.FormService, metricsPath string) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	srv := &Server{Engine: router, forms: forms}
	srv.registerRoutes(metricsPath)
	return srv
}

func (s *Server) registerRoutes(metricsPath string) {
	if metricsPath != "" {
		s.Engine.GET(metricsPath, gin.WrapH(promhttp.Handler()))
	}
	s.Engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := s.Engine.Group("/api", requirePrincipal())
	api.POST("/entries", s.createEntry)
	api.GET("/entries", s.listEntries)
	api.GET("/entries/:id", s.getEntry)
	api.DELETE("/entries/:id", s.deleteEntry)
	api.POST("/entries/:id/transition", s.transition)
	api.GET("/entries/:id/activity", s.history)
	api.GET("/access", s.access)
	api.GET("/policy", s.policy)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request served")
	}
}

// requirePrincipal resolves the caller from the identity headers.
func requirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := principalFromHeaders(c.Request.Header)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func principalFromHeaders(h http.Header) (models.Principal, error) {
	id, err := uuid.Parse(h.Get(HeaderUserID))
	if err != nil || id == uuid.Nil {
		return models.Principal{}, errors.Wrapf(apperr.ErrUnauthorized, "missing or malformed %s", HeaderUserID)
	}
	role := models.Role(h.Get(HeaderUserRole))
	if !role.Valid() {
		return models.Principal{}, errors.Wrapf(apperr.ErrUnauthorized, "unknown role %q", role)
	}
	return models.Principal{ID: id, Role: role, Department: h.Get(HeaderUserDepartment)}, nil
}

func principal(c *gin.Context) models.Principal {
	return c.MustGet(principalKey).(models.Principal)
}

func (s *Server) createEntry(c *gin.Context) {
	var payload struct {
		TemplateID uint           `json:"templateId" binding:"required"`
		Department string         `json:"department"`
		Data       map[string]any `json:"data"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.forms.CreateEntry(c.Request.Context(), principal(c), service.CreateRequest{
		TemplateID: payload.TemplateID,
		Department: payload.Department,
		Data:       payload.Data,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (s *Server) listEntries(c *gin.Context) {
	req := service.ListRequest{Status: models.WorkflowStatus(c.Query("status"))}
	if raw := c.Query("templateId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid templateId"})
			return
		}
		req.TemplateID = uint(id)
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	req.Limit = limit

	entries, err := s.forms.ListEntries(c.Request.Context(), principal(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) getEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	entry, err := s.forms.GetEntry(c.Request.Context(), principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) deleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := s.forms.DeleteEntry(c.Request.Context(), principal(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) transition(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	var payload struct {
		Status    models.WorkflowStatus `json:"status" binding:"required"`
		Signature string                `json:"signature"`
		Data      map[string]any        `json:"data"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := s.forms.Transition(c.Request.Context(), principal(c), id, service.TransitionRequest{
		Status:    payload.Status,
		Signature: payload.Signature,
		Data:      payload.Data,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) history(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	logs, err := s.forms.History(c.Request.Context(), principal(c), id, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (s *Server) access(c *gin.Context) {
	c.JSON(http.StatusOK, s.forms.CheckAccess(principal(c)))
}

func (s *Server) policy(c *gin.Context) {
	roles, schedules := s.forms.Policy()
	c.JSON(http.StatusOK, gin.H{"roles": roles, "schedules": schedules})
}

func entryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}

// writeError maps error kinds to HTTP status codes.
func writeError(c *gin.Context, err error) {
	var forbidden *apperr.ForbiddenError
	switch {
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "forbidden",
			"reason":       forbidden.Reason,
			"allowedHours": forbidden.AllowedHours,
		})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConflictingFolio):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
