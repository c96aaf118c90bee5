package bark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sre-norns/vellum/pkg/dbstore"
	"github.com/sre-norns/vellum/pkg/destination"
	"github.com/sre-norns/vellum/pkg/preview"
	"github.com/sre-norns/vellum/pkg/ticket"
)

const paginationLimit = 512

// PreviewStore keeps rendered previews of sessions.
type PreviewStore interface {
	Save(ctx context.Context, sessionID string, res preview.Response) (*dbstore.Preview, error)
	Get(ctx context.Context, sessionID string, requestID int) (dbstore.Preview, bool, error)
	Latest(ctx context.Context, sessionID string) (dbstore.Preview, bool, error)
	List(ctx context.Context, sessionID string, pagination dbstore.Pagination, maxLimit uint) ([]dbstore.Preview, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// DestinationLister is implemented by providers that can enumerate their destinations.
type DestinationLister interface {
	List() []destination.Destination
}

type (
	CreatedSessionResponse struct {
		ID     string        `json:"id" yaml:"id"`
		Ticket ticket.Ticket `json:"ticket" yaml:"ticket"`
	}

	SettingResponse struct {
		Name  ticket.Name `json:"name" yaml:"name"`
		Value any         `json:"value" yaml:"value"`
	}

	DestinationRequest struct {
		ID string `json:"id" yaml:"id" binding:"required"`
	}

	PaginatedResponse[T any] struct {
		dbstore.Pagination `json:",inline" yaml:",inline"`

		Count int `json:"count" yaml:"count"`
		Data  []T `json:"data" yaml:"data"`
	}
)

type Service struct {
	sessions *preview.Sessions
	provider destination.Provider
	renderer preview.Renderer
	store    PreviewStore
	metrics  *preview.Metrics
	registry *prometheus.Registry
	logger   log.Logger
}

func NewService(provider destination.Provider, renderer preview.Renderer, store PreviewStore, registry *prometheus.Registry, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Service{
		sessions: preview.NewSessions(),
		provider: provider,
		renderer: renderer,
		store:    store,
		metrics:  preview.NewMetrics(registry),
		registry: registry,
		logger:   logger,
	}
}

func (s *Service) Sessions() *preview.Sessions {
	return s.sessions
}

func (s *Service) Close() {
	s.sessions.CloseAll()
}

func (s *Service) onPreview(req preview.Request, res preview.Response) {
	if s.store == nil {
		return
	}

	if _, err := s.store.Save(context.Background(), req.SessionID, res); err != nil {
		level.Error(s.logger).Log("msg", "failed to store preview", "session", req.SessionID, "requestID", req.RequestID, "err", err)
	}
}

func (s *Service) createSession(ctx *gin.Context) {
	init := preview.DefaultInitialSettings()
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindWith(&init, bindingFor(ctx.Request.Method, ctx.ContentType())); err != nil {
			AbortWithError(ctx, http.StatusBadRequest, err)
			return
		}
	}

	id := preview.RandToken(preview.SessionIDLength)
	session := preview.NewSession(s.provider, s.renderer,
		preview.WithID(id),
		preview.WithLogger(s.logger),
		preview.WithMetrics(s.metrics),
		preview.WithPreviewHandler(s.onPreview),
	)

	t, err := session.Initialize(ctx.Request.Context(), init)
	if err != nil {
		_ = session.Close()
		Abort(ctx, err)
		return
	}

	s.sessions.Add(session)
	MarshalResponse(ctx, http.StatusCreated, CreatedSessionResponse{ID: id, Ticket: t})
}

func (s *Service) getSetting(ctx *gin.Context) {
	name := ticket.Name(ctx.Param("name"))
	value, err := RequireSession(ctx).GetSettingValue(name)
	if err != nil {
		Abort(ctx, err)
		return
	}

	MarshalResponse(ctx, http.StatusOK, SettingResponse{Name: name, Value: value})
}

func (s *Service) putSetting(ctx *gin.Context) {
	data, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		AbortWithError(ctx, http.StatusBadRequest, err)
		return
	}
	if !json.Valid(data) {
		AbortWithError(ctx, http.StatusBadRequest, fmt.Errorf("%w: setting value must be a JSON value", ticket.ErrInvalidSettingValue))
		return
	}

	t, err := RequireSession(ctx).SetSettingJSON(ticket.Name(ctx.Param("name")), data)
	if err != nil {
		Abort(ctx, err)
		return
	}

	MarshalResponse(ctx, http.StatusOK, t)
}

func (s *Service) putDestination(ctx *gin.Context) {
	var req DestinationRequest
	if err := ctx.ShouldBindWith(&req, bindingFor(ctx.Request.Method, ctx.ContentType())); err != nil {
		AbortWithError(ctx, http.StatusBadRequest, err)
		return
	}

	t, err := RequireSession(ctx).SetDestination(ctx.Request.Context(), req.ID)
	if err != nil {
		Abort(ctx, err)
		return
	}

	MarshalResponse(ctx, http.StatusOK, t)
}

func (s *Service) findPreview(ctx *gin.Context) (dbstore.Preview, bool) {
	session := RequireSession(ctx)
	if s.store == nil {
		AbortWithError(ctx, http.StatusNotFound, ErrUnknownPreview)
		return dbstore.Preview{}, false
	}

	var (
		result dbstore.Preview
		found  bool
		err    error
	)
	requestID := ctx.Param("requestId")
	if requestID == "latest" {
		result, found, err = s.store.Latest(ctx.Request.Context(), session.ID())
	} else {
		id, convErr := strconv.Atoi(requestID)
		if convErr != nil {
			AbortWithError(ctx, http.StatusBadRequest, fmt.Errorf("invalid request id %q: %w", requestID, convErr))
			return result, false
		}
		result, found, err = s.store.Get(ctx.Request.Context(), session.ID(), id)
	}

	if err != nil {
		AbortWithError(ctx, http.StatusInternalServerError, err)
		return result, false
	}
	if !found {
		AbortWithError(ctx, http.StatusNotFound, fmt.Errorf("%w: %s/%s", ErrUnknownPreview, session.ID(), requestID))
		return result, false
	}

	return result, true
}

func (s *Service) getPreview(ctx *gin.Context) {
	result, ok := s.findPreview(ctx)
	if !ok {
		return
	}

	// Queued previews have no content until a worker stores it
	if len(result.Data) == 0 && result.TaskID != "" {
		if current, err := RequireSession(ctx).Ticket(); err == nil && current.RequestID > result.RequestID {
			Abort(ctx, fmt.Errorf("%w: request %d", ErrSupersededPreview, result.RequestID))
			return
		}

		ctx.Header("Retry-After", "1")
		MarshalResponse(ctx, http.StatusAccepted, result)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	ctx.Header("X-Request-Id", strconv.Itoa(result.RequestID))
	ctx.Header("X-Page-Count", strconv.Itoa(result.PageCount))
	ctx.Data(http.StatusOK, contentType, result.Data)
}

func (s *Service) listPreviews(ctx *gin.Context) {
	var pagination dbstore.Pagination
	if ctx.ShouldBindQuery(&pagination) != nil {
		pagination.Limit = paginationLimit
	}
	pagination.ClampLimit(paginationLimit)

	var results []dbstore.Preview
	if s.store != nil {
		var err error
		results, err = s.store.List(ctx.Request.Context(), RequireSession(ctx).ID(), pagination, paginationLimit)
		if err != nil {
			AbortWithError(ctx, http.StatusInternalServerError, err)
			return
		}
	}

	MarshalResponse(ctx, http.StatusOK, PaginatedResponse[dbstore.Preview]{
		Pagination: pagination,
		Count:      len(results),
		Data:       results,
	})
}

func (s *Service) deleteSession(ctx *gin.Context) {
	id := RequireSession(ctx).ID()
	s.sessions.Remove(id)

	if s.store != nil {
		if _, err := s.store.DeleteSession(ctx.Request.Context(), id); err != nil {
			AbortWithError(ctx, http.StatusInternalServerError, err)
			return
		}
	}

	ctx.Status(http.StatusNoContent)
}

func (s *Service) listDestinations(ctx *gin.Context) {
	lister, ok := s.provider.(DestinationLister)
	if !ok {
		MarshalResponse(ctx, http.StatusOK, []destination.Destination{})
		return
	}

	MarshalResponse(ctx, http.StatusOK, lister.List())
}

func version(ctx *gin.Context) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		ctx.JSON(http.StatusOK, gin.H{
			"version": "unknown",
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"version":   bi.Main.Version,
		"goVersion": bi.GoVersion,
	})
}

// Routes creates the API router.
func (s *Service) Routes(router *gin.Engine) *gin.Engine {
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := router.Group("api/v1")
	{
		v1.GET("/version", version)
		v1.GET("/destinations", ContentTypeApi(), s.listDestinations)

		v1.POST("/sessions", ContentTypeApi(), s.createSession)
		v1.GET("/sessions", ContentTypeApi(), func(ctx *gin.Context) {
			MarshalResponse(ctx, http.StatusOK, s.sessions.IDs())
		})

		session := v1.Group("/sessions/:id", SessionApi(s.sessions), ContentTypeApi())
		{
			session.DELETE("", s.deleteSession)
			session.GET("/ticket", func(ctx *gin.Context) {
				t, err := RequireSession(ctx).Ticket()
				if err != nil {
					Abort(ctx, err)
					return
				}
				MarshalResponse(ctx, http.StatusOK, t)
			})
			session.GET("/settings", func(ctx *gin.Context) {
				settings, err := RequireSession(ctx).Settings()
				if err != nil {
					Abort(ctx, err)
					return
				}
				MarshalResponse(ctx, http.StatusOK, settings)
			})
			session.GET("/settings/:name", s.getSetting)
			session.PUT("/settings/:name", s.putSetting)
			session.PUT("/destination", s.putDestination)
			session.GET("/previews", s.listPreviews)
			session.GET("/previews/:requestId", s.getPreview)
		}
	}

	return router
}

func NewRouter(s *Service) *gin.Engine {
	return s.Routes(gin.New())
}

// LogRequests writes one log line per handled request.
func LogRequests(logger log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		lvl := level.Debug
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			lvl = level.Warn
		}
		lvl(logger).Log("msg", "request",
			"method", ctx.Request.Method,
			"path", ctx.FullPath(),
			"status", ctx.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
