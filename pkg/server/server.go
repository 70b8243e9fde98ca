package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"cardforge/pkg/charx"
	"cardforge/pkg/extract"
	"cardforge/pkg/flight"
	"cardforge/pkg/inference"
	"cardforge/pkg/settings"
	"cardforge/pkg/utils"
	"cardforge/pkg/workflow"
)

// Factory builds the backend for a new session.
type Factory func(ctx context.Context, cfg inference.Config) (inference.Inferencer, error)

type sessions = utils.SyncMap[map[string]*workflow.Session, string, *workflow.Session]

type Server struct {
	Echo     *echo.Echo
	Ctx      context.Context
	Settings *settings.Store
	Sessions *sessions
	Factory  Factory
	// Sink overrides where saved archives go; nil uses the configured
	// output directories.
	Sink charx.Sink

	previews *flight.Cache[previewKey, []byte]
	logger   *log.Logger
}

func NewServer(ctx context.Context, store *settings.Store, logger *log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("64M"))

	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		Echo:     e,
		Ctx:      ctx,
		Settings: store,
		Sessions: utils.NewSyncMap[map[string]*workflow.Session](),
		Factory:  inference.New,
		logger:   logger,
	}
	s.previews = flight.New(previewTTL, s.renderPreview)
	e.HTTPErrorHandler = s.handleError

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)

	api := s.Echo.Group("/api")
	api.GET("/providers", s.handleGetProviders)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.POST("/settings/templates", s.handlePostTemplate)
	api.DELETE("/settings/templates/:template", s.handleDeleteTemplate)

	api.POST("/sessions", s.handlePostSession)
	api.POST("/archives/import", s.handlePostImport)
	api.POST("/archives/validate", s.handlePostValidate)

	sess := api.Group("/sessions/:id")
	sess.GET("", s.handleGetSession)
	sess.DELETE("", s.handleDeleteSession)
	sess.POST("/character", s.handlePostCharacter)
	sess.POST("/lorebook", s.handlePostLorebook)
	sess.POST("/lorebook/entries", s.handlePostEntry)
	sess.PUT("/lorebook/entries/:entry", s.handlePutEntry)
	sess.DELETE("/lorebook/entries/:entry", s.handleDeleteEntry)
	sess.POST("/assets", s.handlePostAssets)
	sess.PUT("/assets/:name", s.handlePutAsset)
	sess.GET("/assets/:name/preview", s.handleGetAssetPreview)
	sess.POST("/modifications", s.handlePostModification)
	sess.POST("/finalize", s.handlePostFinalize)
	sess.POST("/run", s.handlePostRun)
	sess.GET("/export", s.handleGetExport)
	sess.POST("/save", s.handlePostSave)
}

func (s *Server) Start(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", "sessions", s.Sessions.Len())
	return s.Echo.Shutdown(ctx)
}

// status maps domain errors onto HTTP status codes.
func status(err error) int {
	var (
		he  *echo.HTTPError
		pe  *workflow.PreconditionError
		ve  *charx.ValidationError
		ge  *inference.GatewayError
		pae *extract.ParseError
	)
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &pe), errors.Is(err, workflow.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrEntryNotFound), errors.Is(err, settings.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve), errors.As(err, &pae), errors.Is(err, inference.ErrInvalidConfig),
		errors.Is(err, charx.ErrNoManifest), errors.Is(err, charx.ErrDuplicate), errors.Is(err, settings.ErrInvalidTemplate):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ge):
		if ge.Kind == inference.KindTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := status(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "status", code, "error", err)
	}
	if err := c.JSON(code, utils.ErrJSON(msg)); err != nil {
		s.logger.Error("write error response", "error", err)
	}
}
