package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/settings"
)

// GET /api/settings
func (s *Server) handleGetSettings(c echo.Context) error {
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st.Redacted())
}

// PUT /api/settings
func (s *Server) handlePutSettings(c echo.Context) error {
	var req settings.Settings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if err := req.Config().Validate(); err != nil {
		s.logger.Warn("saving settings with an unusable provider", "provider", req.Active, "error", err)
	}
	st, err := s.Settings.Update(func(cur *settings.Settings) { *cur = req })
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st.Redacted())
}

// POST /api/settings/templates
func (s *Server) handlePostTemplate(c echo.Context) error {
	t, err := bind[settings.PromptTemplate](c)
	if err != nil {
		return err
	}
	t, err = s.Settings.AddTemplate(t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, t)
}

// DELETE /api/settings/templates/:template
func (s *Server) handleDeleteTemplate(c echo.Context) error {
	if err := s.Settings.DeleteTemplate(c.Param("template")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
