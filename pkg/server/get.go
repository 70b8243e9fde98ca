package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/inference"
)

func (s *Server) handleGetRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":  "CardForge API",
		"status":   "ok",
		"sessions": s.Sessions.Len(),
	})
}

type providerInfo struct {
	Provider inference.Provider `json:"provider"`
	Local    bool               `json:"local"`
	Defaults inference.Config   `json:"defaults"`
}

// GET /api/providers
func (s *Server) handleGetProviders(c echo.Context) error {
	out := make([]providerInfo, len(inference.Providers))
	for i, p := range inference.Providers {
		out[i] = providerInfo{
			Provider: p,
			Local:    p.Local(),
			Defaults: inference.Config{Provider: p}.WithDefaults(),
		}
	}
	return c.JSON(http.StatusOK, out)
}
