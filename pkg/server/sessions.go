package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/assets"
	"cardforge/pkg/inference"
	"cardforge/pkg/schema"
	"cardforge/pkg/workflow"
)

// snapshot is the JSON view of a session.
type snapshot struct {
	ID       string                      `json:"id"`
	Provider inference.Provider          `json:"provider,omitzero"`
	Stages   []workflow.Stage            `json:"stages"`
	Record   schema.CharacterRecord      `json:"record"`
	Lorebook []schema.LorebookEntry      `json:"lorebook"`
	Assets   []schema.AssetRenameResult  `json:"assets"`
	Summary  assets.Summary              `json:"assetSummary"`
	History  []schema.ModificationRecord `json:"modificationHistory"`
	Usage    inference.TokenUsage        `json:"usage"`
	Warning  string                      `json:"warning,omitzero"`
}

func snapshotOf(sess *workflow.Session) snapshot {
	return snapshot{
		ID:       sess.ID,
		Stages:   sess.Stages(),
		Record:   sess.Record(),
		Lorebook: sess.Lorebook(),
		Assets:   sess.AssetResults(),
		Summary:  sess.AssetSummary(),
		History:  sess.History(),
		Usage:    sess.Usage(),
	}
}

// newSession builds a session from the stored settings. A provider that
// cannot be configured leaves the session without a model; manual stages
// still work and model stages answer with a precondition error.
func (s *Server) newSession(c echo.Context, opts ...workflow.Option) (*workflow.Session, snapshot, error) {
	st, err := s.Settings.Load()
	if err != nil {
		return nil, snapshot{}, err
	}
	cfg := st.Config()

	var warning string
	inf, err := s.Factory(c.Request().Context(), cfg)
	if err != nil {
		s.logger.Warn("session has no model", "provider", cfg.Provider, "error", err)
		inf, warning = nil, err.Error()
	}

	opts = append([]workflow.Option{
		workflow.WithLogger(s.logger),
		workflow.WithThresholds(st.Thresholds),
		workflow.WithParallelism(st.Parallelism),
	}, opts...)
	sess := workflow.New(inf, opts...)
	s.Sessions.Store(sess.ID, sess)
	s.logger.Info("session created", "id", sess.ID, "provider", cfg.Provider, "model", cfg.Model)

	snap := snapshotOf(sess)
	snap.Provider = cfg.Provider
	snap.Warning = warning
	return sess, snap, nil
}

func (s *Server) session(c echo.Context) (*workflow.Session, error) {
	sess, ok := s.Sessions.Load(c.Param("id"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

// POST /api/sessions
func (s *Server) handlePostSession(c echo.Context) error {
	_, snap, err := s.newSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, snap)
}

// GET /api/sessions/:id
func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshotOf(sess))
}

// DELETE /api/sessions/:id
func (s *Server) handleDeleteSession(c echo.Context) error {
	if _, err := s.session(c); err != nil {
		return err
	}
	s.Sessions.Delete(c.Param("id"))
	s.forgetPreviews(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
