package server

import (
	"cmp"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
	"cardforge/pkg/settings"
	"cardforge/pkg/workflow"
)

func bind[T any](c echo.Context) (T, error) {
	var v T
	if err := c.Bind(&v); err != nil {
		return v, echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	return v, nil
}

// templated replaces prompt with the saved template named by ?template=.
func templated(c echo.Context, st *settings.Settings, stage workflow.StageID, prompt *string) error {
	id := c.QueryParam("template")
	if id == "" {
		return nil
	}
	t, ok := st.Template(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, settings.ErrTemplateNotFound.Error())
	}
	if t.Stage != stage {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("template %s belongs to stage %d", id, t.Stage))
	}
	*prompt = t.Template
	return nil
}

// POST /api/sessions/:id/character
func (s *Server) handlePostCharacter(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	brief, err := bind[workflow.Brief](c)
	if err != nil {
		return err
	}
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	if err := templated(c, st, workflow.StageCharacter, &brief.CustomPrompt); err != nil {
		return err
	}
	brief.Language = cmp.Or(brief.Language, st.OutputLanguage())

	if _, err := sess.GenerateCharacter(c.Request().Context(), brief); err != nil {
		return err
	}
	if _, err := s.Settings.Update(func(st *settings.Settings) { st.LastInput = &brief }); err != nil {
		s.logger.Warn("last character input not saved", "error", err)
	}
	return c.JSON(http.StatusOK, snapshotOf(sess))
}

// POST /api/sessions/:id/lorebook
func (s *Server) handlePostLorebook(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	in, err := bind[workflow.LorebookInput](c)
	if err != nil {
		return err
	}
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	if err := templated(c, st, workflow.StageLorebook, &in.CustomPrompt); err != nil {
		return err
	}
	if _, err := sess.GenerateLorebook(c.Request().Context(), in); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshotOf(sess))
}

func entryID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("entry"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	return id, nil
}

// POST /api/sessions/:id/lorebook/entries
func (s *Server) handlePostEntry(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	e, err := bind[schema.LorebookEntry](c)
	if err != nil {
		return err
	}
	added, err := sess.AddEntry(e)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, added)
}

// PUT /api/sessions/:id/lorebook/entries/:entry
func (s *Server) handlePutEntry(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	id, err := entryID(c)
	if err != nil {
		return err
	}
	e, err := bind[schema.LorebookEntry](c)
	if err != nil {
		return err
	}
	updated, err := sess.UpdateEntry(id, e)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

// DELETE /api/sessions/:id/lorebook/entries/:entry
func (s *Server) handleDeleteEntry(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	id, err := entryID(c)
	if err != nil {
		return err
	}
	if err := sess.DeleteEntry(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/sessions/:id/assets (multipart: files, manual, useAI)
func (s *Server) handlePostAssets(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if !isMultipart(c) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "expected multipart form")
	}
	files, err := uploadedFiles(c, "files")
	if err != nil {
		return err
	}
	in := workflow.AssetInput{Files: files, UseAI: formBool(c, "useAI")}
	if err := formJSON(c, "manual", &in.Manual); err != nil {
		return err
	}
	_, err = sess.ProcessAssets(c.Request().Context(), in)
	s.forgetPreviews(sess.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshotOf(sess))
}

type overrideReq struct {
	Name     string          `json:"name"`
	Category schema.Category `json:"category"`
}

// PUT /api/sessions/:id/assets/:name
func (s *Server) handlePutAsset(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	req, err := bind[overrideReq](c)
	if err != nil {
		return err
	}
	res, err := sess.OverrideAsset(c.Param("name"), req.Name, req.Category)
	if err != nil {
		return err
	}
	s.forgetPreviews(sess.ID)
	return c.JSON(http.StatusOK, res)
}

const previewTTL = 10 * time.Minute

type previewKey struct {
	session string
	name    string
	quality int
}

func (s *Server) renderPreview(k previewKey) ([]byte, error) {
	sess, ok := s.Sessions.Load(k.session)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	for _, e := range sess.Assets() {
		if e.File.Name != k.name && e.Result.SuggestedFileName != k.name {
			continue
		}
		b, err := assets.Preview(e.File, k.quality)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return b, nil
	}
	return nil, echo.NewHTTPError(http.StatusNotFound, "asset not found")
}

// forgetPreviews drops cached previews of a session whose assets changed.
func (s *Server) forgetPreviews(id string) {
	s.previews.Forget(func(k previewKey) bool { return k.session == id })
}

// GET /api/sessions/:id/assets/:name/preview
func (s *Server) handleGetAssetPreview(c echo.Context) error {
	if _, err := s.session(c); err != nil {
		return err
	}
	quality, _ := strconv.Atoi(c.QueryParam("quality"))
	if quality <= 0 || quality > 100 {
		quality = assets.DefaultPreviewQuality
	}
	b, err := s.previews.Get(previewKey{session: c.Param("id"), name: c.Param("name"), quality: quality})
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/webp", b)
}

// POST /api/sessions/:id/modifications
func (s *Server) handlePostModification(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	m, err := bind[workflow.Modification](c)
	if err != nil {
		return err
	}
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	if err := templated(c, st, workflow.StageModification, &m.CustomPrompt); err != nil {
		return err
	}
	rec, err := sess.ApplyModification(c.Request().Context(), m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// POST /api/sessions/:id/finalize
func (s *Server) handlePostFinalize(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	final, err := sess.Finalize()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, final)
}
