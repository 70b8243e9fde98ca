package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/utils"
	"cardforge/pkg/workflow"
)

// POST /api/sessions/:id/run
//
// Accepts either a JSON RunInput or a multipart form with an "input" JSON
// field, "files", "manual" and "useAI". Progress is streamed as SSE.
func (s *Server) handlePostRun(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	var in workflow.RunInput
	if isMultipart(c) {
		if err := formJSON(c, "input", &in); err != nil {
			return err
		}
		if in.Assets.Files, err = uploadedFiles(c, "files"); err != nil {
			return err
		}
		if err := formJSON(c, "manual", &in.Assets.Manual); err != nil {
			return err
		}
		in.Assets.UseAI = formBool(c, "useAI")
	} else if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}

	if len(in.Assets.Files) > 0 {
		defer s.forgetPreviews(sess.ID)
	}

	w := utils.NewSSEWriter(c)
	defer w.Close()

	_, err = sess.RunAll(c.Request().Context(), in, func(p workflow.Progress) {
		if err := w.Event("progress", p); err != nil {
			s.logger.Warn("progress event not sent", "error", err)
		}
	})
	if err != nil {
		return w.Event("error", map[string]any{"success": false, "status": status(err), "error": err.Error()})
	}
	return w.Event("done", snapshotOf(sess))
}
