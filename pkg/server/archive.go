package server

import (
	"cmp"
	"errors"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/assets"
	"cardforge/pkg/charx"
	"cardforge/pkg/schema"
	"cardforge/pkg/workflow"
)

func exportOptions(c echo.Context, final workflow.Final, fallback charx.Compression) (charx.ExportOptions, error) {
	comp := charx.Compression(c.QueryParam("compression"))
	if comp == "" {
		comp = fallback
	}
	if !comp.Valid() {
		return charx.ExportOptions{}, echo.NewHTTPError(http.StatusBadRequest, "unknown compression "+string(comp))
	}
	return charx.ExportOptions{
		Card:            final.Card(),
		Assets:          final.Assets,
		Compression:     comp,
		IncludeMetadata: c.QueryParam("metadata") == "true",
	}, nil
}

// final returns the last finalized card, finalizing on demand.
func final(sess *workflow.Session) (workflow.Final, error) {
	if f, ok := sess.Final(); ok {
		return f, nil
	}
	return sess.Finalize()
}

// GET /api/sessions/:id/export
func (s *Server) handleGetExport(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	f, err := final(sess)
	if err != nil {
		return err
	}
	opts, err := exportOptions(c, f, st.Compression)
	if err != nil {
		return err
	}

	_, err = charx.Deliver(c.Request().Context(), charx.HTTPSink{W: c.Response()}, opts, s.logger)
	var fe *charx.FallbackError
	if errors.As(err, &fe) {
		return nil
	}
	return err
}

// POST /api/sessions/:id/save
func (s *Server) handlePostSave(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	st, err := s.Settings.Load()
	if err != nil {
		return err
	}
	f, err := final(sess)
	if err != nil {
		return err
	}
	opts, err := exportOptions(c, f, st.Compression)
	if err != nil {
		return err
	}

	sink := s.Sink
	if sink == nil {
		sink = charx.DirSink{Dirs: st.OutputDirs}
	}
	where, err := charx.Deliver(c.Request().Context(), sink, opts, s.logger)
	var fe *charx.FallbackError
	switch {
	case errors.As(err, &fe):
		return c.JSON(http.StatusOK, map[string]any{"success": true, "path": where, "fallback": true, "error": fe.Err.Error()})
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "path": where})
}

func archiveUpload(c echo.Context) ([]byte, error) {
	files, err := uploadedFiles(c, "file")
	if err != nil {
		return nil, err
	}
	if len(files) != 1 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "expected exactly one file")
	}
	return files[0].Data, nil
}

// POST /api/archives/validate
func (s *Server) handlePostValidate(c echo.Context) error {
	data, err := archiveUpload(c)
	if err != nil {
		return err
	}
	report := charx.Validate(data)
	resp := map[string]any{"report": report}
	if info, err := charx.Inspect(data); err == nil {
		resp["info"] = info
	}
	return c.JSON(http.StatusOK, resp)
}

// POST /api/archives/import
func (s *Server) handlePostImport(c echo.Context) error {
	data, err := archiveUpload(c)
	if err != nil {
		return err
	}
	imp, err := charx.Import(data)
	if err != nil {
		return err
	}

	sess, _, err := s.newSession(c,
		workflow.WithRecord(imp.Card.Data.Record(), imp.Card.Data.Entries()),
		workflow.WithAssets(importedAssets(imp.Card.Data, imp.Files)),
	)
	if err != nil {
		return err
	}
	s.logger.Info("archive imported", "session", sess.ID, "name", imp.Card.Data.Name, "assets", len(imp.Files))
	return c.JSON(http.StatusCreated, snapshotOf(sess))
}

// importedAssets recovers the category of every archived file from the card
// asset list and the dynamic asset lists. File names are kept as they are.
func importedAssets(card schema.CardData, files []schema.AssetFile) []assets.Entry {
	var dyn *schema.DynamicAssets
	if card.Extensions.Risu != nil {
		dyn = card.Extensions.Risu.DynamicAssets
	}
	categories := make(map[string]schema.Category, len(card.Assets))
	for _, a := range card.Assets {
		file := path.Base(a.URI)
		token := strings.TrimSuffix(file, path.Ext(file))
		category := schema.CategoryEtc
		switch {
		case a.Type == charx.TypeIcon:
			category = schema.CategoryProfile
		case dyn != nil:
			for _, c := range []schema.Category{schema.CategoryEmotion, schema.CategoryAdult, schema.CategoryProfile} {
				if slices.Contains(dyn.ByCategory(c), token) {
					category = c
					break
				}
			}
		}
		categories[file] = category
	}

	out := make([]assets.Entry, len(files))
	for i, f := range files {
		out[i] = assets.Entry{File: f, Result: schema.AssetRenameResult{
			OriginalFileName:  f.Name,
			SuggestedFileName: f.Name,
			Category:          cmp.Or(categories[f.Name], schema.CategoryEtc),
			Confidence:        100,
			Reasoning:         "imported",
			ExtractedKeyword:  assets.Token(f.Name),
		}}
	}
	return out
}
