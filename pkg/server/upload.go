package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

const maxMemory = 32 << 20

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// uploadedFiles reads every file sent under field.
func uploadedFiles(c echo.Context, field string) ([]schema.AssetFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
	}
	headers := form.File[field]
	out := make([]schema.AssetFile, 0, len(headers))
	for _, h := range headers {
		f, err := readUpload(h)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readUpload(h *multipart.FileHeader) (schema.AssetFile, error) {
	src, err := h.Open()
	if err != nil {
		return schema.AssetFile{}, fmt.Errorf("open upload %s: %w", h.Filename, err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return schema.AssetFile{}, fmt.Errorf("read upload %s: %w", h.Filename, err)
	}
	f := schema.AssetFile{Name: h.Filename, Data: data}
	f.MIME = assets.MIME(f)
	return f, nil
}

// formJSON decodes a JSON form value into v when present.
func formJSON(c echo.Context, field string, v any) error {
	raw := c.FormValue(field)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", field, err))
	}
	return nil
}

func formBool(c echo.Context, field string) bool {
	b, _ := strconv.ParseBool(c.FormValue(field))
	return b
}
