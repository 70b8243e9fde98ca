package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gen2brain/webp"

	"cardforge/pkg/schema"
)

// Info describes an asset's content.
type Info struct {
	Name   string `json:"name"`
	MIME   string `json:"mime"`
	Size   int    `json:"size"`
	Media  string `json:"media"`
	Width  int    `json:"width,omitzero"`
	Height int    `json:"height,omitzero"`
	Format string `json:"format,omitzero"`
}

// Inspect reports type and, for raster images, dimensions.
func Inspect(f schema.AssetFile) Info {
	info := Info{
		Name:  f.Name,
		MIME:  MIME(f),
		Size:  len(f.Data),
		Media: MediaCategory(f.Name),
	}
	if info.Media != "image" || len(f.Data) == 0 {
		return info
	}

	var (
		cfg    image.Config
		format string
		err    error
	)
	if Ext(f.Name) == "webp" {
		cfg, err = webp.DecodeConfig(bytes.NewReader(f.Data))
		format = "webp"
	} else {
		cfg, format, err = image.DecodeConfig(bytes.NewReader(f.Data))
	}
	if err == nil {
		info.Width, info.Height, info.Format = cfg.Width, cfg.Height, format
	}
	return info
}

// MIME resolves the content type from the extension, sniffing when unknown.
func MIME(f schema.AssetFile) string {
	if f.MIME != "" {
		return f.MIME
	}
	if t, ok := extraMIME[Ext(f.Name)]; ok {
		return t
	}
	if t := mime.TypeByExtension(filepath.Ext(f.Name)); t != "" {
		return t
	}
	if len(f.Data) > 0 {
		return http.DetectContentType(f.Data)
	}
	return "application/octet-stream"
}

// Checked before the system table, which varies between hosts.
var extraMIME = map[string]string{
	"webp":        "image/webp",
	"avif":        "image/avif",
	"flac":        "audio/flac",
	"m4a":         "audio/mp4",
	"mkv":         "video/x-matroska",
	"woff2":       "font/woff2",
	"lua":         "text/x-lua",
	"safetensors": "application/octet-stream",
}

const DefaultPreviewQuality = 80

// Preview decodes a raster image and re-encodes it as WebP for display.
// WebP files are returned unchanged.
func Preview(f schema.AssetFile, quality int) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch Ext(f.Name) {
	case "webp":
		return f.Data, nil
	case "png":
		img, err = png.Decode(bytes.NewReader(f.Data))
	default:
		img, _, err = image.Decode(bytes.NewReader(f.Data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name, err)
	}

	if quality <= 0 || quality > 100 {
		quality = DefaultPreviewQuality
	}
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, webp.Options{Lossless: false, Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
