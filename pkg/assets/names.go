package assets

import (
	"path/filepath"
	"strings"

	"cardforge/pkg/utils"
)

// Media groups file extensions into the archive's media directories.
var media = map[string][]string{
	"image": {"png", "jpg", "jpeg", "gif", "webp", "svg", "bmp", "avif"},
	"audio": {"mp3", "wav", "ogg", "flac", "aac", "m4a"},
	"video": {"mp4", "webm", "avi", "mov", "mkv"},
	"ai":    {"safetensors", "ckpt", "onnx", "pt", "bin"},
	"fonts": {"ttf", "otf", "woff", "woff2"},
	"code":  {"js", "lua", "py", "json"},
}

var mediaByExt = func() map[string]string {
	out := make(map[string]string)
	for m, exts := range media {
		for _, e := range exts {
			out[e] = m
		}
	}
	return out
}()

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// MediaCategory maps a file name to its media directory, or "other".
func MediaCategory(name string) string {
	if m, ok := mediaByExt[Ext(name)]; ok {
		return m
	}
	return "other"
}

// Token is the extension-less name used to reference an asset in text.
func Token(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// WithExtension gives name the extension of original. An extension already
// on name is replaced when it is a known media type or matches original's.
func WithExtension(name, original string) string {
	name = strings.TrimSpace(name)
	ext := filepath.Ext(original)
	if cur := filepath.Ext(name); cur != "" {
		if _, known := mediaByExt[Ext(name)]; known || strings.EqualFold(cur, ext) {
			name = strings.TrimSuffix(name, cur)
		}
	}
	return name + ext
}

// CleanName sanitizes a supplied name and gives it original's extension. ok
// is false when no usable token is left, as for "." or "__".
func CleanName(name, original string) (string, bool) {
	n := WithExtension(utils.SanitizeFilename(name), original)
	return n, strings.Trim(Token(n), ". _-") != ""
}
