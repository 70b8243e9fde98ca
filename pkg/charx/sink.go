package charx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"

	"cardforge/pkg/utils"
)

// ErrCommitted is returned by a sink that already started sending a file
// when the send failed. Nothing else can be saved through it.
var ErrCommitted = errors.New("sink already committed")

// Sink is where finished archives go. Save returns a description of where
// the file ended up.
type Sink interface {
	Save(ctx context.Context, fileName, contentType string, data []byte) (string, error)
}

// DirSink writes into the first usable directory.
type DirSink struct {
	Dirs []string
}

// DefaultDirs is the working directory, then ~/Desktop, then ~/Downloads.
func DefaultDirs() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Desktop"), filepath.Join(home, "Downloads"))
	}
	return dirs
}

func (d DirSink) Save(ctx context.Context, fileName, _ string, data []byte) (string, error) {
	dirs := d.Dirs
	if len(dirs) == 0 {
		dirs = DefaultDirs()
	}
	var errs []error
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		p := filepath.Join(dir, utils.SanitizeFilename(fileName))
		if err := utils.WriteFile(p, data); err != nil {
			errs = append(errs, err)
			continue
		}
		return p, nil
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no usable directory in %v", dirs)
	}
	return "", errors.Join(errs...)
}

// HTTPSink sends the file as a download attachment.
type HTTPSink struct {
	W http.ResponseWriter
}

func (h HTTPSink) Save(_ context.Context, fileName, contentType string, data []byte) (string, error) {
	hdr := h.W.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	h.W.WriteHeader(http.StatusOK)
	if _, err := h.W.Write(data); err != nil {
		return "", fmt.Errorf("%w: send %s: %w", ErrCommitted, fileName, err)
	}
	return "attachment " + fileName, nil
}

// FallbackName is the name of the JSON written when an archive cannot be.
func FallbackName(characterName string) string {
	return safeName(characterName) + "_fallback.json"
}

// Deliver builds the archive and hands it to the sink. If either step fails
// the bare manifest is saved as <name>_fallback.json instead, and the
// original error is returned alongside the fallback location.
func Deliver(ctx context.Context, sink Sink, opts ExportOptions, logger *log.Logger) (string, error) {
	if logger == nil {
		logger = log.Default()
	}
	a, err := Export(opts)
	if err == nil {
		var where string
		if where, err = sink.Save(ctx, a.FileName, MIME, a.Data); err == nil {
			logger.Info("archive saved", "to", where, "assets", a.Metadata.AssetCount, "bytes", a.Metadata.ArchiveBytes)
			return where, nil
		}
	}
	if errors.Is(err, ErrCommitted) {
		logger.Error("archive delivery broke off", "error", err)
		return "", err
	}
	logger.Error("archive export failed, writing JSON fallback", "error", err)

	b, jerr := json.MarshalIndent(Manifest(opts.Card, opts.Assets), "", "  ")
	if jerr != nil {
		return "", errors.Join(err, jerr)
	}
	where, serr := sink.Save(ctx, FallbackName(opts.Card.Name), "application/json", b)
	if serr != nil {
		return "", errors.Join(err, serr)
	}
	return where, &FallbackError{Path: where, Err: err}
}

// FallbackError reports that only the JSON fallback was saved.
type FallbackError struct {
	Path string
	Err  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("archive export failed, saved %s instead: %v", e.Path, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }
