package charx

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cardforge/pkg/assets"
	"cardforge/pkg/schema"
)

type ExportOptions struct {
	Card        schema.CardData
	Assets      []assets.Entry
	Compression Compression
	// IncludeMetadata adds metadata.json next to the manifest.
	IncludeMetadata bool
	Now             func() time.Time
}

// Metadata describes an export.
type Metadata struct {
	CharacterName    string         `json:"characterName"`
	AssetCount       int            `json:"assetCount"`
	AssetBytes       int64          `json:"assetBytes"`
	ArchiveBytes     int64          `json:"archiveBytes"`
	CompressionRatio float64        `json:"compressionRatio"`
	Compression      Compression    `json:"compression"`
	Extensions       map[string]int `json:"extensions"`
	ExportedAt       time.Time      `json:"exportedAt"`
	Duration         time.Duration  `json:"duration"`
}

type Archive struct {
	FileName string
	Data     []byte
	Manifest schema.CardV3
	Metadata Metadata
}

// Export builds an archive in memory.
func Export(opts ExportOptions) (*Archive, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	start := now()

	var buf bytes.Buffer
	manifest, meta, err := write(&buf, opts)
	if err != nil {
		return nil, err
	}

	meta.ArchiveBytes = int64(buf.Len())
	meta.CompressionRatio = 1
	if meta.AssetBytes > 0 {
		meta.CompressionRatio = float64(meta.ArchiveBytes) / float64(meta.AssetBytes)
	}
	meta.Duration = now().Sub(start)
	return &Archive{
		FileName: FileName(opts.Card.Name, start),
		Data:     buf.Bytes(),
		Manifest: manifest,
		Metadata: meta,
	}, nil
}

func write(w io.Writer, opts ExportOptions) (schema.CardV3, Metadata, error) {
	if !opts.Compression.Valid() {
		return schema.CardV3{}, Metadata{}, fmt.Errorf("unknown compression %q", opts.Compression)
	}
	manifest := Manifest(opts.Card, opts.Assets)
	meta := Metadata{
		CharacterName: opts.Card.Name,
		AssetCount:    len(opts.Assets),
		Compression:   opts.Compression,
		Extensions:    make(map[string]int),
	}
	if opts.Now != nil {
		meta.ExportedAt = opts.Now()
	} else {
		meta.ExportedAt = time.Now()
	}

	zw := zip.NewWriter(w)
	level := opts.Compression.level()
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	if err := writeJSON(zw, ManifestName, manifest); err != nil {
		return manifest, meta, err
	}

	seen := make(map[string]struct{}, len(opts.Assets))
	for i, e := range opts.Assets {
		p := manifest.Data.Assets[i].URI[len(Scheme):]
		if _, dup := seen[p]; dup {
			return manifest, meta, fmt.Errorf("%w: %s", ErrDuplicate, p)
		}
		seen[p] = struct{}{}

		fw, err := zw.Create(p)
		if err != nil {
			return manifest, meta, fmt.Errorf("create %s: %w", p, err)
		}
		if _, err := fw.Write(e.File.Data); err != nil {
			return manifest, meta, fmt.Errorf("write %s: %w", p, err)
		}
		meta.AssetBytes += int64(len(e.File.Data))
		meta.Extensions[assets.Ext(finalName(e))]++
	}

	if opts.IncludeMetadata {
		if err := writeJSON(zw, MetadataName, meta); err != nil {
			return manifest, meta, err
		}
	}
	if err := zw.Close(); err != nil {
		return manifest, meta, fmt.Errorf("close archive: %w", err)
	}
	return manifest, meta, nil
}

func writeJSON(zw *zip.Writer, name string, v any) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(fw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}
