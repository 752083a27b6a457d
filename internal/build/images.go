package build

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
	"github.com/conneroisu/sitekit/internal/fileset"
)

var pngLevels = map[string]png.CompressionLevel{
	"default": png.DefaultCompression,
	"speed":   png.BestSpeed,
	"best":    png.BestCompression,
	"none":    png.NoCompression,
}

// Images optimises the matched images. With images.only_newer set, files
// whose output is at least as recent as the source are skipped. An optimised
// file that is not smaller than its source is written unchanged.
func (p *Pipeline) Images(ctx context.Context) error {
	return p.run(ctx, TaskImages, EventReload, p.images)
}

func (p *Pipeline) images(ctx context.Context, st *TaskStats) error {
	files, err := fileset.Expand(p.fs, p.cfg.Paths.Images.Source...)
	if err != nil {
		return fmt.Errorf("expanding image sources: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := p.output(config.CategoryImages, f.Rel)
		if p.cfg.Images.OnlyNewer && !p.newer(f.Path, dst) {
			st.FilesSkipped++
			continue
		}

		data, err := p.readFile(f.Path)
		if err != nil {
			return err
		}
		out, err := p.optimizeImage(ctx, f.Path, data)
		if err != nil {
			return sitekiterrors.NewBuildError(TaskImages, f.Path, err)
		}
		if len(out) >= len(data) {
			out = data
		}
		st.BytesSaved += int64(len(data) - len(out))
		if err := p.writeFile(st, dst, out); err != nil {
			return err
		}
	}
	return nil
}

// newer reports whether src was modified after dst, or dst does not exist.
func (p *Pipeline) newer(src, dst string) bool {
	dstInfo, err := p.fs.Stat(filepath.FromSlash(dst))
	if err != nil {
		return true
	}
	srcInfo, err := p.fs.Stat(filepath.FromSlash(src))
	if err != nil {
		return true
	}
	return srcInfo.ModTime().After(dstInfo.ModTime())
}

func (p *Pipeline) optimizeImage(ctx context.Context, name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding jpeg: %w", err)
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.Images.JPEGQuality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	case ".png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding png: %w", err)
		}
		enc := png.Encoder{CompressionLevel: pngLevels[p.cfg.Images.PNGLevel]}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	case ".gif":
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding gif: %w", err)
		}
		if p.cfg.Images.GIFInterlaced {
			p.logger.Debug(ctx, "GIF encoder cannot interlace, writing frames non-interlaced", "file", name)
		}
		if err := gif.EncodeAll(&buf, g); err != nil {
			return nil, fmt.Errorf("encoding gif: %w", err)
		}
	case ".svg":
		return p.minifier.Bytes(mediaSVG, data)
	case ".json", ".webmanifest":
		return p.minifier.Bytes(mediaJSON, data)
	case ".xml":
		return p.minifier.Bytes(mediaXML, data)
	default:
		// ico, webp
		return data, nil
	}
	return buf.Bytes(), nil
}
