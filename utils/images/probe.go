// Package images prepares referenced image files for embedding: format
// sniffing, pixel geometry, SVG rasterization and optional downscaling.
package images

import (
	"bytes"
	"fmt"
	"image"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"sdoc/config"
)

// Dim is a pixel geometry.
type Dim struct {
	Width, Height int
}

func (d Dim) IsZero() bool {
	return d.Width <= 0 || d.Height <= 0
}

// Prepared is an image ready for embedding. Dim may be zero when the pixel
// geometry could not be determined, Data is always usable.
type Prepared struct {
	Data []byte
	Ext  string // lowercase, no dot
	Mime string
	Dim  Dim
}

var svgMarkRe = regexp.MustCompile(`(?s)\A\s*(?:<\?xml[^>]*\?>)?\s*(?:<!--.*?-->\s*)*(?:<!DOCTYPE[^>]*>\s*)*<svg[\s>]`)

// IsSVG detects SVG content by file name or by document markup.
func IsSVG(name string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(name), ".svg") {
		return true
	}
	return svgMarkRe.Match(data)
}

var viewBoxRe = regexp.MustCompile(`viewBox\s*=\s*["']\s*[0-9eE.+-]+[\s,]+[0-9eE.+-]+[\s,]+([0-9eE.+-]+)[\s,]+([0-9eE.+-]+)`)

// SVGDim reads pixel geometry from the viewBox attribute.
func SVGDim(data []byte) (Dim, error) {
	m := viewBoxRe.FindSubmatch(data)
	if m == nil {
		return Dim{}, fmt.Errorf("svg has no usable viewBox")
	}
	w, errW := strconv.ParseFloat(string(m[1]), 64)
	h, errH := strconv.ParseFloat(string(m[2]), 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Dim{}, fmt.Errorf("svg has invalid viewBox dimensions %q x %q", m[1], m[2])
	}
	return Dim{Width: int(w + 0.5), Height: int(h + 0.5)}, nil
}

// Probe determines the format and pixel geometry of raster data. Format comes
// from content sniffing, never from the file name.
func Probe(data []byte) (Dim, string, string, error) {
	ext, mime := "", ""
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		ext, mime = kind.Extension, kind.MIME.Value
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dim{}, ext, mime, fmt.Errorf("unable to decode image geometry: %w", err)
	}
	return Dim{Width: cfg.Width, Height: cfg.Height}, ext, mime, nil
}

// Prepare makes image bytes ready for embedding. SVG content is rasterized to
// PNG first. Raster images wider than the configured limit are downscaled
// when resizing is enabled. Unknown geometry is not an error, the caller
// falls back to a default display size.
func Prepare(name string, data []byte, cfg *config.ImagesConfig, log *zap.Logger) (*Prepared, error) {
	if IsSVG(name, data) {
		img, err := RasterizeSVGToImage(data, cfg.SVGRasterSize, cfg.SVGRasterSize)
		if err != nil {
			return nil, fmt.Errorf("unable to rasterize %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("unable to encode rasterized %s: %w", name, err)
		}
		log.Debug("Rasterized SVG image",
			zap.String("file", name),
			zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()))

		p := &Prepared{
			Data: buf.Bytes(),
			Ext:  "png",
			Mime: "image/png",
			Dim:  Dim{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()},
		}
		return p.maybeResize(name, cfg, log)
	}

	dim, ext, mime, err := Probe(data)
	if err != nil {
		// still embeddable, geometry defaulted downstream
		log.Warn("Unable to determine image geometry", zap.String("file", name), zap.Error(err))
	}
	if ext == "" {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(nameExt(name))), ".")
	}

	p := &Prepared{Data: data, Ext: ext, Mime: mime, Dim: dim}
	return p.maybeResize(name, cfg, log)
}

func nameExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// maybeResize downscales over-wide images keeping aspect ratio. JPEG input
// stays JPEG at the configured quality, everything else re-encodes to PNG.
func (p *Prepared) maybeResize(name string, cfg *config.ImagesConfig, log *zap.Logger) (*Prepared, error) {
	if cfg.Resize != config.ImageResizeModeKeepAR || cfg.MaxWidthPx <= 0 {
		return p, nil
	}
	if p.Dim.IsZero() || p.Dim.Width <= cfg.MaxWidthPx {
		return p, nil
	}

	img, err := imaging.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("unable to decode %s for resizing: %w", name, err)
	}
	resized := imaging.Resize(img, cfg.MaxWidthPx, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if p.Ext == "jpg" || p.Ext == "jpeg" {
		err = imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(cfg.JPEGQuality))
	} else {
		err = imaging.Encode(&buf, resized, imaging.PNG)
		p.Ext, p.Mime = "png", "image/png"
	}
	if err != nil {
		return nil, fmt.Errorf("unable to encode resized %s: %w", name, err)
	}

	log.Debug("Resized image",
		zap.String("file", name),
		zap.Int("from", p.Dim.Width), zap.Int("to", cfg.MaxWidthPx))

	p.Data = buf.Bytes()
	p.Dim = Dim{Width: resized.Bounds().Dx(), Height: resized.Bounds().Dy()}
	return p, nil
}
