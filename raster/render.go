package raster

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"m2p/layout"
	"m2p/markup"
)

// Renderer turns styled-container declarations into replacement PNGs.
type Renderer struct {
	fetch *Fetcher
	log   *zap.Logger

	// SaveDir, when set, receives a copy of every rendered raster for
	// inspection, named after the slugified source reference.
	SaveDir string
}

// NewRenderer creates a renderer on top of a fetcher.
func NewRenderer(fetch *Fetcher, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{fetch: fetch, log: log.Named("raster")}
}

// RenderPNG fetches the declaration's source and renders the flattened
// container raster, PNG encoded. Failures are ImageFetchErrors scoped to
// this declaration.
func (r *Renderer) RenderPNG(ctx context.Context, decl markup.StyledContainerDecl) ([]byte, error) {
	data, err := r.fetch.Fetch(ctx, decl.SourceURL)
	if err != nil {
		return nil, err
	}
	src, format, err := Decode(data)
	if err != nil {
		return nil, &ImageFetchError{Source: decl.SourceURL, Err: err}
	}
	r.log.Debug("Rendering styled container",
		zap.String("source", decl.SourceURL),
		zap.String("format", format),
		zap.Float64("w", decl.Box.W),
		zap.Float64("h", decl.Box.H))

	out := Render(decl, src)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, &ImageFetchError{Source: decl.SourceURL, Err: err}
	}

	if r.SaveDir != "" {
		name := filepath.Join(r.SaveDir, slug.Make(decl.SourceURL)+".png")
		if err := os.WriteFile(name, buf.Bytes(), 0644); err != nil {
			r.log.Warn("Unable to save rendered container", zap.String("file", name), zap.Error(err))
		}
	}
	return buf.Bytes(), nil
}

// Render composites one styled container: object-fit into the wrapper box,
// then the uniform zoom about the box center, then opacity and the corner
// mask. Zooming after fit keeps transform:scale visible under cover, where
// pre-scaling would cancel out. Pure; no I/O.
func Render(decl markup.StyledContainerDecl, src image.Image) *image.NRGBA {
	w := max(1, int(math.Round(decl.Box.W)))
	h := max(1, int(math.Round(decl.Box.H)))

	box := layout.Rect{W: float64(w), H: float64(h)}
	natural := layout.Size{W: float64(src.Bounds().Dx()), H: float64(src.Bounds().Dy())}

	var fitted *image.NRGBA
	switch decl.Fit {
	case markup.FitFill:
		fitted = imaging.Resize(src, w, h, imaging.Lanczos)

	case markup.FitContain:
		p := layout.Resolve(layout.Mode{Kind: layout.ModeContain}, box, natural, layout.Center)
		sw := max(1, int(math.Round(p.Rect.W)))
		sh := max(1, int(math.Round(p.Rect.H)))
		resized := imaging.Resize(src, sw, sh, imaging.Lanczos)

		ox, oy := (w-sw)/2, (h-sh)/2
		if !decl.PositionPx && decl.Position != layout.Center {
			ox = int(float64(w-sw) * decl.Position.X / 100)
			oy = int(float64(h-sh) * decl.Position.Y / 100)
		}
		fitted = imaging.Paste(imaging.New(w, h, color.NRGBA{}), resized, image.Pt(ox, oy))

	case markup.FitNone:
		iw, ih := src.Bounds().Dx(), src.Bounds().Dy()
		left, top := (iw-w)/2, (ih-h)/2
		if decl.PositionPx {
			left += int(decl.Position.X)
			top += int(decl.Position.Y)
		}
		left = clampInt(left, 0, max(0, iw-w))
		top = clampInt(top, 0, max(0, ih-h))
		fitted = imaging.Crop(src, image.Rect(left, top, left+w, top+h))

	default: // cover
		anchor := decl.Position
		if decl.PositionPx {
			anchor = layout.Center
		}
		p := layout.Resolve(layout.Mode{Kind: layout.ModeCover}, box, natural, anchor)

		scale := math.Max(box.W/natural.W, box.H/natural.H)
		sw := max(1, int(math.Round(natural.W*scale)))
		sh := max(1, int(math.Round(natural.H*scale)))
		resized := imaging.Resize(src, sw, sh, imaging.Lanczos)

		left := int(math.Round(p.Crop.Left * float64(sw)))
		top := int(math.Round(p.Crop.Top * float64(sh)))
		if decl.PositionPx {
			left = int(decl.Position.X)
			top = int(decl.Position.Y)
		}
		left = clampInt(left, 0, max(0, sw-w))
		top = clampInt(top, 0, max(0, sh-h))
		fitted = imaging.Crop(resized, image.Rect(left, top, left+w, top+h))
	}

	if fitted.Bounds().Dx() != w || fitted.Bounds().Dy() != h {
		fitted = imaging.Resize(fitted, w, h, imaging.Lanczos)
	}

	fitted = zoom(fitted, w, h, decl.ScaleFactor)

	applyMask(fitted, decl)
	return fitted
}

// zoom scales the fitted raster about the box center, cropping back to the
// box (factor > 1) or letterboxing onto a transparent canvas (factor < 1).
func zoom(img *image.NRGBA, w, h int, factor float64) *image.NRGBA {
	if factor <= 0 || factor == 1 {
		return img
	}
	zw := max(1, int(math.Round(float64(w)*factor)))
	zh := max(1, int(math.Round(float64(h)*factor)))
	zoomed := imaging.Resize(img, zw, zh, imaging.Lanczos)

	if factor > 1 {
		left, top := (zw-w)/2, (zh-h)/2
		return imaging.Crop(zoomed, image.Rect(left, top, left+w, top+h))
	}
	return imaging.Paste(imaging.New(w, h, color.NRGBA{}), zoomed, image.Pt((w-zw)/2, (h-zh)/2))
}

// applyMask multiplies the alpha channel by the declaration's opacity and
// clips to the rounded-rectangle shape. A 50% radius degenerates to a full
// ellipse.
func applyMask(img *image.NRGBA, decl markup.StyledContainerDecl) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	radius := 0.0
	ellipse := false
	switch {
	case decl.CornerRadiusPct >= 50:
		ellipse = true
	case decl.CornerRadiusPct > 0:
		radius = float64(min(w, h)) * decl.CornerRadiusPct / 100
	case decl.CornerRadiusPx > 0:
		radius = decl.CornerRadiusPx
		if radius*2 >= float64(min(w, h)) {
			ellipse = true
		}
	}

	opacity := decl.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	if !ellipse && radius == 0 && opacity == 1 {
		return
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m := 1.0
			if ellipse {
				dx := (float64(x) + 0.5 - float64(w)/2) / (float64(w) / 2)
				dy := (float64(y) + 0.5 - float64(h)/2) / (float64(h) / 2)
				if dx*dx+dy*dy > 1 {
					m = 0
				}
			} else if radius > 0 {
				if !insideRoundedRect(float64(x)+0.5, float64(y)+0.5, float64(w), float64(h), radius) {
					m = 0
				}
			}
			i := img.PixOffset(x, y)
			a := float64(img.Pix[i+3]) * opacity * m
			img.Pix[i+3] = uint8(math.Round(a))
		}
	}
}

// insideRoundedRect tests a point against a w x h rounded rectangle at the
// origin with the given corner radius.
func insideRoundedRect(x, y, w, h, r float64) bool {
	cx := math.Max(r, math.Min(w-r, x))
	cy := math.Max(r, math.Min(h-r, y))
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
