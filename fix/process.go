// Package fix repairs picture geometry of a Marp-generated PPTX using the
// deck's HTML rendering as the layout reference.
package fix

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"m2p/layout"
	"m2p/markup"
	"m2p/pptx"
	"m2p/raster"
)

// ShapeCountMismatchError reports a slide whose HTML declarations and PPTX
// picture shapes cannot be paired ordinally. Geometry mutation is skipped
// for that slide only.
type ShapeCountMismatchError struct {
	Slide        int
	Declarations int
	Pictures     int
}

func (e *ShapeCountMismatchError) Error() string {
	return fmt.Sprintf("slide %d: %d declarations vs %d picture shapes, skipping geometry", e.Slide, e.Declarations, e.Pictures)
}

// repairDocument runs the per-slide pipeline over an opened document. Slides
// are processed sequentially and all mutations go through the single shared
// document handle; only styled-container rendering runs concurrently. Errors
// are accumulated and reported but never abort the deck - the result is
// always a best-effort document.
func repairDocument(ctx context.Context, doc *pptx.Document, slides []markup.SlideRecord, rnd *raster.Renderer, log *zap.Logger) error {
	var errs error

	parts := doc.Slides()
	if len(parts) != len(slides) {
		log.Warn("Slide count differs between HTML and PPTX",
			zap.Int("html", len(slides)), zap.Int("pptx", len(parts)))
	}

	for i := range parts {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if i >= len(slides) {
			break
		}

		if err := repairSlide(ctx, doc, parts[i], &slides[i], rnd, log); err != nil {
			log.Warn("Slide left untouched", zap.Int("slide", i), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// repairSlide pairs one slide's declarations with its picture shapes and
// rewrites geometry. Declarations pair with pictures in ordinal order:
// backgrounds, header, inline, styled.
func repairSlide(ctx context.Context, doc *pptx.Document, part *pptx.Slide, rec *markup.SlideRecord, rnd *raster.Renderer, log *zap.Logger) error {
	pics := part.Pictures()
	if rec.Declarations() != len(pics) {
		return &ShapeCountMismatchError{Slide: rec.Index, Declarations: rec.Declarations(), Pictures: len(pics)}
	}
	if len(pics) == 0 {
		return nil
	}

	cx, cy := doc.CanvasEMU()
	scaleX := float64(cx) / rec.Canvas.W
	scaleY := float64(cy) / rec.Canvas.H

	// Backgrounds come first in shape order and are the only declarations
	// whose geometry the HTML layout dictates.
	for i := range rec.Backgrounds {
		decl := &rec.Backgrounds[i]

		natural, err := pictureNaturalSize(pics[i])
		if err != nil {
			log.Warn("Unable to size background image, keeping shape geometry",
				zap.Int("slide", rec.Index), zap.Int("shape", i), zap.String("source", decl.SourceURL), zap.Error(err))
			continue
		}

		p := layout.Resolve(decl.Mode, decl.Region(rec.Canvas), natural, decl.Anchor())
		applyPlacement(pics[i], p, scaleX, scaleY)

		log.Debug("Background geometry rewritten",
			zap.Int("slide", rec.Index), zap.Int("shape", i),
			zap.Stringer("mode", decl.Mode), zap.String("source", decl.SourceURL))
	}

	// Header and inline images keep whatever geometry the converter gave
	// them - they only participate in the ordinal pairing.
	if rec.HeaderImage != nil {
		log.Debug("Header image paired, geometry untouched",
			zap.Int("slide", rec.Index), zap.Int("shape", len(rec.Backgrounds)),
			zap.String("source", rec.HeaderImage.SourceURL))
	}

	if len(rec.Styled) > 0 {
		if rnd == nil {
			log.Warn("Styled containers present but rasterizer is disabled", zap.Int("slide", rec.Index))
		} else {
			offset := rec.Declarations() - len(rec.Styled)
			return substituteStyled(ctx, rec, pics[offset:], rnd, scaleX, scaleY, log)
		}
	}
	return nil
}

// substituteStyled renders each styled container into a flattened PNG and
// swaps it into the paired shape. Rendering runs concurrently (independent
// buffers); document mutation stays on this goroutine.
func substituteStyled(ctx context.Context, rec *markup.SlideRecord, pics []*pptx.Picture, rnd *raster.Renderer, scaleX, scaleY float64, log *zap.Logger) error {
	rendered := make([][]byte, len(rec.Styled))
	failures := make([]error, len(rec.Styled))

	var wg sync.WaitGroup
	for i := range rec.Styled {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rendered[i], failures[i] = rnd.RenderPNG(ctx, rec.Styled[i])
		}(i)
	}
	wg.Wait()

	var errs error
	for i := range rec.Styled {
		if failures[i] != nil {
			log.Warn("Styled container skipped",
				zap.Int("slide", rec.Index), zap.String("source", rec.Styled[i].SourceURL), zap.Error(failures[i]))
			errs = multierr.Append(errs, failures[i])
			continue
		}

		if err := pics[i].ReplaceImage(rendered[i], "png"); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("slide %d: replacing styled image: %w", rec.Index, err))
			continue
		}

		// The raster already is the wrapper box; resize the shape in place
		// about its current center and drop any crop.
		x, y, w, h := pics[i].Rect()
		nw := int64(math.Round(rec.Styled[i].Box.W * scaleX))
		nh := int64(math.Round(rec.Styled[i].Box.H * scaleY))
		pics[i].SetRect(x+(w-nw)/2, y+(h-nh)/2, nw, nh)
		pics[i].SetCrop(0, 0, 0, 0)

		log.Debug("Styled container substituted",
			zap.Int("slide", rec.Index), zap.String("source", rec.Styled[i].SourceURL))
	}
	return errs
}

// applyPlacement writes a resolved placement into a picture shape,
// converting canvas pixels to EMU.
func applyPlacement(pic *pptx.Picture, p layout.Placement, scaleX, scaleY float64) {
	pic.SetRect(
		int64(math.Round(p.Rect.X*scaleX)),
		int64(math.Round(p.Rect.Y*scaleY)),
		int64(math.Round(p.Rect.W*scaleX)),
		int64(math.Round(p.Rect.H*scaleY)))
	pic.SetCrop(p.Crop.Left, p.Crop.Right, p.Crop.Top, p.Crop.Bottom)
}

// pictureNaturalSize reads the shape's embedded image and reports its pixel
// dimensions.
func pictureNaturalSize(pic *pptx.Picture) (layout.Size, error) {
	data, _, err := pic.Image()
	if err != nil {
		return layout.Size{}, err
	}
	return raster.NaturalSize(data)
}
