// Package raster renders styled-container declarations into flattened
// replacement images: fetch, object-fit/position, uniform scale, opacity
// and corner-radius masking, PNG out.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/h2non/filetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"m2p/layout"
)

const defaultSVGSize = 1024

// maxRasterDim caps SVG rasterization so a hostile viewBox cannot allocate
// gigabytes for the RGBA buffer.
const maxRasterDim = 8192

// Decode decodes image bytes into an image plus a normalized extension.
// SVG sources are rasterized at their intrinsic size; everything else goes
// through the registered stdlib and x/image decoders.
func Decode(data []byte) (image.Image, string, error) {
	if isSVG(data) {
		img, err := rasterizeSVG(data, 0, 0)
		if err != nil {
			return nil, "", fmt.Errorf("rasterizing svg: %w", err)
		}
		return img, "svg", nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if format == "jpeg" {
		format = "jpg"
	}
	return img, format, nil
}

// NaturalSize returns the pixel dimensions of image bytes without a full
// decode. SVGs report their viewBox size.
func NaturalSize(data []byte) (layout.Size, error) {
	if isSVG(data) {
		icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
		if err != nil {
			return layout.Size{}, fmt.Errorf("reading svg: %w", err)
		}
		w, h := icon.ViewBox.W, icon.ViewBox.H
		if w <= 0 {
			w = defaultSVGSize
		}
		if h <= 0 {
			h = defaultSVGSize
		}
		return layout.Size{W: w, H: h}, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return layout.Size{}, err
	}
	return layout.Size{W: float64(cfg.Width), H: float64(cfg.Height)}, nil
}

// isSVG sniffs for SVG markup; filetype only knows magic-number formats.
func isSVG(data []byte) bool {
	if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
		return false
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

// rasterizeSVG renders SVG bytes to an RGBA image on a transparent
// background. A zero target keeps the intrinsic viewBox size.
func rasterizeSVG(data []byte, targetW, targetH int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	intrW := int(math.Ceil(icon.ViewBox.W))
	intrH := int(math.Ceil(icon.ViewBox.H))
	if intrW <= 0 {
		intrW = defaultSVGSize
	}
	if intrH <= 0 {
		intrH = defaultSVGSize
	}

	w, h := intrW, intrH
	if targetW > 0 && targetH > 0 {
		scale := math.Min(float64(targetW)/float64(intrW), float64(targetH)/float64(intrH))
		w = int(math.Round(float64(intrW) * scale))
		h = int(math.Round(float64(intrH) * scale))
	}
	w = max(w, 1)
	h = max(h, 1)

	if w > maxRasterDim || h > maxRasterDim {
		s := min(float64(maxRasterDim)/float64(w), float64(maxRasterDim)/float64(h))
		w = max(int(math.Round(float64(w)*s)), 1)
		h = max(int(math.Round(float64(h)*s)), 1)
	}

	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.RGBA{}}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
