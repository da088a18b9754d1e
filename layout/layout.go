// Package layout implements the box sizing and region partitioning math used
// to reconcile Marp's CSS-driven background placement with PPTX picture
// geometry. Everything here is pure: declarations in, rectangles and crop
// fractions out, canvas units throughout.
package layout

import "math"

// Rect is a rectangle in canvas units.
type Rect struct {
	X, Y, W, H float64
}

// Size is a natural image size in pixels.
type Size struct {
	W, H float64
}

// Anchor is a position inside a box, both axes in percent (0..100).
// Center is {50, 50}.
type Anchor struct {
	X, Y float64
}

// Center is the default anchor.
var Center = Anchor{X: 50, Y: 50}

// Crop holds per-edge crop fractions of the source image (0..1, 0 when the
// edge is not cropped). These map directly to PPTX a:srcRect values.
type Crop struct {
	Left, Right, Top, Bottom float64
}

// Placement is the resolved geometry for one declaration: the target
// rectangle in canvas units and the crop to apply to the source.
type Placement struct {
	Rect Rect
	Crop Crop
}

// ModeKind enumerates supported box sizing algorithms.
type ModeKind int

const (
	ModeCover ModeKind = iota
	ModeContain
	ModeFit
	ModeAuto
	ModePercent
	// ModeExtent is reserved for explicit width/height declarations
	// (w:NNNpx and friends). Marp does not expose these in the rendered
	// HTML today, so the resolver rejects it; adding support is one new
	// case in Resolve and does not touch partitioning.
	ModeExtent
)

// Mode is a closed tagged variant of the sizing algorithm. Percent is only
// meaningful for ModePercent.
type Mode struct {
	Kind    ModeKind
	Percent float64
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeCover:
		return "cover"
	case ModeContain:
		return "contain"
	case ModeFit:
		return "fit"
	case ModeAuto:
		return "auto"
	case ModePercent:
		return "percent"
	case ModeExtent:
		return "extent"
	}
	return "unknown"
}

// Direction of a stacking group.
type Direction int

const (
	DirNone Direction = iota
	DirHorizontal
	DirVertical
)

// Side of a split background region.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

// Resolve computes the placement for one declaration against its region.
// The anchor shifts the cover crop window (center by default); other modes
// ignore it. Natural sizes of zero resolve to the full region with no crop
// so a broken image never produces degenerate geometry.
func Resolve(mode Mode, region Rect, natural Size, anchor Anchor) Placement {
	if natural.W <= 0 || natural.H <= 0 {
		return Placement{Rect: region}
	}

	switch mode.Kind {
	case ModeContain, ModeFit:
		scale := math.Min(region.W/natural.W, region.H/natural.H)
		return centered(region, natural.W*scale, natural.H*scale)
	case ModeAuto:
		return clampCentered(region, natural.W, natural.H)
	case ModePercent:
		// Axes scale independently, matching CSS percentage semantics.
		return clampCentered(region, region.W*mode.Percent/100, region.H*mode.Percent/100)
	case ModeCover, ModeExtent:
		// ModeExtent is unsupported; fall through to the engine default.
	}

	scale := math.Max(region.W/natural.W, region.H/natural.H)
	sw, sh := natural.W*scale, natural.H*scale
	return Placement{
		Rect: region,
		Crop: Crop{
			Left:   (sw - region.W) * clampPct(anchor.X) / 100 / sw,
			Right:  (sw - region.W) * (100 - clampPct(anchor.X)) / 100 / sw,
			Top:    (sh - region.H) * clampPct(anchor.Y) / 100 / sh,
			Bottom: (sh - region.H) * (100 - clampPct(anchor.Y)) / 100 / sh,
		},
	}
}

// centered places a box of the given size in the middle of the region
// without cropping (letterboxed).
func centered(region Rect, w, h float64) Placement {
	return Placement{
		Rect: Rect{
			X: region.X + (region.W-w)/2,
			Y: region.Y + (region.H-h)/2,
			W: w,
			H: h,
		},
	}
}

// clampCentered centers a box of the given size and crops symmetrically on
// any axis that overflows the region.
func clampCentered(region Rect, w, h float64) Placement {
	p := centered(region, w, h)
	if w > region.W {
		f := (w - region.W) / 2 / w
		p.Crop.Left, p.Crop.Right = f, f
		p.Rect.X, p.Rect.W = region.X, region.W
	}
	if h > region.H {
		f := (h - region.H) / 2 / h
		p.Crop.Top, p.Crop.Bottom = f, f
		p.Rect.Y, p.Rect.H = region.Y, region.H
	}
	return p
}

func clampPct(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

// Segment returns segment i of a stacking group of n tiling the canvas
// equally along dir. The segments tile exactly: segment n-1 absorbs the
// remainder of the division so extents always sum to the canvas extent.
func Segment(canvas Rect, i, n int, dir Direction) Rect {
	if n <= 1 {
		return canvas
	}
	switch dir {
	case DirVertical:
		step := canvas.H / float64(n)
		r := Rect{X: canvas.X, Y: canvas.Y + float64(i)*step, W: canvas.W, H: step}
		if i == n-1 {
			r.H = canvas.Y + canvas.H - r.Y
		}
		return r
	default:
		step := canvas.W / float64(n)
		r := Rect{X: canvas.X + float64(i)*step, Y: canvas.Y, W: step, H: canvas.H}
		if i == n-1 {
			r.W = canvas.X + canvas.W - r.X
		}
		return r
	}
}

// SplitRegion returns the background strip of a split slide: sizePct percent
// of the canvas width, full height, flush to the named side.
func SplitRegion(canvas Rect, side Side, sizePct float64) Rect {
	w := canvas.W * clampPct(sizePct) / 100
	r := Rect{X: canvas.X, Y: canvas.Y, W: w, H: canvas.H}
	if side == SideRight {
		r.X = canvas.X + canvas.W - w
	}
	return r
}

// ContentRegion returns the complement of SplitRegion - the area the slide
// content shrinks into. Consumed by collaborators, exported for them and for
// the split complement invariant tests.
func ContentRegion(canvas Rect, side Side, sizePct float64) Rect {
	split := SplitRegion(canvas, side, sizePct)
	r := Rect{X: canvas.X, Y: canvas.Y, W: canvas.W - split.W, H: canvas.H}
	if side == SideLeft {
		r.X = canvas.X + split.W
	}
	return r
}

// SplitSegment subdivides the split strip into m equal sub-columns and
// returns sub-column i. Subdivision is always horizontal regardless of the
// group's stacking direction.
func SplitSegment(canvas Rect, side Side, sizePct float64, i, m int) Rect {
	return Segment(SplitRegion(canvas, side, sizePct), i, m, DirHorizontal)
}
