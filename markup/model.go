package markup

import (
	"fmt"
	"strconv"
	"strings"

	"m2p/layout"
)

// Slide model extracted from Marp's rendered HTML. Declaration order always
// follows document order - downstream shape mapping joins on ordinal
// position, nothing else.

// SlideRecord describes one slide of the deck.
type SlideRecord struct {
	Index  int
	Canvas layout.Rect

	Backgrounds []BackgroundDecl
	HasHeader   bool
	HeaderImage *ImageDecl
	Inline      []ImageDecl
	Styled      []StyledContainerDecl
}

// Declarations returns the total number of picture-backed declarations on
// the slide, in mapping order: backgrounds, header, inline, styled.
func (s *SlideRecord) Declarations() int {
	n := len(s.Backgrounds) + len(s.Inline) + len(s.Styled)
	if s.HasHeader {
		n++
	}
	return n
}

// Split describes a left/right split background region.
type Split struct {
	Side    layout.Side
	SizePct float64
	Anchor  layout.Anchor
}

// Filter is a pass-through visual modifier (opacity, grayscale). The
// geometry engine records these but does not act on them.
type Filter struct {
	Name  string
	Value string
}

// BackgroundDecl is one background figure of a slide.
type BackgroundDecl struct {
	SourceURL string
	Mode      layout.Mode
	Direction layout.Direction
	Split     Split
	// Position within the stacking/split group sharing this slide.
	GroupIndex int
	GroupSize  int
	Filters    []Filter
}

// Region returns the rectangle this declaration's box sizing runs against.
func (d *BackgroundDecl) Region(canvas layout.Rect) layout.Rect {
	if d.Split.Side != layout.SideNone {
		return layout.SplitSegment(canvas, d.Split.Side, d.Split.SizePct, d.GroupIndex, d.GroupSize)
	}
	return layout.Segment(canvas, d.GroupIndex, d.GroupSize, d.Direction)
}

// Anchor returns the crop anchor for this declaration; split declarations
// may override the centered default.
func (d *BackgroundDecl) Anchor() layout.Anchor {
	if d.Split.Side != layout.SideNone {
		return d.Split.Anchor
	}
	return layout.Center
}

// ImageDecl is a header or body image carried through for shape pairing.
type ImageDecl struct {
	SourceURL string
}

// ObjectFit enumerates CSS object-fit values supported by the rasterizer.
type ObjectFit int

const (
	FitCover ObjectFit = iota
	FitContain
	FitFill
	FitNone
)

// StyledContainerDecl is a styled div wrapping an image, fully resolved
// against inline styles and the deck stylesheet at parse time.
type StyledContainerDecl struct {
	SourceURL string
	Box       layout.Size
	Fit       ObjectFit
	Position  layout.Anchor
	// PositionPx marks Position as pixel offsets instead of percentages
	// (CSS allows both forms for object-position).
	PositionPx bool
	// Corner rounding: percent of the box's smaller side, or absolute
	// pixels when the stylesheet used px units. Percent wins when both set.
	CornerRadiusPct float64
	CornerRadiusPx  float64
	ScaleFactor     float64
	Opacity         float64
}

// MalformedSlideError reports a slide whose expected container elements are
// missing entirely. The slide is recorded with empty declarations.
type MalformedSlideError struct {
	Slide  int
	Reason string
}

func (e *MalformedSlideError) Error() string {
	return fmt.Sprintf("slide %d: malformed markup: %s", e.Slide, e.Reason)
}

// UnsupportedSplitDirectionError reports a top/bottom split request. The
// declaration is ignored.
type UnsupportedSplitDirectionError struct {
	Slide     int
	Direction string
}

func (e *UnsupportedSplitDirectionError) Error() string {
	return fmt.Sprintf("slide %d: unsupported split direction %q (only left/right)", e.Slide, e.Direction)
}

// ParseMode maps a background-size keyword to a sizing mode. Unknown
// keywords resolve to cover, the layout engine's own default. Explicit
// pixel extents ("200px auto") are the documented extension point and are
// reported as ModeExtent so the resolver can reject them uniformly.
func ParseMode(s string) layout.Mode {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "cover":
		return layout.Mode{Kind: layout.ModeCover}
	case "contain":
		return layout.Mode{Kind: layout.ModeContain}
	case "fit":
		return layout.Mode{Kind: layout.ModeFit}
	case "auto", "auto auto":
		return layout.Mode{Kind: layout.ModeAuto}
	}
	if strings.Contains(s, "px") {
		return layout.Mode{Kind: layout.ModeExtent}
	}
	// Marp renders w:NN% as "NN% auto".
	if v, ok := leadingPercent(s); ok {
		return layout.Mode{Kind: layout.ModePercent, Percent: v}
	}
	return layout.Mode{Kind: layout.ModeCover}
}

func leadingPercent(s string) (float64, bool) {
	field := strings.Fields(s)
	if len(field) == 0 || !strings.HasSuffix(field[0], "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(field[0], "%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseSplitSpec parses a split keyword: "left", "right:25%", or
// "left:38% 70%" where the trailing percentage positions the crop anchor.
// Top/bottom directions are recognized but rejected.
func ParseSplitSpec(s string) (Split, error) {
	spec := Split{Side: layout.SideNone, SizePct: 50, Anchor: layout.Center}

	fields := strings.Fields(strings.TrimSpace(strings.ToLower(s)))
	if len(fields) == 0 {
		return spec, nil
	}

	side, _, _ := strings.Cut(fields[0], ":")
	switch side {
	case "left":
		spec.Side = layout.SideLeft
	case "right":
		spec.Side = layout.SideRight
	case "top", "bottom":
		return spec, &UnsupportedSplitDirectionError{Direction: side}
	default:
		return spec, fmt.Errorf("unrecognized split specification %q", s)
	}

	if _, pct, ok := strings.Cut(fields[0], ":"); ok {
		if v, ok := leadingPercent(pct); ok {
			spec.SizePct = v
		}
	}
	if len(fields) > 1 {
		if v, ok := leadingPercent(fields[1]); ok {
			spec.Anchor = layout.Anchor{X: v, Y: v}
		}
	}
	return spec, nil
}

// ParseDirection maps a stacking keyword; Marp defaults to horizontal.
func ParseDirection(s string) layout.Direction {
	if strings.EqualFold(strings.TrimSpace(s), "vertical") {
		return layout.DirVertical
	}
	return layout.DirHorizontal
}
