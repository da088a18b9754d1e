package layout_test

import (
	"math"
	"testing"

	"m2p/layout"
)

const eps = 1e-9

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestResolveCoverFullCanvas(t *testing.T) {
	// 1280x720 canvas, square 1200x1200 image: height overflows, width fits
	// exactly after scaling, so only top/bottom crop.
	canvas := layout.Rect{W: 1280, H: 720}
	p := layout.Resolve(layout.Mode{Kind: layout.ModeCover}, canvas, layout.Size{W: 1200, H: 1200}, layout.Center)

	if p.Rect != canvas {
		t.Fatalf("cover must fill the region, got %+v", p.Rect)
	}
	if p.Crop.Left != 0 || p.Crop.Right != 0 {
		t.Errorf("expected no horizontal crop, got left=%v right=%v", p.Crop.Left, p.Crop.Right)
	}
	if p.Crop.Top <= 0 || p.Crop.Bottom <= 0 {
		t.Errorf("expected vertical crop, got top=%v bottom=%v", p.Crop.Top, p.Crop.Bottom)
	}
	if !almost(p.Crop.Top, p.Crop.Bottom) {
		t.Errorf("centered crop must be symmetric, got top=%v bottom=%v", p.Crop.Top, p.Crop.Bottom)
	}
	// scale = 1280/1200, scaled height 1280, overflow 560 split evenly.
	want := (1280.0 - 720.0) / 2 / 1280.0
	if !almost(p.Crop.Top, want) {
		t.Errorf("crop top: got %v want %v", p.Crop.Top, want)
	}
}

func TestResolveCoverNeverUnderfills(t *testing.T) {
	regions := []layout.Rect{
		{W: 1280, H: 720},
		{W: 100, H: 900},
		{W: 426.67, H: 720},
	}
	naturals := []layout.Size{
		{W: 1200, H: 1200},
		{W: 2000, H: 1000},
		{W: 33, H: 777},
	}
	for _, r := range regions {
		for _, n := range naturals {
			scale := math.Max(r.W/n.W, r.H/n.H)
			if n.W*scale < r.W-eps || n.H*scale < r.H-eps {
				t.Errorf("cover underfills region %+v with natural %+v", r, n)
			}
		}
	}
}

func TestResolveContainNeverOverflows(t *testing.T) {
	region := layout.Rect{W: 1280, H: 720}
	for _, n := range []layout.Size{{W: 1200, H: 1200}, {W: 5000, H: 100}, {W: 10, H: 10}} {
		p := layout.Resolve(layout.Mode{Kind: layout.ModeContain}, region, n, layout.Center)
		if p.Rect.W > region.W+eps || p.Rect.H > region.H+eps {
			t.Errorf("contain overflows: natural %+v -> rect %+v", n, p.Rect)
		}
		if !almost(p.Rect.W, region.W) && !almost(p.Rect.H, region.H) {
			t.Errorf("contain must touch at least one edge pair: natural %+v -> rect %+v", n, p.Rect)
		}
		if p.Crop != (layout.Crop{}) {
			t.Errorf("contain must not crop, got %+v", p.Crop)
		}
	}
}

func TestResolveFitMatchesContain(t *testing.T) {
	region := layout.Rect{X: 10, Y: 20, W: 300, H: 200}
	n := layout.Size{W: 640, H: 480}
	c := layout.Resolve(layout.Mode{Kind: layout.ModeContain}, region, n, layout.Center)
	f := layout.Resolve(layout.Mode{Kind: layout.ModeFit}, region, n, layout.Center)
	if c != f {
		t.Fatalf("fit must behave as contain: %+v vs %+v", c, f)
	}
}

func TestResolveAuto(t *testing.T) {
	region := layout.Rect{W: 1280, H: 720}

	// Fits: natural size, centered, no crop.
	p := layout.Resolve(layout.Mode{Kind: layout.ModeAuto}, region, layout.Size{W: 400, H: 300}, layout.Center)
	if !almost(p.Rect.W, 400) || !almost(p.Rect.H, 300) {
		t.Errorf("auto must keep natural size, got %+v", p.Rect)
	}
	if !almost(p.Rect.X, 440) || !almost(p.Rect.Y, 210) {
		t.Errorf("auto must center, got %+v", p.Rect)
	}
	if p.Crop != (layout.Crop{}) {
		t.Errorf("auto within region must not crop, got %+v", p.Crop)
	}

	// Overflows horizontally only: clamped and cropped on that axis.
	p = layout.Resolve(layout.Mode{Kind: layout.ModeAuto}, region, layout.Size{W: 2000, H: 500}, layout.Center)
	if !almost(p.Rect.W, 1280) || !almost(p.Rect.H, 500) {
		t.Errorf("auto overflow: got rect %+v", p.Rect)
	}
	wantCrop := (2000.0 - 1280.0) / 2 / 2000.0
	if !almost(p.Crop.Left, wantCrop) || !almost(p.Crop.Right, wantCrop) {
		t.Errorf("auto overflow crop: got %+v want %v", p.Crop, wantCrop)
	}
	if p.Crop.Top != 0 || p.Crop.Bottom != 0 {
		t.Errorf("auto must not crop the fitting axis, got %+v", p.Crop)
	}
}

func TestResolvePercent(t *testing.T) {
	region := layout.Rect{W: 1000, H: 500}

	// Axes scale independently - a square image does not stay square.
	p := layout.Resolve(layout.Mode{Kind: layout.ModePercent, Percent: 90}, region, layout.Size{W: 100, H: 100}, layout.Center)
	if !almost(p.Rect.W, 900) || !almost(p.Rect.H, 450) {
		t.Errorf("percent sizing: got %+v", p.Rect)
	}
	if p.Crop != (layout.Crop{}) {
		t.Errorf("percent <=100 must not crop, got %+v", p.Crop)
	}

	// >100% crops symmetrically on both axes.
	p = layout.Resolve(layout.Mode{Kind: layout.ModePercent, Percent: 200}, region, layout.Size{W: 100, H: 100}, layout.Center)
	if p.Rect.W != region.W || p.Rect.H != region.H {
		t.Errorf("percent >100 must clamp to region, got %+v", p.Rect)
	}
	if !almost(p.Crop.Left, 0.25) || !almost(p.Crop.Top, 0.25) {
		t.Errorf("percent >100 crop: got %+v", p.Crop)
	}
}

func TestResolveAnchorShiftsCoverCrop(t *testing.T) {
	// left:38% 70% scenario - anchor 70/70 biases the crop window towards
	// the bottom-right of the source.
	region := layout.Rect{W: 486.4, H: 720} // 38% of 1280
	n := layout.Size{W: 1600, H: 900}
	p := layout.Resolve(layout.Mode{Kind: layout.ModeCover}, region, n, layout.Anchor{X: 70, Y: 70})

	if p.Crop.Left <= p.Crop.Right {
		t.Errorf("anchor 70%% must crop more from the left: %+v", p.Crop)
	}
	// Totals must not depend on the anchor.
	center := layout.Resolve(layout.Mode{Kind: layout.ModeCover}, region, n, layout.Center)
	if !almost(p.Crop.Left+p.Crop.Right, center.Crop.Left+center.Crop.Right) {
		t.Errorf("anchor must redistribute crop, not change the total: %+v vs %+v", p.Crop, center.Crop)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	region := layout.Rect{W: 1280, H: 720}
	n := layout.Size{W: 1234, H: 567}
	for _, m := range []layout.Mode{
		{Kind: layout.ModeCover},
		{Kind: layout.ModeContain},
		{Kind: layout.ModeAuto},
		{Kind: layout.ModePercent, Percent: 120},
	} {
		a := layout.Resolve(m, region, n, layout.Center)
		b := layout.Resolve(m, region, n, layout.Center)
		if a != b {
			t.Errorf("%s: resolution is not deterministic: %+v vs %+v", m, a, b)
		}
	}
}

func TestResolveZeroNaturalSize(t *testing.T) {
	region := layout.Rect{X: 5, Y: 5, W: 100, H: 100}
	p := layout.Resolve(layout.Mode{Kind: layout.ModeCover}, region, layout.Size{}, layout.Center)
	if p.Rect != region || p.Crop != (layout.Crop{}) {
		t.Fatalf("zero natural size must degrade to the full region: %+v", p)
	}
}

func TestSegmentTilesExactly(t *testing.T) {
	canvas := layout.Rect{W: 1280, H: 720}
	for _, n := range []int{1, 2, 3, 5, 7} {
		for _, dir := range []layout.Direction{layout.DirHorizontal, layout.DirVertical} {
			var sum float64
			var cursor float64
			if dir == layout.DirHorizontal {
				cursor = canvas.X
			} else {
				cursor = canvas.Y
			}
			for i := 0; i < n; i++ {
				seg := layout.Segment(canvas, i, n, dir)
				if dir == layout.DirHorizontal {
					if !almost(seg.X, cursor) {
						t.Errorf("n=%d i=%d: gap or overlap at x=%v, expected %v", n, i, seg.X, cursor)
					}
					if !almost(seg.H, canvas.H) {
						t.Errorf("n=%d i=%d: horizontal segment must span full height", n, i)
					}
					cursor = seg.X + seg.W
					sum += seg.W
				} else {
					if !almost(seg.Y, cursor) {
						t.Errorf("n=%d i=%d: gap or overlap at y=%v, expected %v", n, i, seg.Y, cursor)
					}
					cursor = seg.Y + seg.H
					sum += seg.H
				}
			}
			want := canvas.W
			if dir == layout.DirVertical {
				want = canvas.H
			}
			if !almost(sum, want) {
				t.Errorf("n=%d dir=%v: segments sum to %v, want %v", n, dir, sum, want)
			}
		}
	}
}

func TestSegmentThreeHorizontal(t *testing.T) {
	canvas := layout.Rect{W: 1280, H: 720}
	for i := 0; i < 3; i++ {
		seg := layout.Segment(canvas, i, 3, layout.DirHorizontal)
		if !almost(seg.W, 1280.0/3) {
			t.Errorf("segment %d width: got %v want %v", i, seg.W, 1280.0/3)
		}
		if !almost(seg.H, 720) {
			t.Errorf("segment %d height: got %v want 720", i, seg.H)
		}
	}
}

func TestSplitRegionAndComplement(t *testing.T) {
	canvas := layout.Rect{W: 1280, H: 720}

	split := layout.SplitRegion(canvas, layout.SideLeft, 33)
	if !almost(split.W, 422.4) || split.X != 0 || !almost(split.H, 720) {
		t.Fatalf("left:33%% split: got %+v", split)
	}
	content := layout.ContentRegion(canvas, layout.SideLeft, 33)
	if !almost(content.X, 422.4) || !almost(content.W, 857.6) {
		t.Fatalf("left:33%% content region: got %+v", content)
	}

	split = layout.SplitRegion(canvas, layout.SideRight, 25)
	if !almost(split.X, 960) || !almost(split.W, 320) {
		t.Fatalf("right:25%% split: got %+v", split)
	}
	content = layout.ContentRegion(canvas, layout.SideRight, 25)
	if content.X != 0 || !almost(content.W, 960) {
		t.Fatalf("right:25%% content region: got %+v", content)
	}
}

func TestSplitSegmentSubdividesHorizontally(t *testing.T) {
	// Two members of a left:50% split on a 1280 canvas: 320-wide columns,
	// matching the original engine's split-stack arithmetic.
	canvas := layout.Rect{W: 1280, H: 720}
	s0 := layout.SplitSegment(canvas, layout.SideLeft, 50, 0, 2)
	s1 := layout.SplitSegment(canvas, layout.SideLeft, 50, 1, 2)
	if s0.X != 0 || !almost(s0.W, 320) || !almost(s0.H, 720) {
		t.Errorf("member 0: got %+v", s0)
	}
	if !almost(s1.X, 320) || !almost(s1.W, 320) {
		t.Errorf("member 1: got %+v", s1)
	}
}
