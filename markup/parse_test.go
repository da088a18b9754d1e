package markup_test

import (
	"strings"
	"testing"

	"m2p/layout"
	"m2p/markup"
)

const sampleDeck = `
<html><head><style>
.portrait-wrap { width: 220px; height: 220px; border-radius: 50%; }
.portrait { object-fit: cover; transform: scale(1.15); }
</style></head><body>
<svg data-marpit-svg="true" viewBox="0 0 1280 720">
  <foreignObject>
    <section data-marpit-advanced-background="background" style="--marpit-advanced-background-split:33%">
      <div data-marpit-advanced-background-container="true" data-marpit-advanced-background-direction="horizontal">
        <figure style="background-image:url('https://example.test/bg.jpg'); background-size:cover;"></figure>
      </div>
    </section>
    <section data-marpit-advanced-background="content">
      <img src="https://example.test/content.png" />
    </section>
  </foreignObject>
</svg>
<svg data-marpit-svg="true" viewBox="0 0 1280 720">
  <foreignObject>
    <section data-marpit-advanced-background="background">
      <div data-marpit-advanced-background-container="true" data-marpit-advanced-background-direction="vertical">
        <figure style="background-image:url('a.png'); background-size:contain;"></figure>
        <figure style="background-image:url('b.png'); background-size:90% auto; filter:opacity(0.5) grayscale(1);"></figure>
      </div>
    </section>
    <section data-marpit-advanced-background="content">
      <header><img src="logo.png" /></header>
      <div class="portrait-wrap"><img class="portrait" src="face.png" /></div>
      <img src="body.png" />
    </section>
  </foreignObject>
</svg>
</body></html>`

func parseSample(t *testing.T, styled bool) []markup.SlideRecord {
	t.Helper()
	slides, err := markup.Parse(strings.NewReader(sampleDeck), markup.Options{Styled: styled})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	return slides
}

func TestParseBackgroundsAndSplit(t *testing.T) {
	slides := parseSample(t, false)

	s := slides[0]
	if s.Canvas.W != 1280 || s.Canvas.H != 720 {
		t.Errorf("canvas: got %+v", s.Canvas)
	}
	if len(s.Backgrounds) != 1 {
		t.Fatalf("slide 0 backgrounds: got %d", len(s.Backgrounds))
	}
	bg := s.Backgrounds[0]
	if bg.SourceURL != "https://example.test/bg.jpg" {
		t.Errorf("background url: got %q", bg.SourceURL)
	}
	if bg.Mode.Kind != layout.ModeCover {
		t.Errorf("background mode: got %v", bg.Mode)
	}
	// The split custom property alone implies a left split.
	if bg.Split.Side != layout.SideLeft || bg.Split.SizePct != 33 {
		t.Errorf("split: got %+v", bg.Split)
	}
	if len(s.Inline) != 1 || s.Inline[0].SourceURL != "https://example.test/content.png" {
		t.Errorf("inline images: got %+v", s.Inline)
	}
}

func TestParseStackingGroup(t *testing.T) {
	s := parseSample(t, false)[1]

	if len(s.Backgrounds) != 2 {
		t.Fatalf("backgrounds: got %d", len(s.Backgrounds))
	}
	for i, bg := range s.Backgrounds {
		if bg.GroupIndex != i || bg.GroupSize != 2 {
			t.Errorf("background %d group: got index=%d size=%d", i, bg.GroupIndex, bg.GroupSize)
		}
		if bg.Direction != layout.DirVertical {
			t.Errorf("background %d direction: got %v", i, bg.Direction)
		}
		if bg.Split.Side != layout.SideNone {
			t.Errorf("background %d: unexpected split %+v", i, bg.Split)
		}
	}
	if s.Backgrounds[0].Mode.Kind != layout.ModeContain {
		t.Errorf("background 0 mode: got %v", s.Backgrounds[0].Mode)
	}
	if m := s.Backgrounds[1].Mode; m.Kind != layout.ModePercent || m.Percent != 90 {
		t.Errorf("background 1 mode: got %v", m)
	}
	want := []markup.Filter{{Name: "opacity", Value: "0.5"}, {Name: "grayscale", Value: "1"}}
	got := s.Backgrounds[1].Filters
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("filters: got %+v", got)
	}
}

func TestParseHeaderAndInlineOrder(t *testing.T) {
	s := parseSample(t, false)[1]

	if !s.HasHeader || s.HeaderImage == nil || s.HeaderImage.SourceURL != "logo.png" {
		t.Fatalf("header: got hasHeader=%v image=%+v", s.HasHeader, s.HeaderImage)
	}
	// Styled collection is off, so the wrapped portrait counts as inline.
	if len(s.Inline) != 2 {
		t.Fatalf("inline images: got %+v", s.Inline)
	}
	if s.Inline[0].SourceURL != "face.png" || s.Inline[1].SourceURL != "body.png" {
		t.Errorf("inline order: got %+v", s.Inline)
	}
	if len(s.Styled) != 0 {
		t.Errorf("styled containers collected while disabled: %+v", s.Styled)
	}
	if s.Declarations() != 5 {
		t.Errorf("declarations: got %d want 5", s.Declarations())
	}
}

func TestParseStyledContainers(t *testing.T) {
	s := parseSample(t, true)[1]

	if len(s.Styled) != 1 {
		t.Fatalf("styled containers: got %+v", s.Styled)
	}
	sc := s.Styled[0]
	if sc.SourceURL != "face.png" {
		t.Errorf("styled source: got %q", sc.SourceURL)
	}
	if sc.Box.W != 220 || sc.Box.H != 220 {
		t.Errorf("styled box: got %+v", sc.Box)
	}
	if sc.CornerRadiusPct != 50 {
		t.Errorf("corner radius: got %+v", sc)
	}
	if sc.Fit != markup.FitCover {
		t.Errorf("object fit: got %v", sc.Fit)
	}
	if sc.ScaleFactor != 1.15 {
		t.Errorf("scale factor: got %v", sc.ScaleFactor)
	}

	// The wrapped image moved from inline to styled.
	if len(s.Inline) != 1 || s.Inline[0].SourceURL != "body.png" {
		t.Errorf("inline images with styled on: got %+v", s.Inline)
	}
	if s.Declarations() != 5 {
		t.Errorf("declarations: got %d want 5", s.Declarations())
	}
}

func TestParseMalformedSlide(t *testing.T) {
	html := `<svg data-marpit-svg="true"><foreignObject></foreignObject></svg>`
	slides, err := markup.Parse(strings.NewReader(html), markup.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(slides) != 1 {
		t.Fatalf("slides: got %d", len(slides))
	}
	if slides[0].Declarations() != 0 {
		t.Errorf("malformed slide must yield an empty record: %+v", slides[0])
	}
}

func TestParseDropsSourcelessDeclarations(t *testing.T) {
	html := `
<svg data-marpit-svg="true">
  <foreignObject>
    <section data-marpit-advanced-background="background">
      <figure style="background-size:cover;"></figure>
    </section>
    <section data-marpit-advanced-background="content">
      <img />
      <img src="kept.png" />
    </section>
  </foreignObject>
</svg>`
	slides, err := markup.Parse(strings.NewReader(html), markup.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := slides[0]
	if len(s.Backgrounds) != 0 {
		t.Errorf("sourceless background kept: %+v", s.Backgrounds)
	}
	if len(s.Inline) != 1 || s.Inline[0].SourceURL != "kept.png" {
		t.Errorf("inline images: got %+v", s.Inline)
	}
}

func TestParseUnsupportedSplitDirection(t *testing.T) {
	html := `
<svg data-marpit-svg="true">
  <foreignObject>
    <section data-marpit-advanced-background="background" data-marpit-advanced-background-split="top">
      <figure style="background-image:url('bg.png');"></figure>
    </section>
    <section data-marpit-advanced-background="content"></section>
  </foreignObject>
</svg>`
	slides, err := markup.Parse(strings.NewReader(html), markup.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bg := slides[0].Backgrounds[0]
	if bg.Split.Side != layout.SideNone {
		t.Errorf("top split must be ignored, got %+v", bg.Split)
	}
}

func TestParseModeVocabulary(t *testing.T) {
	cases := []struct {
		in   string
		want layout.Mode
	}{
		{"cover", layout.Mode{Kind: layout.ModeCover}},
		{"", layout.Mode{Kind: layout.ModeCover}},
		{"contain", layout.Mode{Kind: layout.ModeContain}},
		{"fit", layout.Mode{Kind: layout.ModeFit}},
		{"auto", layout.Mode{Kind: layout.ModeAuto}},
		{"auto auto", layout.Mode{Kind: layout.ModeAuto}},
		{"90% auto", layout.Mode{Kind: layout.ModePercent, Percent: 90}},
		{"33.5%", layout.Mode{Kind: layout.ModePercent, Percent: 33.5}},
		{"200px auto", layout.Mode{Kind: layout.ModeExtent}},
		{"stretchy-nonsense", layout.Mode{Kind: layout.ModeCover}},
	}
	for _, c := range cases {
		if got := markup.ParseMode(c.in); got != c.want {
			t.Errorf("ParseMode(%q): got %+v want %+v", c.in, got, c.want)
		}
	}
}

func TestParseSplitSpec(t *testing.T) {
	got, err := markup.ParseSplitSpec("left:38% 70%")
	if err != nil {
		t.Fatalf("ParseSplitSpec: %v", err)
	}
	if got.Side != layout.SideLeft || got.SizePct != 38 {
		t.Errorf("split: got %+v", got)
	}
	if got.Anchor != (layout.Anchor{X: 70, Y: 70}) {
		t.Errorf("anchor: got %+v", got.Anchor)
	}

	got, err = markup.ParseSplitSpec("right")
	if err != nil || got.Side != layout.SideRight || got.SizePct != 50 {
		t.Errorf("bare right: got %+v err=%v", got, err)
	}

	if _, err = markup.ParseSplitSpec("bottom"); err == nil {
		t.Error("bottom split must be rejected")
	}
}

func TestParseBackgroundFreeSlide(t *testing.T) {
	// Slides with no background images have no attributed sections at all,
	// just a bare content section; their images must still be collected.
	const deck = `
<html><body>
<svg data-marpit-svg="true" viewBox="0 0 1280 720">
  <foreignObject>
    <section>
      <div style="width:120px; height:120px"><img src="face.png" /></div>
      <img src="photo.png" />
    </section>
  </foreignObject>
</svg>
</body></html>`

	slides, err := markup.Parse(strings.NewReader(deck), markup.Options{Styled: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(slides) != 1 {
		t.Fatalf("expected 1 slide, got %d", len(slides))
	}

	s := slides[0]
	if len(s.Backgrounds) != 0 {
		t.Errorf("backgrounds on a background-free slide: %+v", s.Backgrounds)
	}
	if len(s.Styled) != 1 || s.Styled[0].SourceURL != "face.png" {
		t.Fatalf("styled containers: got %+v", s.Styled)
	}
	if s.Styled[0].Box.W != 120 || s.Styled[0].Box.H != 120 {
		t.Errorf("styled box: got %+v", s.Styled[0].Box)
	}
	if len(s.Inline) != 1 || s.Inline[0].SourceURL != "photo.png" {
		t.Errorf("inline images: got %+v", s.Inline)
	}
	if s.Declarations() != 2 {
		t.Errorf("declarations: got %d want 2", s.Declarations())
	}
}
