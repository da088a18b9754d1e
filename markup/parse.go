// Package markup extracts slide declarations from a rendered Marp deck.
// The HTML is what the browser saw, so parsing goes through the HTML5
// tokenizer rather than an XML DOM; broken slides degrade to empty records
// and never abort the deck.
package markup

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"m2p/css"
	"m2p/layout"
)

// Options control deck parsing.
type Options struct {
	// Canvas is the slide canvas size in CSS pixels; Marp's default deck is
	// 1280x720. A slide's own viewBox wins when present.
	Canvas layout.Size
	// Styled enables styled-container collection. When off, images inside
	// styled divs are recorded as plain inline images.
	Styled bool
	Log    *zap.Logger
}

// Parse reads rendered deck HTML and returns one SlideRecord per slide in
// deck order. Structural problems are scoped to the slide they occur on.
func Parse(r io.Reader, opts Options) ([]SlideRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing deck html: %w", err)
	}

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Canvas.W <= 0 || opts.Canvas.H <= 0 {
		opts.Canvas = layout.Size{W: 1280, H: 720}
	}

	p := &parser{
		opts: opts,
		log:  opts.Log.Named("markup"),
		cssp: css.NewParser(opts.Log),
	}
	p.sheet = p.cssp.Parse([]byte(collectStyleText(doc)))

	var slides []SlideRecord
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Svg && hasAttr(n, "data-marpit-svg") {
			slides = append(slides, p.slide(len(slides), n))
			return false
		}
		return true
	})
	return slides, nil
}

type parser struct {
	opts  Options
	log   *zap.Logger
	cssp  *css.Parser
	sheet *css.Stylesheet
}

func (p *parser) slide(index int, root *html.Node) SlideRecord {
	rec := SlideRecord{Index: index, Canvas: p.canvas(root)}

	bgSection := findSection(root, "background")
	contentSection := findSection(root, "content")
	if contentSection == nil {
		// Slides without background images carry no attributed sections at
		// all, just the bare content section inside the foreignObject.
		contentSection = findBareSection(root)
	}
	if bgSection == nil && contentSection == nil {
		err := &MalformedSlideError{Slide: index, Reason: "no background or content section"}
		p.log.Warn("Skipping slide", zap.Error(err))
		return rec
	}

	if bgSection != nil {
		p.backgrounds(&rec, bgSection)
	}
	if contentSection != nil {
		p.content(&rec, contentSection)
	}
	return rec
}

func (p *parser) canvas(root *html.Node) layout.Rect {
	w, h := p.opts.Canvas.W, p.opts.Canvas.H
	if f := strings.Fields(attr(root, "viewbox")); len(f) == 4 {
		vw, err1 := strconv.ParseFloat(f[2], 64)
		vh, err2 := strconv.ParseFloat(f[3], 64)
		if err1 == nil && err2 == nil && vw > 0 && vh > 0 {
			w, h = vw, vh
		}
	}
	return layout.Rect{W: w, H: h}
}

// backgrounds collects the figure declarations of the background section,
// attaching the section-level split and the container's stacking direction
// to every member.
func (p *parser) backgrounds(rec *SlideRecord, section *html.Node) {
	split := p.splitOf(rec.Index, section)

	dir := layout.DirHorizontal
	if container := findFirst(section, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasAttr(n, "data-marpit-advanced-background-container")
	}); container != nil {
		dir = ParseDirection(attr(container, "data-marpit-advanced-background-direction"))
	}

	walk(section, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Figure {
			return true
		}
		style := p.cssp.Inline(attr(n, "style"))
		url, ok := style["background-image"].URL()
		if !ok {
			p.log.Warn("Dropping background without image source", zap.Int("slide", rec.Index))
			return false
		}
		rec.Backgrounds = append(rec.Backgrounds, BackgroundDecl{
			SourceURL: url,
			Mode:      ParseMode(style["background-size"].Raw),
			Direction: dir,
			Split:     split,
			Filters:   parseFilters(style["filter"].Raw),
		})
		return false
	})

	for i := range rec.Backgrounds {
		rec.Backgrounds[i].GroupIndex = i
		rec.Backgrounds[i].GroupSize = len(rec.Backgrounds)
	}
}

// splitOf combines the split side attribute with the percentage Marp leaves
// in the section's custom property. The property alone implies a left split.
func (p *parser) splitOf(slide int, section *html.Node) Split {
	split, err := ParseSplitSpec(attr(section, "data-marpit-advanced-background-split"))
	if err != nil {
		var unsup *UnsupportedSplitDirectionError
		if errors.As(err, &unsup) {
			unsup.Slide = slide
			p.log.Warn("Ignoring split declaration", zap.Error(unsup))
		} else {
			p.log.Warn("Ignoring split declaration", zap.Int("slide", slide), zap.Error(err))
		}
		return Split{Side: layout.SideNone, SizePct: 50, Anchor: layout.Center}
	}

	style := p.cssp.Inline(attr(section, "style"))
	if pct, ok := style["--marpit-advanced-background-split"].Percent(); ok {
		split.SizePct = pct
		if split.Side == layout.SideNone {
			split.Side = layout.SideLeft
		}
	}
	return split
}

// content collects the header image, inline images and (when enabled)
// styled containers of the content section, in document order.
func (p *parser) content(rec *SlideRecord, section *html.Node) {
	claimed := make(map[*html.Node]struct{})

	if header := findFirst(section, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Header
	}); header != nil {
		if img := findFirst(header, isImg); img != nil {
			if src := attr(img, "src"); src != "" {
				rec.HasHeader = true
				rec.HeaderImage = &ImageDecl{SourceURL: src}
			} else {
				p.log.Warn("Dropping header image without source", zap.Int("slide", rec.Index))
			}
			claimed[img] = struct{}{}
		}
	}

	if p.opts.Styled {
		walk(section, func(n *html.Node) bool {
			if n.Type != html.ElementNode || n.DataAtom != atom.Div {
				return true
			}
			decl, img, ok := p.styled(rec.Index, n)
			if !ok {
				return true
			}
			if img != nil {
				claimed[img] = struct{}{}
			}
			rec.Styled = append(rec.Styled, decl)
			return false
		})
	}

	walk(section, func(n *html.Node) bool {
		if !isImg(n) {
			return true
		}
		if _, taken := claimed[n]; taken {
			return false
		}
		src := attr(n, "src")
		if src == "" {
			p.log.Warn("Dropping image without source", zap.Int("slide", rec.Index))
			return false
		}
		rec.Inline = append(rec.Inline, ImageDecl{SourceURL: src})
		return false
	})
}

// styled resolves a candidate div into a container declaration. A div
// qualifies when it carries styling of its own (classes or inline style)
// and wraps an img or paints a background-image; the returned img node, if
// any, is claimed so it is not double counted.
func (p *parser) styled(slide int, div *html.Node) (StyledContainerDecl, *html.Node, bool) {
	divClasses := strings.Fields(attr(div, "class"))
	if len(divClasses) == 0 && strings.TrimSpace(attr(div, "style")) == "" {
		return StyledContainerDecl{}, nil, false
	}
	img := findFirst(div, isImg)

	inline := p.cssp.Inline(attr(div, "style"))
	if img != nil {
		inline.Merge(p.cssp.Inline(attr(img, "style")))
	}
	classes := divClasses
	if img != nil {
		classes = append(append([]string{}, divClasses...), strings.Fields(attr(img, "class"))...)
	}
	props := p.sheet.Resolve(classes, inline)

	src := ""
	if img != nil {
		src = attr(img, "src")
	}
	if src == "" {
		src, _ = props["background-image"].URL()
	}
	if src == "" {
		if img != nil {
			p.log.Warn("Dropping styled container without image source", zap.Int("slide", slide))
			return StyledContainerDecl{}, img, false
		}
		// A plain layout div, not a styled container.
		return StyledContainerDecl{}, nil, false
	}

	decl := StyledContainerDecl{
		SourceURL:   src,
		Box:         layout.Size{W: 400, H: 400},
		Fit:         FitCover,
		Position:    layout.Center,
		ScaleFactor: 1,
		Opacity:     1,
	}
	if w, ok := props["width"].Px(); ok && w > 0 {
		decl.Box.W = w
	}
	if h, ok := props["height"].Px(); ok && h > 0 {
		decl.Box.H = h
	}
	switch props["object-fit"].Keyword {
	case "contain":
		decl.Fit = FitContain
	case "fill":
		decl.Fit = FitFill
	case "none":
		decl.Fit = FitNone
	}
	if x, y, unit, ok := props["object-position"].Position(); ok {
		decl.Position = layout.Anchor{X: x, Y: y}
		decl.PositionPx = unit == "px"
	}
	if v, ok := props["border-radius"].Percent(); ok {
		decl.CornerRadiusPct = v
	} else if v, ok := props["border-radius"].Px(); ok {
		decl.CornerRadiusPx = v
	}
	if v, ok := props["transform"].Scale(); ok && v > 0 {
		decl.ScaleFactor = v
	}
	if v, ok := props["opacity"].Number(); ok && v >= 0 && v <= 1 {
		decl.Opacity = v
	}
	return decl, img, true
}

// parseFilters extracts the pass-through visual modifiers from a CSS filter
// value ("opacity(0.5) grayscale(1)").
func parseFilters(raw string) []Filter {
	var fs []Filter
	for _, part := range strings.Split(raw, ")") {
		name, val, ok := strings.Cut(part, "(")
		if !ok {
			continue
		}
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "opacity" || name == "grayscale" {
			fs = append(fs, Filter{Name: name, Value: strings.TrimSpace(val)})
		}
	}
	return fs
}

func collectStyleText(doc *html.Node) string {
	var sb strings.Builder
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					sb.WriteString(c.Data)
					sb.WriteByte('\n')
				}
			}
			return false
		}
		return true
	})
	return sb.String()
}

func findSection(root *html.Node, kind string) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Section &&
			attr(n, "data-marpit-advanced-background") == kind
	})
}

// findBareSection returns the first section without an advanced-background
// attribute - the form every slide with no background images takes.
func findBareSection(root *html.Node) *html.Node {
	return findFirst(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Section &&
			!hasAttr(n, "data-marpit-advanced-background")
	})
}

func isImg(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Img
}

// walk visits nodes depth first; visit returning false prunes the subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n != root && pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// attr matches case-insensitively: the tokenizer keeps the SVG-adjusted
// casing (viewBox, foreignObject) inside svg subtrees.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}
