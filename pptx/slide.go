package pptx

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
)

// Slide is one slide part with its relationship file.
type Slide struct {
	Index int

	path     string
	relsPath string

	doc  *etree.Document
	rels *etree.Document
	pics []*Picture

	dirty     bool
	dirtyRels bool

	d *Document
}

func (d *Document) openSlide(index int, partPath string) (*Slide, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(d.parts[partPath]); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", partPath, err)
	}

	s := &Slide{
		Index:    index,
		path:     partPath,
		relsPath: path.Join(path.Dir(partPath), "_rels", path.Base(partPath)+".rels"),
		doc:      doc,
		d:        d,
	}

	if data, ok := d.parts[s.relsPath]; ok {
		rels := etree.NewDocument()
		if err := rels.ReadFromBytes(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", s.relsPath, err)
		}
		s.rels = rels
	}

	for _, el := range doc.FindElements("//p:pic") {
		s.pics = append(s.pics, &Picture{el: el, slide: s})
	}
	return s, nil
}

// Path returns the archive part path, for logging.
func (s *Slide) Path() string {
	return s.path
}

// Pictures returns the slide's picture shapes in document order, the order
// shape mapping joins against.
func (s *Slide) Pictures() []*Picture {
	return s.pics
}

func (s *Slide) flush() error {
	if s.dirty {
		data, err := s.doc.WriteToBytes()
		if err != nil {
			return fmt.Errorf("serializing %s: %w", s.path, err)
		}
		s.d.parts[s.path] = data
		s.dirty = false
	}
	if s.dirtyRels && s.rels != nil {
		data, err := s.rels.WriteToBytes()
		if err != nil {
			return fmt.Errorf("serializing %s: %w", s.relsPath, err)
		}
		s.d.parts[s.relsPath] = data
		s.dirtyRels = false
	}
	return nil
}

// relationship returns the Relationship element with the given Id.
func (s *Slide) relationship(id string) *etree.Element {
	if s.rels == nil || s.rels.Root() == nil {
		return nil
	}
	for _, rel := range s.rels.Root().SelectElements("Relationship") {
		if rel.SelectAttrValue("Id", "") == id {
			return rel
		}
	}
	return nil
}

// Picture is a mutable handle on one p:pic shape.
type Picture struct {
	el    *etree.Element
	slide *Slide
}

// Rect returns the current offset and extent in EMU, zero when the shape
// carries no transform of its own.
func (p *Picture) Rect() (x, y, cx, cy int64) {
	xfrm := p.el.FindElement("p:spPr/a:xfrm")
	if xfrm == nil {
		return 0, 0, 0, 0
	}
	if off := xfrm.SelectElement("a:off"); off != nil {
		x, _ = emuAttr(off, "x")
		y, _ = emuAttr(off, "y")
	}
	if ext := xfrm.SelectElement("a:ext"); ext != nil {
		cx, _ = emuAttr(ext, "cx")
		cy, _ = emuAttr(ext, "cy")
	}
	return x, y, cx, cy
}

// SetRect sets position and extent in EMU, creating the transform chain
// when the shape has none.
func (p *Picture) SetRect(x, y, cx, cy int64) {
	spPr := p.el.SelectElement("p:spPr")
	if spPr == nil {
		spPr = p.el.CreateElement("p:spPr")
	}
	xfrm := spPr.SelectElement("a:xfrm")
	if xfrm == nil {
		// a:xfrm must come first inside p:spPr.
		xfrm = etree.NewElement("a:xfrm")
		spPr.InsertChildAt(0, xfrm)
	}
	off := xfrm.SelectElement("a:off")
	if off == nil {
		off = etree.NewElement("a:off")
		xfrm.InsertChildAt(0, off)
	}
	ext := xfrm.SelectElement("a:ext")
	if ext == nil {
		ext = xfrm.CreateElement("a:ext")
	}
	off.CreateAttr("x", strconv.FormatInt(x, 10))
	off.CreateAttr("y", strconv.FormatInt(y, 10))
	ext.CreateAttr("cx", strconv.FormatInt(cx, 10))
	ext.CreateAttr("cy", strconv.FormatInt(cy, 10))
	p.slide.dirty = true
}

// Crop returns the current source crop fractions from a:srcRect.
func (p *Picture) Crop() (left, right, top, bottom float64) {
	srcRect := p.el.FindElement("p:blipFill/a:srcRect")
	if srcRect == nil {
		return 0, 0, 0, 0
	}
	return cropAttr(srcRect, "l"), cropAttr(srcRect, "r"),
		cropAttr(srcRect, "t"), cropAttr(srcRect, "b")
}

// SetCrop sets the source crop as fractions (0..1). DrawingML stores crops
// in thousandths of a percent; an all-zero crop removes a:srcRect entirely.
func (p *Picture) SetCrop(left, right, top, bottom float64) {
	fill := p.el.SelectElement("p:blipFill")
	if fill == nil {
		return
	}
	srcRect := fill.SelectElement("a:srcRect")

	if left == 0 && right == 0 && top == 0 && bottom == 0 {
		if srcRect != nil {
			fill.RemoveChild(srcRect)
			p.slide.dirty = true
		}
		return
	}

	if srcRect == nil {
		// a:srcRect must follow a:blip and precede the fill mode element.
		srcRect = etree.NewElement("a:srcRect")
		idx := 0
		for i, tok := range fill.Child {
			if el, ok := tok.(*etree.Element); ok && el.Tag == "blip" {
				idx = i + 1
				break
			}
		}
		fill.InsertChildAt(idx, srcRect)
	}

	setCropAttr(srcRect, "l", left)
	setCropAttr(srcRect, "r", right)
	setCropAttr(srcRect, "t", top)
	setCropAttr(srcRect, "b", bottom)
	p.slide.dirty = true
}

// Image returns the embedded media bytes and their part path.
func (p *Picture) Image() ([]byte, string, error) {
	target, err := p.mediaTarget()
	if err != nil {
		return nil, "", err
	}
	data, ok := p.slide.d.parts[target]
	if !ok {
		return nil, "", fmt.Errorf("slide %d: media part %s missing", p.slide.Index, target)
	}
	return data, target, nil
}

// ReplaceImage swaps the embedded media for new bytes under a fresh media
// part, leaving the old part in place for any other shape referencing it.
func (p *Picture) ReplaceImage(data []byte, ext string) error {
	blip := p.el.FindElement("p:blipFill/a:blip")
	if blip == nil {
		return fmt.Errorf("slide %d: picture has no a:blip", p.slide.Index)
	}
	id := blip.SelectAttrValue("r:embed", "")
	if id == "" {
		return fmt.Errorf("slide %d: picture blip has no r:embed", p.slide.Index)
	}
	rel := p.slide.relationship(id)
	if rel == nil {
		return fmt.Errorf("slide %d: no relationship %s", p.slide.Index, id)
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	name := fmt.Sprintf("image-%s.%s", uuid.NewString(), ext)
	p.slide.d.addPart(mediaDir+"/"+name, data)
	p.slide.d.ensureContentType(ext)

	rel.CreateAttr("Target", "../media/"+name)
	p.slide.dirtyRels = true
	return nil
}

// mediaTarget resolves the blip relationship to an archive part path.
// Relationship targets are relative to the part owning the _rels directory.
func (p *Picture) mediaTarget() (string, error) {
	blip := p.el.FindElement("p:blipFill/a:blip")
	if blip == nil {
		return "", fmt.Errorf("slide %d: picture has no a:blip", p.slide.Index)
	}
	id := blip.SelectAttrValue("r:embed", "")
	rel := p.slide.relationship(id)
	if rel == nil {
		return "", fmt.Errorf("slide %d: no relationship %q", p.slide.Index, id)
	}
	target := rel.SelectAttrValue("Target", "")
	return path.Join(path.Dir(path.Dir(p.slide.relsPath)), target), nil
}

func emuAttr(el *etree.Element, name string) (int64, bool) {
	v, err := strconv.ParseInt(el.SelectAttrValue(name, ""), 10, 64)
	return v, err == nil
}

func cropAttr(el *etree.Element, name string) float64 {
	v, err := strconv.ParseFloat(el.SelectAttrValue(name, "0"), 64)
	if err != nil {
		return 0
	}
	return v / 100000
}

func setCropAttr(el *etree.Element, name string, f float64) {
	v := int64(math.Round(f * 100000))
	if v <= 0 {
		el.RemoveAttr(name)
		return
	}
	el.CreateAttr(name, strconv.FormatInt(v, 10))
}
