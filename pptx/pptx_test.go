package pptx_test

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"m2p/pptx"
)

const slideTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:cSld><p:spTree>
<p:pic>
<p:nvPicPr><p:cNvPr id="4" name="pic"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>
<p:blipFill><a:blip r:embed="rId1"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>
<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="914400" cy="914400"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>
</p:pic>
</p:spTree></p:cSld>
</p:sld>`

const slideRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/image1.png"/>
</Relationships>`

const presentationXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
<p:sldSz cx="12192000" cy="6858000"/>
</p:presentation>`

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="png" ContentType="image/png"/>
</Types>`

// tiny 1x1 png
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func writeTestDeck(t *testing.T, slideNames []string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name, data string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	add("[Content_Types].xml", contentTypesXML)
	add("ppt/presentation.xml", presentationXML)
	for _, s := range slideNames {
		add("ppt/slides/"+s+".xml", slideTemplate)
		add("ppt/slides/_rels/"+s+".xml.rels", slideRels)
	}
	add("ppt/media/image1.png", string(pngBytes))
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}

	name := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(name, buf.Bytes(), 0644); err != nil {
		t.Fatalf("writing deck: %v", err)
	}
	return name
}

func TestOpenOrdersSlidesNaturally(t *testing.T) {
	name := writeTestDeck(t, []string{"slide10", "slide2", "slide1"})

	doc, err := pptx.Open(name, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	slides := doc.Slides()
	if len(slides) != 3 {
		t.Fatalf("slides: got %d", len(slides))
	}
	want := []string{"ppt/slides/slide1.xml", "ppt/slides/slide2.xml", "ppt/slides/slide10.xml"}
	for i, s := range slides {
		if s.Path() != want[i] {
			t.Errorf("slide %d: got %s want %s", i, s.Path(), want[i])
		}
		if s.Index != i {
			t.Errorf("slide %d: index %d", i, s.Index)
		}
	}

	cx, cy := doc.CanvasEMU()
	if cx != 12192000 || cy != 6858000 {
		t.Errorf("canvas: got %d x %d", cx, cy)
	}
}

func TestPictureGeometry(t *testing.T) {
	name := writeTestDeck(t, []string{"slide1"})
	doc, err := pptx.Open(name, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pics := doc.Slides()[0].Pictures()
	if len(pics) != 1 {
		t.Fatalf("pictures: got %d", len(pics))
	}
	pic := pics[0]

	pic.SetRect(100, 200, 300, 400)
	if x, y, cx, cy := pic.Rect(); x != 100 || y != 200 || cx != 300 || cy != 400 {
		t.Errorf("rect after set: got %d %d %d %d", x, y, cx, cy)
	}

	pic.SetCrop(0.25, 0.25, 0, 0)
	l, r, top, b := pic.Crop()
	if l != 0.25 || r != 0.25 || top != 0 || b != 0 {
		t.Errorf("crop after set: got %v %v %v %v", l, r, top, b)
	}

	// All-zero crop removes srcRect again.
	pic.SetCrop(0, 0, 0, 0)
	if l, r, top, b := pic.Crop(); l != 0 || r != 0 || top != 0 || b != 0 {
		t.Errorf("crop after clear: got %v %v %v %v", l, r, top, b)
	}
}

func TestPictureImage(t *testing.T) {
	name := writeTestDeck(t, []string{"slide1"})
	doc, err := pptx.Open(name, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data, part, err := doc.Slides()[0].Pictures()[0].Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if part != "ppt/media/image1.png" {
		t.Errorf("media part: got %s", part)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Errorf("media bytes differ: got %d bytes", len(data))
	}
}

func TestSaveRoundTrip(t *testing.T) {
	name := writeTestDeck(t, []string{"slide1"})
	doc, err := pptx.Open(name, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pic := doc.Slides()[0].Pictures()[0]
	pic.SetRect(10, 20, 30, 40)
	pic.SetCrop(0, 0, 0.1, 0.1)
	if err := pic.ReplaceImage(pngBytes, "png"); err != nil {
		t.Fatalf("ReplaceImage: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.pptx")
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	saved, err := pptx.Open(out, nil)
	if err != nil {
		t.Fatalf("reopening saved deck: %v", err)
	}
	pic2 := saved.Slides()[0].Pictures()[0]
	if x, y, cx, cy := pic2.Rect(); x != 10 || y != 20 || cx != 30 || cy != 40 {
		t.Errorf("saved rect: got %d %d %d %d", x, y, cx, cy)
	}
	if _, _, top, b := pic2.Crop(); top != 0.1 || b != 0.1 {
		t.Errorf("saved crop: got top=%v bottom=%v", top, b)
	}

	_, part, err := pic2.Image()
	if err != nil {
		t.Fatalf("saved Image: %v", err)
	}
	if !strings.HasPrefix(part, "ppt/media/image-") || !strings.HasSuffix(part, ".png") {
		t.Errorf("replacement media part: got %s", part)
	}
}
