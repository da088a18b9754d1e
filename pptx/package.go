// Package pptx is the editable-document layer: a PPTX archive opened part
// by part, with slide picture shapes exposed as mutable handles. Untouched
// parts round-trip byte for byte; only slide XML, relationship files and
// replaced media are re-serialized on save.
package pptx

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/etree"
	fixzip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	"go.uber.org/zap"
)

const (
	presentationPart = "ppt/presentation.xml"
	contentTypesPart = "[Content_Types].xml"
	mediaDir         = "ppt/media"
)

// Default 16:9 deck size, used when p:sldSz is absent.
const (
	defaultCanvasCx = 12192000
	defaultCanvasCy = 6858000
)

// Document is an opened presentation.
type Document struct {
	parts map[string][]byte
	order []string

	slides       []*Slide
	contentTypes *etree.Document
	ctDirty      bool

	canvasCx int64
	canvasCy int64

	log *zap.Logger
}

// Open reads a PPTX archive into memory. Slides are ordered naturally by
// part name so slide10 follows slide9.
func Open(name string, log *zap.Logger) (*Document, error) {
	if log == nil {
		log = zap.NewNop()
	}

	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("opening pptx %s: %w", name, err)
	}
	defer zr.Close()

	d := &Document{
		parts:    make(map[string][]byte, len(zr.File)),
		canvasCx: defaultCanvasCx,
		canvasCy: defaultCanvasCy,
		log:      log.Named("pptx"),
	}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening part %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading part %s: %w", f.Name, err)
		}
		d.parts[f.Name] = data
		d.order = append(d.order, f.Name)
	}

	if err := d.readPresentation(); err != nil {
		return nil, err
	}
	if err := d.readContentTypes(); err != nil {
		return nil, err
	}
	if err := d.readSlides(); err != nil {
		return nil, err
	}

	d.log.Debug("Opened presentation",
		zap.Int("parts", len(d.parts)),
		zap.Int("slides", len(d.slides)),
		zap.Int64("cx", d.canvasCx),
		zap.Int64("cy", d.canvasCy))
	return d, nil
}

// Slides returns the slides in deck order.
func (d *Document) Slides() []*Slide {
	return d.slides
}

// CanvasEMU returns the slide size in EMU.
func (d *Document) CanvasEMU() (cx, cy int64) {
	return d.canvasCx, d.canvasCy
}

func (d *Document) readPresentation() error {
	data, ok := d.parts[presentationPart]
	if !ok {
		return fmt.Errorf("pptx has no %s part", presentationPart)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("parsing %s: %w", presentationPart, err)
	}
	if sz := doc.FindElement("//p:sldSz"); sz != nil {
		if cx, ok := emuAttr(sz, "cx"); ok {
			d.canvasCx = cx
		}
		if cy, ok := emuAttr(sz, "cy"); ok {
			d.canvasCy = cy
		}
	}
	return nil
}

func (d *Document) readContentTypes() error {
	data, ok := d.parts[contentTypesPart]
	if !ok {
		return fmt.Errorf("pptx has no %s part", contentTypesPart)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("parsing %s: %w", contentTypesPart, err)
	}
	d.contentTypes = doc
	return nil
}

func (d *Document) readSlides() error {
	var paths []string
	for name := range d.parts {
		if strings.HasPrefix(name, "ppt/slides/slide") && strings.HasSuffix(name, ".xml") {
			paths = append(paths, name)
		}
	}
	sort.Sort(natural.StringSlice(paths))

	for i, p := range paths {
		s, err := d.openSlide(i, p)
		if err != nil {
			return err
		}
		d.slides = append(d.slides, s)
	}
	return nil
}

// addPart registers a new archive entry (replacement media).
func (d *Document) addPart(name string, data []byte) {
	if _, exists := d.parts[name]; !exists {
		d.order = append(d.order, name)
	}
	d.parts[name] = data
}

var imageContentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// ensureContentType registers a Default content-type mapping for an image
// extension if the package does not declare one yet.
func (d *Document) ensureContentType(ext string) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	ct, known := imageContentTypes[ext]
	if !known {
		return
	}
	root := d.contentTypes.Root()
	for _, def := range root.SelectElements("Default") {
		if strings.EqualFold(def.SelectAttrValue("Extension", ""), ext) {
			return
		}
	}
	def := root.CreateElement("Default")
	def.CreateAttr("Extension", ext)
	def.CreateAttr("ContentType", ct)
	d.ctDirty = true
}

// Save writes the presentation to the given path. Dirty slide parts are
// re-serialized; everything else is copied verbatim. The archive is written
// without data descriptors since some PPTX consumers choke on them.
func (d *Document) Save(name string) error {
	for _, s := range d.slides {
		if err := s.flush(); err != nil {
			return err
		}
	}
	if d.ctDirty {
		data, err := d.contentTypes.WriteToBytes()
		if err != nil {
			return fmt.Errorf("serializing %s: %w", contentTypesPart, err)
		}
		d.parts[contentTypesPart] = data
		d.ctDirty = false
	}

	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	tmp := name + ".tmp"
	if err := d.writeArchive(tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := copyZipWithoutDataDescriptors(tmp, name); err != nil {
		return err
	}
	d.log.Debug("Saved presentation", zap.String("output", name), zap.Int("parts", len(d.order)))
	return nil
}

func (d *Document) writeArchive(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	for _, part := range d.order {
		w, err := zw.Create(part)
		if err != nil {
			return fmt.Errorf("unable to create archive entry %s: %w", part, err)
		}
		if _, err := w.Write(d.parts[part]); err != nil {
			return fmt.Errorf("unable to write archive entry %s: %w", part, err)
		}
	}
	return zw.Close()
}

func copyZipWithoutDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	defer w.Close()

	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	return nil
}
