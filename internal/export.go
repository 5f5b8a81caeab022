package internal

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// ImageLoader returns the encoded bytes of the image behind a material or
// background URL.
type ImageLoader func(rawURL string) ([]byte, error)

// ExportPDF writes materials over background to path as one page the size of
// the canvas. Callers pass the local user's own materials, never ghosts. Images
// that load are drawn at their positions and the rest become labelled boxes. A
// nil load draws boxes only.
func ExportPDF(path, background string, materials []Material, load ImageLoader) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "L",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: CanvasWidth, Ht: CanvasHeight},
	})
	pdf.SetTitle("ghostcanvas export", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	images := &pdfImages{pdf: pdf, load: load, names: make(map[string]string)}

	pdf.SetFillColor(248, 248, 248)
	pdf.Rect(0, 0, CanvasWidth, CanvasHeight, "F")
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(90, 90, 90)
	if bg := background; bg != "" && !images.draw(bg, 0, 0, CanvasWidth, CanvasHeight) {
		pdf.Text(12, 20, "background: "+bg)
	}

	r, g, b := hexColor(DefaultColor)
	pdf.SetLineWidth(2)
	for _, m := range materials {
		if m.URL != "" && images.draw(m.URL, m.X, m.Y, m.Width, m.Height) {
			continue
		}
		pdf.SetDrawColor(r, g, b)
		pdf.SetFillColor(235, 242, 250)
		pdf.Rect(m.X, m.Y, m.Width, m.Height, "FD")
		pdf.SetTextColor(r, g, b)
		pdf.Text(m.X+5, m.Y+18, m.ID)
		if m.URL != "" {
			pdf.SetTextColor(120, 120, 120)
			pdf.Text(m.X+5, m.Y+36, truncate(m.URL, int(m.Width/7)))
		}
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("export pdf: %w", err)
	}
	return nil
}

// pdfImages registers each URL with the document at most once.
type pdfImages struct {
	pdf   *gofpdf.Fpdf
	load  ImageLoader
	names map[string]string // url to registered name, "" when unusable
}

func (p *pdfImages) draw(rawURL string, x, y, w, h float64) bool {
	name, seen := p.names[rawURL]
	if !seen {
		name = p.register(rawURL)
		p.names[rawURL] = name
	}
	if name == "" {
		return false
	}
	p.pdf.ImageOptions(name, x, y, w, h, false, gofpdf.ImageOptions{}, 0, "")
	return true
}

func (p *pdfImages) register(rawURL string) string {
	if p.load == nil {
		return ""
	}
	data, err := p.load(rawURL)
	if err != nil {
		return ""
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	imageType := map[string]string{"png": "PNG", "jpeg": "JPG", "gif": "GIF"}[format]
	if imageType == "" {
		return ""
	}
	name := fmt.Sprintf("img%d", len(p.names))
	p.pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: imageType}, bytes.NewReader(data))
	if p.pdf.Err() {
		p.pdf.ClearError()
		return ""
	}
	return name
}

// hexColor parses #rrggbb and falls back to black.
func hexColor(color string) (int, int, int) {
	color = strings.TrimPrefix(strings.TrimSpace(color), "#")
	if len(color) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(color, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

func truncate(s string, n int) string {
	if n < 4 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
