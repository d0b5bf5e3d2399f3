package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/idcard-api/pkg/imaging"
)

// CR80 card size in millimetres.
const (
	CardWidthMM  = 85.6
	CardHeightMM = 54.0

	headerHeight = 11.0
	footerHeight = 3.0
	photoX       = 4.0
	photoY       = 14.0
	photoW       = 22.0
	photoH       = 28.0
	textX        = 30.0
	photoPxPerMM = 20
	photoQuality = 85
)

// StudentCard is the printable subset of a student record.
type StudentCard struct {
	ID             string
	Name           string
	Degree         string
	Programme      string
	IDNumber       string
	ExpirationDate string
	Campus         string
}

// StaffCard is the printable subset of a staff record.
type StaffCard struct {
	ID        string
	Name      string
	StaffID   string
	IssueDate string
}

// Photos maps a card ID to a base64 data URL. A missing or empty entry prints a placeholder.
type Photos map[string]string

// CardRenderer lays out one CR80 page per person.
type CardRenderer struct {
	layout Layout
}

// NewCardRenderer constructs a renderer with the given layout.
func NewCardRenderer(layout Layout) *CardRenderer {
	return &CardRenderer{layout: layout}
}

// Layout returns the branding in use.
func (r *CardRenderer) Layout() Layout {
	return r.layout
}

// RenderStudents renders one student card per entry, in order.
func (r *CardRenderer) RenderStudents(cards []StudentCard, photos Photos) ([]byte, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("no cards to render")
	}
	doc := r.newDocument()
	for i, card := range cards {
		r.drawFrame(doc, r.layout.StudentTitle, card.Campus)
		r.drawPhoto(doc, fmt.Sprintf("photo-%d", i), photos[card.ID], card.Name)

		y := photoY
		y = r.drawName(doc, card.Name, y)
		y = r.drawMuted(doc, joinNonEmpty(" · ", card.Degree, card.Programme), y)
		y += 1.5
		y = r.drawField(doc, r.layout.IDLabel, card.IDNumber, y)
		r.drawField(doc, r.layout.ValidLabel, card.ExpirationDate, y)
	}
	return r.output(doc)
}

// RenderStaff renders one staff card per entry, in order.
func (r *CardRenderer) RenderStaff(cards []StaffCard, photos Photos) ([]byte, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("no cards to render")
	}
	doc := r.newDocument()
	for i, card := range cards {
		r.drawFrame(doc, r.layout.StaffTitle, "")
		r.drawPhoto(doc, fmt.Sprintf("photo-%d", i), photos[card.ID], card.Name)

		y := photoY
		y = r.drawName(doc, card.Name, y)
		y += 1.5
		y = r.drawField(doc, r.layout.StaffIDLabel, card.StaffID, y)
		r.drawField(doc, r.layout.IssuedLabel, card.IssueDate, y)
	}
	return r.output(doc)
}

type document struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func (r *CardRenderer) newDocument() *document {
	// Size is given already landscape, so portrait orientation keeps it as is.
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: CardWidthMM, Ht: CardHeightMM},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(r.layout.Institution+" ID cards", true)
	pdf.SetCreator("idcard-api", true)
	return &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (r *CardRenderer) drawFrame(doc *document, title, footer string) {
	pdf := doc.pdf
	pdf.AddPage()

	header := colorOf(r.layout.HeaderColor)
	pdf.SetFillColor(header.r, header.g, header.b)
	pdf.Rect(0, 0, CardWidthMM, headerHeight, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetXY(4, 0)
	pdf.CellFormat(50, headerHeight, doc.tr(r.layout.Institution), "", 0, "LM", false, 0, "")
	pdf.SetFont("Helvetica", "B", 7)
	pdf.SetXY(CardWidthMM-34, 0)
	pdf.CellFormat(30, headerHeight, doc.tr(title), "", 0, "RM", false, 0, "")

	accent := colorOf(r.layout.AccentColor)
	pdf.SetFillColor(accent.r, accent.g, accent.b)
	pdf.Rect(0, CardHeightMM-footerHeight, CardWidthMM, footerHeight, "F")
	if footer != "" {
		pdf.SetFont("Helvetica", "", 5)
		pdf.SetXY(4, CardHeightMM-footerHeight)
		pdf.CellFormat(CardWidthMM-8, footerHeight, doc.tr(footer), "", 0, "RM", false, 0, "")
	}
}

// drawPhoto places the photo, or initials on a grey box when the payload is
// absent or cannot be decoded.
func (r *CardRenderer) drawPhoto(doc *document, name, dataURL, person string) {
	pdf := doc.pdf
	if jpg, ok := preparePhoto(dataURL); ok && placePhoto(pdf, name, jpg) {
		return
	}

	pdf.SetFillColor(225, 225, 225)
	pdf.Rect(photoX, photoY, photoW, photoH, "F")
	muted := colorOf(r.layout.MutedColor)
	pdf.SetTextColor(muted.r, muted.g, muted.b)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(photoX, photoY)
	pdf.CellFormat(photoW, photoH, doc.tr(Initials(person)), "", 0, "CM", false, 0, "")
}

// placePhoto registers and draws jpg. A rejected image clears the document
// error it raised so the rest of the document still renders.
func placePhoto(pdf *gofpdf.Fpdf, name string, jpg []byte) bool {
	if !pdf.Ok() {
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(jpg))
	if !pdf.Ok() {
		pdf.ClearError()
		return false
	}
	pdf.ImageOptions(name, photoX, photoY, photoW, photoH, false, opts, 0, "")
	return true
}

func (r *CardRenderer) drawName(doc *document, name string, y float64) float64 {
	pdf := doc.pdf
	text := colorOf(r.layout.TextColor)
	pdf.SetTextColor(text.r, text.g, text.b)
	size := fitFont(pdf, doc.tr(name), "B", 11, 7, CardWidthMM-textX-4)
	pdf.SetFont("Helvetica", "B", size)
	pdf.SetXY(textX, y)
	pdf.CellFormat(CardWidthMM-textX-4, 6, doc.fit(name, CardWidthMM-textX-4), "", 0, "LM", false, 0, "")
	return y + 6.5
}

func (r *CardRenderer) drawMuted(doc *document, value string, y float64) float64 {
	if value == "" {
		return y
	}
	pdf := doc.pdf
	muted := colorOf(r.layout.MutedColor)
	pdf.SetTextColor(muted.r, muted.g, muted.b)
	pdf.SetFont("Helvetica", "", 6.5)
	pdf.SetXY(textX, y)
	pdf.CellFormat(CardWidthMM-textX-4, 4, doc.fit(value, CardWidthMM-textX-4), "", 0, "LM", false, 0, "")
	return y + 4.5
}

func (r *CardRenderer) drawField(doc *document, label, value string, y float64) float64 {
	pdf := doc.pdf
	muted := colorOf(r.layout.MutedColor)
	pdf.SetTextColor(muted.r, muted.g, muted.b)
	pdf.SetFont("Helvetica", "", 5.5)
	pdf.SetXY(textX, y)
	pdf.CellFormat(CardWidthMM-textX-4, 3, doc.tr(label), "", 0, "LM", false, 0, "")

	text := colorOf(r.layout.TextColor)
	pdf.SetTextColor(text.r, text.g, text.b)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetXY(textX, y+3)
	pdf.CellFormat(CardWidthMM-textX-4, 4, doc.fit(value, CardWidthMM-textX-4), "", 0, "LM", false, 0, "")
	return y + 8
}

func (r *CardRenderer) output(doc *document) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := doc.pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// preparePhoto decodes a data URL and crops it to the photo box as JPEG.
func preparePhoto(dataURL string) ([]byte, bool) {
	if dataURL == "" {
		return nil, false
	}
	raw, _, err := imaging.DecodeDataURL(dataURL)
	if err != nil {
		return nil, false
	}
	img, err := imaging.Decode(raw)
	if err != nil {
		return nil, false
	}
	cropped, err := imaging.Cover(img, int(photoW)*photoPxPerMM, int(photoH)*photoPxPerMM)
	if err != nil {
		return nil, false
	}
	jpg, err := imaging.EncodeJPEG(cropped, photoQuality)
	if err != nil {
		return nil, false
	}
	return jpg, true
}

// Initials returns up to two upper-case initials of a name.
func Initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			out = append(out, []rune(strings.ToUpper(string(r)))...)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

func fitFont(pdf *gofpdf.Fpdf, s, style string, maxSize, minSize, width float64) float64 {
	for size := maxSize; size > minSize; size -= 0.5 {
		pdf.SetFont("Helvetica", style, size)
		if pdf.GetStringWidth(s) <= width {
			return size
		}
	}
	return minSize
}

// fit translates s and shortens it with an ellipsis until it fits width
// at the current font.
func (d *document) fit(s string, width float64) string {
	out := d.tr(s)
	if d.pdf.GetStringWidth(out) <= width {
		return out
	}
	runes := []rune(s)
	for len(runes) > 0 && d.pdf.GetStringWidth(d.tr(string(runes)+"...")) > width {
		runes = runes[:len(runes)-1]
	}
	return d.tr(string(runes) + "...")
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
