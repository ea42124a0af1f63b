package quizsolver

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ------------------------
// Sniff helpers
// ------------------------

func isPDF(b []byte) bool {
	// PDF starts with "%PDF-"
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	// ZIP local file header: PK\x03\x04
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func isOLE(b []byte) bool {
	// Legacy MS Office container (.doc)
	sig := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	return len(b) >= 8 && bytes.Equal(b[:8], sig)
}

func isProbablyText(b []byte) bool {
	// Heuristic: mostly printable / whitespace, no NUL bytes.
	sample := b[:minInt(len(b), 4096)]
	if len(sample) == 0 {
		return false
	}
	good := 0
	for _, c := range sample {
		if c == 0x00 {
			return false
		}
		if c == '\n' || c == '\r' || c == '\t' || (c >= 0x20 && c <= 0x7E) || c >= 0x80 {
			good++
		}
	}
	return float64(good)/float64(len(sample)) > 0.9
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ------------------------
// Extractors
// ------------------------

// extractPDFText returns one flat text stream: items on a page joined with
// spaces, pages joined with newlines.
func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content := p.Content()
		items := make([]string, 0, len(content.Text))
		for _, item := range content.Text {
			if item.S != "" {
				items = append(items, item.S)
			}
		}
		pages = append(pages, strings.Join(items, " "))
	}
	joined := strings.Join(pages, "\n")
	if strings.TrimSpace(joined) == "" {
		return "", fmt.Errorf("no text extracted from pdf")
	}
	return joined, nil
}

// extractDOCXHTML converts word/document.xml into minimal HTML, one <p> per
// paragraph. Runs carrying bold, italic, underline, color, highlight, shading
// or strikethrough are tagged so the parser can detect visual answer marks.
func extractDOCXHTML(zipBytes []byte) (string, error) {
	body, err := readZipFile(zipBytes, "word/document.xml")
	if err != nil {
		return "", err
	}
	return docxXMLToHTML(body)
}

// extractDOCXText is the fallback path: raw <w:t> text, paragraphs joined
// with newlines, no formatting information.
func extractDOCXText(zipBytes []byte) (string, error) {
	body, err := readZipFile(zipBytes, "word/document.xml")
	if err != nil {
		return "", err
	}
	dec := xml.NewDecoder(bytes.NewReader(body))
	var out strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				var v string
				_ = dec.DecodeElement(&v, &t)
				out.WriteString(v)
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				out.WriteString("\n")
			}
		}
	}
	s := out.String()
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return s, nil
}

func readZipFile(zipBytes []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("docx zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("docx open %s: %w", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("docx read %s: %w", name, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("docx missing %s", name)
}

type runStyle struct {
	bold      bool
	italic    bool
	underline bool
	marked    bool // color, highlight, shading or strikethrough
}

func (st runStyle) wrap(text string) string {
	if text == "" {
		return ""
	}
	if st.bold {
		text = "<strong>" + text + "</strong>"
	}
	if st.italic {
		text = "<em>" + text + "</em>"
	}
	if st.underline {
		text = "<u>" + text + "</u>"
	}
	if st.marked {
		text = `<span class="marked-run">` + text + `</span>`
	}
	return text
}

func docxXMLToHTML(xmlBytes []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(xmlBytes))
	var out, para, run strings.Builder
	var style runStyle
	inRun, inRPr := false, false

	flushRun := func() {
		para.WriteString(style.wrap(html.EscapeString(run.String())))
		run.Reset()
		style = runStyle{}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
			case "r":
				inRun = true
				run.Reset()
				style = runStyle{}
			case "rPr":
				inRPr = inRun
			case "b", "bCs":
				if inRPr && xmlToggleOn(t) {
					style.bold = true
				}
			case "i", "iCs":
				if inRPr && xmlToggleOn(t) {
					style.italic = true
				}
			case "u":
				if inRPr && !strings.EqualFold(xmlAttr(t, "val"), "none") {
					style.underline = true
				}
			case "strike", "dstrike":
				if inRPr && xmlToggleOn(t) {
					style.marked = true
				}
			case "color":
				v := xmlAttr(t, "val")
				if inRPr && v != "" && !strings.EqualFold(v, "auto") && v != "000000" {
					style.marked = true
				}
			case "highlight":
				if inRPr && !strings.EqualFold(xmlAttr(t, "val"), "none") {
					style.marked = true
				}
			case "shd":
				fill := xmlAttr(t, "fill")
				if inRPr && fill != "" && !strings.EqualFold(fill, "auto") && !strings.EqualFold(fill, "FFFFFF") {
					style.marked = true
				}
			case "t":
				if inRun {
					var v string
					_ = dec.DecodeElement(&v, &t)
					run.WriteString(v)
				}
			case "tab", "br", "cr":
				if inRun {
					run.WriteString(" ")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "rPr":
				inRPr = false
			case "r":
				if inRun {
					flushRun()
				}
				inRun = false
			case "p":
				out.WriteString("<p>" + para.String() + "</p>\n")
				para.Reset()
			}
		}
	}

	s := out.String()
	if strings.TrimSpace(stripHTMLTags(s)) == "" {
		return "", fmt.Errorf("no text extracted from docx")
	}
	return s, nil
}

// xmlToggleOn reports whether an OOXML on/off property is enabled. Absent
// w:val means on.
func xmlToggleOn(t xml.StartElement) bool {
	v := xmlAttr(t, "val")
	return v == "" || !(strings.EqualFold(v, "false") || v == "0" || strings.EqualFold(v, "none"))
}

func xmlAttr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// ------------------------
// Text helpers
// ------------------------

var htmlTagRe = regexp.MustCompile(`(?s)<[^>]*>`)

func stripHTMLTags(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.ReplaceAll(s, "\u00a0", " ")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
