package quizsolver

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

// makeDOCX builds a minimal .docx archive holding the given document.xml body.
func makeDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

const docxHeader = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
const docxFooter = `</w:body></w:document>`

func TestDocxToHTMLStyles(t *testing.T) {
	data := makeDOCX(t, docxHeader+
		`<w:p><w:r><w:t>plain</w:t></w:r></w:p>`+
		`<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>bold</w:t></w:r></w:p>`+
		`<w:p><w:r><w:rPr><w:u w:val="single"/></w:rPr><w:t>underlined</w:t></w:r></w:p>`+
		`<w:p><w:r><w:rPr><w:color w:val="FF0000"/></w:rPr><w:t>red</w:t></w:r></w:p>`+
		`<w:p><w:r><w:rPr><w:b w:val="0"/></w:rPr><w:t>not bold</w:t></w:r></w:p>`+
		docxFooter)

	html, err := extractDOCXHTML(data)
	if err != nil {
		t.Fatalf("extractDOCXHTML failed: %v", err)
	}
	for _, want := range []string{
		"<p>plain</p>",
		"<p><strong>bold</strong></p>",
		"<p><u>underlined</u></p>",
		`<p><span class="marked-run">red</span></p>`,
		"<p>not bold</p>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("output missing %q in:\n%s", want, html)
		}
	}
}

func TestDocxRawTextFallback(t *testing.T) {
	data := makeDOCX(t, docxHeader+
		`<w:p><w:r><w:t>first</w:t></w:r></w:p>`+
		`<w:p><w:r><w:t>second</w:t></w:r></w:p>`+
		docxFooter)
	text, err := extractDOCXText(data)
	if err != nil {
		t.Fatalf("extractDOCXText failed: %v", err)
	}
	if !strings.Contains(text, "first\n") || !strings.Contains(text, "second\n") {
		t.Errorf("text = %q", text)
	}
}

func TestDocxEmptyDocumentRejected(t *testing.T) {
	data := makeDOCX(t, docxHeader+`<w:p></w:p>`+docxFooter)
	if _, err := extractDOCXHTML(data); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestSniffers(t *testing.T) {
	if !isPDF([]byte("%PDF-1.7 rest")) {
		t.Error("pdf header not detected")
	}
	if !isZip([]byte{'P', 'K', 3, 4, 0}) {
		t.Error("zip header not detected")
	}
	if !isOLE([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}) {
		t.Error("ole header not detected")
	}
	if !isProbablyText([]byte("Câu 1: plain text file\n")) {
		t.Error("text not detected")
	}
	if isProbablyText([]byte{0x00, 0x01, 0x02, 0x03}) {
		t.Error("binary mistaken for text")
	}
}

func TestStripHTMLTags(t *testing.T) {
	got := collapseWhitespace(stripHTMLTags("<p>a&nbsp;&amp;<strong>b</strong></p>"))
	if got != "a & b" {
		t.Errorf("got %q", got)
	}
}
