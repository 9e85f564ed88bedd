package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"path"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	ExtPDF  = ".pdf"
	ExtDOCX = ".docx"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrNoText          = errors.New("no text extracted")

	xmlTag     = regexp.MustCompile(`<[^>]+>`)
	blankLines = regexp.MustCompile(`\n{3,}`)
	docxBreaks = strings.NewReplacer("</w:p>", "\n", "<w:br/>", "\n", "<w:tab/>", "\t")
)

// Supported reports whether name has a resume extension.
func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ExtPDF, ExtDOCX:
		return true
	default:
		return false
	}
}

// ExtractText returns the plain text of a PDF or DOCX file.
func ExtractText(name string, data []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(path.Ext(name)) {
	case ExtPDF:
		text, err = extractPDF(data)
	case ExtDOCX:
		text, err = extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		builder.WriteString(text)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	defer doc.Close()

	return docxPlainText(doc.Editable().GetContent()), nil
}

// docxPlainText converts WordprocessingML to text, one paragraph per line.
func docxPlainText(content string) string {
	text := xmlTag.ReplaceAllString(docxBreaks.Replace(content), "")
	text = html.UnescapeString(text)
	return blankLines.ReplaceAllString(text, "\n\n")
}
