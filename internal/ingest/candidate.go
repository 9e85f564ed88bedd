package ingest

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

	nameSeparators = strings.NewReplacer("_", " ", "-", " ")
)

// CandidateName derives a display name from a resume file name:
// "jane_doe-cv.pdf" becomes "Jane Doe Cv".
func CandidateName(filename string) string {
	base := path.Base(filepath.ToSlash(filename))
	base = strings.TrimSuffix(base, path.Ext(base))

	words := strings.Fields(nameSeparators.Replace(base))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// ExtractEmail returns the first email address in text, or "".
func ExtractEmail(text string) string {
	return emailPattern.FindString(text)
}
