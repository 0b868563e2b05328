package retrieval

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLabelRunes bounds a section label.
const MaxLabelRunes = 80

var sectionPatterns = []*regexp.Regexp{
	// "3.2.-Deadlines for claims"
	regexp.MustCompile(`(\d+\.?\d*\.-[A-Za-z\s]+)`),
	// "4. Validation of Contract Number"
	regexp.MustCompile(`(\d+\.\s*[A-Z][A-Za-z\s]+(?:of|and|the|in|to|for|with)?[A-Za-z\s]*)`),
}

// SectionLabel derives a human-readable section reference for a chunk.
// A source name is used as-is unless it is a PDF file name, which is never
// shown to agents; otherwise a numbered heading inside the chunk is used,
// then a short heading-like first line. Returns "" when nothing fits.
func SectionLabel(source, content string) string {
	source = strings.TrimSpace(source)
	if source != "" && !strings.HasSuffix(strings.ToLower(source), ".pdf") {
		return truncateLabel(source)
	}

	for _, re := range sectionPatterns {
		if m := re.FindString(content); m != "" {
			label := strings.Join(strings.Fields(m), " ")
			if len(label) > 10 {
				return truncateLabel(label)
			}
		}
	}

	first := strings.TrimSpace(strings.SplitN(strings.TrimSpace(content), "\n", 2)[0])
	if first != "" && len(first) < 100 && !strings.HasSuffix(first, ".") {
		return truncateLabel(first)
	}
	return ""
}

func truncateLabel(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxLabelRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxLabelRunes]))
}
