package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkRunes   = 1200
	DefaultOverlapRunes = 150
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunk splits text into passages of at most size runes. Paragraphs are
// packed together while they fit; a paragraph longer than size is cut into
// windows that overlap by overlap runes.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkRunes
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range paragraphBreak.Split(normalizeNewlines(text), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)

		if n > size {
			flush()
			chunks = append(chunks, window(para, size, overlap)...)
			continue
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+2+n > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

func window(s string, size, overlap int) []string {
	r := []rune(s)
	var out []string
	for start := 0; start < len(r); start += size - overlap {
		end := min(start+size, len(r))
		if part := strings.TrimSpace(string(r[start:end])); part != "" {
			out = append(out, part)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
