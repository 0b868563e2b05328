package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSectionLabel(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		content string
		want    string
	}{
		{"explicit source", "Warranty Terms", "anything", "Warranty Terms"},
		{"pdf source ignored", "policy.pdf", "3.2.-Deadlines for claims: Claims must be filed", "3.2.-Deadlines for claims"},
		{"numbered heading", "", "4. Validation of Contract Number: the number must match", "4. Validation of Contract Number"},
		{"first line heading", "", "Return shipping\nCustomers pay for returns.", "Return shipping"},
		{"sentence first line", "", "customers must keep receipts.", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SectionLabel(tt.source, tt.content); got != tt.want {
				t.Errorf("SectionLabel(%q, %q) = %q, want %q", tt.source, tt.content, got, tt.want)
			}
		})
	}
}

func TestSectionLabelTruncates(t *testing.T) {
	long := strings.Repeat("Sección ", 30)
	got := SectionLabel(long, "")
	if n := utf8.RuneCountInString(got); n > MaxLabelRunes {
		t.Errorf("label has %d runes, want <= %d", n, MaxLabelRunes)
	}
}
