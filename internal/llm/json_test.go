package llm

import "testing"

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare object", `{"tone":"neutral"}`, "neutral", false},
		{"fenced json", "```json\n{\"tone\":\"positive\"}\n```", "positive", false},
		{"fenced plain", "```\n{\"tone\":\"negative\"}\n```", "negative", false},
		{"prose around", `Here you go: {"tone":"frustrated"} hope that helps`, "frustrated", false},
		{"no object", "I cannot answer that", "", true},
		{"broken object", `{"tone": }`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Tone string `json:"tone"`
			}
			err := DecodeJSON(tt.input, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if v.Tone != tt.want {
				t.Errorf("tone = %q, want %q", v.Tone, tt.want)
			}
		})
	}
}
