package api

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestBearerAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := BearerAuth([]string{"old-token", "new-token"})(ok)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic new-token", http.StatusUnauthorized},
		{"empty credential", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer other", http.StatusUnauthorized},
		{"new token", "Bearer new-token", http.StatusNoContent},
		{"old token", "Bearer old-token", http.StatusNoContent},
		{"lowercase scheme", "bearer new-token", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	h := BearerAuth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestParseTokens(t *testing.T) {
	got := ParseTokens(" a , ,b,")
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTokens = %v, want %v", got, want)
	}
	if got := ParseTokens(""); got != nil {
		t.Errorf("ParseTokens(\"\") = %v, want nil", got)
	}
}
