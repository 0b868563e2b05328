package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth admits requests presenting any of tokens. Several tokens
// let an old token keep working while clients move to a new one. With no
// tokens the middleware is a no-op.
func BearerAuth(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(tokens) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validBearer(r.Header.Get("Authorization"), tokens) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="claimcheck"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", nil, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header string, tokens []string) bool {
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	cred = strings.TrimSpace(cred)
	if cred == "" {
		return false
	}

	// Compare against every token so timing does not reveal which matched.
	match := 0
	for _, t := range tokens {
		match |= subtle.ConstantTimeCompare([]byte(cred), []byte(t))
	}
	return match == 1
}

// ParseTokens splits a comma-separated token list, dropping blanks.
func ParseTokens(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
