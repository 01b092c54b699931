package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	errNoToken     = errors.New("missing bearer token")
	errBadScheme   = errors.New("authorization scheme must be Bearer")
	errWrongToken  = errors.New("invalid status token")
	errEmptyBearer = errors.New("empty bearer token")
)

// tokenMatches compares in constant time. An unset expected token never matches.
func tokenMatches(provided, expected string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// requestToken reads the token from "Authorization: Bearer <t>", falling
// back to ?token= so browser EventSource clients, which cannot set headers,
// can open /events.
func requestToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
			return t, nil
		}
		return "", errNoToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyBearer
	}
	return token, nil
}

// authMiddleware rejects requests whose token differs from status.token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := requestToken(r)
		if err == nil && !tokenMatches(token, s.config.Token) {
			err = errWrongToken
		}
		if err != nil {
			s.logger.Debug("status request rejected", "path", r.URL.Path, "reason", err.Error())
			w.Header().Set("WWW-Authenticate", `Bearer realm="uploader"`)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
