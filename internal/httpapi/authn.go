package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"mototumen.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticate requires a valid bearer token and attaches its principal.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err == nil && token == "" {
			// EventSource cannot set headers.
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
		}
		if err != nil || token == "" {
			if err == nil {
				err = errMissingToken
			}
			unauthorized(w, r, err.Error())
			return
		}
		principal, err := a.signer.ParseAndValidate(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

var errMissingToken = errors.New("missing bearer token")

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="mototumen"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// extractBearerToken returns "" without error when the header is absent.
func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
