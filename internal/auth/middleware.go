package auth

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sha1n/mcp-bookworm-server/internal/config"
)

// excludedPaths bypass authentication so probes need no credentials
var excludedPaths = map[string]bool{
	"/health": true,
}

func isExcludedPath(path string) bool {
	return excludedPaths[path]
}

// checker reports whether a request carries valid credentials.
type checker func(r *http.Request) bool

// NewMiddleware creates the authentication middleware for settings. Basic
// auth challenges the client; API keys are read from X-API-Key or an
// Authorization bearer token.
func NewMiddleware(settings config.AuthSettings) (func(http.Handler) http.Handler, error) {
	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler { return next }, nil
	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return guard(basicChecker(settings.Basic), `Basic realm="bookworm-mcp"`), nil
	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return guard(apiKeyChecker(settings.APIKeys), ""), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// guard rejects requests failing check, except on excluded paths.
func guard(check checker, challenge string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcludedPath(r.URL.Path) || check(r) {
				next.ServeHTTP(w, r)
				return
			}
			slog.WarnContext(r.Context(), "Rejected unauthenticated request",
				"path", r.URL.Path, "remote_addr", r.RemoteAddr)
			if challenge != "" {
				w.Header().Set("WWW-Authenticate", challenge)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func basicChecker(settings config.BasicAuthSettings) checker {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		userMatch := equal(user, settings.Username)
		passMatch := equal(pass, settings.Password)
		return ok && userMatch && passMatch
	}
}

func apiKeyChecker(apiKeys []string) checker {
	return func(r *http.Request) bool {
		key := requestAPIKey(r)
		if key == "" {
			return false
		}
		valid := false
		for _, k := range apiKeys {
			if equal(key, k) {
				valid = true
			}
		}
		return valid
	}
}

// requestAPIKey returns the X-API-Key header, falling back to a bearer token.
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
