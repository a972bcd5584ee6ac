package server

import (
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/lawnchairsociety/combatsim/internal/logger"
)

// HashToken returns the bcrypt hash to store in api.token_hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireToken guards a handler with the configured API token. Without a
// configured hash every request passes.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := s.cfg.API.TokenHash
		if hash == "" {
			next(w, r)
			return
		}

		ip := getRealIP(r)
		if locked, remaining := s.authLimiter.IsLocked(ip); locked {
			w.Header().Set("Retry-After", strconv.Itoa(int(remaining.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}

		token, ok := bearerToken(r)
		if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			logger.Info("Failed API authentication",
				"ip", ip,
				"path", r.URL.Path,
				"event", "auth_failed")
			if locked, duration := s.authLimiter.RecordFailure(ip); locked {
				logger.Warning("IP rate limited after failed authentication",
					"ip", ip,
					"lockout_seconds", int(duration.Seconds()),
					"event", "auth_ratelimit")
				w.Header().Set("Retry-After", strconv.Itoa(int(duration.Seconds())))
				writeError(w, http.StatusTooManyRequests, "too many failed attempts")
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="combatsim"`)
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		s.authLimiter.RecordSuccess(ip)
		next(w, r)
	}
}
