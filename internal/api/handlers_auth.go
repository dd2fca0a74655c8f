package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/banshee-data/airspace.report/internal/auth"
	"github.com/banshee-data/airspace.report/internal/db"
)

type claimsContextKey struct{}

// claimsFrom returns the verified session claims attached by requireAuth.
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims
}

// bearerToken extracts the session token from the Authorization header, or
// from the "token" query parameter as a fallback for WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// requireAuth verifies the session token and attaches its claims.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeJSONError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			s.writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole verifies the session and checks the operator role.
func (s *Server) requireRole(role string, next http.Handler) http.Handler {
	return s.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := claimsFrom(r.Context()); claims == nil || claims.Role != role {
			s.writeJSONError(w, http.StatusForbidden, "insufficient privileges")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type sessionResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		s.writeJSONError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if req.Role != "" && req.Role != "admin" && req.Role != "analyst" {
		s.writeJSONError(w, http.StatusBadRequest, "role must be admin or analyst")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to process credentials")
		return
	}

	op, err := s.db.CreateOperator(r.Context(), req.Email, hash, req.Role, time.Now())
	if errors.Is(err, db.ErrConflict) {
		s.writeJSONError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to create operator")
		return
	}

	s.writeJSON(w, http.StatusCreated, op)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op, err := s.db.GetOperatorByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		s.writeJSONError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err := auth.CheckPassword(op.PasswordHash, req.Password); err != nil {
		s.writeJSONError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := s.tokens.Issue(op.Email, op.Role, time.Now())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{Token: token, Email: op.Email, Role: op.Role})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	op, err := s.db.GetOperatorByEmail(r.Context(), claims.Email)
	if err != nil {
		s.writeJSONError(w, http.StatusUnauthorized, "operator no longer exists")
		return
	}
	s.writeJSON(w, http.StatusOK, op)
}
