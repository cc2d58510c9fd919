// Package server exposes the resolver, registry and registration services
// over a small JSON API. This is the boundary the (external) presentation
// layer calls; denial outcomes travel as booleans or a plain 404, never as
// errors that reveal whether an org exists.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgclaim/internal/auth"
	httpmiddleware "github.com/wolfeidau/orgclaim/internal/http"
	"github.com/wolfeidau/orgclaim/internal/identity"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/registry"
	"github.com/wolfeidau/orgclaim/internal/store"
	"golang.org/x/oauth2"
)

// Server wires the services to HTTP handlers.
type Server struct {
	resolver      *identity.Resolver
	registry      *registry.Registry
	registrations *registry.Registrations
	sessions      *auth.Sessions
}

// New creates the API server.
func New(resolver *identity.Resolver, reg *registry.Registry, regs *registry.Registrations, sessions *auth.Sessions) *Server {
	return &Server{
		resolver:      resolver,
		registry:      reg,
		registrations: regs,
		sessions:      sessions,
	}
}

// Handler builds the routed handler with CORS, client IP and request
// logging applied. Everything under /v1 except identity resolve requires a
// session.
func (s *Server) Handler(logger zerolog.Logger, corsOrigins []string) http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/orgs/{name}", s.handleFetchOrg)
	protected.HandleFunc("POST /v1/orgs/{name}/claim", s.handleClaim)
	protected.HandleFunc("POST /v1/orgs/{name}/grants", s.handleGrant)
	protected.HandleFunc("POST /v1/orgs/{name}/accept", s.handleAccept)
	protected.HandleFunc("GET /v1/orgs/{name}/registrations", s.handleFetchRegistrations)
	protected.HandleFunc("POST /v1/registrations", s.handleAddRegistration)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/identity/resolve", s.handleResolve)
	mux.Handle("/v1/orgs/", s.sessions.Middleware(protected))
	mux.Handle("/v1/registrations", s.sessions.Middleware(protected))

	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)
	handler = httpmiddleware.ClientIPMiddleware()(handler)
	handler = httpmiddleware.RequestLogMiddleware(logger)(handler)
	return handler
}

type resolveRequest struct {
	Provider     string `json:"provider"`
	ExternalID   string `json:"external_id"`
	DisplayName  string `json:"display_name"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type resolveResponse struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	AdminOf     []string `json:"admin_of,omitempty"`
	PendingOf   []string `json:"pending_of,omitempty"`
	MemberOf    []string `json:"member_of,omitempty"`
	Token       string   `json:"token"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile := identity.Profile{
		Provider:    req.Provider,
		ExternalID:  req.ExternalID,
		DisplayName: req.DisplayName,
	}
	if err := profile.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.resolver.Resolve(r.Context(), profile, &oauth2.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	token, err := s.sessions.Issue(user.UserID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		AdminOf:     user.AdminOf,
		PendingOf:   user.PendingOf,
		MemberOf:    user.MemberOf,
		Token:       token,
	})
}

type orgResponse struct {
	Name     string   `json:"name"`
	Admins   []string `json:"admins"`
	Pending  []string `json:"pending,omitempty"`
	Accepted []string `json:"accepted,omitempty"`
}

func orgView(org *models.Org) orgResponse {
	return orgResponse{
		Name:     org.Name,
		Admins:   org.Admins,
		Pending:  org.Pending,
		Accepted: org.Accepted,
	}
}

func (s *Server) handleFetchOrg(w http.ResponseWriter, r *http.Request) {
	org, err := s.registry.FetchOrg(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if org == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, orgView(org))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	name := r.PathValue("name")
	if err := models.ValidateOrgName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	org, err := s.registry.ClaimNewOrg(r.Context(), userID, name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orgView(org))
}

type grantRequest struct {
	GranteeID string `json:"grantee_id"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GranteeID == "" {
		http.Error(w, "grantee_id is required", http.StatusBadRequest)
		return
	}

	granted, err := s.registry.GrantExistingOrg(r.Context(), userID, req.GranteeID, r.PathValue("name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	accepted, err := s.registry.AcceptOrg(r.Context(), userID, r.PathValue("name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

type addRegistrationRequest struct {
	Org    string            `json:"org"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleAddRegistration(w http.ResponseWriter, r *http.Request) {
	var req addRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reg := &models.Registration{
		OrgName: req.Org,
		Name:    req.Name,
		Fields:  req.Fields,
	}
	if err := reg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.registrations.Add(r.Context(), reg)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"registration_id": id.String()})
}

type registrationResponse struct {
	RegistrationID string            `json:"registration_id"`
	Org            string            `json:"org"`
	Name           string            `json:"name"`
	Fields         map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleFetchRegistrations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	regs, visible, err := s.registrations.Fetch(r.Context(), userID, r.PathValue("name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// An unknown org and a denied caller look identical here.
	if !visible {
		http.NotFound(w, r)
		return
	}

	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, registrationResponse{
			RegistrationID: reg.RegistrationID.String(),
			Org:            reg.OrgName,
			Name:           reg.Name,
			Fields:         reg.Fields,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": out})
}

// writeDomainError maps service errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrContention):
		w.Header().Set("Retry-After", "1")
		http.Error(w, "temporary conflict, retry", http.StatusServiceUnavailable)
	case errors.Is(err, store.ErrOrgAlreadyClaimed):
		http.Error(w, "organization already claimed", http.StatusConflict)
	case errors.Is(err, store.ErrUnknownOrg):
		http.Error(w, "unknown organization", http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrUserNotFound):
		http.Error(w, "unknown user", http.StatusUnauthorized)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
