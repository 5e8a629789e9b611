package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"user-platform/shared/authx"
	"user-platform/shared/contracts"
	"user-platform/shared/httpx"
	"user-platform/shared/logx"
	"user-platform/shared/rpcx"
)

const maxBodyBytes = 1 << 20

// Users translates the public HTTP surface into RPC calls against the user
// service. The gateway holds no user state; every route is a thin send.
type Users struct {
	registry *rpcx.Registry
	logger   logx.Logger
}

func NewUsers(registry *rpcx.Registry, logger logx.Logger) *Users {
	return &Users{registry: registry, logger: logger}
}

// Register mounts the public routes. The protected wrapper is applied by the
// caller so route policy stays visible in main.
func (h *Users) Register(mux *http.ServeMux, protected func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /v1/users", h.register)
	mux.HandleFunc("POST /v1/auth/login", h.login)
	mux.Handle("GET /v1/users/{id}", protected(http.HandlerFunc(h.getByID)))
	mux.Handle("DELETE /v1/users/{id}", protected(http.HandlerFunc(h.deleteByID)))
	mux.Handle("GET /v1/users/email/{email}", protected(http.HandlerFunc(h.findByEmail)))
}

func (h *Users) register(w http.ResponseWriter, r *http.Request) {
	var in contracts.RegisterUserInput
	if err := decodeBody(r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "Bad Request")
		return
	}

	user, err := rpcx.Send[contracts.UserResponse](r.Context(), h.registry, contracts.UserService, contracts.PatternCreateUser, in, h.metadata(r))
	if err != nil {
		httpx.WriteTranslated(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Users) login(w http.ResponseWriter, r *http.Request) {
	var in contracts.LoginInput
	if err := decodeBody(r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), "Bad Request")
		return
	}

	tokens, err := rpcx.Send[contracts.AuthTokens](r.Context(), h.registry, contracts.UserService, contracts.PatternLoginUser, in, h.metadata(r))
	if err != nil {
		httpx.WriteTranslated(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Users) getByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	user, err := rpcx.Send[contracts.UserResponse](r.Context(), h.registry, contracts.UserService, contracts.PatternGetUserByID, id, h.metadata(r))
	if err != nil {
		httpx.WriteTranslated(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Users) findByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PathValue("email"))
	user, err := rpcx.Send[contracts.UserResponse](r.Context(), h.registry, contracts.UserService, contracts.PatternFindUserByEmail, email, h.metadata(r))
	if err != nil {
		httpx.WriteTranslated(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Users) deleteByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if _, err := rpcx.Send[json.RawMessage](r.Context(), h.registry, contracts.UserService, contracts.PatternDeleteUser, id, h.metadata(r)); err != nil {
		httpx.WriteTranslated(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// metadata builds the envelope metadata for a request: the caller's subject
// when authenticated, and the raw credential for the downstream identity
// gate.
func (h *Users) metadata(r *http.Request) rpcx.Metadata {
	meta := rpcx.Metadata{}
	if id, ok := authx.FromContext(r.Context()); ok {
		meta[contracts.MetadataRequestUserID] = id.Subject
	}
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		meta[contracts.MetadataAuthorization] = auth
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}
