package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"nextup/models"
	"nextup/services/identity"
	"nextup/services/shows"
)

type identityService interface {
	Current() models.Identity
	SignUp(name, email, pass string) (identity.SignInResult, error)
	SignIn(email, pass string) (identity.SignInResult, error)
	SignOut() models.Identity
}

var _ identityService = (*identity.Service)(nil)

type migrator interface {
	MergeOnSignIn(ctx context.Context, prev, next models.Identity) (int, error)
}

var _ migrator = (*shows.Service)(nil)

type IdentityHandler struct {
	Service identityService
	Shows   migrator
}

func NewIdentityHandler(service identityService, showsSvc migrator) *IdentityHandler {
	return &IdentityHandler{Service: service, Shows: showsSvc}
}

type identityResponse struct {
	Identity models.Identity `json:"identity"`
	Token    string          `json:"token,omitempty"`
	Carried  int             `json:"carried,omitempty"`
}

func (h *IdentityHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(identityResponse{Identity: h.Service.Current()})
}

func (h *IdentityHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.SignUp(body.Name, body.Email, body.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, identity.ErrEmailRequired),
			errors.Is(err, identity.ErrPasswordRequired),
			errors.Is(err, identity.ErrPasswordTooShort):
			status = http.StatusBadRequest
		case errors.Is(err, identity.ErrAccountExists):
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(h.finishSignIn(r, result))
}

func (h *IdentityHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.SignIn(body.Email, body.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, identity.ErrEmailRequired), errors.Is(err, identity.ErrPasswordRequired):
			status = http.StatusBadRequest
		case errors.Is(err, identity.ErrInvalidCredentials):
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.finishSignIn(r, result))
}

// finishSignIn carries a previous anonymous list over to the freshly
// signed-in account. Migration failures are logged, not surfaced; the
// sign-in itself already succeeded.
func (h *IdentityHandler) finishSignIn(r *http.Request, result identity.SignInResult) identityResponse {
	resp := identityResponse{Identity: result.Identity, Token: result.Token}
	if result.Previous == nil {
		return resp
	}

	carried, err := h.Shows.MergeOnSignIn(r.Context(), *result.Previous, result.Identity)
	if err != nil {
		log.Printf("[identity] list migration failed: %v", err)
		return resp
	}
	resp.Carried = carried
	return resp
}

func (h *IdentityHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id := h.Service.SignOut()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(identityResponse{Identity: id})
}

func (h *IdentityHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
