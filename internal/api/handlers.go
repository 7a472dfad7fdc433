package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/maisondore/newsletter/internal/domain"
	"github.com/maisondore/newsletter/internal/pkg/httputil"
	"github.com/maisondore/newsletter/internal/pkg/logger"
	"github.com/maisondore/newsletter/internal/reconcile"
	"github.com/maisondore/newsletter/internal/service/subscription"
	"github.com/maisondore/newsletter/internal/token"
)

// Handlers holds the HTTP handlers for the newsletter API.
type Handlers struct {
	subs           *subscription.Service
	agg            *reconcile.Aggregator
	health         *HealthChecker
	production     bool
	requestTimeout time.Duration
}

// NewHandlers wires handlers over the subscription service and aggregator.
func NewHandlers(subs *subscription.Service, agg *reconcile.Aggregator, health *HealthChecker, production bool, requestTimeout time.Duration) *Handlers {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	return &Handlers{
		subs:           subs,
		agg:            agg,
		health:         health,
		production:     production,
		requestTimeout: requestTimeout,
	}
}

// fail sends a 500 response. The real error is logged; in production the
// client gets a generic message.
func (h *Handlers) fail(w http.ResponseWriter, err error, publicMsg string) {
	logger.Error("api: request failed", "error", err)
	if h.production {
		httputil.Error(w, http.StatusInternalServerError, publicMsg)
		return
	}
	httputil.Error(w, http.StatusInternalServerError, publicMsg+": "+err.Error())
}

type subscribeRequest struct {
	Email string `json:"email"`
}

// Subscribe handles POST /api/newsletter/subscribe.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.subs.Subscribe(r.Context(), req.Email, r.RemoteAddr, r.UserAgent())
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		httputil.BadRequest(w, "please provide a valid email address")
	case errors.Is(err, subscription.ErrAlreadySubscribed):
		httputil.BadRequest(w, "this email is already subscribed")
	case err != nil:
		h.fail(w, err, "could not record your subscription, please try again")
	default:
		httputil.Message(w, "almost there, check your inbox to confirm your subscription")
	}
}

type confirmRequest struct {
	Token string `json:"token"`
}

type confirmResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
}

// Confirm handles POST /api/newsletter/confirm and the GET variant used by
// links in confirmation emails.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if r.Method == http.MethodGet {
		req.Token = r.URL.Query().Get("token")
	} else if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.BadRequest(w, "missing confirmation token")
		return
	}

	email, err := h.subs.Confirm(r.Context(), req.Token)
	switch {
	case errors.Is(err, token.ErrInvalidOrExpired):
		httputil.BadRequest(w, "this confirmation link is invalid or has expired")
	case err != nil:
		h.fail(w, err, "could not confirm your subscription, please try again")
	default:
		httputil.OK(w, confirmResponse{Success: true, Email: email})
	}
}

type listResponse struct {
	Success      bool                    `json:"success"`
	Data         []domain.Subscriber     `json:"data"`
	Stats        reconcile.Stats         `json:"stats"`
	SourceErrors []reconcile.SourceError `json:"source_errors,omitempty"`
	Cached       bool                    `json:"cached,omitempty"`
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, opts reconcile.Options) {
	res, err := h.agg.List(r.Context(), opts)
	if err != nil {
		h.fail(w, err, "subscriber listing is temporarily unavailable")
		return
	}

	data := res.Subscribers
	if data == nil {
		data = []domain.Subscriber{}
	}
	httputil.OK(w, listResponse{
		Success:      true,
		Data:         data,
		Stats:        res.Stats,
		SourceErrors: res.SourceErrors,
		Cached:       res.Cached,
	})
}

// List handles GET /api/newsletter/list.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, reconcile.Options{
		Source:             reconcile.ParseSource(q.Get("source")),
		IncludeUnconfirmed: q.Get("confirmed") != "true",
		NoCache:            q.Get("nocache") == "true",
	})
}

// ListAll handles GET /api/newsletter/all: the full reconciliation view
// including unsubscribe annotations.
func (h *Handlers) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, reconcile.Options{
		IncludeUnconfirmed:  true,
		IncludeUnsubscribed: r.URL.Query().Get("include_unsubscribed") == "true",
		NoCache:             r.URL.Query().Get("nocache") == "true",
	})
}

type unsubscribeRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Unsubscribe handles POST /api/newsletter/unsubscribe. Idempotent.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	err := h.subs.Unsubscribe(r.Context(), req.Email, req.Reason)
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		httputil.BadRequest(w, "please provide a valid email address")
	case err != nil:
		h.fail(w, err, "could not process your unsubscribe request, please try again")
	default:
		httputil.Message(w, "you have been unsubscribed")
	}
}

type probeResponse struct {
	Exists bool `json:"exists"`
}

// UnsubscribeProbe handles GET /api/newsletter/unsubscribe?email=...; it
// reports whether the email is known to any source.
func (h *Handlers) UnsubscribeProbe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.BadRequest(w, "missing email parameter")
		return
	}
	httputil.OK(w, probeResponse{Exists: h.subs.Exists(r.Context(), email)})
}
