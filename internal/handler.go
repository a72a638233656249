package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler is our HTTP handler. It handles muxing, response headers, etc. and
// offloads work to the controller.
type Handler struct {
	ctrl *Controller
}

// NewHandler creates a new handler.
func NewHandler(ctrl *Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// NewMux registers a handler's routes on a new router.
func NewMux(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	// Storefronts call us directly from the browser.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.HandleFunc("/api/product-reviews", h.getReviews)
	r.Get("/", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// getReviews handles /api/product-reviews for any method.
//
// A single product is requested with ?shopifyId=, several with
// ?ids=a,b,c or a JSON body of {"ids": [...]}.
func (h *Handler) getReviews(w http.ResponseWriter, r *http.Request) {
	ids, err := identifiersFrom(r)
	if err != nil {
		h.error(w, err)
		return
	}

	out, ttl, err := h.ctrl.GetReviewsWithTTL(r.Context(), ids)
	if err != nil {
		h.error(w, err)
		return
	}

	cacheFor(w, ttl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"message":"rrjudge is running"}` + "\n"))
}

// identifiersFrom normalizes the identifiers a request asks for. ?shopifyId=
// wins over ?ids=, and either wins over the body.
func identifiersFrom(r *http.Request) (IdentifierSet, error) {
	q := r.URL.Query()

	if single := strings.TrimSpace(q.Get("shopifyId")); single != "" {
		return IdentifierSet{single}, nil
	}

	if multi := q["ids"]; len(multi) > 0 {
		ids := NewIdentifierSet(strings.Split(strings.Join(multi, ","), ",")...)
		if len(ids) > 0 {
			return ids, nil
		}
	}

	if r.Body == nil {
		return nil, errMissingIDs
	}

	var body struct {
		IDs []flexibleID `json:"ids"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return nil, errMissingIDs
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("invalid request body: %w", err), errBadRequest)
	}

	raw := make([]string, 0, len(body.IDs))
	for _, id := range body.IDs {
		raw = append(raw, string(id))
	}
	ids := NewIdentifierSet(raw...)
	if len(ids) == 0 {
		return nil, errMissingIDs
	}

	return ids, nil
}

// flexibleID accepts identifiers as JSON strings or numbers, since Shopify
// IDs are routinely sent either way.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number id, got %s", b)
	}
	*f = flexibleID(n.String())
	return nil
}

// cacheFor sets cache response headers so CDNs and browsers hold on to the
// response for as long as we do. d is the time our copy has left.
func cacheFor(w http.ResponseWriter, d time.Duration) {
	w.Header().Add("Cache-Control", fmt.Sprintf("public, max-age=%d", int(d.Seconds())))
	w.Header().Add("Vary", "Origin")
	w.Header().Add("Content-Type", "application/json")
}

// error writes a fault envelope. The status code defaults to 500 unless the
// error wraps a statusErr.
func (*Handler) error(w http.ResponseWriter, err error) {
	status := statusOf(err)

	resp := faultResource{Error: "Failed to fetch product reviews", Details: err.Error()}
	switch {
	case errors.Is(err, errMissingIDs):
		resp = faultResource{Error: "Missing ?shopifyId= or ?ids= query parameter"}
	case status == http.StatusBadRequest:
		resp = faultResource{Error: "Invalid request", Details: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
