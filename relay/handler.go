package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sig-0/p2panel/market"
)

var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// proxyRequest is the allow-listed relay request body
type proxyRequest struct {
	Asset     string `json:"asset"`
	Fiat      string `json:"fiat"`
	TradeType string `json:"tradeType"`
	Rows      int    `json:"rows"`
}

// Handler is the stateless proxy relay in front of the quote source.
// It validates a bounded set of parameters and mirrors the raw
// upstream payload back to the caller
type Handler struct {
	client         *Client
	logger         *slog.Logger
	allowedOrigins []string
}

// NewHandler creates a new relay handler
func NewHandler(client *Client, opts ...HandlerOption) *Handler {
	h := &Handler{
		client: client,
		logger: noopLogger,
	}

	// Apply the options
	for _, opt := range opts {
		opt(h)
	}

	return h
}

type HandlerOption func(h *Handler)

// WithHandlerLogger specifies the logger for the relay handler
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithAllowedOrigins specifies the origins whose value is reflected
// in the CORS response headers. Unknown origins receive a wildcard
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handler) {
		h.allowedOrigins = origins
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w, r)

	// CORS preflight carries no body
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)

		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")

		return
	}

	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required parameters")

		return
	}

	if req.Asset == "" || req.Fiat == "" || req.TradeType == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters")

		return
	}

	if !market.Asset(req.Asset).Valid() {
		writeError(w, http.StatusBadRequest, "Invalid asset")

		return
	}

	if !market.Fiat(req.Fiat).Valid() {
		writeError(w, http.StatusBadRequest, "Invalid fiat currency")

		return
	}

	if !market.TradeType(req.TradeType).Valid() {
		writeError(w, http.StatusBadRequest, "Invalid trade type")

		return
	}

	q, err := market.NewQuoteRequest(
		market.Asset(req.Asset),
		market.Fiat(req.Fiat),
		market.TradeType(req.TradeType),
		req.Rows,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	raw, err := h.client.SearchRaw(r.Context(), q)
	if err != nil {
		h.writeUpstreamError(w, err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, s-maxage=60, stale-while-revalidate=30")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(raw) //nolint:errcheck // Fine to ignore
}

// writeUpstreamError maps upstream failures to relay responses
func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	var upstreamErr *UpstreamError

	if errors.As(err, &upstreamErr) {
		// Mirror the upstream status code with a generic body
		h.logger.Warn(
			"upstream returned non-OK status",
			"status", upstreamErr.StatusCode,
		)

		writeError(
			w,
			upstreamErr.StatusCode,
			"Binance API error: "+strconv.Itoa(upstreamErr.StatusCode),
		)

		return
	}

	h.logger.Error(
		"relay request failed",
		"err", err,
	)

	writeError(w, http.StatusInternalServerError, "Invalid response format from Binance")
}

// setCORSHeaders applies the relay origin policy: reflect the caller's
// origin when it is a known development or deployment host, else allow any
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}

	allowed := "*"
	if origin != "" && h.originAllowed(origin) {
		allowed = origin
	}

	w.Header().Set("Access-Control-Allow-Origin", allowed)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Handler) originAllowed(origin string) bool {
	// Local development hosts are always recognized
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		return true
	}

	for _, known := range h.allowedOrigins {
		if known != "" && strings.Contains(origin, known) {
			return true
		}
	}

	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	//nolint:errcheck // Fine to ignore
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
