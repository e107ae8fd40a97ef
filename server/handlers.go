package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sig-0/p2panel/convert"
	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage"
)

var (
	errRefreshInProgress   = errors.New("refresh already in progress")
	errRefreshFailed       = errors.New("unable to refresh prices")
	errUpstreamUnavailable = errors.New("upstream quote source unavailable")
	errRefreshRequired     = errors.New("refresh required")

	errInvalidBody      = errors.New("invalid request body")
	errInvalidDirection = errors.New("invalid conversion direction")
	errInvalidAmount    = errors.New("invalid amount")
	errConversionFailed = errors.New("unable to convert amount")

	errInputsUnavailable = errors.New("unable to fetch inputs")
)

// Refresh runs a full acquisition cycle. The request itself is the
// user action that arms the fetch gate
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.refresher.RefreshAll(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, &SnapshotResponse{
			Snapshot:        snapshot,
			CooldownSeconds: cooldownSeconds(s.refresher.Cooldown()),
		})

		return
	}

	var rateLimitErr *market.RateLimitError

	switch {
	case errors.Is(err, market.ErrRefreshInProgress):
		writeError(w, http.StatusTooManyRequests, errRefreshInProgress)
	case errors.As(err, &rateLimitErr):
		w.Header().Set(
			"Retry-After",
			strconv.Itoa(rateLimitErr.RemainingSeconds()),
		)

		writeError(w, http.StatusTooManyRequests, rateLimitErr)
	case errors.Is(err, market.ErrUpstream),
		errors.Is(err, market.ErrNoValidPrices),
		errors.Is(err, market.ErrAggregation):
		s.logger.Debug(
			"refresh cycle failed upstream",
			"err", err,
		)

		writeError(w, http.StatusBadGateway, errUpstreamUnavailable)
	default:
		s.logger.Debug(
			"refresh cycle failed",
			"err", err,
		)

		writeError(w, http.StatusInternalServerError, errRefreshFailed)
	}
}

// SnapshotState returns the published snapshot. Cache-first,
// it never triggers a fetch
func (s *Server) SnapshotState(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.prices.Snapshot()
	if snapshot == nil {
		writeError(w, http.StatusConflict, errRefreshRequired)

		return
	}

	writeJSON(w, http.StatusOK, &SnapshotResponse{
		Snapshot:        snapshot,
		CooldownSeconds: cooldownSeconds(s.refresher.Cooldown()),
	})
}

// ReferencePrices returns the per-pair sample lists behind the
// published snapshot
func (s *Server) ReferencePrices(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.prices.Snapshot()
	if snapshot == nil {
		writeError(w, http.StatusConflict, errRefreshRequired)

		return
	}

	writeJSON(w, http.StatusOK, &ReferencePricesResponse{
		Results:    snapshot.Rates,
		SnapshotID: snapshot.ID,
	})
}

// Convert maps an amount across the published snapshot
func (s *Server) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody)

		return
	}

	if !req.Direction.Valid() {
		writeError(w, http.StatusBadRequest, errInvalidDirection)

		return
	}

	amount, err := convert.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, errInvalidAmount)

		return
	}

	snapshot := s.prices.Snapshot()

	result, err := convert.Convert(amount, req.Direction, snapshot)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, errInvalidAmount)
		case errors.Is(err, market.ErrNoData):
			writeError(w, http.StatusConflict, errRefreshRequired)
		default:
			s.logger.Debug(
				"conversion failed",
				"err", err,
			)

			writeError(w, http.StatusInternalServerError, errConversionFailed)
		}

		return
	}

	// Remember the inputs, best effort
	if saveErr := s.storage.SaveInputs(r.Context(), &market.Inputs{
		Amount:    req.Amount,
		Direction: req.Direction,
	}); saveErr != nil {
		s.logger.Debug(
			"unable to save inputs",
			"err", saveErr,
		)
	}

	writeJSON(w, http.StatusOK, &ConvertResponse{
		Result:     result.String(),
		Direction:  req.Direction,
		SnapshotID: snapshot.ID,
	})
}

// Inputs returns the last persisted conversion inputs
func (s *Server) Inputs(w http.ResponseWriter, r *http.Request) {
	inputs, err := s.storage.Inputs(r.Context())

	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		inputs = nil
	default:
		s.logger.Debug(
			"unable to fetch inputs",
			"err", err,
		)

		writeError(w, http.StatusInternalServerError, errInputsUnavailable)

		return
	}

	writeJSON(w, http.StatusOK, &InputsResponse{
		Inputs: inputs,
	})
}

func cooldownSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}

	return int(math.Ceil(remaining.Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Fine to ignore
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := &ErrorResponse{
		Error: err.Error(),
	}

	writeJSON(w, status, resp)
}
