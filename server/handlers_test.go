package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/p2panel/market"
	"github.com/sig-0/p2panel/storage/mock"
)

type mockRefresher struct {
	refreshAllFn func(context.Context) (*market.PriceSnapshot, error)
	cooldownFn   func() time.Duration
}

func (m *mockRefresher) RefreshAll(ctx context.Context) (*market.PriceSnapshot, error) {
	if m.refreshAllFn != nil {
		return m.refreshAllFn(ctx)
	}

	return nil, nil
}

func (m *mockRefresher) Cooldown() time.Duration {
	if m.cooldownFn != nil {
		return m.cooldownFn()
	}

	return 0
}

type mockPrices struct {
	snapshot *market.PriceSnapshot
}

func (m *mockPrices) Snapshot() *market.PriceSnapshot {
	return m.snapshot
}

// completeSnapshot builds a snapshot with all four pairs priced
func completeSnapshot(t *testing.T) *market.PriceSnapshot {
	t.Helper()

	now := time.Now()

	rates := map[market.Pair]*market.ReferencePrice{
		{Fiat: market.FiatARS, TradeType: market.TradeTypeBUY}: {
			Price:      1000,
			Samples:    []float64{990, 1000, 1010},
			ComputedAt: now,
		},
		{Fiat: market.FiatARS, TradeType: market.TradeTypeSELL}: {
			Price:      990,
			Samples:    []float64{980, 990, 1000},
			ComputedAt: now,
		},
		{Fiat: market.FiatBOB, TradeType: market.TradeTypeBUY}: {
			Price:      7,
			Samples:    []float64{6.9, 7, 7.1},
			ComputedAt: now,
		},
		{Fiat: market.FiatBOB, TradeType: market.TradeTypeSELL}: {
			Price:      6.93,
			Samples:    []float64{6.9, 6.93, 7},
			ComputedAt: now,
		},
	}

	return &market.PriceSnapshot{
		ID:        "snapshot-1",
		Rates:     rates,
		CreatedAt: now,
	}
}

func TestHandlers_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("successful cycle", func(t *testing.T) {
		t.Parallel()

		snapshot := completeSnapshot(t)

		s := &Server{
			logger: noopLogger,
			refresher: &mockRefresher{
				refreshAllFn: func(_ context.Context) (*market.PriceSnapshot, error) {
					return snapshot, nil
				},
				cooldownFn: func() time.Duration {
					return 60 * time.Second
				},
			},
		}

		w := httptest.NewRecorder()
		s.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", http.NoBody))

		require.Equal(t, http.StatusOK, w.Code)

		var resp SnapshotResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.Equal(t, snapshot.ID, resp.Snapshot.ID)
		assert.Equal(t, 60, resp.CooldownSeconds)
		assert.Len(t, resp.Snapshot.Rates, 4)
	})

	t.Run("cycle already running", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			refresher: &mockRefresher{
				refreshAllFn: func(_ context.Context) (*market.PriceSnapshot, error) {
					return nil, market.ErrRefreshInProgress
				},
			},
		}

		w := httptest.NewRecorder()
		s.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", http.NoBody))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("cooldown active", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			refresher: &mockRefresher{
				refreshAllFn: func(_ context.Context) (*market.PriceSnapshot, error) {
					return nil, &market.RateLimitError{
						Remaining: 40 * time.Second,
					}
				},
			},
		}

		w := httptest.NewRecorder()
		s.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", http.NoBody))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "40", w.Header().Get("Retry-After"))
	})

	t.Run("upstream failure", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			name string
			err  error
		}{
			{
				"relay error",
				market.ErrUpstream,
			},
			{
				"no valid prices",
				market.ErrNoValidPrices,
			},
			{
				"aggregation failure",
				market.ErrAggregation,
			},
		}

		for _, testCase := range testTable {
			testCase := testCase

			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				s := &Server{
					logger: noopLogger,
					refresher: &mockRefresher{
						refreshAllFn: func(_ context.Context) (*market.PriceSnapshot, error) {
							return nil, testCase.err
						},
					},
				}

				w := httptest.NewRecorder()
				s.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", http.NoBody))

				assert.Equal(t, http.StatusBadGateway, w.Code)
			})
		}
	})

	t.Run("generic failure", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			refresher: &mockRefresher{
				refreshAllFn: func(_ context.Context) (*market.PriceSnapshot, error) {
					return nil, errors.New("boom")
				},
			},
		}

		w := httptest.NewRecorder()
		s.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", http.NoBody))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandlers_Snapshot(t *testing.T) {
	t.Parallel()

	t.Run("no snapshot published", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger:    noopLogger,
			refresher: &mockRefresher{},
			prices:    &mockPrices{},
		}

		w := httptest.NewRecorder()
		s.SnapshotState(w, httptest.NewRequest(http.MethodGet, "/api/snapshot", http.NoBody))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("published snapshot", func(t *testing.T) {
		t.Parallel()

		snapshot := completeSnapshot(t)

		s := &Server{
			logger: noopLogger,
			refresher: &mockRefresher{
				cooldownFn: func() time.Duration {
					return 15500 * time.Millisecond
				},
			},
			prices: &mockPrices{
				snapshot: snapshot,
			},
		}

		w := httptest.NewRecorder()
		s.SnapshotState(w, httptest.NewRequest(http.MethodGet, "/api/snapshot", http.NoBody))

		require.Equal(t, http.StatusOK, w.Code)

		var resp SnapshotResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.Equal(t, snapshot.ID, resp.Snapshot.ID)
		assert.Equal(t, 16, resp.CooldownSeconds) // rounded up
	})
}

func TestHandlers_ReferencePrices(t *testing.T) {
	t.Parallel()

	t.Run("no snapshot published", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			prices: &mockPrices{},
		}

		w := httptest.NewRecorder()
		s.ReferencePrices(w, httptest.NewRequest(http.MethodGet, "/api/reference-prices", http.NoBody))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("published samples", func(t *testing.T) {
		t.Parallel()

		snapshot := completeSnapshot(t)

		s := &Server{
			logger: noopLogger,
			prices: &mockPrices{
				snapshot: snapshot,
			},
		}

		w := httptest.NewRecorder()
		s.ReferencePrices(w, httptest.NewRequest(http.MethodGet, "/api/reference-prices", http.NoBody))

		require.Equal(t, http.StatusOK, w.Code)

		var resp ReferencePricesResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.Equal(t, snapshot.ID, resp.SnapshotID)
		require.Len(t, resp.Results, 4)

		arsBuy := resp.Results[market.Pair{
			Fiat:      market.FiatARS,
			TradeType: market.TradeTypeBUY,
		}]

		require.NotNil(t, arsBuy)
		assert.Equal(t, []float64{990, 1000, 1010}, arsBuy.Samples)
	})
}

func TestHandlers_Convert(t *testing.T) {
	t.Parallel()

	convertRequest := func(t *testing.T, body string) *http.Request {
		t.Helper()

		return httptest.NewRequest(
			http.MethodPost,
			"/api/convert",
			bytes.NewBufferString(body),
		)
	}

	t.Run("invalid requests", func(t *testing.T) {
		t.Parallel()

		testTable := []struct {
			name string
			body string
		}{
			{
				"malformed body",
				"{not json",
			},
			{
				"missing direction",
				`{"amount":"1000"}`,
			},
			{
				"unknown direction",
				`{"amount":"1000","direction":"USD_EUR"}`,
			},
			{
				"empty amount",
				`{"amount":"","direction":"ARS_BOB"}`,
			},
			{
				"negative amount",
				`{"amount":"-5","direction":"ARS_BOB"}`,
			},
		}

		for _, testCase := range testTable {
			testCase := testCase

			t.Run(testCase.name, func(t *testing.T) {
				t.Parallel()

				s := &Server{
					logger:  noopLogger,
					prices:  &mockPrices{},
					storage: &mock.Storage{},
				}

				w := httptest.NewRecorder()
				s.Convert(w, convertRequest(t, testCase.body))

				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})

	t.Run("no snapshot published", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger:  noopLogger,
			prices:  &mockPrices{},
			storage: &mock.Storage{},
		}

		w := httptest.NewRecorder()
		s.Convert(w, convertRequest(t, `{"amount":"1000","direction":"ARS_BOB"}`))

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("successful conversion", func(t *testing.T) {
		t.Parallel()

		var savedInputs *market.Inputs

		s := &Server{
			logger: noopLogger,
			prices: &mockPrices{
				snapshot: completeSnapshot(t),
			},
			storage: &mock.Storage{
				SaveInputsFn: func(_ context.Context, inputs *market.Inputs) error {
					savedInputs = inputs

					return nil
				},
			},
		}

		w := httptest.NewRecorder()
		s.Convert(w, convertRequest(t, `{"amount":"1.000","direction":"ARS_BOB"}`))

		require.Equal(t, http.StatusOK, w.Code)

		var resp ConvertResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		// 1000 ARS / 1000 (ARS buy) * 6.93 (BOB sell)
		assert.Equal(t, "6.93", resp.Result)
		assert.Equal(t, market.DirectionARSToBOB, resp.Direction)
		assert.Equal(t, "snapshot-1", resp.SnapshotID)

		// The inputs were remembered
		require.NotNil(t, savedInputs)
		assert.Equal(t, "1.000", savedInputs.Amount)
		assert.Equal(t, market.DirectionARSToBOB, savedInputs.Direction)
	})

	t.Run("inputs save failure is not fatal", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			prices: &mockPrices{
				snapshot: completeSnapshot(t),
			},
			storage: &mock.Storage{
				SaveInputsFn: func(_ context.Context, _ *market.Inputs) error {
					return errors.New("storage down")
				},
			},
		}

		w := httptest.NewRecorder()
		s.Convert(w, convertRequest(t, `{"amount":"14","direction":"BOB_ARS"}`))

		require.Equal(t, http.StatusOK, w.Code)

		var resp ConvertResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		// 14 BOB / 7 (BOB buy) * 990 (ARS sell)
		assert.Equal(t, "1980", resp.Result)
	})
}

func TestHandlers_Inputs(t *testing.T) {
	t.Parallel()

	t.Run("nothing persisted", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger:  noopLogger,
			storage: &mock.Storage{},
		}

		w := httptest.NewRecorder()
		s.Inputs(w, httptest.NewRequest(http.MethodGet, "/api/inputs", http.NoBody))

		require.Equal(t, http.StatusOK, w.Code)

		var resp InputsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		assert.Nil(t, resp.Inputs)
	})

	t.Run("storage error", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			storage: &mock.Storage{
				InputsFn: func(_ context.Context) (*market.Inputs, error) {
					return nil, errors.New("boom")
				},
			},
		}

		w := httptest.NewRecorder()
		s.Inputs(w, httptest.NewRequest(http.MethodGet, "/api/inputs", http.NoBody))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("persisted inputs", func(t *testing.T) {
		t.Parallel()

		s := &Server{
			logger: noopLogger,
			storage: &mock.Storage{
				InputsFn: func(_ context.Context) (*market.Inputs, error) {
					return &market.Inputs{
						Amount:    "10.000,50",
						Direction: market.DirectionBOBToARS,
					}, nil
				},
			},
		}

		w := httptest.NewRecorder()
		s.Inputs(w, httptest.NewRequest(http.MethodGet, "/api/inputs", http.NoBody))

		require.Equal(t, http.StatusOK, w.Code)

		var resp InputsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		require.NotNil(t, resp.Inputs)
		assert.Equal(t, "10.000,50", resp.Inputs.Amount)
		assert.Equal(t, market.DirectionBOBToARS, resp.Inputs.Direction)
	})
}
