package market

import (
	"strings"
	"time"
)

type Fiat string

const (
	FiatARS Fiat = "ARS"
	FiatBOB Fiat = "BOB"
)

func (f Fiat) String() string {
	return string(f)
}

// Valid reports if the fiat is one of the supported legs
func (f Fiat) Valid() bool {
	return f == FiatARS || f == FiatBOB
}

type TradeType string

const (
	TradeTypeBUY  TradeType = "BUY"
	TradeTypeSELL TradeType = "SELL"
)

func (t TradeType) String() string {
	return string(t)
}

// Valid reports if the trade type is a known side
func (t TradeType) Valid() bool {
	return t == TradeTypeBUY || t == TradeTypeSELL
}

type Asset string

const (
	AssetUSDT Asset = "USDT"
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
)

func (a Asset) String() string {
	return string(a)
}

// Valid reports if the asset is admitted at the relay boundary.
// The panel itself only ever quotes USDT
func (a Asset) Valid() bool {
	return a == AssetUSDT || a == AssetBTC || a == AssetETH
}

// Pair is a single (fiat, side) quote combination
type Pair struct {
	Fiat      Fiat      `json:"fiat"`
	TradeType TradeType `json:"trade_type"`
}

func (p Pair) String() string {
	return p.Fiat.String() + "_" + p.TradeType.String()
}

// MarshalText encodes the pair as FIAT_SIDE, so it can key JSON maps
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a FIAT_SIDE pair key
func (p *Pair) UnmarshalText(text []byte) error {
	parsed, err := ParsePair(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}

// ParsePair parses a FIAT_SIDE pair key
func ParsePair(value string) (Pair, error) {
	fiat, tradeType, ok := strings.Cut(value, "_")
	if !ok {
		return Pair{}, ErrInvalidFiat
	}

	p := Pair{
		Fiat:      Fiat(fiat),
		TradeType: TradeType(tradeType),
	}

	if !p.Fiat.Valid() {
		return Pair{}, ErrInvalidFiat
	}

	if !p.TradeType.Valid() {
		return Pair{}, ErrInvalidTradeType
	}

	return p, nil
}

// Pairs returns the four canonical combinations a snapshot is built from
func Pairs() []Pair {
	return []Pair{
		{FiatARS, TradeTypeBUY},
		{FiatARS, TradeTypeSELL},
		{FiatBOB, TradeTypeBUY},
		{FiatBOB, TradeTypeSELL},
	}
}

// Advertisement is a single sanitized P2P quote.
// Instances are produced per fetch and discarded after aggregation
type Advertisement struct {
	Price           float64 `json:"price"`
	MonthOrderCount int     `json:"month_order_count"`
	MonthFinishRate float64 `json:"month_finish_rate"`
}

const (
	// DefaultRows is the default upstream row count
	DefaultRows = 15

	// MinRows and MaxRows bound the upstream row count
	MinRows = 1
	MaxRows = 20
)

// QuoteRequest is a validated upstream quote query
type QuoteRequest struct {
	Asset     Asset     `json:"asset"`
	Fiat      Fiat      `json:"fiat"`
	TradeType TradeType `json:"tradeType"`
	Rows      int       `json:"rows"`
}

// NewQuoteRequest validates the combination and clamps the row count
func NewQuoteRequest(asset Asset, fiat Fiat, tradeType TradeType, rows int) (*QuoteRequest, error) {
	if !asset.Valid() {
		return nil, ErrInvalidAsset
	}

	if !fiat.Valid() {
		return nil, ErrInvalidFiat
	}

	if !tradeType.Valid() {
		return nil, ErrInvalidTradeType
	}

	return &QuoteRequest{
		Asset:     asset,
		Fiat:      fiat,
		TradeType: tradeType,
		Rows:      ClampRows(rows),
	}, nil
}

// ClampRows bounds the row count to [MinRows, MaxRows],
// defaulting when unset
func ClampRows(rows int) int {
	if rows == 0 {
		return DefaultRows
	}

	if rows < MinRows {
		return MinRows
	}

	if rows > MaxRows {
		return MaxRows
	}

	return rows
}

// ReferencePrice is the aggregator's output for a single pair.
// It is never mutated after creation, only superseded
type ReferencePrice struct {
	ComputedAt time.Time `json:"computed_at"`
	Samples    []float64 `json:"samples"`
	Price      float64   `json:"price"`
}

// PriceSnapshot is the complete set of four reference prices.
// A snapshot is all-or-nothing: it is only published when every
// underlying pair produced a valid reference price
type PriceSnapshot struct {
	Rates     map[Pair]*ReferencePrice `json:"rates"`
	CreatedAt time.Time                `json:"created_at"`
	ID        string                   `json:"id"`
}

// Rate returns the reference price for the given pair, if present
func (s *PriceSnapshot) Rate(p Pair) *ReferencePrice {
	if s == nil {
		return nil
	}

	return s.Rates[p]
}

// Complete reports if all four pairs carry a usable price
func (s *PriceSnapshot) Complete() bool {
	if s == nil {
		return false
	}

	for _, pair := range Pairs() {
		rp := s.Rates[pair]
		if rp == nil || !ValidPrice(rp.Price) {
			return false
		}
	}

	return true
}

// Validate enforces the all-or-nothing snapshot invariant
func (s *PriceSnapshot) Validate() error {
	if !s.Complete() {
		return ErrInvalidResult
	}

	return nil
}

type Direction string

const (
	DirectionARSToBOB Direction = "ARS_BOB"
	DirectionBOBToARS Direction = "BOB_ARS"
)

func (d Direction) String() string {
	return string(d)
}

// Valid reports if the direction is a known conversion leg
func (d Direction) Valid() bool {
	return d == DirectionARSToBOB || d == DirectionBOBToARS
}

// Inputs are the user's persisted conversion inputs
type Inputs struct {
	Amount    string    `json:"amount"`
	Direction Direction `json:"direction"`
}
