package server

import "github.com/sig-0/p2panel/market"

// SnapshotResponse carries the published snapshot alongside the
// remaining refresh cooldown, so clients can drive a countdown
type SnapshotResponse struct {
	Snapshot        *market.PriceSnapshot `json:"snapshot"`
	CooldownSeconds int                   `json:"cooldown_seconds"`
}

// ReferencePricesResponse maps each (fiat, side) pair to its last
// computed reference price and the samples behind it
type ReferencePricesResponse struct {
	Results    map[market.Pair]*market.ReferencePrice `json:"results"`
	SnapshotID string                                 `json:"snapshot_id"`
}

// ConvertRequest is the calculator input. The amount is the
// human-formatted string the panel collects ("10.000,50"):
// dots are thousands separators, the comma is the decimal mark
type ConvertRequest struct {
	Amount    string           `json:"amount"`
	Direction market.Direction `json:"direction"`
}

// ConvertResponse is the calculator output. The result is a decimal
// string to keep the money math exact on the wire
type ConvertResponse struct {
	Result     string           `json:"result"`
	Direction  market.Direction `json:"direction"`
	SnapshotID string           `json:"snapshot_id"`
}

type InputsResponse struct {
	Inputs *market.Inputs `json:"inputs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
