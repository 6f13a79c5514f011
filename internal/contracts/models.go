package contracts

import (
	"time"

	"github.com/ksred/optix-api/internal/types"
)

// InitializeRequest is the payload for listing a new contract. The seller is
// taken from the caller's token, never from the body.
type InitializeRequest struct {
	Kind           uint8  `json:"kind"`
	Underlying     string `json:"underlying" binding:"required"`
	InitiationDate int64  `json:"initiation_date" binding:"required"`
	Premium        uint64 `json:"premium"`
	Strike         uint64 `json:"strike"`
	InitialMargin  uint64 `json:"initial_margin"`
	IsTest         bool   `json:"is_test"`
}

// ResellRequest names the incoming buyer and the agreed price.
type ResellRequest struct {
	ResellPrice uint64 `json:"resell_price"`
	NewBuyer    string `json:"new_buyer" binding:"required"`
}

// ExerciseRequest carries the two price observations. When both are zero the
// service falls back to the configured price feed.
type ExerciseRequest struct {
	AssetPrice     uint64 `json:"asset_price"`
	ReferencePrice uint64 `json:"reference_price"`
}

// ExerciseResponse reports the terminal settlement. The payoff is
// informational: daily settlement has already moved all margin it is going
// to move.
type ExerciseResponse struct {
	Contract   *types.OptionContract `json:"contract"`
	FinalRatio uint64                `json:"final_ratio"`
	Payoff     uint64                `json:"payoff"`
	Timestamp  time.Time             `json:"timestamp"`
}
