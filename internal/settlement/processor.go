package settlement

import (
	"context"
	"time"

	"github.com/ksred/optix-api/internal/types"
	"github.com/rs/zerolog/log"
)

// Processor is the background keeper. It periodically sweeps owned
// contracts due for their daily settlement and marks past-expiry contracts,
// doing in-process exactly what any external keeper could do through the
// internal endpoints.
type Processor struct {
	service    *Service
	expirer    Expirer
	sweepDelay time.Duration
}

// Expirer marks a past-expiry contract. Satisfied by the contracts service.
type Expirer interface {
	Expire(contractID string) (*types.OptionContract, error)
}

func NewProcessor(service *Service, expirer Expirer) *Processor {
	return &Processor{
		service:    service,
		expirer:    expirer,
		sweepDelay: 5 * time.Minute,
	}
}

// Start begins the settlement sweep loop.
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().Dur("sweep_delay", p.sweepDelay).Msg("starting settlement processor")

	ticker := time.NewTicker(p.sweepDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			if err := p.sweep(); err != nil {
				logger.Error().Err(err).Msg("settlement sweep failed")
			}
		}
	}
}

func (p *Processor) sweep() error {
	logger := log.With().Str("component", "settlement_processor").Logger()
	now := time.Now()

	due, err := p.service.GetDB().GetContractsDueForSettlement(now)
	if err != nil {
		return err
	}

	logger.Info().Int("due_count", len(due)).Msg("sweeping contracts due for settlement")

	for _, rec := range due {
		// Prices come from the feed; a failed contract does not stop the sweep.
		if _, err := p.service.SettleContract(rec.ContractID, nil); err != nil {
			logger.Error().
				Err(err).
				Str("contract_id", rec.ContractID).
				Msg("failed to settle contract")
		}
	}

	past, err := p.service.GetDB().GetPastExpiryContracts(now)
	if err != nil {
		return err
	}

	for _, rec := range past {
		if _, err := p.expirer.Expire(rec.ContractID); err != nil {
			logger.Error().
				Err(err).
				Str("contract_id", rec.ContractID).
				Msg("failed to expire contract")
		}
	}

	return nil
}
