package settlement

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/optix-api/internal/contracts"
	"github.com/ksred/optix-api/internal/pricing"
	"github.com/ksred/optix-api/internal/types"
	"github.com/ksred/optix-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service runs daily mark-to-market settlement. Settlement is
// permissionless: any caller may trigger it, and the stored settlement
// timestamp is the only rate limit.
type Service struct {
	db   *Database
	feed pricing.Feed
}

func NewService(gormDB *gorm.DB, feed pricing.Feed) *Service {
	return &Service{
		db:   NewDatabase(gormDB),
		feed: feed,
	}
}

// SettlementResponse reports one completed settlement pass.
type SettlementResponse struct {
	SettlementID string                `json:"settlement_id"`
	ContractID   string                `json:"contract_id"`
	Trigger      string                `json:"trigger"`
	Outcome      *Outcome              `json:"outcome"`
	Contract     *types.OptionContract `json:"contract"`
	Timestamp    time.Time             `json:"timestamp"`
}

// SettleContract applies one daily settlement to the contract. A nil
// observation means the configured feed supplies both prices; pinned
// observations are used verbatim. The record mutation and the history row
// commit together or not at all.
func (s *Service) SettleContract(contractID string, obs *pricing.Observation) (*SettlementResponse, error) {
	logger := log.With().
		Str("contract_id", contractID).
		Str("service", "settlement").
		Logger()

	logger.Info().Msg("starting daily settlement")

	var resp *SettlementResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := contracts.GetContractTx(tx, contractID)
		if err != nil {
			return err
		}

		var assetPrice, refPrice uint64
		if obs != nil {
			assetPrice, refPrice = obs.AssetPrice, obs.ReferencePrice
		} else {
			ctx, cancel := pricing.FetchContext()
			defer cancel()

			assetPrice, err = s.feed.AssetPrice(ctx, rec.Underlying)
			if err != nil {
				return err
			}
			refPrice, err = s.feed.ReferencePrice(ctx)
			if err != nil {
				return err
			}
		}

		outcome, err := Apply(rec, time.Now(), assetPrice, refPrice)
		if err != nil {
			return err
		}

		if err := contracts.SaveContractTx(tx, rec); err != nil {
			return err
		}

		trigger := types.TriggerDaily
		if outcome.MarginCalled {
			trigger = types.TriggerMarginCall
		}

		snapshot, err := types.MarshalRecord(rec)
		if err != nil {
			return err
		}
		record := &types.SettlementRecord{
			SettlementID:   "STL_" + uuid.New().String(),
			ContractID:     rec.ContractID,
			Trigger:        trigger,
			CurrentRatio:   outcome.CurrentRatio,
			ReferenceRatio: outcome.ReferenceRatio,
			BuyerGain:      outcome.BuyerGain,
			SellerGain:     outcome.SellerGain,
			Transferred:    outcome.Transferred,
			SellerMargin:   rec.SellerMargin,
			BuyerMargin:    rec.BuyerMargin,
			Snapshot:       snapshot,
			CreatedAt:      time.Now(),
		}
		if err := s.db.CreateSettlementRecord(tx, record); err != nil {
			return err
		}

		resp = &SettlementResponse{
			SettlementID: record.SettlementID,
			ContractID:   rec.ContractID,
			Trigger:      trigger,
			Outcome:      outcome,
			Contract:     rec,
			Timestamp:    time.Now(),
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("daily settlement failed")
		return nil, err
	}

	logger.Info().
		Str("settlement_id", resp.SettlementID).
		Str("trigger", resp.Trigger).
		Uint64("current_ratio", resp.Outcome.CurrentRatio).
		Uint64("reference_ratio", resp.Outcome.ReferenceRatio).
		Uint64("transferred", resp.Outcome.Transferred).
		Uint64("seller_margin", resp.Contract.SellerMargin).
		Uint64("buyer_margin", resp.Contract.BuyerMargin).
		Bool("margin_called", resp.Outcome.MarginCalled).
		Msg("daily settlement completed")

	return resp, nil
}

// GetSettlement retrieves a settlement record by ID.
func (s *Service) GetSettlement(settlementID string) (*types.SettlementRecord, error) {
	return s.db.GetSettlementRecord(settlementID)
}

// GetDB exposes the settlement store for the background processor.
func (s *Service) GetDB() *Database {
	return s.db
}

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SettlementRequest optionally pins the two price observations; an empty
// body settles against the price feed.
type SettlementRequest struct {
	AssetPrice     uint64 `json:"asset_price"`
	ReferencePrice uint64 `json:"reference_price"`
}

// SettleContractHandler handles POST requests to run a daily settlement.
// Internal keeper endpoint; callers carry no party identity requirement.
func (h *GinHandlers) SettleContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var obs *pricing.Observation
		if c.Request.ContentLength > 0 {
			var req SettlementRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			obs = &pricing.Observation{AssetPrice: req.AssetPrice, ReferencePrice: req.ReferencePrice}
		}

		resp, err := h.service.SettleContract(c.Param("contract_id"), obs)
		response.Handle(c, resp, err)
	}
}

func (h *GinHandlers) GetSettlementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.service.GetSettlement(c.Param("settlement_id"))
		response.Handle(c, record, err)
	}
}
