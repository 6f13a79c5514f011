package contracts

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/optix-api/internal/custody"
	"github.com/ksred/optix-api/internal/pricing"
	"github.com/ksred/optix-api/internal/types"
	"github.com/ksred/optix-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service owns the contract lifecycle: listing, purchase, delisting, resale,
// exercise and expiry. Every operation executes as one transaction so a
// failed guard or transfer leg leaves nothing behind.
type Service struct {
	db     *Database
	ledger *custody.Ledger
	feed   pricing.Feed
}

func NewService(gormDB *gorm.DB, ledger *custody.Ledger, feed pricing.Feed) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledger,
		feed:   feed,
	}
}

// Initialize lists a new contract for the seller with status LISTED.
func (s *Service) Initialize(seller string, req InitializeRequest) (*types.OptionContract, error) {
	logger := log.With().
		Str("seller", seller).
		Str("underlying", req.Underlying).
		Str("service", "contracts").
		Logger()

	if req.Kind > types.KindPut {
		return nil, types.ErrInvalidOptionKind
	}
	if req.Premium == 0 {
		return nil, types.ErrZeroPremium
	}
	if req.Strike == 0 {
		return nil, types.ErrZeroStrike
	}
	if req.InitialMargin == 0 {
		return nil, types.ErrZeroMargin
	}
	if len(req.Underlying) > types.MaxUnderlyingLength {
		return nil, types.ErrUnderlyingTooLong
	}

	now := time.Now()
	// Real contracts cannot be initiated in the past.
	if !req.IsTest && req.InitiationDate < now.Unix() {
		return nil, types.ErrPastInitiation
	}

	contract := &types.OptionContract{
		ContractID:     types.DeriveContractID(seller, req.Underlying),
		Kind:           req.Kind,
		Underlying:     req.Underlying,
		Seller:         seller,
		InitiationDate: req.InitiationDate,
		ExpiryDate:     req.InitiationDate + int64(types.ContractDuration/time.Second),
		Status:         types.StatusListed,
		Premium:        req.Premium,
		Strike:         req.Strike,
		InitialMargin:  req.InitialMargin,
		IsTest:         req.IsTest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.CreateContract(contract); err != nil {
		logger.Error().Err(err).Msg("failed to create contract record")
		return nil, err
	}

	logger.Info().
		Str("contract_id", contract.ContractID).
		Uint8("kind", contract.Kind).
		Uint64("strike", contract.Strike).
		Uint64("premium", contract.Premium).
		Uint64("initial_margin", contract.InitialMargin).
		Int64("expiry_date", contract.ExpiryDate).
		Msg("contract listed")

	return contract, nil
}

// Purchase moves the contract LISTED -> OWNED. Three ordered transfers run
// first - premium to the seller, then each party's margin into custody - and
// only after all succeed does the record change.
func (s *Service) Purchase(buyer, contractID string) (*types.OptionContract, error) {
	logger := log.With().
		Str("contract_id", contractID).
		Str("buyer", buyer).
		Str("service", "contracts").
		Logger()

	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := GetContractTx(tx, contractID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := guardPurchase(rec, now); err != nil {
			return err
		}

		buyerAcc := custody.ClientAccountID(buyer)
		sellerAcc := custody.ClientAccountID(rec.Seller)
		custodyAcc := custody.ContractAccountID(rec.ContractID)

		if err := s.ledger.Move(tx, buyerAcc, sellerAcc, rec.Premium, custody.ReasonPremium, rec.ContractID); err != nil {
			return err
		}
		if err := s.ledger.Move(tx, buyerAcc, custodyAcc, rec.InitialMargin, custody.ReasonMarginDeposit, rec.ContractID); err != nil {
			return err
		}
		if err := s.ledger.Move(tx, sellerAcc, custodyAcc, rec.InitialMargin, custody.ReasonMarginDeposit, rec.ContractID); err != nil {
			return err
		}

		rec.Status = types.StatusOwned
		rec.Owner = buyer
		rec.SellerMargin = rec.InitialMargin
		rec.BuyerMargin = rec.InitialMargin
		rec.LastSettlementDate = now.Unix()
		rec.UpdatedAt = now

		contract = rec
		return SaveContractTx(tx, rec)
	})
	if err != nil {
		logger.Error().Err(err).Msg("purchase failed")
		return nil, err
	}

	logger.Info().
		Uint64("premium", contract.Premium).
		Uint64("margin_per_party", contract.InitialMargin).
		Msg("contract purchased")

	return contract, nil
}

// Delist cancels a still-listed contract. Only the seller may delist, and
// only before purchase.
func (s *Service) Delist(caller, contractID string) (*types.OptionContract, error) {
	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := GetContractTx(tx, contractID)
		if err != nil {
			return err
		}
		if err := guardDelist(rec, caller); err != nil {
			return err
		}

		rec.Status = types.StatusDelisted
		rec.UpdatedAt = time.Now()
		contract = rec
		return SaveContractTx(tx, rec)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("contract_id", contractID).
		Str("seller", caller).
		Msg("contract delisted")

	return contract, nil
}

// Resell transfers ownership to a new buyer. The new buyer pays the resale
// price to the current owner and posts margin equal to the existing buyer
// margin; the old buyer's margin leaves custody back to the old owner.
func (s *Service) Resell(caller, contractID string, req ResellRequest) (*types.OptionContract, error) {
	logger := log.With().
		Str("contract_id", contractID).
		Str("current_owner", caller).
		Str("new_buyer", req.NewBuyer).
		Str("service", "contracts").
		Logger()

	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := GetContractTx(tx, contractID)
		if err != nil {
			return err
		}
		if err := guardResell(rec, caller, time.Now(), req.ResellPrice); err != nil {
			return err
		}

		oldOwnerAcc := custody.ClientAccountID(rec.Owner)
		newBuyerAcc := custody.ClientAccountID(req.NewBuyer)
		custodyAcc := custody.ContractAccountID(rec.ContractID)
		margin := rec.BuyerMargin

		if err := s.ledger.Move(tx, newBuyerAcc, oldOwnerAcc, req.ResellPrice, custody.ReasonResalePrice, rec.ContractID); err != nil {
			return err
		}
		if err := s.ledger.Move(tx, newBuyerAcc, custodyAcc, margin, custody.ReasonMarginDeposit, rec.ContractID); err != nil {
			return err
		}
		if err := s.ledger.Move(tx, custodyAcc, oldOwnerAcc, margin, custody.ReasonMarginReturn, rec.ContractID); err != nil {
			return err
		}

		rec.Owner = req.NewBuyer
		rec.UpdatedAt = time.Now()
		contract = rec
		return SaveContractTx(tx, rec)
	})
	if err != nil {
		logger.Error().Err(err).Msg("resale failed")
		return nil, err
	}

	logger.Info().
		Uint64("resell_price", req.ResellPrice).
		Uint64("margin_rolled", contract.BuyerMargin).
		Msg("contract resold")

	return contract, nil
}

// Exercise performs the terminal settlement at or after expiry (European
// style). The payoff is computed from the final ratio and reported; daily
// settlement already accrued all margin movement, so no funds move here.
// A nil observation settles against the configured price feed.
func (s *Service) Exercise(caller, contractID string, obs *pricing.Observation) (*ExerciseResponse, error) {
	logger := log.With().
		Str("contract_id", contractID).
		Str("caller", caller).
		Str("service", "contracts").
		Logger()

	var result *ExerciseResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := GetContractTx(tx, contractID)
		if err != nil {
			return err
		}
		if err := guardExercise(rec, caller, time.Now()); err != nil {
			return err
		}

		var assetPrice, refPrice uint64
		if obs != nil {
			assetPrice, refPrice = obs.AssetPrice, obs.ReferencePrice
		} else {
			assetPrice, refPrice, err = fetchPrices(s.feed, rec.Underlying)
			if err != nil {
				return err
			}
		}

		finalRatio, err := pricing.Ratio(assetPrice, refPrice)
		if err != nil {
			return err
		}
		payoff := Payoff(rec.Kind, finalRatio, rec.Strike)

		// History rows chain off the last settled ratio, like daily
		// settlement; the payoff itself is always against the strike.
		referenceRatio := rec.LastSettlementRatio
		if referenceRatio == 0 {
			referenceRatio = rec.Strike
		}

		rec.Status = types.StatusExpired
		rec.LastSettlementRatio = finalRatio
		rec.UpdatedAt = time.Now()
		if err := SaveContractTx(tx, rec); err != nil {
			return err
		}

		snapshot, err := types.MarshalRecord(rec)
		if err != nil {
			return err
		}
		record := &types.SettlementRecord{
			SettlementID:   "STL_" + uuid.New().String(),
			ContractID:     rec.ContractID,
			Trigger:        types.TriggerExercise,
			CurrentRatio:   finalRatio,
			ReferenceRatio: referenceRatio,
			SellerMargin:   rec.SellerMargin,
			BuyerMargin:    rec.BuyerMargin,
			Payoff:         payoff,
			Snapshot:       snapshot,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		result = &ExerciseResponse{
			Contract:   rec,
			FinalRatio: finalRatio,
			Payoff:     payoff,
			Timestamp:  time.Now(),
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("exercise failed")
		return nil, err
	}

	logger.Info().
		Uint64("final_ratio", result.FinalRatio).
		Uint64("strike", result.Contract.Strike).
		Uint64("payoff", result.Payoff).
		Msg("contract exercised")

	return result, nil
}

// Expire marks any non-terminal contract past its expiry date as EXPIRED.
func (s *Service) Expire(contractID string) (*types.OptionContract, error) {
	var contract *types.OptionContract
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := GetContractTx(tx, contractID)
		if err != nil {
			return err
		}
		if err := guardExpire(rec, time.Now()); err != nil {
			return err
		}

		rec.Status = types.StatusExpired
		rec.UpdatedAt = time.Now()
		contract = rec
		return SaveContractTx(tx, rec)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("contract_id", contractID).Msg("contract expired")
	return contract, nil
}

// GetContract retrieves a contract by ID.
func (s *Service) GetContract(contractID string) (*types.OptionContract, error) {
	return s.db.GetContract(contractID)
}

// ListBySeller retrieves every contract a seller has listed, newest first.
func (s *Service) ListBySeller(seller string) ([]types.OptionContract, error) {
	return s.db.GetContractsBySeller(seller)
}

// GetSettlementHistory retrieves a contract's settlement audit trail.
func (s *Service) GetSettlementHistory(contractID string) ([]types.SettlementRecord, error) {
	return s.db.GetSettlementHistory(contractID)
}

func fetchPrices(feed pricing.Feed, underlying string) (uint64, uint64, error) {
	ctx, cancel := pricing.FetchContext()
	defer cancel()

	assetPrice, err := feed.AssetPrice(ctx, underlying)
	if err != nil {
		return 0, 0, err
	}
	refPrice, err := feed.ReferencePrice(ctx)
	if err != nil {
		return 0, 0, err
	}
	return assetPrice, refPrice, nil
}

// GinHandlers contains HTTP handlers for contract endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// InitializeHandler handles POST requests to list a new contract.
// The authenticated client becomes the seller.
func (h *GinHandlers) InitializeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		seller := c.GetString("clientID")
		if seller == "" {
			response.Unauthorized(c, "missing client identity")
			return
		}

		var req InitializeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		contract, err := h.service.Initialize(seller, req)
		response.Handle(c, contract, err)
	}
}

// PurchaseHandler handles POST requests to purchase a listed contract.
// The authenticated client becomes the owner.
func (h *GinHandlers) PurchaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer := c.GetString("clientID")
		if buyer == "" {
			response.Unauthorized(c, "missing client identity")
			return
		}

		contract, err := h.service.Purchase(buyer, c.Param("contract_id"))
		response.Handle(c, contract, err)
	}
}

func (h *GinHandlers) DelistHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		contract, err := h.service.Delist(caller, c.Param("contract_id"))
		response.Handle(c, contract, err)
	}
}

func (h *GinHandlers) ResellHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var req ResellRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		contract, err := h.service.Resell(caller, c.Param("contract_id"), req)
		response.Handle(c, contract, err)
	}
}

func (h *GinHandlers) ExerciseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		// Body is optional; an empty body settles against the price feed,
		// while supplied prices are used verbatim.
		var obs *pricing.Observation
		if c.Request.ContentLength > 0 {
			var req ExerciseRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				response.BadRequest(c, err.Error())
				return
			}
			obs = &pricing.Observation{AssetPrice: req.AssetPrice, ReferencePrice: req.ReferencePrice}
		}

		result, err := h.service.Exercise(caller, c.Param("contract_id"), obs)
		response.Handle(c, result, err)
	}
}

// ExpireHandler handles POST requests to mark past-expiry contracts. It is
// an internal keeper endpoint with no party precondition.
func (h *GinHandlers) ExpireHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, err := h.service.Expire(c.Param("contract_id"))
		response.Handle(c, contract, err)
	}
}

// ListContractsHandler returns the authenticated client's listed contracts.
func (h *GinHandlers) ListContractsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		seller := c.GetString("clientID")
		if seller == "" {
			response.Unauthorized(c, "missing client identity")
			return
		}

		result, err := h.service.ListBySeller(seller)
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) GetContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contract, err := h.service.GetContract(c.Param("contract_id"))
		response.Handle(c, contract, err)
	}
}

func (h *GinHandlers) GetSettlementHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.service.GetSettlementHistory(c.Param("contract_id"))
		response.Handle(c, records, err)
	}
}
