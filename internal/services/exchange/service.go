// Package exchange implements the offer lifecycle and the atomic settlement
// protocol: USD-priced offers on semi-fungible items, settled in a
// whitelisted payment asset or in wrapped native currency, with a
// divisor-based fee skimmed to a configured recipient.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/pkg/keylock"
	"github.com/archon-research/item-exchange/internal/ports/inbound"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time checks that Service implements the inbound ports.
var (
	_ inbound.ExchangeService = (*Service)(nil)
	_ inbound.AdminService    = (*Service)(nil)
)

// Config holds the collaborators and settings for the exchange service.
type Config struct {
	Offers   outbound.OfferRepository
	Store    outbound.ConfigStore
	Feed     outbound.PriceFeed
	Tokens   outbound.TokenReader
	Executor outbound.TransferExecutor
	Events   outbound.EventSink

	// Operator is the engine's settlement account: the spender buyers
	// grant allowances to and the operator sellers approve for item moves.
	Operator common.Address

	// Receipts, when set, archives a TradeReceipt after each settlement.
	Receipts outbound.ReceiptArchiver

	// Metrics, when set, records domain counters.
	Metrics outbound.MetricsRecorder

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *slog.Logger
}

// Service orchestrates offer creation, cancellation and the two accept
// flows. Every state-mutating operation runs under a per-(seller, item id)
// lock held across the whole operation, including the oracle read, so two
// concurrent accepts of the same offer cannot both succeed.
type Service struct {
	offers   outbound.OfferRepository
	store    outbound.ConfigStore
	feed     outbound.PriceFeed
	tokens   outbound.TokenReader
	executor outbound.TransferExecutor
	events   outbound.EventSink
	receipts outbound.ReceiptArchiver
	metrics  outbound.MetricsRecorder
	operator common.Address
	locks    *keylock.KeyedMutex
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a new exchange service.
func New(cfg Config) (*Service, error) {
	if cfg.Offers == nil {
		return nil, fmt.Errorf("offer repository is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("config store is required")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("price feed is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token reader is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("transfer executor is required")
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("event sink is required")
	}
	if cfg.Operator == (common.Address{}) {
		return nil, fmt.Errorf("operator address is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		offers:   cfg.Offers,
		store:    cfg.Store,
		feed:     cfg.Feed,
		tokens:   cfg.Tokens,
		executor: cfg.Executor,
		events:   cfg.Events,
		receipts: cfg.Receipts,
		metrics:  cfg.Metrics,
		operator: cfg.Operator,
		locks:    keylock.New(),
		now:      cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// CreateOffer validates and stores a new ONGOING offer. A previous offer at
// the same (seller, item id) slot is silently overwritten; no transfer
// happens at creation time.
func (s *Service) CreateOffer(ctx context.Context, req inbound.CreateOfferRequest) (*entity.Offer, error) {
	offer, err := entity.NewOffer(req.Seller, req.ItemContract, req.ItemID, req.Amount, req.Deadline, req.PriceUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid offer: %w", err)
	}

	unlock := s.locks.Lock(offer.Key().String())
	defer unlock()

	if err := s.offers.Put(ctx, offer); err != nil {
		return nil, fmt.Errorf("storing offer: %w", err)
	}

	s.publish(ctx, outbound.OfferCreatedEvent{
		Seller:       offer.Seller.Hex(),
		ItemContract: offer.ItemContract.Hex(),
		ItemID:       offer.ItemID,
		Amount:       offer.Amount,
		Deadline:     offer.Deadline,
		PriceUSD:     offer.PriceUSD,
		CreatedAt:    offer.CreatedAt,
	})
	if s.metrics != nil {
		s.metrics.RecordOfferCreated()
	}

	s.logger.Info("offer created",
		"seller", offer.Seller.Hex(), "itemId", offer.ItemID,
		"amount", offer.Amount, "priceUsd", offer.PriceUSD)
	return offer, nil
}

// AcceptOfferWithTokens settles the offer against a whitelisted fungible
// payment asset. The buyer must have pre-authorized at least the converted
// amount to the operator; the seller must have approved the operator for
// item transfers. The payment is split between seller and fee recipient and
// all transfers apply as one all-or-nothing batch.
func (s *Service) AcceptOfferWithTokens(ctx context.Context, buyer, seller common.Address, itemID uint64, paymentToken common.Address) (*inbound.AcceptResult, error) {
	if err := validateAcceptArgs(buyer, seller, itemID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(entity.OfferKey{Seller: seller, ItemID: itemID}.String())
	defer unlock()

	offer, err := s.loadAcceptable(ctx, seller, itemID)
	if err != nil {
		s.recordAcceptFailure("not_available")
		return nil, err
	}

	cfg, err := s.store.MarketConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading market config: %w", err)
	}

	token, err := s.whitelistedToken(ctx, paymentToken)
	if err != nil {
		s.recordAcceptFailure("unsupported_asset")
		return nil, err
	}

	final, fee, err := s.convert(ctx, offer, token.FeedAddress, token.Decimals, cfg.FeeDivisor)
	if err != nil {
		return nil, err
	}

	allowance, err := s.tokens.Allowance(ctx, paymentToken, buyer, s.operator)
	if err != nil {
		return nil, fmt.Errorf("reading allowance: %w", err)
	}
	if allowance.Cmp(final) < 0 {
		s.recordAcceptFailure("allowance")
		return nil, entity.ErrInsufficientAllowance
	}

	if err := s.requireItemApproval(ctx, offer); err != nil {
		return nil, err
	}

	net := new(big.Int).Sub(final, fee)
	transfers := []outbound.Transfer{
		{Kind: outbound.TransferERC20, Token: paymentToken, From: buyer, To: offer.Seller, Amount: net},
		{Kind: outbound.TransferItem, Token: offer.ItemContract, From: offer.Seller, To: buyer, ItemID: offer.ItemID, Amount: new(big.Int).SetUint64(offer.Amount)},
		{Kind: outbound.TransferERC20, Token: paymentToken, From: buyer, To: cfg.FeeRecipient, Amount: fee},
	}

	if err := s.settle(ctx, offer, transfers); err != nil {
		return nil, err
	}

	s.finishAccept(ctx, offer, buyer, paymentToken, final, fee, "tokens")
	return &inbound.AcceptResult{FinalAmount: final, FeeAmount: fee}, nil
}

// AcceptOfferWithNative settles the offer against the wrapped native
// currency. The attached native value is wrapped in full; the net amount
// goes to the seller, the fee to the fee recipient, and any excess over the
// converted amount is refunded to the buyer in wrapped units.
func (s *Service) AcceptOfferWithNative(ctx context.Context, buyer, seller common.Address, itemID uint64, attached *big.Int) (*inbound.AcceptResult, error) {
	if err := validateAcceptArgs(buyer, seller, itemID); err != nil {
		return nil, err
	}
	if attached == nil || attached.Sign() <= 0 {
		s.recordAcceptFailure("amount")
		return nil, entity.ErrInsufficientAmount
	}

	unlock := s.locks.Lock(entity.OfferKey{Seller: seller, ItemID: itemID}.String())
	defer unlock()

	offer, err := s.loadAcceptable(ctx, seller, itemID)
	if err != nil {
		s.recordAcceptFailure("not_available")
		return nil, err
	}

	cfg, err := s.store.MarketConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading market config: %w", err)
	}

	wrapped, err := s.whitelistedToken(ctx, cfg.WrappedNative)
	if err != nil {
		s.recordAcceptFailure("unsupported_asset")
		return nil, err
	}

	// Native settlements always convert at 18 decimals, regardless of how
	// the wrapped entry is configured.
	final, fee, err := s.convert(ctx, offer, wrapped.FeedAddress, NativeDecimals, cfg.FeeDivisor)
	if err != nil {
		return nil, err
	}

	if attached.Cmp(final) < 0 {
		s.recordAcceptFailure("amount")
		return nil, entity.ErrInsufficientAmount
	}

	if err := s.requireItemApproval(ctx, offer); err != nil {
		return nil, err
	}

	net := new(big.Int).Sub(final, fee)
	transfers := []outbound.Transfer{
		{Kind: outbound.TransferWrapNative, Token: cfg.WrappedNative, From: buyer, To: s.operator, Amount: attached},
		{Kind: outbound.TransferWrapped, Token: cfg.WrappedNative, From: s.operator, To: offer.Seller, Amount: net},
		{Kind: outbound.TransferItem, Token: offer.ItemContract, From: offer.Seller, To: buyer, ItemID: offer.ItemID, Amount: new(big.Int).SetUint64(offer.Amount)},
		{Kind: outbound.TransferWrapped, Token: cfg.WrappedNative, From: s.operator, To: cfg.FeeRecipient, Amount: fee},
	}
	if excess := new(big.Int).Sub(attached, final); excess.Sign() > 0 {
		transfers = append(transfers, outbound.Transfer{
			Kind: outbound.TransferWrapped, Token: cfg.WrappedNative, From: s.operator, To: buyer, Amount: excess,
		})
	}

	if err := s.settle(ctx, offer, transfers); err != nil {
		return nil, err
	}

	s.finishAccept(ctx, offer, buyer, cfg.WrappedNative, final, fee, "native")
	return &inbound.AcceptResult{FinalAmount: final, FeeAmount: fee}, nil
}

// CancelOffer marks the offer CANCELLED. Only the offer's seller may cancel,
// and a cancelled (or absent) offer cannot be cancelled again.
func (s *Service) CancelOffer(ctx context.Context, caller, seller common.Address, itemID uint64) error {
	if seller == (common.Address{}) {
		return fmt.Errorf("seller address must not be zero")
	}
	if itemID == 0 {
		return fmt.Errorf("item id must be positive")
	}
	if caller != seller {
		return entity.ErrNotSeller
	}

	unlock := s.locks.Lock(entity.OfferKey{Seller: seller, ItemID: itemID}.String())
	defer unlock()

	offer, err := s.offers.Get(ctx, seller, itemID)
	if errors.Is(err, entity.ErrOfferNotFound) {
		// An absent offer behaves as already cancelled.
		return entity.ErrAlreadyCancelled
	}
	if err != nil {
		return fmt.Errorf("loading offer: %w", err)
	}

	if err := s.offers.MarkCancelled(ctx, seller, itemID); err != nil {
		return err
	}

	s.publish(ctx, outbound.OfferCancelledEvent{
		Seller:       offer.Seller.Hex(),
		ItemContract: offer.ItemContract.Hex(),
		ItemID:       offer.ItemID,
		CancelledAt:  s.now().UTC(),
	})
	if s.metrics != nil {
		s.metrics.RecordOfferCancelled(false)
	}

	s.logger.Info("offer cancelled", "seller", seller.Hex(), "itemId", itemID)
	return nil
}

// GetOffer returns the offer at the key, or entity.ErrOfferNotFound.
func (s *Service) GetOffer(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
	return s.offers.Get(ctx, seller, itemID)
}

// ListSellerOffers returns all stored offers for a seller.
func (s *Service) ListSellerOffers(ctx context.Context, seller common.Address) ([]*entity.Offer, error) {
	return s.offers.ListBySeller(ctx, seller)
}

// Ping reports whether the service and its storage are reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.offers.HealthCheck(ctx)
}

func validateAcceptArgs(buyer, seller common.Address, itemID uint64) error {
	if buyer == (common.Address{}) {
		return fmt.Errorf("buyer address must not be zero")
	}
	if seller == (common.Address{}) {
		return fmt.Errorf("seller address must not be zero")
	}
	if itemID == 0 {
		return fmt.Errorf("item id must be positive")
	}
	return nil
}

// loadAcceptable loads the offer and enforces the accept-path state machine.
// An offer whose deadline has passed is lazily flipped to CANCELLED before
// the accept attempt is rejected; this side effect survives the rejection.
func (s *Service) loadAcceptable(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
	offer, err := s.offers.Get(ctx, seller, itemID)
	if errors.Is(err, entity.ErrOfferNotFound) {
		return nil, entity.ErrOfferNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("loading offer: %w", err)
	}

	if offer.Status != entity.OfferStatusOngoing {
		return nil, entity.ErrOfferNotAvailable
	}

	if offer.Expired(s.now()) {
		if err := s.offers.MarkCancelled(ctx, seller, itemID); err != nil {
			return nil, fmt.Errorf("cancelling expired offer: %w", err)
		}
		s.publish(ctx, outbound.OfferCancelledEvent{
			Seller:       offer.Seller.Hex(),
			ItemContract: offer.ItemContract.Hex(),
			ItemID:       offer.ItemID,
			Expired:      true,
			CancelledAt:  s.now().UTC(),
		})
		if s.metrics != nil {
			s.metrics.RecordOfferCancelled(true)
		}
		s.logger.Info("offer expired", "seller", seller.Hex(), "itemId", itemID)
		return nil, entity.ErrOfferNotAvailable
	}

	return offer, nil
}

// whitelistedToken resolves a payment asset against the whitelist.
func (s *Service) whitelistedToken(ctx context.Context, asset common.Address) (*entity.PaymentToken, error) {
	token, err := s.store.PaymentToken(ctx, asset)
	if errors.Is(err, entity.ErrUnsupportedAsset) {
		return nil, entity.ErrUnsupportedAsset
	}
	if err != nil {
		return nil, fmt.Errorf("reading payment token: %w", err)
	}
	if !token.Enabled {
		return nil, entity.ErrUnsupportedAsset
	}
	return token, nil
}

// convert reads the oracle and derives the payment split. The key lock is
// held across this blocking read, so offer state cannot change underneath.
func (s *Service) convert(ctx context.Context, offer *entity.Offer, feedAddr common.Address, decimals uint8, feeDivisor uint64) (final, fee *big.Int, err error) {
	price, err := s.feed.LatestPriceUSD(ctx, feedAddr)
	if err != nil {
		s.recordAcceptFailure("oracle")
		return nil, nil, fmt.Errorf("reading oracle price: %w", err)
	}

	final, fee, err = ConvertUSDToAsset(offer.PriceUSD, decimals, price, feeDivisor)
	if err != nil {
		s.recordAcceptFailure("conversion")
		return nil, nil, fmt.Errorf("converting price: %w", err)
	}
	return final, fee, nil
}

func (s *Service) requireItemApproval(ctx context.Context, offer *entity.Offer) error {
	approved, err := s.tokens.IsApprovedForAll(ctx, offer.ItemContract, offer.Seller, s.operator)
	if err != nil {
		return fmt.Errorf("reading item approval: %w", err)
	}
	if !approved {
		s.recordAcceptFailure("approval")
		return entity.ErrNotApproved
	}
	return nil
}

// settle executes the staged transfers and removes the offer slot. The
// executor contract is all-or-nothing, so a failure here leaves the offer
// ONGOING and every balance untouched.
func (s *Service) settle(ctx context.Context, offer *entity.Offer, transfers []outbound.Transfer) error {
	if err := s.executor.ExecuteTransfers(ctx, transfers); err != nil {
		s.recordAcceptFailure("transfer")
		return fmt.Errorf("executing transfers: %w", err)
	}

	if err := s.offers.Remove(ctx, offer.Seller, offer.ItemID); err != nil {
		// Transfers have committed; the stale slot must not stay acceptable.
		s.logger.Error("removing settled offer failed",
			"seller", offer.Seller.Hex(), "itemId", offer.ItemID, "error", err)
		return fmt.Errorf("removing settled offer: %w", err)
	}
	return nil
}

// finishAccept runs the post-commit side effects: event, metrics, receipt.
// None of these can fail the settlement.
func (s *Service) finishAccept(ctx context.Context, offer *entity.Offer, buyer, paymentToken common.Address, final, fee *big.Int, paymentKind string) {
	acceptedAt := s.now().UTC()
	s.publish(ctx, outbound.OfferAcceptedEvent{
		Buyer:        buyer.Hex(),
		Seller:       offer.Seller.Hex(),
		ItemID:       offer.ItemID,
		Amount:       offer.Amount,
		PriceUSD:     offer.PriceUSD,
		PaymentToken: paymentToken.Hex(),
		FinalAmount:  final.String(),
		FeeAmount:    fee.String(),
		AcceptedAt:   acceptedAt,
	})
	if s.metrics != nil {
		s.metrics.RecordOfferAccepted(paymentKind)
	}

	if s.receipts != nil {
		receipt, err := entity.NewTradeReceipt(buyer, offer, paymentToken, final, fee)
		if err == nil {
			err = s.receipts.ArchiveReceipt(ctx, receipt)
		}
		if err != nil {
			s.logger.Error("archiving trade receipt failed",
				"seller", offer.Seller.Hex(), "itemId", offer.ItemID, "error", err)
		}
	}

	s.logger.Info("offer accepted",
		"buyer", buyer.Hex(), "seller", offer.Seller.Hex(), "itemId", offer.ItemID,
		"finalAmount", final.String(), "feeAmount", fee.String(), "payment", paymentKind)
}

func (s *Service) publish(ctx context.Context, event outbound.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publishing event failed", "eventType", event.EventType(), "error", err)
	}
}

func (s *Service) recordAcceptFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordAcceptFailed(reason)
	}
}
