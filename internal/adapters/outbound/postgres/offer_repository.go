package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that OfferRepository implements outbound.OfferRepository.
var _ outbound.OfferRepository = (*OfferRepository)(nil)

// OfferRepository is a PostgreSQL implementation of the offer registry.
// Slot uniqueness maps onto the (seller, item_id) primary key; Put relies on
// ON CONFLICT to get the overwrite semantics.
type OfferRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOfferRepository creates a new PostgreSQL offer repository.
// Returns an error if the pool is nil.
func NewOfferRepository(pool *pgxpool.Pool, logger *slog.Logger) (*OfferRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OfferRepository{pool: pool, logger: logger}, nil
}

// Put upserts the offer into its (seller, item id) slot. An existing row at
// the key is replaced wholesale, including its status and creation time.
func (r *OfferRepository) Put(ctx context.Context, offer *entity.Offer) error {
	query := `
		INSERT INTO offer (seller, item_contract, item_id, amount, deadline, price_usd, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (seller, item_id) DO UPDATE SET
			item_contract = EXCLUDED.item_contract,
			amount = EXCLUDED.amount,
			deadline = EXCLUDED.deadline,
			price_usd = EXCLUDED.price_usd,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at
	`
	_, err := r.pool.Exec(ctx, query,
		offer.Seller.Bytes(), offer.ItemContract.Bytes(), int64(offer.ItemID),
		int64(offer.Amount), offer.Deadline, int64(offer.PriceUSD),
		string(offer.Status), offer.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert offer: %w", err)
	}
	return nil
}

// Get returns the offer at the key, or entity.ErrOfferNotFound.
func (r *OfferRepository) Get(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
	query := `
		SELECT seller, item_contract, item_id, amount, deadline, price_usd, status, created_at
		FROM offer
		WHERE seller = $1 AND item_id = $2
	`
	offer, err := scanOffer(r.pool.QueryRow(ctx, query, seller.Bytes(), int64(itemID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return offer, nil
}

// MarkCancelled transitions the offer to CANCELLED. The WHERE clause makes
// the transition one-way: an absent slot and an already-cancelled offer both
// match zero rows and report entity.ErrAlreadyCancelled.
func (r *OfferRepository) MarkCancelled(ctx context.Context, seller common.Address, itemID uint64) error {
	query := `
		UPDATE offer SET status = $3
		WHERE seller = $1 AND item_id = $2 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, seller.Bytes(), int64(itemID),
		string(entity.OfferStatusCancelled), string(entity.OfferStatusOngoing))
	if err != nil {
		return fmt.Errorf("failed to cancel offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrAlreadyCancelled
	}
	return nil
}

// Remove deletes the slot. Removing an absent slot is not an error.
func (r *OfferRepository) Remove(ctx context.Context, seller common.Address, itemID uint64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM offer WHERE seller = $1 AND item_id = $2`,
		seller.Bytes(), int64(itemID))
	if err != nil {
		return fmt.Errorf("failed to remove offer: %w", err)
	}
	return nil
}

// ListBySeller returns all stored offers for a seller in item id order.
func (r *OfferRepository) ListBySeller(ctx context.Context, seller common.Address) ([]*entity.Offer, error) {
	query := `
		SELECT seller, item_contract, item_id, amount, deadline, price_usd, status, created_at
		FROM offer
		WHERE seller = $1
		ORDER BY item_id ASC
	`
	rows, err := r.pool.Query(ctx, query, seller.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*entity.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}
	return offers, nil
}

// HealthCheck verifies the database is reachable.
func (r *OfferRepository) HealthCheck(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func scanOffer(row pgx.Row) (*entity.Offer, error) {
	var (
		sellerBytes, contractBytes []byte
		itemID, amount, priceUSD   int64
		deadline, createdAt        time.Time
		status                     string
	)
	err := row.Scan(&sellerBytes, &contractBytes, &itemID, &amount, &deadline, &priceUSD, &status, &createdAt)
	if err != nil {
		return nil, err
	}
	return &entity.Offer{
		Seller:       common.BytesToAddress(sellerBytes),
		ItemContract: common.BytesToAddress(contractBytes),
		ItemID:       uint64(itemID),
		Amount:       uint64(amount),
		Deadline:     deadline,
		PriceUSD:     uint64(priceUSD),
		Status:       entity.OfferStatus(status),
		CreatedAt:    createdAt,
	}, nil
}
