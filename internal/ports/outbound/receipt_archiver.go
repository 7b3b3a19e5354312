package outbound

import (
	"context"

	"github.com/archon-research/item-exchange/internal/domain/entity"
)

// ReceiptArchiver stores settlement receipts in durable external storage.
// Archival happens after commit and is best-effort: a failure is logged,
// never surfaced to the buyer.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, receipt *entity.TradeReceipt) error
}
