// Package s3 provides an S3 adapter for archiving settlement receipts.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// s3API defines the subset of S3 operations needed by the Archiver.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Compile-time check that Archiver implements outbound.ReceiptArchiver.
var _ outbound.ReceiptArchiver = (*Archiver)(nil)

// Archiver writes one JSON object per settled trade. Keys are laid out as
// receipts/<seller>/<itemId>/<acceptedAt unix nanos>.json so a seller's trade
// history is a single prefix listing.
type Archiver struct {
	client s3API
	bucket string
	logger *slog.Logger
}

// NewArchiver creates a new receipt archiver with the given AWS config.
func NewArchiver(cfg aws.Config, bucket string, logger *slog.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		logger: logger,
	}, nil
}

// newArchiverWithClient is used by tests to inject a mock client.
func newArchiverWithClient(client s3API, bucket string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{client: client, bucket: bucket, logger: logger}
}

// ArchiveReceipt stores the receipt as a JSON object.
func (a *Archiver) ArchiveReceipt(ctx context.Context, receipt *entity.TradeReceipt) error {
	if receipt == nil {
		return fmt.Errorf("receipt must not be nil")
	}

	body, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	key := fmt.Sprintf("receipts/%s/%d/%d.json",
		receipt.Seller.Hex(), receipt.ItemID, receipt.AcceptedAt.UnixNano())

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put receipt %s: %w", key, err)
	}

	a.logger.Debug("receipt archived", "bucket", a.bucket, "key", key)
	return nil
}
