package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bounty-escrow-system/models"
)

// ObjectPutter is the subset of *s3.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SettlementSource builds the receipt of a finalized bounty.
type SettlementSource interface {
	Settlement(ctx context.Context, bountyID uint64) (*models.Settlement, error)
}

// SettlementArchiver uploads settlement receipts as JSON objects.
type SettlementArchiver struct {
	source SettlementSource
	client ObjectPutter
	bucket string
	log    *zap.Logger
}

func NewSettlementArchiver(source SettlementSource, client ObjectPutter, bucket string, log *zap.Logger) *SettlementArchiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettlementArchiver{source: source, client: client, bucket: bucket, log: log}
}

// SettlementKey is the object key of a bounty's receipt.
func SettlementKey(b *models.Bounty) string {
	creator := slug.Make(b.Creator)
	if creator == "" {
		creator = "unknown"
	}
	return fmt.Sprintf("settlements/%s/%d.json", creator, b.ID)
}

// Archive uploads the receipt of bountyID, overwriting any previous one.
func (a *SettlementArchiver) Archive(ctx context.Context, bountyID uint64) error {
	s, err := a.source.Settlement(ctx, bountyID)
	if err != nil {
		return errors.Wrapf(err, "build settlement of bounty %d", bountyID)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode settlement")
	}
	key := SettlementKey(s.Bounty)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s", key)
	}
	a.log.Info("📦 settlement archived", zap.Uint64("bounty", bountyID), zap.String("key", key))
	return nil
}
