// Package archive uploads the frozen ledgers of closed auctions to S3 or an
// S3-compatible store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"

	"proxy-auction/internal/models"
	"proxy-auction/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the bucket and connection settings. Endpoint and
// ForcePathStyle are only needed for S3-compatible providers such as MinIO.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	Prefix         string
}

// Uploader is the part of the S3 upload manager the archiver uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes each snapshot to <prefix>/<auction_id>/ledger.json.
type S3Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Archiver builds an S3 client with static credentials and wraps it in
// an upload manager.
func NewS3Archiver(ctx context.Context, cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		opts = append(opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, opts...)
	return NewWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

// NewWithUploader creates an archiver over an existing uploader.
func NewWithUploader(u Uploader, bucket, prefix string) *S3Archiver {
	if prefix == "" {
		prefix = "ledgers"
	}
	return &S3Archiver{uploader: u, bucket: bucket, prefix: prefix}
}

// Key is the object key for an auction's ledger.
func (a *S3Archiver) Key(auctionID string) string {
	return path.Join(a.prefix, auctionID, "ledger.json")
}

// Archive uploads snapshot as indented JSON. Only closed auctions are accepted.
func (a *S3Archiver) Archive(ctx context.Context, snapshot models.LedgerSnapshot) error {
	if snapshot.Auction.Phase != models.PhaseClosed {
		return fmt.Errorf("archive: auction %s is %s, not closed", snapshot.Auction.AuctionID, snapshot.Auction.Phase)
	}

	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode ledger %s: %w", snapshot.Auction.AuctionID, err)
	}

	key := a.Key(snapshot.Auction.AuctionID)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	utils.Info("auction ledger archived", map[string]any{
		"auction_id": snapshot.Auction.AuctionID,
		"bucket":     a.bucket,
		"key":        key,
		"bids":       len(snapshot.Bids),
	})
	return nil
}

// normaliseEndpoint adds https:// when the endpoint has no scheme.
func normaliseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
