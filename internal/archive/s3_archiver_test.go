package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"proxy-auction/internal/models"
	"proxy-auction/internal/repository/storetest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &manager.UploadOutput{Key: in.Key}, nil
}

func closedSnapshot() models.LedgerSnapshot {
	a := storetest.Auction("a1", "")
	a.Phase = models.PhaseClosed
	return models.LedgerSnapshot{
		Auction: a,
		Bids: []models.Bid{
			storetest.Bid("a1", 1, "alice", "150"),
			storetest.Bid("a1", 2, "bob", "200"),
		},
	}
}

func TestS3Archiver_UploadsLedger(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	archiver := NewWithUploader(up, "auction-archive", "closed")

	require.NoError(t, archiver.Archive(context.Background(), closedSnapshot()))
	require.Equal(t, "auction-archive", up.bucket)
	require.Equal(t, "closed/a1/ledger.json", up.key)
	require.Equal(t, "application/json", up.contentType)

	var got models.LedgerSnapshot
	require.NoError(t, json.Unmarshal(up.body, &got))
	require.Equal(t, "a1", got.Auction.AuctionID)
	require.Len(t, got.Bids, 2)
	require.Equal(t, "bob", got.Bids[1].BidderID)
}

func TestS3Archiver_HidesReserve(t *testing.T) {
	t.Parallel()
	up := &fakeUploader{}
	snapshot := closedSnapshot()
	snapshot.Auction = storetest.Auction("a1", "987.65")
	snapshot.Auction.Phase = models.PhaseClosed

	require.NoError(t, NewWithUploader(up, "b", "").Archive(context.Background(), snapshot))
	require.Equal(t, "ledgers/a1/ledger.json", up.key)
	require.NotContains(t, string(up.body), "987.65")
}

func TestS3Archiver_Errors(t *testing.T) {
	t.Parallel()

	t.Run("not_closed", func(t *testing.T) {
		t.Parallel()
		snapshot := closedSnapshot()
		snapshot.Auction.Phase = models.PhaseExtendedBidding
		err := NewWithUploader(&fakeUploader{}, "b", "").Archive(context.Background(), snapshot)
		require.Error(t, err)
	})

	t.Run("upload_fails", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("access denied")
		err := NewWithUploader(&fakeUploader{err: boom}, "b", "").Archive(context.Background(), closedSnapshot())
		require.ErrorIs(t, err, boom)
	})

	t.Run("config", func(t *testing.T) {
		t.Parallel()
		_, err := NewS3Archiver(context.Background(), Config{Region: "us-east-1"})
		require.Error(t, err)
		_, err = NewS3Archiver(context.Background(), Config{Bucket: "b"})
		require.Error(t, err)
	})
}

func TestNormaliseEndpoint(t *testing.T) {
	t.Parallel()
	require.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000"))
	require.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com"))
}
