package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type stubRuns struct {
	recs []domain.FulfillmentRecord
	err  error
}

func (s stubRuns) ListByAuction(context.Context, string, domain.ListOpts) ([]domain.FulfillmentRecord, error) {
	return s.recs, s.err
}

type recordingAudit struct {
	events []string
	detail []map[string]any
}

func (r *recordingAudit) Log(_ context.Context, event string, detail map[string]any) error {
	r.events = append(r.events, event)
	r.detail = append(r.detail, detail)
	return nil
}

func (r *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testReceipt() domain.Receipt {
	return domain.Receipt{
		SessionID:      "sess-1",
		AuctionID:      "auction-1",
		SaleArtworkID:  "lot-1",
		BidderID:       "bidder-1",
		PaddleNumber:   "100",
		PlacingBid:     true,
		BidAmountCents: 125050,
		BidAmount:      "$1,250.50",
		Outcome:        "highest_bidder",
		Title:          "High Bid!",
		Resolution:     domain.Resolution{BidIsResolved: true, IsHighestBidder: true},
		IssuedAt:       time.Date(2026, 3, 1, 18, 0, 2, 500_000_000, time.UTC),
	}
}

func TestArchiveAndLoadReceipt(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil, nil)
	ctx := context.Background()

	path, err := a.Archive(ctx, testReceipt())
	require.NoError(t, err)
	assert.Equal(t, "receipts/auction-1/sess-1/20260301T180002.500Z.json", path)
	assert.Equal(t, "application/json", blobs.types[path])

	got, err := a.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, testReceipt(), *got)

	_, err = a.Load(ctx, "receipts/missing.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArchiveUploadFailure(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("bucket gone")
	a := NewArchiver(blobs, blobs, nil, nil)

	_, err := a.Archive(context.Background(), testReceipt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3blob: archive receipt sess-1")
}

func TestExportAuction(t *testing.T) {
	blobs := newMemBlobs()
	audit := &recordingAudit{}
	runs := stubRuns{recs: []domain.FulfillmentRecord{
		{ID: 2, SessionID: "sess-2", AuctionID: "auction-1", Outcome: "registered"},
		{ID: 1, SessionID: "sess-1", AuctionID: "auction-1", Outcome: "bid_failed", FailedStep: "Placing bid failed."},
	}}
	a := NewArchiver(blobs, blobs, runs, audit)
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	path, n, err := a.ExportAuction(context.Background(), "auction-1", at)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "exports/auction-1/2026-03-02T093000Z.jsonl", path)

	lines := strings.Split(strings.TrimSpace(string(blobs.objects[path])), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"FailedStep":"Placing bid failed."`)

	assert.Equal(t, []string{"export.runs"}, audit.events)
	assert.Equal(t, 2, audit.detail[0]["count"])
}

func TestExportAuctionWithoutRuns(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, stubRuns{}, nil)

	path, n, err := a.ExportAuction(context.Background(), "auction-1", time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, path)
	assert.Empty(t, blobs.objects)

	_, _, err = NewArchiver(blobs, blobs, nil, nil).ExportAuction(context.Background(), "auction-1", time.Now())
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
