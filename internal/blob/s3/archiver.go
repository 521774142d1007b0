package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/auctionkiosk/internal/domain"
)

// RunLister is the slice of domain.FulfillmentStore the exporter needs.
type RunLister interface {
	ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.FulfillmentRecord, error)
}

// Archiver writes receipts for finished runs and JSONL exports of an
// auction's runs. It implements domain.ReceiptArchive.
//
// Key schema:
//
//	receipts/{auction}/{session}/{issued_at}.json
//	exports/{auction}/{date}.jsonl
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	runs   RunLister
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. runs and audit may be nil when the
// postgres store is disabled; ExportAuction then fails.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, runs RunLister, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		runs:   runs,
		audit:  audit,
	}
}

// Archive uploads a receipt and returns its object path.
func (a *Archiver) Archive(ctx context.Context, r domain.Receipt) (string, error) {
	buf, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal receipt %s: %w", r.SessionID, err)
	}

	path := ReceiptPath(r)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive receipt %s: %w", r.SessionID, err)
	}
	return path, nil
}

// Load reads a receipt written by Archive.
func (a *Archiver) Load(ctx context.Context, path string) (*domain.Receipt, error) {
	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r domain.Receipt
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("s3blob: decode receipt %s: %w", path, err)
	}
	return &r, nil
}

// ExportAuction writes every recorded run of an auction as one JSONL object
// and logs the export to the audit log. It returns the object path and the
// number of runs exported; an auction with no runs writes nothing.
func (a *Archiver) ExportAuction(ctx context.Context, auctionID string, at time.Time) (string, int, error) {
	if a.runs == nil {
		return "", 0, fmt.Errorf("s3blob: export auction %s: no run store configured", auctionID)
	}

	recs, err := a.runs.ListByAuction(ctx, auctionID, domain.ListOpts{})
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export auction %s query: %w", auctionID, err)
	}
	if len(recs) == 0 {
		return "", 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: export auction %s marshal: %w", auctionID, err)
	}

	path := exportPath(auctionID, at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("s3blob: export auction %s upload: %w", auctionID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "export.runs", map[string]any{
			"auction_id": auctionID,
			"path":       path,
			"count":      len(recs),
		}); err != nil {
			return path, len(recs), fmt.Errorf("s3blob: export auction %s audit log: %w", auctionID, err)
		}
	}
	return path, len(recs), nil
}

// ReceiptPath builds the object key for a receipt.
func ReceiptPath(r domain.Receipt) string {
	return fmt.Sprintf("receipts/%s/%s/%s.json",
		r.AuctionID, r.SessionID, r.IssuedAt.UTC().Format("20060102T150405.000Z"))
}

func exportPath(auctionID string, at time.Time) string {
	return fmt.Sprintf("exports/%s/%s.jsonl", auctionID, at.UTC().Format("2006-01-02T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.ReceiptArchive = (*Archiver)(nil)
