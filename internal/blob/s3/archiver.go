package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// Narrow store views required by the archiver. The Postgres stores satisfy
// them implicitly; the archiver never needs the full store interfaces.

// OpportunityArchiveStore reads and prunes aged opportunity history.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageLoop, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeArchiveStore reads and prunes aged trade history.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver: aged history rows are serialized to
// JSONL, uploaded to object storage partitioned by year-month, and pruned
// from the primary store only after the upload succeeds.
type Archiver struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	trades        TradeArchiveStore
	logger        *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and stores.
func NewArchiver(
	writer domain.BlobWriter,
	opportunities OpportunityArchiveStore,
	trades TradeArchiveStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:        writer,
		opportunities: opportunities,
		trades:        trades,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities uploads every opportunity detected before the cutoff
// to archive/opportunities/YYYY-MM.jsonl and prunes the archived rows. It
// returns the number of archived records.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	loops, err := a.opportunities.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(loops) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(loops)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	pruned, err := a.opportunities.DeleteBefore(ctx, before)
	if err != nil {
		// The archive exists; report the prune failure without losing that.
		return int64(len(loops)), fmt.Errorf("s3blob: prune archived opportunities: %w", err)
	}

	a.logger.Info("opportunities archived",
		slog.String("path", path),
		slog.Int("archived", len(loops)),
		slog.Int64("pruned", pruned),
	)
	return int64(len(loops)), nil
}

// ArchiveTrades uploads every trade executed before the cutoff to
// archive/trades/YYYY-MM.jsonl and prunes the archived rows. It returns the
// number of archived records.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	pruned, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logger.Info("trades archived",
		slog.String("path", path),
		slog.Int("archived", len(trades)),
		slog.Int64("pruned", pruned),
	)
	return int64(len(trades)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2026-08.jsonl
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
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
var _ domain.Archiver = (*Archiver)(nil)
