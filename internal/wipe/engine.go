// Package wipe implements domain-scoped bulk deletion across the dependent
// tables. One call removes (or previews) at most one bounded page of rows;
// the caller re-invokes with the returned cursor until HasMore is false.
package wipe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boardkeeper/boardkeeper/internal/metrics"
	"github.com/boardkeeper/boardkeeper/internal/store"
)

// Batch size bounds. A page is the unit of work per invocation; the clamp
// protects the backing store from unbounded single-call scans.
const (
	DefaultBatchSize = 500
	MaxBatchSize     = 2000
	MinBatchSize     = 1
)

// Validation errors surfaced to the caller. Neither is retryable without
// correcting the request.
var (
	ErrEmptyDomain  = errors.New("domain is required")
	ErrUnknownTable = errors.New("unknown table")
)

// Request scopes one page of a wipe.
type Request struct {
	// Domain is the substring that scopes the wipe; trimmed and
	// lowercased before use. Required.
	Domain string
	// Prefix overrides the range-scan lower bound. Defaults to
	// "https://<domain>".
	Prefix string
	// Table is the target table; must be one of the closed set.
	Table store.Table
	// DryRun computes the deletion set without mutating storage.
	DryRun bool
	// BatchSize bounds rows examined this page; clamped to [1, 2000].
	BatchSize int
	// Cursor resumes a prior scan. Empty means start of range. Only
	// valid for the same (domain, prefix, table) triple it came from.
	Cursor string
}

// SiteMatch identifies a configured source whose URL matched the wipe
// domain, returned so the operator can confirm the blast radius.
type SiteMatch struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	DisplayName string    `json:"display_name"`
}

// Result reports one page of a wipe.
type Result struct {
	Scanned      int         `json:"scanned"`
	Deleted      int         `json:"deleted"`
	HasMore      bool        `json:"has_more"`
	Cursor       string      `json:"cursor,omitempty"`
	MatchedSites []SiteMatch `json:"matched_sites"`
}

// Backend is the slice of the store the engine needs.
type Backend interface {
	store.SourceDirectory
	store.RangeScanner
	store.Deleter
}

// Engine executes bounded pages of a domain-scoped wipe.
type Engine struct {
	backend Backend
	logger  *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(backend Backend, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, logger: logger}
}

// WipePage runs exactly one page of a domain-scoped wipe. The range scan
// over [prefix, prefix+"￿") only narrows candidates; the per-row
// predicate decides deletion. Rows with malformed references simply fail
// the predicate: under-deletion is the safe failure mode.
func (e *Engine) WipePage(ctx context.Context, req Request) (Result, error) {
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" {
		return Result{}, ErrEmptyDomain
	}
	spec, ok := req.Table.Spec()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTable, req.Table)
	}
	batch := ClampBatchSize(req.BatchSize)

	sources, err := e.backend.ListSources(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list sources: %w", err)
	}
	matchedIDs := make(map[uuid.UUID]struct{})
	matchedRefs := make(map[string]struct{})
	matched := make([]SiteMatch, 0)
	for _, src := range sources {
		if !strings.Contains(strings.ToLower(src.URL), domain) {
			continue
		}
		matchedIDs[src.ID] = struct{}{}
		matchedRefs[src.ID.String()] = struct{}{}
		matched = append(matched, SiteMatch{ID: src.ID, URL: src.URL, DisplayName: src.DisplayName})
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = "https://" + domain
	}
	hi := prefix + "￿"

	page, err := e.backend.ScanRange(ctx, req.Table, prefix, hi, req.Cursor, batch)
	if err != nil {
		return Result{}, fmt.Errorf("scan %s: %w", req.Table, err)
	}

	deleted := 0
	for _, rec := range page.Records {
		if !matchRecord(rec, domain, matchedIDs, matchedRefs) {
			continue
		}
		deleted++
		if req.DryRun {
			continue
		}
		if spec.OwnsDetails {
			// The store enforces no foreign key; the owned detail row
			// must go first or it is orphaned.
			detail, derr := e.backend.JobDetailByJob(ctx, rec.ID)
			if derr != nil {
				return Result{}, fmt.Errorf("lookup job detail for %s: %w", rec.ID, derr)
			}
			if detail != nil {
				if derr := e.backend.Delete(ctx, store.TableJobDetails, detail.ID); derr != nil {
					return Result{}, fmt.Errorf("delete job detail %s: %w", detail.ID, derr)
				}
			}
		}
		if err := e.backend.Delete(ctx, req.Table, rec.ID); err != nil {
			return Result{}, fmt.Errorf("delete %s row %s: %w", req.Table, rec.ID, err)
		}
	}

	res := Result{
		Scanned:      len(page.Records),
		Deleted:      deleted,
		HasMore:      !page.IsDone,
		Cursor:       page.ContinueCursor,
		MatchedSites: matched,
	}
	metrics.ObserveWipePage(string(req.Table), req.DryRun, res.Scanned, res.Deleted)
	e.logger.Info("wipe page complete",
		zap.String("domain", domain),
		zap.String("table", string(req.Table)),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("scanned", res.Scanned),
		zap.Int("deleted", res.Deleted),
		zap.Bool("has_more", res.HasMore),
	)
	return res, nil
}

// ClampBatchSize bounds a requested batch size to [MinBatchSize,
// MaxBatchSize]. Zero and negative requests behave as MinBatchSize.
func ClampBatchSize(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// matchRecord is the authoritative deletion predicate: the row references a
// matched source, or any of its URL-bearing fields contains the domain.
func matchRecord(
	rec store.Record,
	domain string,
	matchedIDs map[uuid.UUID]struct{},
	matchedRefs map[string]struct{},
) bool {
	if rec.SiteID != uuid.Nil {
		if _, ok := matchedIDs[rec.SiteID]; ok {
			return true
		}
	}
	if rec.SiteRef != "" {
		if _, ok := matchedRefs[rec.SiteRef]; ok {
			return true
		}
	}
	if containsDomain(rec.IndexedURL, domain) {
		return true
	}
	for _, u := range rec.LinkedURLs {
		if containsDomain(u, domain) {
			return true
		}
	}
	return false
}

func containsDomain(rawURL, domain string) bool {
	return rawURL != "" && strings.Contains(strings.ToLower(rawURL), domain)
}
