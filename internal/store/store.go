// Package store defines the table-indexed persistence abstraction shared by
// the wipe engine and the source registry. Implementations live in the
// memory and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/boardkeeper/boardkeeper/internal/identity"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Table names one of the closed set of record kinds the wipe engine can
// target. Unknown values are rejected before any scan runs.
type Table string

// The closed table set. jobs rows own zero-or-one job_details row; the
// store enforces no foreign key between them.
const (
	TableJobs          Table = "jobs"
	TableJobDetails    Table = "job_details"
	TableScrapes       Table = "scrapes"
	TableScrapeErrors  Table = "scrape_errors"
	TableSnapshots     Table = "snapshots"
	TableChanges       Table = "changes"
	TableSourceHealth  Table = "source_health"
	TableSearchHits    Table = "search_hits"
	TableWebhookEvents Table = "webhook_events"
	TableNotes         Table = "notes"
)

// SiteRefKind says which representation of the source back-reference a
// table's rows carry. Some tables store the source UUID, others a legacy
// stringified form, and a few none at all.
type SiteRefKind int

// Site reference representations.
const (
	SiteRefNone SiteRefKind = iota
	SiteRefID
	SiteRefString
)

// TableSpec describes how a table participates in domain-scoped scans:
// which URL-ish column backs its range index, how its rows reference the
// owning source, and whether deleting a row cascades to an owned child.
type TableSpec struct {
	Index       string
	SiteRef     SiteRefKind
	OwnsDetails bool
}

var tableSpecs = map[Table]TableSpec{
	TableJobs:          {Index: "url", SiteRef: SiteRefID, OwnsDetails: true},
	TableJobDetails:    {Index: "url", SiteRef: SiteRefNone},
	TableScrapes:       {Index: "source_url", SiteRef: SiteRefID},
	TableScrapeErrors:  {Index: "source_url", SiteRef: SiteRefString},
	TableSnapshots:     {Index: "url", SiteRef: SiteRefNone},
	TableChanges:       {Index: "url", SiteRef: SiteRefNone},
	TableSourceHealth:  {Index: "site_url", SiteRef: SiteRefID},
	TableSearchHits:    {Index: "url", SiteRef: SiteRefNone},
	TableWebhookEvents: {Index: "source_url", SiteRef: SiteRefString},
	TableNotes:         {Index: "site_url", SiteRef: SiteRefString},
}

// Spec returns the scan description for a table. The boolean reports
// whether the table is part of the closed set.
func (t Table) Spec() (TableSpec, bool) {
	spec, ok := tableSpecs[t]
	return spec, ok
}

// Valid reports whether t names a known table.
func (t Table) Valid() bool {
	_, ok := tableSpecs[t]
	return ok
}

// Tables returns the closed table set in a stable order.
func Tables() []Table {
	return []Table{
		TableJobs,
		TableJobDetails,
		TableScrapes,
		TableScrapeErrors,
		TableSnapshots,
		TableChanges,
		TableSourceHealth,
		TableSearchHits,
		TableWebhookEvents,
		TableNotes,
	}
}

// Source is a configured scrape target as entered by an operator, plus the
// identity derived from it at registration time.
type Source struct {
	ID           uuid.UUID         `json:"id"`
	URL          string            `json:"url"`
	DeclaredType string            `json:"declared_type,omitempty"`
	Provider     identity.Provider `json:"provider"`
	Slug         string            `json:"slug,omitempty"`
	ScrapeURL    string            `json:"scrape_url"`
	CanonicalKey string            `json:"canonical_key"`
	DisplayName  string            `json:"display_name"`
	Pattern      string            `json:"pattern,omitempty"`
	Enabled      bool              `json:"enabled"`
	ScheduleID   string            `json:"schedule_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ResolvedAt   time.Time         `json:"resolved_at"`
}

// Record is the table-neutral projection of a dependent row that the wipe
// predicate evaluates. IndexedURL holds the value of whichever URL-ish
// column backs the table's range index; LinkedURLs carries any additional
// URL-bearing fields the row has.
type Record struct {
	ID         string
	SiteID     uuid.UUID // uuid.Nil when the row carries no ID-form reference
	SiteRef    string    // stringified reference, "" when absent
	JobID      string    // job_details only: the owning jobs row
	IndexedURL string
	LinkedURLs []string
}

// Page is one bounded slice of a range scan. ContinueCursor is opaque to
// callers and only valid for resuming the same scan.
type Page struct {
	Records        []Record
	ContinueCursor string
	IsDone         bool
}

// SourceDirectory lists all configured sources. The source set is small
// relative to the dependent tables, so a full scan is acceptable.
type SourceDirectory interface {
	ListSources(ctx context.Context) ([]Source, error)
}

// RangeScanner reads one page of a table's URL-indexed range. The scan is a
// candidate-narrowing optimization only: it may return rows outside the
// domain, and the caller's predicate is authoritative.
type RangeScanner interface {
	ScanRange(ctx context.Context, table Table, lo, hi, cursor string, limit int) (Page, error)
}

// Deleter removes individual rows and resolves the jobs -> job_details
// ownership needed for cascade deletes.
type Deleter interface {
	Delete(ctx context.Context, table Table, id string) error
	JobDetailByJob(ctx context.Context, jobID string) (*Record, error)
}

// SourceWriter persists operator-configured sources.
type SourceWriter interface {
	SaveSource(ctx context.Context, src Source) error
	SourceByCanonicalKey(ctx context.Context, key string) (*Source, error)
	SourceByID(ctx context.Context, id uuid.UUID) (*Source, error)
}

// Store is the full persistence surface a backend must provide.
type Store interface {
	SourceDirectory
	SourceWriter
	RangeScanner
	Deleter

	// Insert adds a dependent row to a table. Used by ingestion and by
	// test fixtures; the wipe engine never inserts.
	Insert(ctx context.Context, table Table, rec Record) error

	// Close releases backend resources.
	Close() error
}
