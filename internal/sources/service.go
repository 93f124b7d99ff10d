// Package sources manages operator-configured scrape targets. Registration
// and re-resolution both go through the identity resolver, so the scrape
// endpoint and canonical key can never drift between call sites.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boardkeeper/boardkeeper/internal/identity"
	"github.com/boardkeeper/boardkeeper/internal/metrics"
	"github.com/boardkeeper/boardkeeper/internal/store"
)

// ErrEmptyURL is returned when a registration request has no URL.
var ErrEmptyURL = errors.New("url is required")

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// Directory is the slice of the store the service needs.
type Directory interface {
	store.SourceDirectory
	store.SourceWriter
}

// Service registers and re-resolves sources.
type Service struct {
	dir    Directory
	clock  Clock
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(dir Directory, clock Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{dir: dir, clock: clock, logger: logger}
}

// RegisterInput is an operator's registration request.
type RegisterInput struct {
	URL          string `json:"url"`
	DeclaredType string `json:"declared_type,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	ScheduleID   string `json:"schedule_id,omitempty"`
}

// Register resolves the URL's identity and persists the source. Two raw
// URLs with the same canonical key are the same source: registering a
// duplicate re-resolves the existing record instead of creating another.
// The boolean reports whether a new source was created.
func (s *Service) Register(ctx context.Context, in RegisterInput) (store.Source, bool, error) {
	raw := strings.TrimSpace(in.URL)
	if raw == "" {
		return store.Source{}, false, ErrEmptyURL
	}
	id := identity.Resolve(raw, in.DeclaredType)
	metrics.ObserveSourceResolved(string(id.Provider))

	existing, err := s.dir.SourceByCanonicalKey(ctx, id.CanonicalKey)
	if err != nil {
		return store.Source{}, false, fmt.Errorf("lookup canonical key: %w", err)
	}
	now := s.clock.Now()
	if existing != nil {
		src := *existing
		applyIdentity(&src, id, now)
		if in.Pattern != "" {
			src.Pattern = in.Pattern
		}
		if in.ScheduleID != "" {
			src.ScheduleID = in.ScheduleID
		}
		if err := s.dir.SaveSource(ctx, src); err != nil {
			return store.Source{}, false, fmt.Errorf("save source: %w", err)
		}
		s.logger.Info("source re-registered",
			zap.String("source_id", src.ID.String()),
			zap.String("canonical_key", src.CanonicalKey),
		)
		return src, false, nil
	}

	sourceID, err := uuid.NewV7()
	if err != nil {
		return store.Source{}, false, fmt.Errorf("generate source id: %w", err)
	}
	src := store.Source{
		ID:           sourceID,
		URL:          raw,
		DeclaredType: strings.ToLower(strings.TrimSpace(in.DeclaredType)),
		Pattern:      in.Pattern,
		ScheduleID:   in.ScheduleID,
		Enabled:      true,
		CreatedAt:    now,
	}
	applyIdentity(&src, id, now)
	if err := s.dir.SaveSource(ctx, src); err != nil {
		return store.Source{}, false, fmt.Errorf("save source: %w", err)
	}
	s.logger.Info("source registered",
		zap.String("source_id", src.ID.String()),
		zap.String("provider", string(src.Provider)),
		zap.String("canonical_key", src.CanonicalKey),
	)
	return src, true, nil
}

// Resolve previews the identity for a raw URL without persisting anything.
// This is the admin preview path, served by the same resolver as Register.
func (s *Service) Resolve(rawURL, declaredType string) identity.Identity {
	return identity.Resolve(rawURL, declaredType)
}

// ReResolve recomputes the derived identity of an existing source from its
// stored raw URL, e.g. after a resolver fix.
func (s *Service) ReResolve(ctx context.Context, sourceID uuid.UUID) (store.Source, error) {
	existing, err := s.dir.SourceByID(ctx, sourceID)
	if err != nil {
		return store.Source{}, fmt.Errorf("load source: %w", err)
	}
	if existing == nil {
		return store.Source{}, fmt.Errorf("source %s not found", sourceID)
	}
	src := *existing
	applyIdentity(&src, identity.Resolve(src.URL, src.DeclaredType), s.clock.Now())
	if err := s.dir.SaveSource(ctx, src); err != nil {
		return store.Source{}, fmt.Errorf("save source: %w", err)
	}
	return src, nil
}

// List returns all configured sources.
func (s *Service) List(ctx context.Context) ([]store.Source, error) {
	srcs, err := s.dir.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return srcs, nil
}

func applyIdentity(src *store.Source, id identity.Identity, now time.Time) {
	src.Provider = id.Provider
	src.Slug = id.Slug
	src.ScrapeURL = id.ScrapeURL
	src.CanonicalKey = id.CanonicalKey
	src.DisplayName = id.DisplayName
	src.ResolvedAt = now
}
