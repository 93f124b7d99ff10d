package sources_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkeeper/boardkeeper/internal/identity"
	"github.com/boardkeeper/boardkeeper/internal/sources"
	"github.com/boardkeeper/boardkeeper/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newService(t *testing.T) (*sources.Service, *memory.Store) {
	t.Helper()
	s := memory.New()
	clock := fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return sources.NewService(s, clock, nil), s
}

func TestRegisterResolvesIdentity(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	src, created, err := svc.Register(context.Background(), sources.RegisterInput{
		URL: "https://boards.greenhouse.io/acme",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, identity.ProviderGreenhouse, src.Provider)
	assert.Equal(t, "acme", src.Slug)
	assert.Equal(t, "https://boards-api.greenhouse.io/v1/boards/acme/jobs", src.ScrapeURL)
	assert.Equal(t, "greenhouse:https://boards-api.greenhouse.io/v1/boards/acme/jobs", src.CanonicalKey)
	assert.Equal(t, "acme", src.DisplayName)
	assert.True(t, src.Enabled)
	assert.False(t, src.CreatedAt.IsZero())
}

func TestRegisterDedupesByCanonicalKey(t *testing.T) {
	t.Parallel()

	svc, backing := newService(t)
	ctx := context.Background()

	first, created, err := svc.Register(ctx, sources.RegisterInput{URL: "https://acme.com/careers"})
	require.NoError(t, err)
	require.True(t, created)

	// Cosmetic variants of the same board must not create a second source.
	variants := []string{
		"https://acme.com/careers/",
		"https://ACME.com/careers",
		"https://acme.com/careers#openings",
	}
	for _, raw := range variants {
		dup, dupCreated, err := svc.Register(ctx, sources.RegisterInput{URL: raw})
		require.NoError(t, err)
		assert.False(t, dupCreated, "variant %q", raw)
		assert.Equal(t, first.ID, dup.ID, "variant %q", raw)
	}

	all, err := backing.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, _, err := svc.Register(context.Background(), sources.RegisterInput{URL: "   "})
	assert.ErrorIs(t, err, sources.ErrEmptyURL)
}

func TestRegisterKeepsPatternAndSchedule(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	first, _, err := svc.Register(ctx, sources.RegisterInput{
		URL:        "https://acme.com/careers",
		Pattern:    "/careers/*",
		ScheduleID: "sched-1",
	})
	require.NoError(t, err)

	// Re-registering without pattern/schedule must not clear them.
	second, created, err := svc.Register(ctx, sources.RegisterInput{URL: "https://acme.com/careers/"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Pattern, second.Pattern)
	assert.Equal(t, first.ScheduleID, second.ScheduleID)
}

func TestReResolve(t *testing.T) {
	t.Parallel()

	svc, backing := newService(t)
	ctx := context.Background()

	src, _, err := svc.Register(ctx, sources.RegisterInput{URL: "https://acme.com/careers"})
	require.NoError(t, err)

	// Simulate a stale derived identity from before a resolver fix.
	stale := src
	stale.ScrapeURL = "https://old.example/endpoint"
	stale.DisplayName = "old"
	require.NoError(t, backing.SaveSource(ctx, stale))

	fresh, err := svc.ReResolve(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com/careers", fresh.ScrapeURL)
	assert.Equal(t, "acme", fresh.DisplayName)
}

func TestResolvePreviewMatchesRegister(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	raw := "https://boards.greenhouse.io/v1/boards/acme/jobs"

	preview := svc.Resolve(raw, "")
	registered, _, err := svc.Register(context.Background(), sources.RegisterInput{URL: raw})
	require.NoError(t, err)

	assert.Equal(t, preview.ScrapeURL, registered.ScrapeURL)
	assert.Equal(t, preview.CanonicalKey, registered.CanonicalKey)
	assert.Equal(t, string(preview.Provider), string(registered.Provider))
}

func TestReResolveUnknownSource(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	_, err := svc.ReResolve(context.Background(), uuid.New())
	require.Error(t, err)
}
