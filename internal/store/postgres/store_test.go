package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardkeeper/boardkeeper/internal/store"
)

var scanColumns = []string{"id", "url", "site_id", "site_ref", "job_id", "linked_a", "linked_b"}

func TestScanRangeReturnsPage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	siteID := uuid.New()
	lo := "https://acme.com"
	hi := lo + "￿"

	rows := pgxmock.NewRows(scanColumns).
		AddRow("job-1", "https://acme.com/careers/role-1", ptr(siteID.String()), nil, nil, nil, nil).
		AddRow("job-2", "https://acme.com/careers/role-2", nil, nil, nil, nil, nil).
		AddRow("job-3", "https://acme.com/careers/role-3", ptr("not-a-uuid"), nil, nil, nil, nil)

	mock.ExpectQuery("FROM jobs WHERE").
		WithArgs(lo, hi, "", "", 3).
		WillReturnRows(rows)

	page, err := s.ScanRange(context.Background(), store.TableJobs, lo, hi, "", 2)
	require.NoError(t, err)

	require.Len(t, page.Records, 2)
	assert.False(t, page.IsDone)
	assert.NotEmpty(t, page.ContinueCursor)
	assert.Equal(t, siteID, page.Records[0].SiteID)
	assert.Equal(t, uuid.Nil, page.Records[1].SiteID)

	cursor, err := store.DecodeCursor(page.ContinueCursor)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com/careers/role-2", cursor.Key)
	assert.Equal(t, "job-2", cursor.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRangeMalformedSiteIDDegrades(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	rows := pgxmock.NewRows(scanColumns).
		AddRow("scrape-1", "https://acme.com/careers", ptr("garbage"), nil, nil, ptr("https://acme.com/listing"), nil)

	mock.ExpectQuery("FROM scrapes WHERE").
		WithArgs("https://acme.com", "https://acme.com￿", "", "", 11).
		WillReturnRows(rows)

	page, err := s.ScanRange(context.Background(), store.TableScrapes, "https://acme.com", "https://acme.com￿", "", 10)
	require.NoError(t, err)

	require.Len(t, page.Records, 1)
	assert.Equal(t, uuid.Nil, page.Records[0].SiteID)
	assert.Equal(t, []string{"https://acme.com/listing"}, page.Records[0].LinkedURLs)
	assert.True(t, page.IsDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRangeRejectsUnknownTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	_, err = s.ScanRange(context.Background(), store.Table("employees; DROP TABLE jobs"), "a", "b", "", 10)
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM jobs WHERE id = \\$1").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.Delete(context.Background(), store.TableJobs, "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobDetailByJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, url, job_id FROM job_details").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "job_id"}).
			AddRow("detail-1", "https://acme.com/careers/role-1", "job-1"))

	detail, err := s.JobDetailByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "detail-1", detail.ID)

	mock.ExpectQuery("SELECT id, url, job_id FROM job_details").
		WithArgs("job-2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "job_id"}))

	missing, err := s.JobDetailByJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndListSources(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	src := store.Source{
		ID:           uuid.New(),
		URL:          "https://acme.com/careers",
		DeclaredType: "general",
		Provider:     "generic",
		ScrapeURL:    "https://acme.com/careers",
		CanonicalKey: "general:https://acme.com/careers",
		DisplayName:  "acme",
		Enabled:      true,
		CreatedAt:    now,
		ResolvedAt:   now,
	}

	mock.ExpectExec("INSERT INTO sources").
		WithArgs(
			src.ID.String(), src.URL, src.DeclaredType, "generic", src.Slug,
			src.ScrapeURL, src.CanonicalKey, src.DisplayName, src.Pattern,
			src.Enabled, src.ScheduleID, src.CreatedAt, src.ResolvedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveSource(context.Background(), src))

	mock.ExpectQuery("FROM sources ORDER BY id").
		WillReturnRows(sourceRows(src))

	listed, err := s.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, src.ID, listed[0].ID)
	assert.Equal(t, src.CanonicalKey, listed[0].CanonicalKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceByCanonicalKeyMiss(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("FROM sources WHERE canonical_key").
		WithArgs("general:https://missing.example/").
		WillReturnRows(sourceRows())

	got, err := s.SourceByCanonicalKey(context.Background(), "general:https://missing.example/")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBuildsTableShape(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewWithPool(mock)
	require.NoError(t, err)

	siteID := uuid.New()
	mock.ExpectExec("INSERT INTO scrapes").
		WithArgs("scrape-1", "https://acme.com/careers", siteID.String(), "https://acme.com/listing", nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.Insert(context.Background(), store.TableScrapes, store.Record{
		ID:         "scrape-1",
		SiteID:     siteID,
		IndexedURL: "https://acme.com/careers",
		LinkedURLs: []string{"https://acme.com/listing"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func sourceRows(srcs ...store.Source) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "url", "declared_type", "provider", "slug", "scrape_url",
		"canonical_key", "display_name", "pattern", "enabled", "schedule_id",
		"created_at", "resolved_at",
	})
	for _, src := range srcs {
		rows.AddRow(
			src.ID.String(), src.URL, src.DeclaredType, string(src.Provider), src.Slug,
			src.ScrapeURL, src.CanonicalKey, src.DisplayName, src.Pattern,
			src.Enabled, src.ScheduleID, src.CreatedAt, src.ResolvedAt,
		)
	}
	return rows
}

func ptr(s string) *string { return &s }
