package pgcache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Canadian-Geospatial-Platform/geoview-sub011/geocore"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs []execCall
	row   fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	config    []byte
	fetchedAt time.Time
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.config
	*dest[1].(*time.Time) = r.fetchedAt
	return nil
}

func TestLoadMapsNoRowsToMiss(t *testing.T) {
	c := New(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	_, ok, err := c.Load(context.Background(), "21b821cf-0f1c-40ee-8925-eab12d357668", "en")
	if err != nil || ok {
		t.Fatalf("expected a clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestLoadReturnsRecord(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	c := New(&fakeDB{row: fakeRow{config: []byte(`{"geoviewLayerId":"x"}`), fetchedAt: at}})
	record, ok, err := c.Load(context.Background(), "x", "fr")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if record.ID != "x" || record.Lang != "fr" || !record.FetchedAt.Equal(at) || string(record.Config) != `{"geoviewLayerId":"x"}` {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestLoadWrapsQueryErrors(t *testing.T) {
	boom := errors.New("connection reset")
	c := New(&fakeDB{row: fakeRow{err: boom}})
	if _, _, err := c.Load(context.Background(), "x", "en"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestSaveUpserts(t *testing.T) {
	db := &fakeDB{}
	c := New(db)
	if err := c.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("expected schema to be ensured, got %v", err)
	}
	err := c.Save(context.Background(), geocore.Record{ID: "x", Lang: "en", Config: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if len(db.execs) != 2 || !strings.Contains(db.execs[1].sql, "ON CONFLICT") {
		t.Fatalf("expected schema then upsert, got %+v", db.execs)
	}
	if stamp, ok := db.execs[1].args[3].(time.Time); !ok || stamp.IsZero() {
		t.Fatalf("expected a fetch time to be filled in")
	}
}

func TestSaveRejectsBadRecords(t *testing.T) {
	c := New(&fakeDB{})
	if err := c.Save(context.Background(), geocore.Record{ID: "x", Lang: "en", Config: json.RawMessage(`{`)}); err == nil {
		t.Fatalf("expected invalid JSON to be rejected")
	}
	if err := c.Save(context.Background(), geocore.Record{Lang: "en", Config: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}
}

// TestPostgresRoundTrip runs against a real database when
// GEOVIEW_TEST_DATABASE_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("GEOVIEW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("geocore:pgcache - GEOVIEW_TEST_DATABASE_URL not set, skipping")
	}
	ctx := context.Background()
	c, closeFn, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("expected connection, got %v", err)
	}
	defer closeFn()

	at := time.Now().UTC().Truncate(time.Millisecond)
	record := geocore.Record{ID: "pgcache-test", Lang: "en", Config: json.RawMessage(`{"geoviewLayerId":"pgcache-test"}`), FetchedAt: at}
	if err := c.Save(ctx, record); err != nil {
		t.Fatalf("expected save, got %v", err)
	}
	got, ok, err := c.Load(ctx, "pgcache-test", "en")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(got.Config, &decoded); err != nil || decoded["geoviewLayerId"] != "pgcache-test" {
		t.Fatalf("expected stored config, got %s", got.Config)
	}
	if !got.FetchedAt.Equal(at) {
		t.Fatalf("expected fetch time %v, got %v", at, got.FetchedAt)
	}
}
