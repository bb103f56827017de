package editor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"gorm.io/driver/sqlite"

	"ipcollector/internal/database"
	"ipcollector/internal/domain"
	"ipcollector/internal/storage"
)

func setupEditorTestStore(t *testing.T) *storage.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := database.SetupDB(database.WithDialector(sqlite.Open(dsn)))
	if err != nil {
		t.Fatalf("setup database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return storage.New(db)
}

var base = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func seedRecords(t *testing.T, store *storage.Store, records ...domain.IPRecord) {
	t.Helper()
	if err := store.SaveRecords(context.Background(), records); err != nil {
		t.Fatalf("seed records: %v", err)
	}
}

type fakeClipboard struct {
	writes []string
	err    error
}

func (f *fakeClipboard) WriteText(text string) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, text)
	return nil
}

type fakeCountries map[string]string

func (f fakeCountries) CountryCode(ip string) string {
	if code, ok := f[ip]; ok {
		return code
	}
	return "N/A"
}

func TestSavePatternsRoundTrip(t *testing.T) {
	store := setupEditorTestStore(t)
	e := New(store)
	ctx := context.Background()

	text := "  ^a\\.example\\.com$ \n\n\tfoo\n   \nfoo\n"
	saved, err := e.SavePatterns(ctx, text)
	if err != nil {
		t.Fatalf("SavePatterns returned error: %v", err)
	}

	want := []string{`^a\.example\.com$`, "foo", "foo"}
	if !reflect.DeepEqual(saved, want) {
		t.Fatalf("SavePatterns returned %v, want %v", saved, want)
	}

	reloaded, err := store.LoadPatterns(ctx)
	if err != nil {
		t.Fatalf("LoadPatterns returned error: %v", err)
	}
	if !reflect.DeepEqual(reloaded, want) {
		t.Fatalf("reloaded patterns %v, want %v", reloaded, want)
	}

	listed, err := e.Patterns(ctx)
	if err != nil {
		t.Fatalf("Patterns returned error: %v", err)
	}
	if listed != "^a\\.example\\.com$\nfoo\nfoo" {
		t.Fatalf("Patterns() = %q", listed)
	}
}

func TestSavePatternsIsAllOrNothing(t *testing.T) {
	store := setupEditorTestStore(t)
	e := New(store)
	ctx := context.Background()

	if _, err := e.SavePatterns(ctx, "keep\nthese"); err != nil {
		t.Fatalf("initial SavePatterns returned error: %v", err)
	}

	_, err := e.SavePatterns(ctx, "valid\n(broken\nalso-valid")
	var invalid *InvalidPatternError
	if !errors.As(err, &invalid) {
		t.Fatalf("SavePatterns error = %v, want *InvalidPatternError", err)
	}
	if invalid.Pattern != "(broken" {
		t.Fatalf("InvalidPatternError.Pattern = %q, want (broken", invalid.Pattern)
	}
	if invalid.Error() != "Invalid regex pattern: (broken" {
		t.Fatalf("error message = %q", invalid.Error())
	}

	got, err := store.LoadPatterns(ctx)
	if err != nil {
		t.Fatalf("LoadPatterns returned error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"keep", "these"}) {
		t.Fatalf("patterns after rejected save = %v, want [keep these]", got)
	}
}

func TestSavePatternsEmptyTextClearsList(t *testing.T) {
	store := setupEditorTestStore(t)
	e := New(store)
	ctx := context.Background()

	if _, err := e.SavePatterns(ctx, "a"); err != nil {
		t.Fatalf("SavePatterns returned error: %v", err)
	}
	if _, err := e.SavePatterns(ctx, " \n "); err != nil {
		t.Fatalf("SavePatterns returned error: %v", err)
	}

	got, err := store.LoadPatterns(ctx)
	if err != nil {
		t.Fatalf("LoadPatterns returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("patterns = %v, want empty", got)
	}
}

func TestAddPattern(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		candidate string
		want      string
		wantErr   bool
	}{
		{"into empty text", "", " ^a$ ", "^a$", false},
		{"appends on new line", "^a$", "^b$", "^a$\n^b$", false},
		{"empty candidate ignored", "^a$", "   ", "^a$", false},
		{"invalid rejected", "^a$", "a(", "^a$", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AddPattern(tc.text, tc.candidate)
			if (err != nil) != tc.wantErr {
				t.Fatalf("AddPattern error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("AddPattern(%q, %q) = %q, want %q", tc.text, tc.candidate, got, tc.want)
			}
		})
	}
}

func TestRecordsSortedByRecency(t *testing.T) {
	store := setupEditorTestStore(t)
	seedRecords(t, store,
		domain.IPRecord{IP: "1.1.1.1", FirstSeenHost: "old.example.com", FirstSeenAt: base},
		domain.IPRecord{IP: "2.2.2.2", FirstSeenHost: "new.example.com", FirstSeenAt: base.Add(time.Hour)},
	)

	e := New(store, WithLocation(time.UTC), WithCountryLookup(fakeCountries{"2.2.2.2": "DE"}))
	views, err := e.Records(context.Background())
	if err != nil {
		t.Fatalf("Records returned error: %v", err)
	}

	if len(views) != 2 || views[0].IP != "2.2.2.2" || views[1].IP != "1.1.1.1" {
		t.Fatalf("Records order = %+v", views)
	}
	if views[0].Country != "DE" || views[1].Country != "N/A" {
		t.Fatalf("countries = %q, %q", views[0].Country, views[1].Country)
	}
	if got := views[1].String(); got != "1.1.1.1 (from old.example.com at 2024-06-01 08:30:00)" {
		t.Fatalf("RecordView.String() = %q", got)
	}
}

func TestRecordsEmptyCollection(t *testing.T) {
	store := setupEditorTestStore(t)
	views, err := New(store).Records(context.Background())
	if err != nil {
		t.Fatalf("Records returned error: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("Records = %+v, want none", views)
	}
}

func TestDeleteRecord(t *testing.T) {
	store := setupEditorTestStore(t)
	seedRecords(t, store,
		domain.IPRecord{IP: "1.1.1.1", FirstSeenAt: base},
		domain.IPRecord{IP: "2.2.2.2", FirstSeenAt: base},
	)
	e := New(store)
	ctx := context.Background()

	if err := e.DeleteRecord(ctx, "1.1.1.1"); err != nil {
		t.Fatalf("DeleteRecord returned error: %v", err)
	}
	records, _ := store.LoadRecords(ctx)
	if len(records) != 1 || records[0].IP != "2.2.2.2" {
		t.Fatalf("records after delete = %+v", records)
	}

	changes := 0
	store.Subscribe(func(storage.Change) { changes++ })
	if err := e.DeleteRecord(ctx, "7.7.7.7"); err != nil {
		t.Fatalf("DeleteRecord of unknown IP returned error: %v", err)
	}
	after, _ := store.LoadRecords(ctx)
	if !reflect.DeepEqual(after, records) {
		t.Fatalf("deleting unknown IP changed collection: %+v", after)
	}
	if changes != 0 {
		t.Fatal("deleting unknown IP wrote to storage")
	}
}

func TestClearRecords(t *testing.T) {
	store := setupEditorTestStore(t)
	seedRecords(t, store, domain.IPRecord{IP: "1.1.1.1", FirstSeenAt: base})
	e := New(store)
	ctx := context.Background()

	if err := e.ClearRecords(ctx, false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("ClearRecords without confirmation error = %v, want ErrNotConfirmed", err)
	}
	if records, _ := store.LoadRecords(ctx); len(records) != 1 {
		t.Fatal("unconfirmed clear removed records")
	}

	if err := e.ClearRecords(ctx, true); err != nil {
		t.Fatalf("ClearRecords returned error: %v", err)
	}
	raw, _, err := store.Get(ctx, storage.KeyCollectedIPs)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("persisted collection = %s, want []", raw)
	}
	if views, _ := e.Records(ctx); len(views) != 0 {
		t.Fatalf("Records after clear = %+v", views)
	}
}

func TestCopyCIDRs(t *testing.T) {
	store := setupEditorTestStore(t)
	seedRecords(t, store,
		domain.IPRecord{IP: "::1", FirstSeenAt: base},
		domain.IPRecord{IP: "1.2.3.4", FirstSeenAt: base.Add(time.Minute)},
	)

	clipboard := &fakeClipboard{}
	text, err := New(store).CopyCIDRs(context.Background(), clipboard)
	if err != nil {
		t.Fatalf("CopyCIDRs returned error: %v", err)
	}
	if text != "1.2.3.4/32,::1/128" {
		t.Fatalf("CopyCIDRs text = %q, want 1.2.3.4/32,::1/128", text)
	}
	if len(clipboard.writes) != 1 || clipboard.writes[0] != text {
		t.Fatalf("clipboard writes = %v", clipboard.writes)
	}
}

func TestCopyCIDRsEmptyCollectionIsNoop(t *testing.T) {
	store := setupEditorTestStore(t)
	clipboard := &fakeClipboard{}

	text, err := New(store).CopyCIDRs(context.Background(), clipboard)
	if err != nil {
		t.Fatalf("CopyCIDRs returned error: %v", err)
	}
	if text != "" || len(clipboard.writes) != 0 {
		t.Fatalf("CopyCIDRs on empty collection wrote %v (text %q)", clipboard.writes, text)
	}
}

func TestCopyCIDRsClipboardFailure(t *testing.T) {
	store := setupEditorTestStore(t)
	seedRecords(t, store, domain.IPRecord{IP: "1.2.3.4", FirstSeenAt: base})

	_, err := New(store).CopyCIDRs(context.Background(), &fakeClipboard{err: errors.New("no display")})
	if err == nil {
		t.Fatal("CopyCIDRs ignored clipboard failure")
	}
}

func TestFormatCIDR(t *testing.T) {
	cases := map[string]string{
		"1.2.3.4":        "1.2.3.4/32",
		"2001:db8::1":    "2001:db8::1/128",
		"::ffff:1.2.3.4": "::ffff:1.2.3.4/128",
		"not:an-ip":      "not:an-ip/128",
	}
	for ip, want := range cases {
		if got := FormatCIDR(ip); got != want {
			t.Errorf("FormatCIDR(%q) = %q, want %q", ip, got, want)
		}
	}
}
