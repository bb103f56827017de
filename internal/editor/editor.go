package editor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ipcollector/internal/domain"
	"ipcollector/internal/storage"
)

const defaultTimeFormat = "2006-01-02 15:04:05"

// CountryLookup resolves an IP to an ISO country code.
type CountryLookup interface {
	CountryCode(ip string) string
}

type Clipboard interface {
	WriteText(text string) error
}

// RecordView is a collected record prepared for display.
type RecordView struct {
	IP            string    `json:"ip"`
	FirstSeenHost string    `json:"firstSeenHost"`
	FirstSeenAt   time.Time `json:"firstSeenAt"`
	Seen          string    `json:"seen"`
	Country       string    `json:"country,omitempty"`
}

func (v RecordView) String() string {
	return fmt.Sprintf("%s (from %s at %s)", v.IP, v.FirstSeenHost, v.Seen)
}

// Editor implements the operator's view over the persisted patterns and
// records. It keeps no state of its own: every call reads storage first.
type Editor struct {
	store      *storage.Store
	countries  CountryLookup
	location   *time.Location
	timeFormat string
}

type Option func(*Editor)

func WithCountryLookup(lookup CountryLookup) Option {
	return func(e *Editor) {
		e.countries = lookup
	}
}

func WithLocation(loc *time.Location) Option {
	return func(e *Editor) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithTimeFormat(layout string) Option {
	return func(e *Editor) {
		if layout != "" {
			e.timeFormat = layout
		}
	}
}

func New(store *storage.Store, opts ...Option) *Editor {
	e := &Editor{
		store:      store,
		location:   time.Local,
		timeFormat: defaultTimeFormat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Patterns returns the persisted pattern list as editable text, one per line.
func (e *Editor) Patterns(ctx context.Context) (string, error) {
	patterns, err := e.store.LoadPatterns(ctx)
	if err != nil {
		return "", err
	}
	return strings.Join(patterns, "\n"), nil
}

func ValidatePattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		log.Error("Invalid regex", "pattern", pattern, "error", err)
		return &InvalidPatternError{Pattern: pattern, Err: err}
	}
	return nil
}

// AddPattern appends candidate to text on its own line. An empty candidate
// leaves text as it is. Nothing is persisted.
func AddPattern(text, candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return text, nil
	}
	if err := ValidatePattern(candidate); err != nil {
		return text, err
	}
	if text == "" {
		return candidate, nil
	}
	return text + "\n" + candidate, nil
}

// SplitPatterns turns editable text into a pattern list: one per line,
// trimmed, blank lines dropped. Duplicates are kept.
func SplitPatterns(text string) []string {
	lines := strings.Split(text, "\n")
	patterns := make([]string, 0, len(lines))
	for _, line := range lines {
		if p := strings.TrimSpace(line); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// SavePatterns validates every line of text and persists the list only if all
// of them compile.
func (e *Editor) SavePatterns(ctx context.Context, text string) ([]string, error) {
	patterns := SplitPatterns(text)
	for _, pattern := range patterns {
		if err := ValidatePattern(pattern); err != nil {
			return nil, err
		}
	}

	if err := e.store.SavePatterns(ctx, patterns); err != nil {
		return nil, err
	}
	log.Info("Patterns saved", "count", len(patterns))
	return patterns, nil
}

// Records lists collected IPs, most recently first-seen first.
func (e *Editor) Records(ctx context.Context) ([]RecordView, error) {
	records, err := e.store.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}

	sorted := domain.SortByRecency(records)
	views := make([]RecordView, 0, len(sorted))
	for _, record := range sorted {
		view := RecordView{
			IP:            record.IP,
			FirstSeenHost: record.FirstSeenHost,
			FirstSeenAt:   record.FirstSeenAt,
			Seen:          record.FirstSeenAt.In(e.location).Format(e.timeFormat),
		}
		if e.countries != nil {
			view.Country = e.countries.CountryCode(record.IP)
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteRecord removes ip from the collection. Deleting an unknown IP is a no-op.
func (e *Editor) DeleteRecord(ctx context.Context, ip string) error {
	_, _, err := e.store.UpdateRecords(ctx, func(current []domain.IPRecord) ([]domain.IPRecord, bool, error) {
		remaining := make([]domain.IPRecord, 0, len(current))
		for _, record := range current {
			if record.IP != ip {
				remaining = append(remaining, record)
			}
		}
		return remaining, len(remaining) != len(current), nil
	})
	if err != nil {
		return err
	}
	log.Debug("IP deleted", "ip", ip)
	return nil
}

func (e *Editor) ClearRecords(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := e.store.SaveRecords(ctx, []domain.IPRecord{}); err != nil {
		return err
	}
	log.Info("All IPs cleared")
	return nil
}

// CIDRText formats the collection, newest first, as comma separated host prefixes.
func (e *Editor) CIDRText(ctx context.Context) (string, error) {
	records, err := e.store.LoadRecords(ctx)
	if err != nil {
		return "", err
	}

	sorted := domain.SortByRecency(records)
	prefixes := make([]string, 0, len(sorted))
	for _, record := range sorted {
		prefixes = append(prefixes, FormatCIDR(record.IP))
	}
	return strings.Join(prefixes, ","), nil
}

// CopyCIDRs writes CIDRText to clipboard. An empty collection leaves the
// clipboard untouched.
func (e *Editor) CopyCIDRs(ctx context.Context, clipboard Clipboard) (string, error) {
	text, err := e.CIDRText(ctx)
	if err != nil {
		return "", err
	}
	if text == "" || clipboard == nil {
		return text, nil
	}

	if err := clipboard.WriteText(text); err != nil {
		return "", fmt.Errorf("editor: write clipboard: %w", err)
	}
	log.Info("Copied IPs with CIDR", "text", text)
	return text, nil
}
