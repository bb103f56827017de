package domain

import (
	"sort"
	"time"
)

// IPRecord is the first-seen fact for one IP address. It is never updated
// once stored; a later match on the same IP leaves it untouched.
type IPRecord struct {
	IP            string    `json:"ip"`
	FirstSeenHost string    `json:"firstSeenHost"`
	FirstSeenAt   time.Time `json:"firstSeenAt"`
}

// SortByRecency returns a copy of records ordered by FirstSeenAt, newest first.
func SortByRecency(records []IPRecord) []IPRecord {
	sorted := make([]IPRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstSeenAt.After(sorted[j].FirstSeenAt)
	})
	return sorted
}

// IndexByIP keys records by IP. When the same IP appears twice the later entry wins.
func IndexByIP(records []IPRecord) map[string]IPRecord {
	index := make(map[string]IPRecord, len(records))
	for _, record := range records {
		index[record.IP] = record
	}
	return index
}

// ContainsIP reports whether records hold an entry for ip.
func ContainsIP(records []IPRecord, ip string) bool {
	for _, record := range records {
		if record.IP == ip {
			return true
		}
	}
	return false
}
