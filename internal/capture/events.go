package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"ipcollector/internal/domain"
)

// requestTracker remembers request URLs until the request finishes, so a
// loading failure can be reported with the URL it belonged to.
type requestTracker struct {
	mu   sync.Mutex
	urls map[proto.NetworkRequestID]string
	max  int
}

func newRequestTracker(max int) *requestTracker {
	return &requestTracker{urls: make(map[proto.NetworkRequestID]string), max: max}
}

func (t *requestTracker) remember(id proto.NetworkRequestID, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.max > 0 && len(t.urls) >= t.max {
		if _, ok := t.urls[id]; !ok {
			// requests that never finish would otherwise accumulate forever
			t.urls = make(map[proto.NetworkRequestID]string)
		}
	}
	t.urls[id] = url
}

func (t *requestTracker) forget(id proto.NetworkRequestID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	url, ok := t.urls[id]
	delete(t.urls, id)
	return url, ok
}

func (t *requestTracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func completedObservation(e *proto.NetworkResponseReceived) domain.Observation {
	if e == nil || e.Response == nil {
		return domain.Observation{Event: domain.ObservationCompleted}
	}
	return domain.Observation{
		URL:             e.Response.URL,
		IP:              e.Response.RemoteIPAddress,
		Event:           domain.ObservationCompleted,
		ResponseHeaders: convertHeaders(e.Response.Headers),
	}
}

// failedObservation carries no IP: a request that errored out has no
// completed connection to report.
func failedObservation(url string) domain.Observation {
	return domain.Observation{URL: url, Event: domain.ObservationFailed}
}

func convertHeaders(headers proto.NetworkHeaders) []domain.Header {
	if len(headers) == 0 {
		return nil
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.Header, 0, len(names))
	for _, name := range names {
		out = append(out, domain.Header{Name: name, Value: fmt.Sprint(headers[name])})
	}
	return out
}
