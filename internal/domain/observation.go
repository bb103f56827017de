package domain

type ObservationEvent string

const (
	ObservationCompleted ObservationEvent = "completed"
	ObservationFailed    ObservationEvent = "failed"
)

// Header mirrors the {name, value} pairs a browser reports for a response.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// Observation is one request-lifecycle notification. IP is empty when the
// browser did not report a remote address (typical for failed requests).
type Observation struct {
	URL             string           `json:"url"`
	IP              string           `json:"ip,omitempty"`
	Event           ObservationEvent `json:"event,omitempty"`
	ResponseHeaders []Header         `json:"responseHeaders,omitempty"`
}
