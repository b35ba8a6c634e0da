// Package health aggregates per-resource lifecycle state into a single
// gateway health report served over HTTP.
package health

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/datagate-io/datagate/lifecycle"
)

// Pre-compiled regexes for error message sanitization. Last errors
// often quote broker URLs and file paths; those never belong in an
// endpoint that may be scraped from outside.
var (
	urlRegex        = regexp.MustCompile(`[a-z]+://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Resource is anything with an id and a lifecycle: sources, sinks and
// rules all qualify.
type Resource interface {
	ID() string
	Lifecycle() *lifecycle.Lifecycle
}

// Status is the reported health of one resource.
type Status struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Healthy   bool   `json:"healthy"`
	LastError string `json:"last_error,omitempty"`
	RefCount  int    `json:"ref_count"`
}

// Report is the aggregate over every resource. Healthy means no
// running resource is in an error state; stopped resources do not
// count against it.
type Report struct {
	Healthy   bool      `json:"healthy"`
	Timestamp time.Time `json:"timestamp"`
	Resources []Status  `json:"resources"`
}

// Lister supplies the current resource set of one kind.
type Lister func() []Resource

// Reporter builds reports from registered listers.
type Reporter struct {
	kinds []string
	lists map[string]Lister
}

// NewReporter returns an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{lists: make(map[string]Lister)}
}

// Track registers a resource kind. Kinds report in registration order.
func (r *Reporter) Track(kind string, list Lister) {
	if _, ok := r.lists[kind]; !ok {
		r.kinds = append(r.kinds, kind)
	}
	r.lists[kind] = list
}

// Report snapshots every tracked resource.
func (r *Reporter) Report() Report {
	report := Report{Healthy: true, Timestamp: time.Now()}
	for _, kind := range r.kinds {
		for _, res := range r.lists[kind]() {
			st := res.Lifecycle().Status()
			status := Status{
				ID:        res.ID(),
				Kind:      kind,
				State:     st.State.String(),
				Healthy:   st.Healthy,
				LastError: sanitize(st.LastError),
				RefCount:  len(st.Refs),
			}
			if st.State == lifecycle.StateRunning && !st.Healthy {
				report.Healthy = false
			}
			report.Resources = append(report.Resources, status)
		}
	}
	return report
}

// Handler serves the report as JSON. A degraded gateway answers 503 so
// orchestrators can act on the status code alone.
func (r *Reporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := r.Report()
		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

func sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = unixPathRegex.ReplaceAllString(msg, "[PATH]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
