package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// MediaLabel identifies a media storage operation and how it ended.
type MediaLabel struct {
	Operation string
	Outcome   string
}

// Recorder aggregates in-memory counters and gauges for HTTP traffic, video
// lifecycle events, media storage calls and dependency health.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	videoEvents      map[string]uint64
	mediaOperations  map[MediaLabel]uint64
	statsCache       map[string]uint64
	dependencyValue  map[string]float64
	dependencyState  map[string]string
	tempFilesSwept   uint64
	uploadsInFlight  atomic.Int64
	advisoryFailures map[string]uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder ready for use.
func New() *Recorder {
	r := &Recorder{}
	r.resetLocked()
	return r
}

// Default returns the process-wide Recorder used by the package helpers.
func Default() *Recorder {
	return defaultRecorder
}

// SetDefault replaces the process-wide Recorder. A nil recorder is ignored.
func SetDefault(recorder *Recorder) {
	if recorder != nil {
		defaultRecorder = recorder
	}
}

// ObserveRequest accumulates count and duration by method, normalized path and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveVideoEvent counts a completed lifecycle action such as "uploaded"
// or "deleted".
func (r *Recorder) ObserveVideoEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.videoEvents[normalized]++
	r.mu.Unlock()
}

// ObserveMediaOperation counts a store or delete call against object storage.
func (r *Recorder) ObserveMediaOperation(operation string, ok bool) {
	label := MediaLabel{Operation: normalizeName(operation), Outcome: "success"}
	if !ok {
		label.Outcome = "failure"
	}
	r.mu.Lock()
	r.mediaOperations[label]++
	r.mu.Unlock()
}

// ObserveStatsCache counts channel stats cache lookups by result (hit, miss,
// error).
func (r *Recorder) ObserveStatsCache(result string) {
	normalized := normalizeName(result)
	r.mu.Lock()
	r.statsCache[normalized]++
	r.mu.Unlock()
}

// ObserveAdvisoryFailure counts side effects that failed without failing the
// request, keyed by what was attempted.
func (r *Recorder) ObserveAdvisoryFailure(action string) {
	normalized := normalizeName(action)
	r.mu.Lock()
	r.advisoryFailures[normalized]++
	r.mu.Unlock()
}

// ObserveTempSweep adds the number of abandoned upload files removed by a
// sweep.
func (r *Recorder) ObserveTempSweep(removed int) {
	if removed <= 0 {
		return
	}
	r.mu.Lock()
	r.tempFilesSwept += uint64(removed)
	r.mu.Unlock()
}

func (r *Recorder) UploadStarted() {
	r.uploadsInFlight.Add(1)
}

// UploadFinished decrements the in-flight gauge without letting it go
// negative.
func (r *Recorder) UploadFinished() {
	r.decrementGauge(&r.uploadsInFlight)
}

func (r *Recorder) UploadsInFlight() int64 {
	return r.uploadsInFlight.Load()
}

// SetDependencyHealth maps a status string to a numeric health value for a
// backing service (datastore, object storage, cache, broker).
func (r *Recorder) SetDependencyHealth(service, status string) {
	normalizedService := normalizeName(service)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.dependencyValue[normalizedService] = value
	r.dependencyState[normalizedService] = normalizedStatus
	r.mu.Unlock()
}

// VideoEventCounts returns a copy of the lifecycle counters.
func (r *Recorder) VideoEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.videoEvents))
	for k, v := range r.videoEvents {
		out[k] = v
	}
	return out
}

// MediaOperationCounts returns a copy of the media operation counters.
func (r *Recorder) MediaOperationCounts() map[MediaLabel]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[MediaLabel]uint64, len(r.mediaOperations))
	for k, v := range r.mediaOperations {
		out[k] = v
	}
	return out
}

// StatsCacheCounts returns a copy of the stats cache lookup counters.
func (r *Recorder) StatsCacheCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.statsCache))
	for k, v := range r.statsCache {
		out[k] = v
	}
	return out
}

// Reset clears all counters and gauges. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Recorder) resetLocked() {
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.videoEvents = make(map[string]uint64)
	r.mediaOperations = make(map[MediaLabel]uint64)
	r.statsCache = make(map[string]uint64)
	r.dependencyValue = make(map[string]float64)
	r.dependencyState = make(map[string]string)
	r.advisoryFailures = make(map[string]uint64)
	r.tempFilesSwept = 0
	r.uploadsInFlight.Store(0)
}

// Handler exposes the Recorder in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format with label sets
// sorted for stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()

	fmt.Fprintln(w, "# HELP vidhub_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE vidhub_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "vidhub_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP vidhub_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE vidhub_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "vidhub_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP vidhub_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE vidhub_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "vidhub_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP vidhub_video_events_total Video lifecycle events by type")
	fmt.Fprintln(w, "# TYPE vidhub_video_events_total counter")
	for _, event := range sortedKeys(r.videoEvents) {
		fmt.Fprintf(w, "vidhub_video_events_total{event=\"%s\"} %d\n", event, r.videoEvents[event])
	}

	fmt.Fprintln(w, "# HELP vidhub_media_operations_total Object storage calls by operation and outcome")
	fmt.Fprintln(w, "# TYPE vidhub_media_operations_total counter")
	for _, label := range r.sortedMediaLabels() {
		fmt.Fprintf(w, "vidhub_media_operations_total{operation=\"%s\",outcome=\"%s\"} %d\n", label.Operation, label.Outcome, r.mediaOperations[label])
	}

	fmt.Fprintln(w, "# HELP vidhub_uploads_in_flight Current number of uploads being stored")
	fmt.Fprintln(w, "# TYPE vidhub_uploads_in_flight gauge")
	fmt.Fprintf(w, "vidhub_uploads_in_flight %d\n", r.uploadsInFlight.Load())

	fmt.Fprintln(w, "# HELP vidhub_advisory_failures_total Side effects that failed without failing the request")
	fmt.Fprintln(w, "# TYPE vidhub_advisory_failures_total counter")
	for _, action := range sortedKeys(r.advisoryFailures) {
		fmt.Fprintf(w, "vidhub_advisory_failures_total{action=\"%s\"} %d\n", action, r.advisoryFailures[action])
	}

	fmt.Fprintln(w, "# HELP vidhub_stats_cache_total Channel stats cache lookups by result")
	fmt.Fprintln(w, "# TYPE vidhub_stats_cache_total counter")
	for _, result := range sortedKeys(r.statsCache) {
		fmt.Fprintf(w, "vidhub_stats_cache_total{result=\"%s\"} %d\n", result, r.statsCache[result])
	}

	fmt.Fprintln(w, "# HELP vidhub_temp_files_swept_total Abandoned upload files removed by the sweeper")
	fmt.Fprintln(w, "# TYPE vidhub_temp_files_swept_total counter")
	fmt.Fprintf(w, "vidhub_temp_files_swept_total %d\n", r.tempFilesSwept)

	fmt.Fprintln(w, "# HELP vidhub_dependency_health Health reported by backing services (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE vidhub_dependency_health gauge")
	for _, service := range sortedKeys(r.dependencyValue) {
		fmt.Fprintf(w, "vidhub_dependency_health{service=\"%s\",status=\"%s\"} %f\n", service, r.dependencyState[service], r.dependencyValue[service])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedMediaLabels() []MediaLabel {
	labels := make([]MediaLabel, 0, len(r.mediaOperations))
	for label := range r.mediaOperations {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Operation != labels[j].Operation {
			return labels[i].Operation < labels[j].Operation
		}
		return labels[i].Outcome < labels[j].Outcome
	})
	return labels
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

// looksLikeIdentifier treats digit-bearing segments as ids so route words
// like "dashboard" survive normalization.
func looksLikeIdentifier(segment string) bool {
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount == 0 {
		return false
	}
	return len(segment) >= 8 || digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// SetDependencyHealth updates dependency health on the default recorder.
func SetDependencyHealth(service, status string) {
	defaultRecorder.SetDependencyHealth(service, status)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
