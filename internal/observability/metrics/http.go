package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	route  string
	method string
	code   string
}

type routeKey struct {
	route  string
	method string
}

type statementKey struct {
	op      string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// Collector aggregates HTTP and storage statement metrics in memory.
type Collector struct {
	mu         sync.Mutex
	requests   map[requestKey]uint64
	errors     map[routeKey]uint64
	latency    map[routeKey]*histogram
	statements map[statementKey]uint64
	stmtTiming map[string]*histogram
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		requests:   make(map[requestKey]uint64),
		errors:     make(map[routeKey]uint64),
		latency:    make(map[routeKey]*histogram),
		statements: make(map[statementKey]uint64),
		stmtTiming: make(map[string]*histogram),
	}
}

var defaultCollector = NewCollector()

// Default returns the process-wide collector.
func Default() *Collector { return defaultCollector }

// ObserveHTTPRequest records a finished request on the default collector.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	defaultCollector.ObserveHTTPRequest(route, method, status, duration)
}

// ObserveStatement records a finished SQL statement on the default collector.
func ObserveStatement(op string, err error, duration time.Duration) {
	defaultCollector.ObserveStatement(op, err, duration)
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (c *Collector) ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{route: route, method: method, code: strconv.Itoa(status)}]++
	key := routeKey{route: route, method: method}
	if status >= 500 {
		c.errors[key]++
	}
	hist := c.latency[key]
	if hist == nil {
		hist = newHistogram()
		c.latency[key] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveStatement counts a statement by operation and outcome.
func (c *Collector) ObserveStatement(op string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statements[statementKey{op: op, outcome: outcome}]++
	hist := c.stmtTiming[op]
	if hist == nil {
		hist = newHistogram()
		c.stmtTiming[op] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// observe keeps cumulative bucket counts; values above the last bound only
// show up in the +Inf bucket, which is count.
func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			return
		}
	}
}

// Handler exposes the default collector in Prometheus text exposition format.
func Handler() http.Handler {
	return defaultCollector.Handler()
}

// Handler exposes the collector in Prometheus text exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, c.Render())
	})
}

// Render returns the current snapshot in exposition format.
func (c *Collector) Render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)

	b.WriteString("# HELP tasksd_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE tasksd_http_requests_total counter\n")
	reqKeys := make([]requestKey, 0, len(c.requests))
	for key := range c.requests {
		reqKeys = append(reqKeys, key)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		a, z := reqKeys[i], reqKeys[j]
		if a.route != z.route {
			return a.route < z.route
		}
		if a.method != z.method {
			return a.method < z.method
		}
		return a.code < z.code
	})
	for _, key := range reqKeys {
		fmt.Fprintf(&b, "tasksd_http_requests_total{route=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(key.route), escape(key.method), key.code, c.requests[key])
	}

	b.WriteString("# HELP tasksd_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE tasksd_http_request_errors_total counter\n")
	for _, key := range sortedRouteKeys(c.errors) {
		fmt.Fprintf(&b, "tasksd_http_request_errors_total{route=\"%s\",method=\"%s\"} %d\n",
			escape(key.route), escape(key.method), c.errors[key])
	}

	b.WriteString("# HELP tasksd_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE tasksd_http_request_duration_seconds histogram\n")
	latKeys := make([]routeKey, 0, len(c.latency))
	for key := range c.latency {
		latKeys = append(latKeys, key)
	}
	sortRouteKeys(latKeys)
	for _, key := range latKeys {
		labels := fmt.Sprintf("route=\"%s\",method=\"%s\"", escape(key.route), escape(key.method))
		writeHistogram(&b, "tasksd_http_request_duration_seconds", labels, c.latency[key])
	}

	b.WriteString("# HELP tasksd_storage_statements_total SQL statements executed by operation and outcome.\n")
	b.WriteString("# TYPE tasksd_storage_statements_total counter\n")
	stmtKeys := make([]statementKey, 0, len(c.statements))
	for key := range c.statements {
		stmtKeys = append(stmtKeys, key)
	}
	sort.Slice(stmtKeys, func(i, j int) bool {
		if stmtKeys[i].op != stmtKeys[j].op {
			return stmtKeys[i].op < stmtKeys[j].op
		}
		return stmtKeys[i].outcome < stmtKeys[j].outcome
	})
	for _, key := range stmtKeys {
		fmt.Fprintf(&b, "tasksd_storage_statements_total{op=\"%s\",outcome=\"%s\"} %d\n",
			escape(key.op), key.outcome, c.statements[key])
	}

	b.WriteString("# HELP tasksd_storage_statement_duration_seconds SQL statement duration in seconds.\n")
	b.WriteString("# TYPE tasksd_storage_statement_duration_seconds histogram\n")
	ops := make([]string, 0, len(c.stmtTiming))
	for op := range c.stmtTiming {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		writeHistogram(&b, "tasksd_storage_statement_duration_seconds", fmt.Sprintf("op=\"%s\"", escape(op)), c.stmtTiming[op])
	}

	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	for idx, bound := range h.buckets {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", name, labels, formatFloat(bound), h.counts[idx])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.count)
	fmt.Fprintf(b, "%s_sum{%s} %s\n", name, labels, formatFloat(h.sum))
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.count)
}

func sortedRouteKeys(m map[routeKey]uint64) []routeKey {
	keys := make([]routeKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sortRouteKeys(keys)
	return keys
}

func sortRouteKeys(keys []routeKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].route != keys[j].route {
			return keys[i].route < keys[j].route
		}
		return keys[i].method < keys[j].method
	})
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
