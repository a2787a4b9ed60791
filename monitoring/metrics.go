// Package monitoring keeps in-process counters for the server and renders
// them in the Prometheus text format.
package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType is the Prometheus TYPE of a metric family.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// Labels identify one series within a metric family.
type Labels map[string]string

type series struct {
	name   string
	labels Labels
	value  float64

	count int64
	sum   float64
}

// Collector holds counters, gauges and summaries. It is safe for concurrent use.
type Collector struct {
	mu     sync.RWMutex
	types  map[string]MetricType
	series map[string]*series

	startTime time.Time
}

// NewCollector starts the uptime clock.
func NewCollector() *Collector {
	return &Collector{
		types:     make(map[string]MetricType),
		series:    make(map[string]*series),
		startTime: time.Now(),
	}
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func seriesKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	return name + "{" + formatLabels(labels) + "}"
}

func formatLabels(labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s="%s"`, k, labelEscaper.Replace(labels[k]))
	}
	return strings.Join(parts, ",")
}

// lookup must be called with mu held.
func (c *Collector) lookup(name string, typ MetricType, labels Labels) *series {
	if _, ok := c.types[name]; !ok {
		c.types[name] = typ
	}
	key := seriesKey(name, labels)
	s, ok := c.series[key]
	if !ok {
		copied := make(Labels, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{name: name, labels: copied}
		c.series[key] = s
	}
	return s
}

// IncrCounter adds delta to a counter.
func (c *Collector) IncrCounter(name string, labels Labels, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookup(name, MetricTypeCounter, labels).value += delta
}

// SetGauge replaces a gauge value.
func (c *Collector) SetGauge(name string, labels Labels, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookup(name, MetricTypeGauge, labels).value = value
}

// Observe adds one sample to a summary.
func (c *Collector) Observe(name string, labels Labels, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.lookup(name, MetricTypeSummary, labels)
	s.count++
	s.sum += value
}

// Value returns a counter or gauge value, or a summary's sample count.
func (c *Collector) Value(name string, labels Labels) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.series[seriesKey(name, labels)]
	if !ok {
		return 0
	}
	if c.types[name] == MetricTypeSummary {
		return float64(s.count)
	}
	return s.value
}

// Uptime is the time since NewCollector.
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

func (c *Collector) collectRuntime() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	c.SetGauge("go_goroutines", nil, float64(runtime.NumGoroutine()))
	c.SetGauge("go_memstats_alloc_bytes", nil, float64(mem.Alloc))
	c.SetGauge("process_uptime_seconds", nil, c.Uptime().Seconds())
}

// ExportPrometheus refreshes the runtime gauges and renders every series.
func (c *Collector) ExportPrometheus() string {
	c.collectRuntime()

	c.mu.RLock()
	defer c.mu.RUnlock()

	byName := make(map[string][]*series)
	for _, s := range c.series {
		byName[s.name] = append(byName[s.name], s)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		typ := c.types[name]
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)
		list := byName[name]
		sort.Slice(list, func(i, j int) bool {
			return formatLabels(list[i].labels) < formatLabels(list[j].labels)
		})
		for _, s := range list {
			if typ == MetricTypeSummary {
				fmt.Fprintf(&b, "%s %g\n", seriesKey(name+"_sum", s.labels), s.sum)
				fmt.Fprintf(&b, "%s %d\n", seriesKey(name+"_count", s.labels), s.count)
				continue
			}
			fmt.Fprintf(&b, "%s %g\n", seriesKey(name, s.labels), s.value)
		}
	}
	return b.String()
}
