package influx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

const (
	defaultMeasurement   = "authcore"
	defaultPingTimeout   = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

var (
	ErrNilSource     = errors.New("nil metrics source")
	ErrNilWriter     = errors.New("nil point writer")
	ErrNoURL         = errors.New("influxdb url required")
	ErrNotHealthy    = errors.New("influxdb server not healthy")
	ErrAlreadyClosed = errors.New("exporter closed")
)

// PointWriter is the subset of api.WriteAPI the exporter uses.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// Config selects the InfluxDB target.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Measurement defaults to "authcore".
	Measurement string
	// Tags are added to every point, e.g. {"instance": "auth-1"}.
	Tags map[string]string
}

// Exporter periodically pushes one point holding every counter and latency bucket.
type Exporter struct {
	source      internaldefs.Source
	writer      PointWriter
	measurement string
	tags        map[string]string
	now         func() time.Time

	mu     sync.Mutex
	closed bool
	close  func()
}

// New returns an exporter that writes through w. Use Connect for a real server.
func New(source internaldefs.Source, w PointWriter, measurement string, tags map[string]string) (*Exporter, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if w == nil {
		return nil, ErrNilWriter
	}
	if measurement == "" {
		measurement = defaultMeasurement
	}
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	return &Exporter{
		source:      source,
		writer:      w,
		measurement: measurement,
		tags:        copied,
		now:         time.Now,
	}, nil
}

// Connect pings the server and returns an exporter backed by its non-blocking write API.
// Async write errors are passed to onError when it is non-nil.
func Connect(ctx context.Context, source internaldefs.Source, cfg Config, onError func(error)) (*Exporter, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(uint(defaultFlushInterval/time.Millisecond)),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrNotHealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go drainErrors(writeAPI, onError)

	e, err := New(source, writeAPI, cfg.Measurement, cfg.Tags)
	if err != nil {
		client.Close()
		return nil, err
	}
	e.close = func() {
		writeAPI.Flush()
		client.Close()
	}
	return e, nil
}

func drainErrors(w api.WriteAPI, onError func(error)) {
	for err := range w.Errors() {
		if onError != nil {
			onError(err)
		}
	}
}

// Point builds the point for the current snapshot. Field names are the Prometheus names
// without the authcore_ prefix; bucket fields are cumulative.
func (e *Exporter) Point() *write.Point {
	snapshot := e.source.MetricsSnapshot()

	fields := make(map[string]interface{}, len(internaldefs.CounterDefs)+10)
	for _, def := range internaldefs.CounterDefs {
		fields[internaldefs.ShortName(def.Name)] = int64(snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		name := internaldefs.ShortName(def.Name)
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			fields[name+"_bucket_le_"+suffix] = int64(cumulative[i])
		}
		fields[name+"_count"] = int64(cumulative[len(cumulative)-1])
	}
	fields[internaldefs.ShortName(internaldefs.AuditDroppedName)] = int64(e.source.AuditDropped())

	return write.NewPoint(e.measurement, e.tags, fields, e.now())
}

// Push writes one point. It is a no-op when metrics are disabled.
func (e *Exporter) Push() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrAlreadyClosed
	}

	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && e.source.AuditDropped() == 0 {
		return nil
	}
	e.writer.WritePoint(e.Point())
	return nil
}

// Run pushes every interval until ctx is done, then pushes a final point.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = e.Push()
			return
		case <-ticker.C:
			_ = e.Push()
		}
	}
}

// Close flushes pending writes and releases the client created by Connect.
func (e *Exporter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.close != nil {
		e.close()
	}
}
