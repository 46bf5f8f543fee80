// Package internaldefs holds the metric names, help strings and bucket bounds shared by
// the exporters, so Prometheus, OTel and InfluxDB output agree.
//
// It performs no I/O and imports no exporter package.
package internaldefs
