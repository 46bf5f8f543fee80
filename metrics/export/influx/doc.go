// Package influx pushes authcore metrics to InfluxDB v2.
//
// Each push writes a single point (measurement "authcore" by default) whose fields are
// the engine counters and cumulative latency buckets. [Connect] uses the client's
// batching write API; [New] accepts any PointWriter.
package influx
