// Package model defines the shared domain types of the coordination layer.
package model

import "time"

// RegionRecord is one entry of the region table kept by the coordinator.
// Name, ApiURL and Primary come from configuration (or the shared store);
// Active, LastHeartbeat and Latency are derived every health-check cycle.
type RegionRecord struct {
	Name          string        `json:"name"`
	ApiURL        string        `json:"api_url"`
	Primary       bool          `json:"primary"`
	Active        bool          `json:"active"`
	LastHeartbeat *time.Time    `json:"last_heartbeat,omitempty"`
	Latency       time.Duration `json:"latency,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Clone returns a copy of the record. The coordinator replaces records
// wholesale, so readers never observe a half-updated entry.
func (r *RegionRecord) Clone() *RegionRecord {
	cp := *r
	if r.LastHeartbeat != nil {
		ts := *r.LastHeartbeat
		cp.LastHeartbeat = &ts
	}
	return &cp
}

// StatusEvent is published on the status channel whenever a region's
// availability is (re)asserted: on every heartbeat and on every
// active/inactive transition observed by a health check.
type StatusEvent struct {
	Region    string    `json:"region"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplicationEnvelope carries one replicated write between regions.
// Delivery is at-least-once; receivers are idempotent on Key and resolve
// concurrent writes last-write-wins by Timestamp.
type ReplicationEnvelope struct {
	Key          string        `json:"key"`
	Value        string        `json:"value"`
	TTL          time.Duration `json:"ttl"`
	SourceRegion string        `json:"source_region"`
	Timestamp    time.Time     `json:"timestamp"`
}
