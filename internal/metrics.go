package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	activeConns atomic.Int64
	joins       atomic.Uint64
	leaves      atomic.Uint64
	relayed     atomic.Uint64
	dropped     atomic.Uint64
	evictions   atomic.Uint64
	uploads     atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncJoin() {
	m.joins.Add(1)
}

func (m *Metrics) IncLeave() {
	m.leaves.Add(1)
}

func (m *Metrics) IncRelayed() {
	m.relayed.Add(1)
}

func (m *Metrics) IncDropped() {
	m.dropped.Add(1)
}

func (m *Metrics) IncEviction() {
	m.evictions.Add(1)
}

func (m *Metrics) IncUpload() {
	m.uploads.Add(1)
}

func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"active_connections":  m.activeConns.Load(),
		"joins_total":         m.joins.Load(),
		"leaves_total":        m.leaves.Load(),
		"operations_relayed":  m.relayed.Load(),
		"operations_dropped":  m.dropped.Load(),
		"slow_peer_evictions": m.evictions.Load(),
		"material_uploads":    m.uploads.Load(),
	}
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}
