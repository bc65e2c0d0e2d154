package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     HubStats       `json:"websocket"`
	Fleet         FleetMetrics   `json:"fleet"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// FleetMetrics counts sessions by status and totals their work. Idle
// counts paused sessions and sessions on a break.
type FleetMetrics struct {
	Running  bool           `json:"running"`
	Sessions int            `json:"sessions"`
	ByStatus map[string]int `json:"by_status"`
	Idle     int            `json:"idle"`
	Taps     int            `json:"taps"`
	Runs     int            `json:"runs"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns runtime and fleet metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	st := s.fleet.Status()
	fm := FleetMetrics{
		Running:  st.Running,
		Sessions: len(st.Sessions),
		ByStatus: make(map[string]int),
	}
	for _, sn := range st.Sessions {
		fm.ByStatus[string(sn.Status)]++
		if sn.Status == session.StatusPaused || sn.Status == session.StatusOnBreak {
			fm.Idle++
		}
		fm.Taps += sn.Taps
		fm.Runs += sn.Runs
	}

	var hs HubStats
	if s.hub != nil {
		hs = s.hub.Stats()
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: hs,
		Fleet:     fm,
	})
}
