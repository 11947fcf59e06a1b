package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/stavrou/budgetd/internal/database"
	"github.com/stavrou/budgetd/internal/modules/alerts"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
	"github.com/stavrou/budgetd/internal/scheduler"
)

// SystemHandlers serves the operational status surface.
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	sched     *scheduler.Scheduler // nil when the scheduler is disabled
	snapshots *snapshots.Repository
	alerts    *alerts.Repository
	startedAt time.Time
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	sched *scheduler.Scheduler,
	snapshotRepo *snapshots.Repository,
	alertRepo *alerts.Repository,
	startedAt time.Time,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		sched:     sched,
		snapshots: snapshotRepo,
		alerts:    alertRepo,
		startedAt: startedAt,
	}
}

type storeStatus struct {
	SizeBytes     int64 `json:"size_bytes"`
	WALSizeBytes  int64 `json:"wal_size_bytes"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	FreelistCount int64 `json:"freelist_count"`
}

type schedulerStatus struct {
	Enabled bool                  `json:"enabled"`
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

type systemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	Store         *storeStatus    `json:"store"`
	Scheduler     schedulerStatus `json:"scheduler"`
	SnapshotCount int64           `json:"snapshot_count"`
	ActiveAlerts  int64           `json:"active_alerts"`
}

// HandleSystemStatus handles GET /api/system/status. Collection failures
// degrade individual sections rather than failing the whole response.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPct, memPct := h.getSystemStats()

	resp := systemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		Scheduler:     schedulerStatus{Jobs: []scheduler.JobStatus{}},
	}

	if stats, err := h.db.GetStats(); err == nil {
		resp.Store = &storeStatus{
			SizeBytes:     stats.SizeBytes,
			WALSizeBytes:  stats.WALSizeBytes,
			PageCount:     stats.PageCount,
			PageSize:      stats.PageSize,
			FreelistCount: stats.FreelistCount,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read store stats")
	}

	if h.sched != nil {
		resp.Scheduler.Enabled = true
		resp.Scheduler.Running = h.sched.Running()
		resp.Scheduler.Jobs = h.sched.Status()
	}

	if n, err := h.snapshots.Count(); err == nil {
		resp.SnapshotCount = n
	} else {
		h.log.Warn().Err(err).Msg("Failed to count snapshots")
	}

	if n, err := h.alerts.CountActive(); err == nil {
		resp.ActiveAlerts = n
	} else {
		h.log.Warn().Err(err).Msg("Failed to count active alerts")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getSystemStats calculates CPU and RAM usage percentages. The CPU sample
// uses a 100ms interval so the handler stays fast for dashboard polling.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
