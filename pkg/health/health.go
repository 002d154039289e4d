package health

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth represents the health status of a single component
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// HostStats holds process-host resource usage
type HostStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
	Goroutines int     `json:"goroutines"`
	HeapMB     uint64  `json:"heap_mb"`
}

// BridgeHealth represents overall bridge health
type BridgeHealth struct {
	Status        Status            `json:"status"`
	Uptime        int64             `json:"uptime_seconds"`
	Timestamp     time.Time         `json:"timestamp"`
	ActiveClients int               `json:"active_clients"`
	Components    []ComponentHealth `json:"components"`
	Host          HostStats         `json:"host"`
}

// Monitor tracks bridge health metrics
type Monitor struct {
	startTime  time.Time
	mu         sync.RWMutex
	components map[string]*ComponentHealth
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		startTime:  time.Now(),
		components: make(map[string]*ComponentHealth),
	}
}

// SetComponentStatus updates the status of a component
func (m *Monitor) SetComponentStatus(name string, status Status, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = &ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		LastChecked: time.Now(),
	}
}

// GetHealth returns the current bridge health
func (m *Monitor) GetHealth(activeClients int) *BridgeHealth {
	m.mu.RLock()
	components := make([]ComponentHealth, 0, len(m.components))
	overallStatus := StatusHealthy
	for _, comp := range m.components {
		components = append(components, *comp)
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if comp.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}
	m.mu.RUnlock()

	return &BridgeHealth{
		Status:        overallStatus,
		Uptime:        int64(time.Since(m.startTime).Seconds()),
		Timestamp:     time.Now(),
		ActiveClients: activeClients,
		Components:    components,
		Host:          hostStats(),
	}
}

// hostStats collects host resource usage. Collection errors leave the
// affected fields at zero rather than failing the health check.
func hostStats() HostStats {
	stats := HostStats{
		Goroutines: runtime.NumGoroutine(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.HeapMB = ms.Alloc / 1024 / 1024

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		stats.MemPercent = vm.UsedPercent
	}

	return stats
}
