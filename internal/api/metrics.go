package api

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

const mb = 1 << 20

// ServerMetrics собирает показатели процесса для /api/stats
type ServerMetrics struct {
	started time.Time
	proc    *process.Process // nil, если gopsutil не видит свой процесс
}

func NewServerMetrics() *ServerMetrics {
	sm := &ServerMetrics{started: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		sm.proc = proc
	}
	return sm
}

// Uptime округлён до секунды
func (sm *ServerMetrics) Uptime() time.Duration {
	return time.Since(sm.started).Truncate(time.Second)
}

// cpuPercent - загрузка CPU процессом, без процесса - системная с прошлого замера
func (sm *ServerMetrics) cpuPercent() float64 {
	if sm.proc != nil {
		if p, err := sm.proc.CPUPercent(); err == nil {
			return p
		}
	}
	if ps, err := cpu.Percent(0, false); err == nil && len(ps) > 0 {
		return ps[0]
	}
	return 0
}

// rssMB - резидентная память процесса; 0, если недоступна
func (sm *ServerMetrics) rssMB() float64 {
	if sm.proc == nil {
		return 0
	}
	info, err := sm.proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return float64(info.RSS) / mb
}

// Snapshot - раздел server ответа /api/stats
func (sm *ServerMetrics) Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	up := sm.Uptime()

	return map[string]interface{}{
		"uptime":         up.String(),
		"uptime_seconds": int64(up.Seconds()),
		"cpu_percent":    sm.cpuPercent(),
		"rss_mb":         sm.rssMB(),
		"heap_alloc_mb":  float64(m.HeapAlloc) / mb,
		"sys_mb":         float64(m.Sys) / mb,
		"num_gc":         m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
		"server_time":    time.Now().Unix(),
	}
}
