package progress

import "runtime"

// SystemStats samples process memory and scheduler counters, keyed by prefix
// plus a short name.
func SystemStats(prefix string) map[string]int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]int64{
		prefix + "memory.alloc":   int64(m.Alloc),
		prefix + "memory.sys":     int64(m.Sys),
		prefix + "memory.heap":    int64(m.HeapInuse),
		prefix + "memory.objects": int64(m.HeapObjects),
		prefix + "gc.count":       int64(m.NumGC),
		prefix + "goroutines":     int64(runtime.NumGoroutine()),
		prefix + "cpus":           int64(runtime.NumCPU()),
	}
}
