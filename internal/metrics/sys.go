package metrics

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
)

// SysHealth is a point-in-time view of the process and its data directory.
type SysHealth struct {
	AllocMB    uint64
	SysMB      uint64
	NumGC      uint32
	Goroutines int
	DataFiles  int
	DataSize   string
}

// GetSysHealth reads runtime memory stats and sums the files under dataDir,
// which holds the database and the embedding cache.
func GetSysHealth(dataDir string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	files, size := dirUsage(dataDir)
	return SysHealth{
		AllocMB:    m.Alloc >> 20,
		SysMB:      m.Sys >> 20,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		DataFiles:  files,
		DataSize:   humanBytes(size),
	}
}

// dirUsage ignores unreadable entries.
func dirUsage(dir string) (int, int64) {
	var files int
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}

func humanBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
