package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Info describes one discovered recording file.
type Info struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// List returns the recordings under dir, oldest first. A missing
// directory is an empty list, not an error.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recording dir: %w", err)
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !isRecordingName(entry.Name()) {
			continue
		}
		stat, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Name:      entry.Name(),
			SizeBytes: stat.Size(),
			ModTime:   stat.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime.Before(infos[j].ModTime)
	})
	return infos, nil
}

// Latest returns the most recently modified recording under dir.
func Latest(dir string) (Info, bool, error) {
	infos, err := List(dir)
	if err != nil {
		return Info{}, false, err
	}
	if len(infos) == 0 {
		return Info{}, false, nil
	}
	return infos[len(infos)-1], true, nil
}
