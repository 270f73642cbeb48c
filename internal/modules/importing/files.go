package importing

import (
	"fmt"
	"os"
	"path/filepath"
)

// LatestExport finds the most recently modified file in dir matching the
// glob pattern (e.g. "transactions*.csv"). Exports accumulate in the import
// folder; the newest one is almost always the one to load.
func LatestExport(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("bad export pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no files matching %q in %s", pattern, dir)
	}

	latest := ""
	var latestMod int64
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if mod := info.ModTime().UnixNano(); latest == "" || mod > latestMod {
			latest, latestMod = path, mod
		}
	}

	return latest, nil
}
