package ops

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/sitediff/internal/errors"
	"github.com/hpungsan/sitediff/internal/snapshot"
)

// WatchlistVersion is the current watchlist file format version.
const WatchlistVersion = 1

// Watchlist is the YAML file written by Export and read by Import.
type Watchlist struct {
	Version    int       `yaml:"version"`
	ExportedAt time.Time `yaml:"exported_at"`
	URLs       []string  `yaml:"urls"`
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <base>/exports/watchlist-<timestamp>.yaml
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes the tracked URLs to a YAML watchlist.
func Export(env *Env, input ExportInput) (*ExportOutput, error) {
	now := time.Now().UTC().Truncate(time.Second)

	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(ExportsDir(env.BaseDir), "watchlist-"+now.Format("2006-01-02T150405")+".yaml")
	}
	if err := ValidatePath(exportPath, PathCheckWrite, env.BaseDir, env.Config); err != nil {
		return nil, err
	}

	urls, err := env.Tracker.Registry().List()
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(Watchlist{
		Version:    WatchlistVersion,
		ExportedAt: now,
		URLs:       urls,
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := writeExport(exportPath, data); err != nil {
		return nil, err
	}
	return &ExportOutput{
		Path:       exportPath,
		Count:      len(urls),
		ExportedAt: now.Unix(),
	}, nil
}

// writeExport writes data beside path under a random temp name and renames
// it into place. Neither the temp file nor the destination may be a symlink.
func writeExport(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewIOFailure("mkdir", filepath.Dir(path), err)
	}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return errors.NewInternal(fmt.Errorf("temp name: %w", err))
	}
	tmp := path + "." + hex.EncodeToString(suffix) + ".tmp"

	if err := writeSynced(tmp, data); err != nil {
		os.Remove(tmp)
		return err
	}

	// Rename replaces a symlink rather than following it, so check first.
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		os.Remove(tmp)
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		if _, statErr := os.Stat(path); runtime.GOOS == "windows" && statErr == nil {
			return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
		}
		return errors.NewIOFailure("rename", path, err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := snapshot.OpenNoFollow(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewIOFailure("create", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.NewIOFailure("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.NewIOFailure("sync", path, err)
	}
	if err := f.Close(); err != nil {
		return errors.NewIOFailure("close", path, err)
	}
	return nil
}
