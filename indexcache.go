package dictrd

import (
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/DataDog/zstd"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v3"
)

// cacheSuffix mirrors the teacher's own sidecar-index convention
// (mpenkov-bsearch's "." -> "_" + ".bsx") but names the result for
// this format instead.
const cacheSuffix = "dcx"

var reDot = regexp.MustCompile(`\.`)

// cachedIndex is the on-disk shape of the zstd+yaml sidecar: the
// parsed, sorted entries plus the derived database metadata, tagged
// with the source index file's mtime so a stale cache is detected the
// same way the teacher's LoadIndex detects a stale .bsx file.
type cachedIndex struct {
	Epoch       int64        `yaml:"epoch"`
	Shortname   string       `yaml:"shortname"`
	Description string       `yaml:"description"`
	Info        string       `yaml:"info"`
	Entries     []IndexEntry `yaml:"entries"`
}

// cachePath returns the sidecar path for a given index file path,
// following the teacher's indexFile() naming scheme.
func cachePath(indexPath string) string {
	dir, base := filepath.Split(indexPath)
	return filepath.Join(dir, reDot.ReplaceAllString(base, "_")+"."+cacheSuffix)
}

func fileEpoch(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return stat.ModTime().Unix(), nil
}

// loadCachedIndex returns the cached Index and DatabaseMeta for
// indexPath, provided a sidecar exists and is not older than
// indexPath itself. It returns ok=false (never an error) on any kind
// of cache miss, so callers always have a full re-parse to fall back
// on.
func loadCachedIndex(indexPath string, logger *zerolog.Logger) (idx *Index, meta DatabaseMeta, ok bool) {
	cp := cachePath(indexPath)

	srcEpoch, err := fileEpoch(indexPath)
	if err != nil {
		return nil, DatabaseMeta{}, false
	}

	fh, err := os.Open(cp)
	if err != nil {
		return nil, DatabaseMeta{}, false
	}
	defer fh.Close()

	reader := zstd.NewReader(fh)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, DatabaseMeta{}, false
	}

	var cached cachedIndex
	if err := yaml.Unmarshal(data, &cached); err != nil {
		return nil, DatabaseMeta{}, false
	}
	if cached.Epoch < srcEpoch {
		if logger != nil {
			logger.Debug().Str("index", indexPath).Msg("index cache stale, reparsing")
		}
		return nil, DatabaseMeta{}, false
	}

	if logger != nil {
		logger.Debug().Str("index", indexPath).Int("entries", len(cached.Entries)).Msg("index cache hit")
	}
	return &Index{entries: cached.Entries}, DatabaseMeta{
		Shortname:   cached.Shortname,
		Description: cached.Description,
		Info:        cached.Info,
	}, true
}

// writeCachedIndex persists idx/meta as a zstd-compressed YAML sidecar
// next to indexPath, stamped with indexPath's current mtime epoch.
// Failures are non-fatal to the caller: the cache is purely an
// optimization, never a source of truth.
func writeCachedIndex(indexPath string, idx *Index, meta DatabaseMeta, logger *zerolog.Logger) error {
	epoch, err := fileEpoch(indexPath)
	if err != nil {
		return err
	}

	cached := cachedIndex{
		Epoch:       epoch,
		Shortname:   meta.Shortname,
		Description: meta.Description,
		Info:        meta.Info,
		Entries:     idx.entries,
	}
	data, err := yaml.Marshal(&cached)
	if err != nil {
		return err
	}

	cp := cachePath(indexPath)
	fh, err := os.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()

	writer := zstd.NewWriter(fh)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	if logger != nil {
		logger.Debug().Str("index", indexPath).Str("cache", cp).Msg("index cache written")
	}
	return nil
}
