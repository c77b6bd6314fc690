package dictrd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// DatabaseMeta carries the human-readable metadata extracted from the
// reserved 00databaseshort/00databaseinfo headwords.
type DatabaseMeta struct {
	Shortname   string
	Description string
	Info        string
}

// Database bundles an Index and Body under a shortname. It is shared
// read-only across every session once installed in a Registry.
type Database struct {
	Meta  DatabaseMeta
	Index *Index
	Body  *Body
}

// unknownMeta is the fallback used when a metadata headword, or its
// second line, is absent.
const unknownMeta = "Unknown"

// describeDatabase derives a DatabaseMeta for shortname by looking up
// the reserved 00databaseshort/00databaseinfo entries and taking the
// second newline-delimited line of each referenced body slice.
func describeDatabase(shortname string, idx *Index, body *Body) DatabaseMeta {
	return DatabaseMeta{
		Shortname:   shortname,
		Description: secondLine(idx, body, "00databaseshort"),
		Info:        secondLine(idx, body, "00databaseinfo"),
	}
}

func secondLine(idx *Index, body *Body, headword string) string {
	offset, length, err := idx.FindWord(headword)
	if err != nil {
		return unknownMeta
	}
	text, err := body.Find(offset, length)
	if err != nil {
		return unknownMeta
	}
	lines := splitLines(text)
	if len(lines) < 2 {
		return unknownMeta
	}
	return strings.TrimSpace(lines[1])
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// Registry is a name -> Database mapping, populated once at startup
// and never mutated afterward. Because construction happens-before
// the acceptor starts handing out connections, concurrent reads from
// many sessions need no lock (see SPEC_FULL.md §2).
type Registry struct {
	databases map[string]*Database
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{databases: make(map[string]*Database)}
}

// Add installs db under shortname. Add must only be called during
// startup, before the Registry is handed to a Server.
func (r *Registry) Add(shortname string, idx *Index, body *Body) *Database {
	db := &Database{
		Meta:  describeDatabase(shortname, idx, body),
		Index: idx,
		Body:  body,
	}
	r.databases[shortname] = db
	return db
}

// Lookup returns the database registered under shortname, if any.
func (r *Registry) Lookup(shortname string) (*Database, bool) {
	db, ok := r.databases[shortname]
	return db, ok
}

// Names returns every registered shortname, in unspecified order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.databases))
	for name := range r.databases {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered databases.
func (r *Registry) Len() int {
	return len(r.databases)
}

// Strategy describes one matching strategy available to MATCH.
type Strategy struct {
	Name        string
	Description string
}

// strategies is the fixed exact/prefix strategy table from spec §3.
var strategies = []Strategy{
	{Name: "exact", Description: "Match headwords exactly"},
	{Name: "prefix", Description: "Match prefixes"},
}

// StrategyExists reports whether name names a known strategy.
func StrategyExists(name string) bool {
	for _, s := range strategies {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Strategies returns the fixed strategy table.
func Strategies() []Strategy {
	return strategies
}

// LoadDatabase opens the "<shortname>.index"/"<shortname>.dict" pair
// under dir and installs the resulting Database into r under
// shortname. It first tries the zstd+yaml index cache
// (indexcache.go); on a miss or stale cache it re-parses the index
// file and rewrites the cache for next startup. logger may be nil.
func (r *Registry) LoadDatabase(dir, shortname string, logger *zerolog.Logger) (*Database, error) {
	indexPath := filepath.Join(dir, shortname+".index")
	bodyPath := filepath.Join(dir, shortname+".dict")

	body, err := OpenBody(bodyPath)
	if err != nil {
		return nil, err
	}

	if idx, meta, ok := loadCachedIndex(indexPath, logger); ok {
		db := &Database{Meta: meta, Index: idx, Body: body}
		r.databases[shortname] = db
		return db, nil
	}

	f, err := os.Open(indexPath)
	if err != nil {
		body.Close()
		return nil, wrapIO("open index", err)
	}
	idx, err := LoadIndex(f, logger)
	f.Close()
	if err != nil {
		body.Close()
		return nil, err
	}

	meta := describeDatabase(shortname, idx, body)
	if err := writeCachedIndex(indexPath, idx, meta, logger); err != nil && logger != nil {
		logger.Warn().Err(err).Str("index", indexPath).Msg("failed to write index cache")
	}

	db := &Database{Meta: meta, Index: idx, Body: body}
	r.databases[shortname] = db
	return db, nil
}
