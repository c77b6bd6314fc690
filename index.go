/*
Package dictrd implements the reader half of a small RFC 2229-flavored
dictionary protocol: a sorted headword index backed by a base-64
encoded offset/length table, a random-access body reader, and the
session/dispatch machinery that serves DEFINE/MATCH/SHOW commands
over a line-oriented TCP protocol.
*/
package dictrd

import (
	"bufio"
	"io"
	"math/rand"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// IndexEntry is one headword -> body-slice mapping. Immutable once
// constructed.
type IndexEntry struct {
	Word   string
	Offset uint64
	Length uint64
}

// Index is a sorted, immutable table of IndexEntry. It is safe for
// concurrent use by many goroutines: nothing mutates it after Load
// returns, so lookups need no locking at all (see SPEC_FULL.md §2).
type Index struct {
	entries []IndexEntry
}

// LoadIndex reads a dictd-format index (LF-terminated lines of
// "word\toffset\tlength", trailing tab fields ignored) from r, decodes
// the offset/length fields via the variant base-64 codec, and returns
// an Index whose entries are stably sorted ascending by raw Word
// bytes. logger may be nil.
func LoadIndex(r io.Reader, logger *zerolog.Logger) (*Index, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var entries []IndexEntry
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := parseIndexLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		lines++
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapIO("index scan", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Word < entries[j].Word
	})

	if logger != nil {
		logger.Debug().Int("lines", lines).Msg("index loaded")
	}

	return &Index{entries: entries}, nil
}

// parseIndexLine decodes a single "word\toffset\tlength[...]" line.
func parseIndexLine(line string) (IndexEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return IndexEntry{}, ErrSyntax
	}
	offset, err := decodeBase64(fields[1])
	if err != nil {
		return IndexEntry{}, err
	}
	length, err := decodeBase64(fields[2])
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{Word: fields[0], Offset: offset, Length: length}, nil
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns the index's entries in sorted order. The caller must
// not mutate the returned slice.
func (idx *Index) Entries() []IndexEntry {
	return idx.entries
}

// FindWord performs an exact binary search by raw byte equality on
// Word. Which duplicate is returned when Word is not unique is
// unspecified, matching the spec.
func (idx *Index) FindWord(word string) (offset, length uint64, err error) {
	entries := idx.entries
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Word >= word
	})
	if i >= len(entries) || entries[i].Word != word {
		return 0, 0, ErrNoMatch
	}
	return entries[i].Offset, entries[i].Length, nil
}

// FindPrefix returns every entry whose Word begins with prefix, in
// index (ascending) order. An empty prefix matches every entry. The
// scan is bounded by a binary search for the first candidate rather
// than a full linear pass over the index.
func (idx *Index) FindPrefix(prefix string) []IndexEntry {
	entries := idx.entries
	if prefix == "" {
		out := make([]IndexEntry, len(entries))
		copy(out, entries)
		return out
	}

	start := sort.Search(len(entries), func(i int) bool {
		return entries[i].Word >= prefix
	})

	var matches []IndexEntry
	for i := start; i < len(entries); i++ {
		if !strings.HasPrefix(entries[i].Word, prefix) {
			break
		}
		matches = append(matches, entries[i])
	}
	return matches
}

// FindRandom returns a uniformly random entry, drawing from the
// caller-supplied PRNG. Callers pass a session-local *rand.Rand so
// concurrent draws from different sessions never contend on shared
// PRNG state. Fails with ErrNoMatch only if the index is empty.
func (idx *Index) FindRandom(rng *rand.Rand) (IndexEntry, error) {
	if len(idx.entries) == 0 {
		return IndexEntry{}, ErrNoMatch
	}
	return idx.entries[rng.Intn(len(idx.entries))], nil
}
