package dictrd

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// helpText is emitted verbatim after "113 help text follows" (spec §6).
// It must stay byte-for-byte identical to these 13 lines.
const helpText = `DEFINE database word         -- look up word in database
MATCH database strategy word -- match word in database using strategy
SHOW DB                      -- list all accessible databases
SHOW DATABASES               -- list all accessible databases
SHOW STRAT                   -- list available matching strategies
SHOW STRATEGIES              -- list available matching strategies
SHOW INFO database           -- provide information about the database
SHOW SERVER                  -- provide site-specific information
OPTION MIME                  -- use MIME headers
STATUS                       -- display timing information
HELP                         -- display this help information
XRANDOM                      -- return a random definition
QUIT                         -- terminate connection
`

const xrandomVerb = "XRANDOM"

// Dispatcher maps a parsed Command to protocol replies, consulting a
// shared Registry for per-database Index/Body access. One Dispatcher
// is shared by every session; per-session state (the PRNG used for
// XRANDOM) is passed into Dispatch rather than stored on the
// Dispatcher.
type Dispatcher struct {
	Registry *Registry
	Logger   *zerolog.Logger
}

// NewDispatcher returns a Dispatcher backed by reg. logger may be nil.
func NewDispatcher(reg *Registry, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{Registry: reg, Logger: logger}
}

// Dispatch executes cmd, writing its reply to w, and reports whether
// the session should terminate (on QUIT). Any returned error is
// session-fatal (a write failed) and the caller must close the
// session; logic-level failures (bad arity, unknown database, no
// match) are written to w as protocol replies and returned as a nil
// error.
func (d *Dispatcher) Dispatch(w *bufio.Writer, cmd Command, rng *rand.Rand) (terminate bool, err error) {
	switch cmd.Kind {
	case KindDefine:
		return false, d.dispatchDefine(w, cmd)
	case KindMatch:
		return false, d.dispatchMatch(w, cmd)
	case KindShow:
		return false, d.dispatchShow(w, cmd)
	case KindStatus:
		return false, d.dispatchStatus(w, cmd)
	case KindHelp:
		return false, d.dispatchHelp(w)
	case KindQuit:
		err := d.dispatchQuit(w, cmd)
		return err == nil && len(cmd.Params) == 1, err
	case KindOption, KindAuth, KindSaslAuth, KindSaslResp:
		return false, writeLine(w, "502 OPTION not implemented")
	case KindClient:
		return false, writeLine(w, "502 OPTION not implemented")
	default: // KindUnknown
		if len(cmd.Params) == 1 && strings.EqualFold(cmd.Params[0], xrandomVerb) {
			return false, d.dispatchXRandom(w, rng)
		}
		return false, writeLine(w, "502 OPTION not implemented")
	}
}

// DispatchSyntaxError writes the reply for a tokenizer failure or
// empty line, per spec §4.E "Unrecognized line semantics".
func DispatchSyntaxError(w *bufio.Writer) error {
	return writeLine(w, "500 I/O error")
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return wrapIO("write", err)
	}
	if _, err := w.WriteString("\n"); err != nil {
		return wrapIO("write", err)
	}
	return nil
}

// selectDatabases resolves the database token of DEFINE/MATCH into the
// ordered list of databases to query. "*" queries every registered
// database; "!" queries them in (unspecified) order, stopping at the
// first success is the caller's responsibility. Any other token must
// name a single registered database.
func (d *Dispatcher) selectDatabases(token string) (names []string, ok bool) {
	switch token {
	case "*", "!":
		return d.Registry.Names(), true
	default:
		if _, found := d.Registry.Lookup(token); !found {
			return nil, false
		}
		return []string{token}, true
	}
}

func (d *Dispatcher) dispatchDefine(w *bufio.Writer, cmd Command) error {
	if len(cmd.Params) < 3 {
		return writeLine(w, "501 Syntax error, illegal parameters")
	}
	dbToken := cmd.Params[1]
	names, ok := d.selectDatabases(dbToken)
	if !ok {
		return writeLine(w, `550 Invalid database, use "SHOW DB" for list of databases`)
	}

	word := filterWord(strings.ToLower(cmd.Params[2]))
	stopFirst := dbToken == "!"

	// Every match's body text is resolved up front, before any reply
	// byte is written, so a body-read failure on one match can never
	// leave a "150 N ..." header committed to the wire with fewer than
	// N definition blocks following it (spec: "For every DEFINE reply
	// with N matches, exactly N definition blocks ... follow the 150
	// line before 250 ok").
	type match struct {
		db   *Database
		text string
	}
	var matches []match
	for _, name := range names {
		db, found := d.Registry.Lookup(name)
		if !found {
			continue
		}
		offset, length, err := db.Index.FindWord(word)
		if err != nil {
			continue
		}
		text, err := db.Body.Find(offset, length)
		if err != nil {
			if errors.Is(err, ErrSyntax) {
				return writeLine(w, "501 Syntax error, illegal parameters")
			}
			// ErrEncoding: non-UTF-8 body bytes, retained verbatim from
			// the reference implementation (spec §7/§9 open question).
			return writeLine(w, "XXX NOT FOUND")
		}
		matches = append(matches, match{db: db, text: text})
		if stopFirst {
			break
		}
	}

	if len(matches) == 0 {
		return writeLine(w, "552 no match")
	}

	if err := writeLine(w, fmt.Sprintf("150 %d definition(s) retrieved", len(matches))); err != nil {
		return err
	}
	for _, m := range matches {
		if err := writeLine(w, fmt.Sprintf("151 %q %s %q", word, m.db.Meta.Shortname, m.db.Meta.Description)); err != nil {
			return err
		}
		if _, err := w.WriteString(m.text); err != nil {
			return wrapIO("write", err)
		}
		if !strings.HasSuffix(m.text, "\n") {
			if err := w.WriteByte('\n'); err != nil {
				return wrapIO("write", err)
			}
		}
		if err := writeLine(w, "."); err != nil {
			return err
		}
	}
	return writeLine(w, "250 ok")
}

func (d *Dispatcher) dispatchMatch(w *bufio.Writer, cmd Command) error {
	if len(cmd.Params) != 4 {
		return writeLine(w, "501 Syntax error, illegal parameters")
	}
	dbToken := cmd.Params[1]
	strategy := cmd.Params[2]
	if !StrategyExists(strategy) {
		return writeLine(w, `551 Invalid strategy, use "SHOW STRATS" for a list of strategies`)
	}
	names, ok := d.selectDatabases(dbToken)
	if !ok {
		return writeLine(w, `550 Invalid database, use "SHOW DB" for list of databases`)
	}
	word := strings.ToLower(cmd.Params[3])
	stopFirst := dbToken == "!"

	type hit struct {
		dbName   string
		headword string
	}
	var hits []hit
	for _, name := range names {
		db, found := d.Registry.Lookup(name)
		if !found {
			continue
		}
		before := len(hits)
		switch strategy {
		case "exact":
			if _, _, err := db.Index.FindWord(word); err == nil {
				hits = append(hits, hit{dbName: name, headword: word})
			}
		case "prefix":
			for _, e := range db.Index.FindPrefix(word) {
				hits = append(hits, hit{dbName: name, headword: e.Word})
			}
		}
		if stopFirst && len(hits) > before {
			break
		}
	}

	if len(hits) == 0 {
		return writeLine(w, "552 no match")
	}
	if err := writeLine(w, fmt.Sprintf("152 %d matche(s) found: list follows", len(hits))); err != nil {
		return err
	}
	for _, h := range hits {
		if err := writeLine(w, fmt.Sprintf("%s %q", h.dbName, h.headword)); err != nil {
			return err
		}
	}
	if err := writeLine(w, "."); err != nil {
		return err
	}
	return writeLine(w, "250 ok")
}

func (d *Dispatcher) dispatchShow(w *bufio.Writer, cmd Command) error {
	if len(cmd.Params) != 2 && !(len(cmd.Params) == 3 && strings.EqualFold(cmd.Params[1], "INFO")) {
		return writeLine(w, "501 Syntax error, illegal parameters")
	}

	switch strings.ToUpper(cmd.Params[1]) {
	case "DB", "DATABASES":
		if err := writeLine(w, fmt.Sprintf("110 %d database(s) present", d.Registry.Len())); err != nil {
			return err
		}
		for _, name := range d.Registry.Names() {
			db, _ := d.Registry.Lookup(name)
			if err := writeLine(w, fmt.Sprintf("%s %q", name, db.Meta.Description)); err != nil {
				return err
			}
		}
		if err := writeLine(w, "."); err != nil {
			return err
		}
		return writeLine(w, "250 ok")

	case "STRAT", "STRATEGIES":
		strats := Strategies()
		if err := writeLine(w, fmt.Sprintf("111 %d strategies present", len(strats))); err != nil {
			return err
		}
		for _, s := range strats {
			if err := writeLine(w, fmt.Sprintf("%s %q", s.Name, s.Description)); err != nil {
				return err
			}
		}
		if err := writeLine(w, "."); err != nil {
			return err
		}
		return writeLine(w, "250 ok")

	case "SERVER":
		if err := writeLine(w, "114 server information"); err != nil {
			return err
		}
		return writeLine(w, "\n.")

	case "INFO":
		if len(cmd.Params) != 3 {
			return writeLine(w, "501 Syntax error, illegal parameters")
		}
		name := cmd.Params[2]
		db, found := d.Registry.Lookup(name)
		if !found {
			return writeLine(w, `550 Invalid database, use "SHOW DB" for list of databases`)
		}
		if err := writeLine(w, "112 database information follows"); err != nil {
			return err
		}
		if err := writeLine(w, db.Meta.Description); err != nil {
			return err
		}
		if err := writeLine(w, "."); err != nil {
			return err
		}
		if err := writeLine(w, db.Meta.Info); err != nil {
			return err
		}
		if err := writeLine(w, "."); err != nil {
			return err
		}
		return writeLine(w, "250 ok")

	default:
		return writeLine(w, "501 Syntax error, illegal parameters")
	}
}

func (d *Dispatcher) dispatchStatus(w *bufio.Writer, cmd Command) error {
	if len(cmd.Params) != 1 {
		// Silent on arity mismatch, preserved from the reference.
		return nil
	}
	return writeLine(w, "210 status all good")
}

func (d *Dispatcher) dispatchHelp(w *bufio.Writer) error {
	if err := writeLine(w, "113 help text follows"); err != nil {
		return err
	}
	if _, err := w.WriteString(helpText); err != nil {
		return wrapIO("write", err)
	}
	if err := writeLine(w, "."); err != nil {
		return err
	}
	return writeLine(w, "250 ok")
}

func (d *Dispatcher) dispatchQuit(w *bufio.Writer, cmd Command) error {
	if len(cmd.Params) != 1 {
		return writeLine(w, "501 Syntax error, illegal parameters")
	}
	return writeLine(w, "221 Closing connection. kthxb.")
}

// dispatchXRandom selects a random database from the registry, then a
// random entry within it. An empty registry or an empty chosen
// index both report 552 no match.
func (d *Dispatcher) dispatchXRandom(w *bufio.Writer, rng *rand.Rand) error {
	names := d.Registry.Names()
	if len(names) == 0 {
		return writeLine(w, "552 no match")
	}
	name := names[rng.Intn(len(names))]
	db, _ := d.Registry.Lookup(name)

	entry, err := db.Index.FindRandom(rng)
	if err != nil {
		return writeLine(w, "552 no match")
	}
	text, err := db.Body.Find(entry.Offset, entry.Length)
	if err != nil {
		if errors.Is(err, ErrSyntax) {
			return writeLine(w, "501 Syntax error, illegal parameters")
		}
		// ErrEncoding: non-UTF-8 body bytes, retained verbatim from
		// the reference implementation (spec §7/§9 open question).
		return writeLine(w, "XXX NOT FOUND")
	}

	if err := writeLine(w, "150 1 definition(s) retrieved"); err != nil {
		return err
	}
	if err := writeLine(w, fmt.Sprintf("151 %q %s %q", entry.Word, db.Meta.Shortname, db.Meta.Description)); err != nil {
		return err
	}
	if _, err := w.WriteString(text); err != nil {
		return wrapIO("write", err)
	}
	if !strings.HasSuffix(text, "\n") {
		if err := w.WriteByte('\n'); err != nil {
			return wrapIO("write", err)
		}
	}
	if err := writeLine(w, "."); err != nil {
		return err
	}
	return writeLine(w, "250 ok")
}

// filterWord drops every rune that isn't alphanumeric or whitespace,
// per DEFINE's word handling in spec §4.E. It does not lowercase; the
// caller passes an already-lowercased word.
func filterWord(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range word {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
