package dictrd

import "strings"

// CommandKind tags a parsed Command by its verb.
type CommandKind int

const (
	KindUnknown CommandKind = iota
	KindDefine
	KindMatch
	KindShow
	KindClient
	KindStatus
	KindHelp
	KindQuit
	KindOption
	KindAuth
	KindSaslAuth
	KindSaslResp
)

var verbKinds = map[string]CommandKind{
	"DEFINE":   KindDefine,
	"MATCH":    KindMatch,
	"SHOW":     KindShow,
	"CLIENT":   KindClient,
	"STATUS":   KindStatus,
	"HELP":     KindHelp,
	"QUIT":     KindQuit,
	"OPTION":   KindOption,
	"AUTH":     KindAuth,
	"SASLAUTH": KindSaslAuth,
	"SASLRESP": KindSaslResp,
}

// Command is a tokenized request line: Kind is the recognized verb (or
// KindUnknown), Params holds every token including the verb itself in
// its original case at Params[0].
type Command struct {
	Kind   CommandKind
	Params []string
}

// Tokenize splits a single request line (trailing CR/LF already
// stripped by the caller) into tokens, honoring double-quoted strings
// and backslash escapes per spec §4.D:
//
//  1. a token ends at whitespace outside double quotes;
//  2. a double-quoted string runs from '"' to the matching '"', with
//     whitespace literal inside;
//  3. a backslash escapes the next character verbatim (so \" inserts
//     a literal quote inside a quoted string);
//  4. single quotes are not honored.
//
// A line that yields zero tokens (including one that is entirely
// whitespace) returns ErrSyntax.
func Tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	haveToken := false
	escaped := false

	flush := func() {
		tokens = append(tokens, cur.String())
		cur.Reset()
		haveToken = false
	}

	for _, ch := range line {
		if escaped {
			cur.WriteRune(ch)
			haveToken = true
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
			haveToken = true
		case ch == '"':
			if inQuotes {
				inQuotes = false
				flush()
			} else {
				inQuotes = true
				haveToken = true
			}
		case isSpace(ch) && !inQuotes:
			if haveToken {
				flush()
			}
		default:
			cur.WriteRune(ch)
			haveToken = true
		}
	}
	if escaped {
		cur.WriteByte('\\')
		haveToken = true
	}
	if haveToken {
		flush()
	}

	if len(tokens) == 0 {
		return nil, ErrSyntax
	}
	return tokens, nil
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\v' || ch == '\f'
}

// ParseCommand tokenizes line and classifies the verb into a
// CommandKind. Unrecognized verbs produce KindUnknown, retaining the
// original verb at Params[0] so the dispatcher can special-case
// extensions such as XRANDOM.
func ParseCommand(line string) (Command, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return Command{}, err
	}
	kind, ok := verbKinds[strings.ToUpper(tokens[0])]
	if !ok {
		kind = KindUnknown
	}
	return Command{Kind: kind, Params: tokens}, nil
}
