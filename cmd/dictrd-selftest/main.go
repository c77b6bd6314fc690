/*
dictrd-selftest connects to a running dictrd server and issues a fixed
sequence of commands, checking that each reply's leading status code
matches what the protocol promises. It mirrors the teacher's
bsearch_selftest tool: parse flags, run a batch of checks against a
target, and report an ok/fail tally.
*/
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	flags "github.com/jessevdk/go-flags"
)

var opts struct {
	Addr    string `short:"a" long:"addr" description:"dictrd address to connect to" default:"127.0.0.1:2628"`
	Verbose bool   `short:"v" long:"verbose" description:"display each request/reply"`
}

type check struct {
	query      string
	wantPrefix string
}

var checks = []check{
	{"HELP", "113 "},
	{"SHOW DB", "110 "},
	{"SHOW STRAT", "111 "},
	{"SHOW SERVER", "114 "},
	{"STATUS", "210 "},
	{"DEFINE jargon zzz-does-not-exist-zzz", "552 "},
	{"MATCH jargon regex ack", "551 "},
	{"MATCH nosuchdb exact ack", "550 "},
	{"BOGUSVERB", "502 "},
}

func vprintf(format string, args ...interface{}) {
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

func main() {
	parser := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type != flags.ErrHelp {
			fmt.Fprintf(os.Stderr, "%s\n\n", err)
		}
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	conn, err := net.Dial("tcp", opts.Addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", opts.Addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	banner, err := r.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading banner: %v\n", err)
		os.Exit(1)
	}
	vprintf("< %s", banner)
	if !strings.HasPrefix(banner, "220 ") {
		fmt.Printf("Error: banner missing 220 prefix: %q\n", banner)
		os.Exit(1)
	}

	ok, fail := 0, 0
	for _, c := range checks {
		vprintf("> %s\n", c.query)
		if _, err := w.WriteString(c.query + "\n"); err != nil {
			fmt.Fprintf(os.Stderr, "write: %v\n", err)
			os.Exit(1)
		}
		if err := w.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "flush: %v\n", err)
			os.Exit(1)
		}

		reply, err := readReply(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read reply to %q: %v\n", c.query, err)
			os.Exit(1)
		}
		vprintf("< %s", reply)

		if strings.HasPrefix(reply, c.wantPrefix) {
			ok++
		} else {
			fmt.Printf("Error: %q => got %q, expected prefix %q\n", c.query, reply, c.wantPrefix)
			fail++
		}
	}

	if _, err := w.WriteString("QUIT\n"); err == nil {
		w.Flush()
	}

	total := ok + fail
	if fail > 0 {
		fmt.Printf("%d / %d checks failed\n", fail, total)
		os.Exit(1)
	}
	fmt.Printf("%d / %d checks ok\n", ok, total)
}

// readReply reads one full reply and returns its header (status) line.
// Codes that introduce a multi-line payload (SHOW DB/STRAT/INFO/SERVER,
// HELP, DEFINE, MATCH) are followed by body lines up to a solitary "."
// terminator; everything up to and including that terminator is
// drained so the header is never mistaken for the whole reply. A
// trailing "250 ok" line, if the terminator is followed by one, is
// drained too, since some multi-line replies (but not SHOW SERVER) end
// that way.
func readReply(r *bufio.Reader) (string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !hasBody(header) {
		return header, nil
	}

	blocks := 1
	if strings.HasPrefix(header, "112 ") {
		// SHOW INFO carries two "."-terminated blocks.
		blocks = 2
	}
	for blocks > 0 {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == ".\n" {
			blocks--
		}
	}
	if strings.HasPrefix(header, "114 ") {
		return header, nil
	}
	if peeked, err := r.Peek(len("250 ok\n")); err == nil && string(peeked) == "250 ok\n" {
		if _, err := r.ReadString('\n'); err != nil {
			return "", err
		}
	}
	return header, nil
}

// hasBody reports whether a reply code introduces a multi-line
// payload terminated by a solitary "." line.
func hasBody(header string) bool {
	for _, prefix := range []string{"110 ", "111 ", "112 ", "113 ", "114 ", "150 ", "152 "} {
		if strings.HasPrefix(header, prefix) {
			return true
		}
	}
	return false
}
