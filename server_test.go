package dictrd

import (
	"bufio"
	"context"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	idx := loadTestIndex(t)
	body := openTestBody(t)
	reg := NewRegistry()
	reg.Add("testdb", idx, body)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	server := NewServer(ln.Addr().String(), reg, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		server.Serve(ctx, ln)
		close(done)
	}()

	return ln.Addr().String(), func() {
		cancel()
		<-done
	}
}

func TestServerBanner(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	assert.Regexp(t, regexp.MustCompile(`^220 .+ dictrd .+ .+\n$`), line)
}

func TestServerDefineAndQuit(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	if _, err := r.ReadString('\n'); err != nil { // banner
		t.Fatal(err)
	}

	w.WriteString("DEFINE testdb ack\n")
	w.Flush()

	line1, _ := r.ReadString('\n')
	assert.Equal(t, "150 1 definition(s) retrieved\n", line1)

	line2, _ := r.ReadString('\n')
	assert.Equal(t, "151 \"ack\" testdb \"Test Database\"\n", line2)

	line3, _ := r.ReadString('\n')
	assert.Equal(t, "ACK\n", line3)
	line4, _ := r.ReadString('\n')
	assert.Equal(t, "Acknowledge.\n", line4)
	line5, _ := r.ReadString('\n')
	assert.Equal(t, ".\n", line5)
	line6, _ := r.ReadString('\n')
	assert.Equal(t, "250 ok\n", line6)

	w.WriteString("QUIT\n")
	w.Flush()
	line7, err := r.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "221 Closing connection. kthxb.\n", line7)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = r.ReadByte()
	assert.Error(t, err) // connection closed by server after QUIT
}

func TestServerEmptyLineIsIgnored(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	if _, err := r.ReadString('\n'); err != nil { // banner
		t.Fatal(err)
	}

	w.WriteString("\n")
	w.WriteString("STATUS\n")
	w.Flush()

	line, err := r.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "210 status all good\n", line)
}

func TestServerWhitespaceOnlyLineIsSyntaxError(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	if _, err := r.ReadString('\n'); err != nil { // banner
		t.Fatal(err)
	}

	w.WriteString("   \n")
	w.WriteString("STATUS\n")
	w.Flush()

	line1, err := r.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "500 I/O error\n", line1)

	line2, err := r.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "210 status all good\n", line2)
}

func TestServerBogusVerbGetsNotImplemented(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	if _, err := r.ReadString('\n'); err != nil { // banner
		t.Fatal(err)
	}

	w.WriteString("BOGUSVERB\n")
	w.Flush()

	line, err := r.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "502 OPTION not implemented\n", line)
}
