package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// Telnet command bytes the server may emit during option negotiation.
const (
	iac  = 255
	will = 251
	dont = 254
)

// TelnetClient speaks the server's line protocol over a real TCP
// connection. It strips telnet option negotiation so tests only ever see
// protocol lines.
type TelnetClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewTelnetClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	return &TelnetClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// ReadLine returns the next protocol line with its terminator stripped.
// Negotiation sequences interleaved with the line are consumed silently.
//
// Postcondition: Returns a line without CR or LF, or fails on timeout.
func (c *TelnetClient) ReadLine(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	var line strings.Builder
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			c.t.Fatalf("reading line: got %q, error: %v", line.String(), err)
		}
		switch {
		case b == iac:
			c.skipNegotiation()
		case b == '\n':
			return strings.TrimRight(line.String(), "\r")
		case b >= 32 && b < 127:
			line.WriteByte(b)
		}
	}
}

// skipNegotiation consumes the remainder of one IAC sequence.
func (c *TelnetClient) skipNegotiation() {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		c.t.Fatalf("reading negotiation command: %v", err)
	}
	if cmd >= will && cmd <= dont {
		if _, err := c.reader.ReadByte(); err != nil {
			c.t.Fatalf("reading negotiation option: %v", err)
		}
	}
}

// Expect fails the test unless the next line equals want.
func (c *TelnetClient) Expect(want string, timeout time.Duration) {
	c.t.Helper()
	if got := c.ReadLine(timeout); got != want {
		c.t.Fatalf("expected %q, got %q", want, got)
	}
}

// ReadUntilLine discards lines until one equals want, returning everything
// read through the match. Use it when broadcasts from other players may
// arrive ahead of the line under test.
//
// Postcondition: Returns the lines read, ending with want, or fails on timeout.
func (c *TelnetClient) ReadUntilLine(want string, timeout time.Duration) []string {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	var lines []string
	for time.Now().Before(deadline) {
		line := c.ReadLine(time.Until(deadline))
		lines = append(lines, line)
		if line == want {
			return lines
		}
	}
	c.t.Fatalf("never received %q; saw %q", want, lines)
	return nil
}

// Login authenticates as the named player and waits for the greeting.
//
// Precondition: The connection must still be at or before the login prompt.
func (c *TelnetClient) Login(name, password string, timeout time.Duration) {
	c.t.Helper()
	c.Send(fmt.Sprintf("Login %s %s", name, password))
	c.ReadUntilLine(fmt.Sprintf("Welcome %s!", name), timeout)
}

// Send writes a line of text to the server, appending \r\n.
//
// Precondition: text should not contain trailing newline characters.
// Postcondition: text + \r\n is written to the connection.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the underlying connection.
func (c *TelnetClient) Close() {
	c.conn.Close()
}
