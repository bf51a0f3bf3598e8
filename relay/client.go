package relay

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client speaks to a running relay. Each call opens a fresh connection
// because the relay serves one peer at a time.
type Client struct {
	Addr    string
	Probe   string
	Timeout time.Duration
}

// NewClient returns a client for addr with the default probe token
func NewClient(addr string, timeout time.Duration) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{Addr: addr, Probe: DefaultProbe, Timeout: timeout}
}

// Ping sends the probe and reports an error unless the relay answers OK
func (c *Client) Ping(ctx context.Context) error {
	reply, err := c.Send(ctx, c.Probe)
	if err != nil {
		return err
	}
	if reply != strings.TrimSpace(ReplyOK) {
		return fmt.Errorf("unexpected probe reply %q", reply)
	}
	return nil
}

// Send writes cmd followed by a newline and returns the relay's reply line
func (c *Client) Send(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("dial relay %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(strings.TrimRight(cmd, "\r\n") + "\n")); err != nil {
		return "", fmt.Errorf("send %q: %w", cmd, err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	return strings.TrimSpace(reply), nil
}
