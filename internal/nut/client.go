// Package nut polls UPS variables over the Network UPS Tools line
// protocol. The protocol is a handful of request/response verbs over
// TCP, optionally upgraded to TLS, so the client speaks it directly.
package nut

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/logger"
)

// opTimeout bounds every protocol exchange, including the TLS
// handshake.
const opTimeout = time.Second

var (
	ErrProtocol     = errors.New("unexpected NUT response")
	ErrAccessDenied = errors.New("NUT access denied")
)

// Conn is one established session with a NUT server. A transport
// error returned by any method means the session must be discarded.
type Conn interface {
	// Query fetches the given variables for one UPS. A variable the
	// server rejects is logged and left out of the result; the error
	// return is reserved for transport failures.
	Query(ups string, variables []string) (map[string]string, error)
	// Ping probes session liveness.
	Ping() error
	Close() error
}

// Dialer opens sessions. Implemented by Client; tests substitute
// fakes.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Client dials one configured server, upgrading to TLS and
// authenticating as configured.
type Client struct {
	cfg config.NUTServer
}

func NewClient(cfg config.NUTServer) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Dial(ctx context.Context) (Conn, error) {
	d := net.Dialer{Timeout: opTimeout}
	raw, err := d.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Addr(), err)
	}

	s := newSession(raw)

	if c.cfg.EnableTLS {
		if err := s.startTLS(c.cfg.Host); err != nil {
			_ = s.conn.Close()
			return nil, err
		}
	}

	if c.cfg.Username != "" {
		if err := s.login(c.cfg.Username, c.cfg.Password); err != nil {
			_ = s.conn.Close()
			return nil, err
		}
	}

	return s, nil
}

// session is the protocol state over one socket
type session struct {
	conn net.Conn
	r    *bufio.Reader
}

func newSession(conn net.Conn) *session {
	return &session{conn: conn, r: bufio.NewReader(conn)}
}

// roundTrip sends one command line and reads one response line under
// the protocol deadline.
func (s *session) roundTrip(cmd string) (string, error) {
	if err := s.conn.SetDeadline(time.Now().Add(opTimeout)); err != nil {
		return "", err
	}
	if _, err := fmt.Fprintf(s.conn, "%s\n", cmd); err != nil {
		return "", err
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// startTLS upgrades the socket. The response is read unbuffered so no
// handshake bytes end up in the line reader.
func (s *session) startTLS(serverName string) error {
	if err := s.conn.SetDeadline(time.Now().Add(opTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprint(s.conn, "STARTTLS\n"); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}

	resp, err := readLine(s.conn)
	if err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if !strings.HasPrefix(resp, "OK") {
		return fmt.Errorf("%w: starttls refused: %s", ErrProtocol, resp)
	}

	tlsConn := tls.Client(s.conn, &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.SetDeadline(time.Now().Add(opTimeout)); err != nil {
		return err
	}
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}

	s.conn = tlsConn
	s.r = bufio.NewReader(tlsConn)

	return nil
}

func (s *session) login(username, password string) error {
	for _, cmd := range []string{"USERNAME " + username, "PASSWORD " + password} {
		resp, err := s.roundTrip(cmd)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(resp, "OK") {
			return fmt.Errorf("%w: %s", ErrAccessDenied, resp)
		}
	}

	return nil
}

func (s *session) Query(ups string, variables []string) (map[string]string, error) {
	vars := make(map[string]string, len(variables))
	for _, name := range variables {
		value, ok, err := s.getVar(ups, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			logger.Warn().Str("ups", ups).Str("variable", name).Msg("Variable not available")
			continue
		}
		vars[name] = value
	}

	return vars, nil
}

func (s *session) getVar(ups, name string) (string, bool, error) {
	resp, err := s.roundTrip(fmt.Sprintf("GET VAR %s %s", ups, name))
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(resp, "ERR") {
		return "", false, nil
	}

	value, err := parseVarResponse(resp, ups, name)
	if err != nil {
		// A garbled response means the stream is desynced; the
		// session cannot be trusted any further.
		return "", false, err
	}

	return value, true, nil
}

func (s *session) Ping() error {
	resp, err := s.roundTrip("VER")
	if err != nil {
		return err
	}
	if strings.HasPrefix(resp, "ERR") {
		return fmt.Errorf("%w: %s", ErrProtocol, resp)
	}

	return nil
}

func (s *session) Close() error {
	// Best effort; the server drops the socket after LOGOUT anyway.
	_, _ = s.roundTrip("LOGOUT")

	return s.conn.Close()
}

// parseVarResponse extracts the quoted value from
// `VAR <ups> <name> "<value>"`.
func parseVarResponse(resp, ups, name string) (string, error) {
	prefix := fmt.Sprintf("VAR %s %s ", ups, name)
	if !strings.HasPrefix(resp, prefix) {
		return "", fmt.Errorf("%w: %q", ErrProtocol, resp)
	}

	return unquote(strings.TrimPrefix(resp, prefix))
}

// unquote removes the surrounding double quotes and resolves \" and
// \\ escapes.
func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("%w: unquoted value %q", ErrProtocol, s)
	}

	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}

	return b.String(), nil
}

func readLine(conn net.Conn) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return "", err
		}
		if buf[0] == '\n' {
			break
		}
		line = append(line, buf[0])
	}

	return strings.TrimRight(string(line), "\r"), nil
}
