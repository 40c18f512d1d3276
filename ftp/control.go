package ftp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Response represents an FTP server reply.
type Response struct {
	// Code is the three-digit reply code (e.g., 220, 550)
	Code int

	// Message is the human-readable text, one line per reply line
	Message string

	// Lines contains the raw reply lines
	Lines []string
}

// Is2xx returns true if the reply is a positive completion.
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// Is1xx returns true if the reply is a positive preliminary reply.
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// String returns the full reply as a string.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// readResponse reads one complete reply from the control channel.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"220-Welcome to FTP\r\n"
//	"220-This is line 2\r\n"
//	"220 Ready\r\n"
//
// The reply ends at the first line carrying the same code followed by a space.
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 {
		return nil, fmt.Errorf("invalid response line: %q", line)
	}

	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("invalid response code: %q", line[0:3])
	}

	if line[3] == ' ' {
		return &Response{Code: code, Message: line[4:], Lines: []string{line}}, nil
	}
	if line[3] != '-' {
		return nil, fmt.Errorf("invalid response format: %q", line)
	}

	lines := []string{line}
	prefix := line[0:3]
	for {
		next, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected EOF reading response")
			}
			return nil, err
		}
		next = strings.TrimRight(next, "\r\n")
		lines = append(lines, next)

		// Continuation lines may be free text; only "NNN " terminates.
		if len(next) >= 4 && next[0:3] == prefix && next[3] == ' ' {
			break
		}
	}

	messages := make([]string, 0, len(lines))
	for _, l := range lines {
		switch {
		case len(l) >= 4 && l[0:3] == prefix && (l[3] == ' ' || l[3] == '-'):
			messages = append(messages, l[4:])
		default:
			messages = append(messages, strings.TrimSpace(l))
		}
	}

	return &Response{
		Code:    code,
		Message: strings.Join(messages, "\n"),
		Lines:   lines,
	}, nil
}

// sendCommand sends an FTP command and returns the reply.
func (c *Client) sendCommand(command string, args ...string) (*Response, error) {
	cmd := command
	if len(args) > 0 {
		cmd = command + " " + strings.Join(args, " ")
	}

	if command == "PASS" {
		c.logger.Debug("ftp command", "cmd", "PASS ***")
	} else {
		c.logger.Debug("ftp command", "cmd", cmd)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	resp, err := c.readReply()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// readReply reads the next reply with the read deadline applied.
// Callers must hold c.mu.
func (c *Client) readReply() (*Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("ftp response", "code", resp.Code, "message", resp.Message)
	return resp, nil
}

// expectCode sends a command and verifies the reply code.
func (c *Client) expectCode(expectedCode int, command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != expectedCode {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}

// expect2xx sends a command and verifies the reply is a positive completion.
func (c *Client) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}
	if !resp.Is2xx() {
		return resp, newProtocolError(command, resp)
	}
	return resp, nil
}
