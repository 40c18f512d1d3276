package ftp

import (
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var (
	// pasvRegex matches the PASV reply: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches the EPSV reply: 229 Entering Extended Passive Mode (|||port|)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV parses a PASV reply and returns "host:port".
// Example: "227 Entering Passive Mode (192,168,1,1,195,149)" -> "192.168.1.1:50069"
func parsePASV(response string) (string, error) {
	matches := pasvRegex.FindStringSubmatch(response)
	if len(matches) != 7 {
		return "", fmt.Errorf("invalid PASV response: %s", response)
	}

	var parts [6]int
	for i := range parts {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", fmt.Errorf("invalid PASV field: %s", matches[i+1])
		}
		parts[i] = val
	}

	host := fmt.Sprintf("%d.%d.%d.%d", parts[0], parts[1], parts[2], parts[3])
	port := parts[4]*256 + parts[5]
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// parseEPSV parses an EPSV reply and returns the port.
// Example: "229 Entering Extended Passive Mode (|||6446|)" -> "6446"
func parseEPSV(response string) (string, error) {
	matches := epsvRegex.FindStringSubmatch(response)
	if len(matches) != 2 {
		return "", fmt.Errorf("invalid EPSV response: %s", response)
	}

	port, err := strconv.Atoi(matches[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", matches[1])
	}
	return matches[1], nil
}

// resolveDataAddr replaces an unroutable PASV host (0.0.0.0) with the host
// of the control connection.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}
	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}
	return pasvAddr
}

// openDataConn opens a passive data connection, trying EPSV before PASV.
// If TLS is enabled the data connection is wrapped and resumes the control
// session.
func (c *Client) openDataConn() (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		if resp, err := c.sendCommand("EPSV"); err == nil {
			switch {
			case resp.Code == 500 || resp.Code == 502:
				c.disableEPSV = true
			case resp.Is2xx():
				if port, perr := parseEPSV(resp.String()); perr == nil {
					addr = net.JoinHostPort(c.host, port)
				}
			}
		}
	}

	if addr == "" {
		resp, err := c.sendCommand("PASV")
		if err != nil {
			return nil, fmt.Errorf("PASV failed: %w", err)
		}
		if !resp.Is2xx() {
			return nil, newProtocolError("PASV", resp)
		}
		addr, err = parsePASV(resp.String())
		if err != nil {
			return nil, err
		}
		addr = resolveDataAddr(addr, c.host)
	}

	dataConn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}

	if c.tlsConfig != nil {
		tlsConn := tls.Client(dataConn, c.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			dataConn.Close()
			return nil, fmt.Errorf("data connection TLS handshake failed: %w", err)
		}
		dataConn = tlsConn
	}

	if c.timeout > 0 {
		return &deadlineConn{Conn: dataConn, timeout: c.timeout}, nil
	}
	return dataConn, nil
}

// cmdDataConn opens a data connection and sends a transfer command on the
// control channel. The caller must pass the returned connection to
// finishDataConn.
func (c *Client) cmdDataConn(cmd string, args ...string) (net.Conn, error) {
	dataConn, err := c.openDataConn()
	if err != nil {
		return nil, err
	}

	resp, err := c.sendCommand(cmd, args...)
	if err != nil {
		dataConn.Close()
		return nil, err
	}

	// Only 1xx opens a transfer; finishDataConn reads the final reply.
	if !resp.Is1xx() {
		dataConn.Close()
		return nil, newProtocolError(cmd, resp)
	}

	return dataConn, nil
}

// finishDataConn closes the data connection and reads the final reply
// (normally 226 Transfer complete).
func (c *Client) finishDataConn(cmd string, dataConn net.Conn) error {
	closeErr := dataConn.Close()

	c.mu.Lock()
	resp, err := c.readReply()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to read completion response: %w", err)
	}
	if !resp.Is2xx() {
		return newProtocolError(cmd, resp)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close data connection: %w", closeErr)
	}

	c.logger.Debug("ftp data transfer complete", "cmd", cmd, "code", resp.Code)
	return nil
}
