package ftptest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
)

// maxCommandLength bounds a single control channel line.
const maxCommandLength = 4096

// dataTimeout bounds waiting for the client to open the data connection.
const dataTimeout = 10 * time.Second

// session is one control connection.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	id       string
	loggedIn bool
	user     string

	cwd          string
	transferType string
	pasvList     net.Listener
}

var commandHandlers = map[string]func(*session, string){
	"PWD":  (*session).handlePWD,
	"XPWD": (*session).handlePWD,
	"CWD":  (*session).handleCWD,
	"XCWD": (*session).handleCWD,
	"MKD":  (*session).handleMKD,
	"XMKD": (*session).handleMKD,
	"TYPE": (*session).handleTYPE,
	"PASV": (*session).handlePASV,
	"EPSV": (*session).handleEPSV,
	"STOR": (*session).handleSTOR,
	"SYST": (*session).handleSYST,
}

func newSession(server *Server, conn net.Conn) *session {
	id := uuid.NewString()
	return &session{
		server:       server,
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, maxCommandLength),
		logger:       server.logger.With("session_id", id, "remote_addr", conn.RemoteAddr().String()),
		id:           id,
		cwd:          "/",
		transferType: "A",
	}
}

func (s *session) serve() {
	defer s.close()

	s.logger.Info("session_start")
	s.reply(220, "ftptest ready")

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)

		logged := arg
		if cmd == "PASS" {
			logged = "***"
		}
		s.server.record(Command{Session: s.id, Name: cmd, Arg: logged})
		s.logger.Debug("command", "cmd", cmd, "arg", logged)

		if !s.handleCommand(cmd, arg) {
			return
		}
	}
}

// handleCommand dispatches one command. It returns false when the session
// should end.
func (s *session) handleCommand(cmd, arg string) bool {
	switch cmd {
	case "QUIT":
		s.reply(221, "Goodbye.")
		return false
	case "NOOP":
		s.reply(200, "NOOP ok.")
		return true
	case "USER":
		s.handleUSER(arg)
		return true
	case "PASS":
		s.handlePASS(arg)
		return true
	}

	handler, ok := commandHandlers[cmd]
	if !ok {
		s.reply(502, "Command not implemented.")
		return true
	}
	if s.server.user != "" && !s.loggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return true
	}
	handler(s, arg)
	return true
}

func (s *session) close() {
	if s.pasvList != nil {
		s.pasvList.Close()
		s.pasvList = nil
	}
	s.conn.Close()
	s.logger.Info("session_end")
}

func (s *session) reply(code int, msg string) {
	fmt.Fprintf(s.conn, "%d %s\r\n", code, msg)
}

// resolve turns a command argument into an absolute, clean remote path.
func (s *session) resolve(arg string) string {
	if arg == "" {
		return s.cwd
	}
	if strings.HasPrefix(arg, "/") {
		return path.Clean(arg)
	}
	return path.Join(s.cwd, arg)
}

// stat runs Stat under the filesystem lock.
func (s *session) stat(p string) (os.FileInfo, error) {
	s.server.fsMu.Lock()
	defer s.server.fsMu.Unlock()
	return s.server.fs.Stat(p)
}

func (s *session) handleUSER(arg string) {
	s.user = arg
	s.loggedIn = false
	s.reply(331, "User name okay, need password.")
}

func (s *session) handlePASS(arg string) {
	if s.server.user != "" && (s.user != s.server.user || arg != s.server.pass) {
		s.logger.Warn("login_failed", "user", s.user)
		s.reply(530, "Login incorrect.")
		return
	}
	s.loggedIn = true
	s.logger.Info("login_success", "user", s.user)
	s.reply(230, "User logged in, proceed.")
}

func (s *session) handleSYST(string) {
	s.reply(215, "UNIX Type: L8")
}

func (s *session) handlePWD(string) {
	quoted := strings.ReplaceAll(s.cwd, `"`, `""`)
	s.reply(257, `"`+quoted+`" is the current directory.`)
}

func (s *session) handleCWD(arg string) {
	target := s.resolve(arg)
	if err := s.server.checkFault("CWD", target); err != nil {
		s.reply(550, err.Error())
		return
	}

	info, err := s.stat(target)
	if err != nil || !info.IsDir() {
		s.reply(550, "No such directory.")
		return
	}
	s.cwd = target
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleMKD(arg string) {
	if arg == "" {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	target := s.resolve(arg)
	if err := s.server.checkFault("MKD", target); err != nil {
		s.reply(550, err.Error())
		return
	}

	s.server.fsMu.Lock()
	parent, perr := s.server.fs.Stat(path.Dir(target))
	_, terr := s.server.fs.Stat(target)
	var err error
	switch {
	case perr != nil || !parent.IsDir():
		err = fmt.Errorf("parent directory does not exist")
	case terr == nil:
		err = fmt.Errorf("directory already exists")
	default:
		err = s.server.fs.MkdirAll(target, 0o755)
	}
	s.server.fsMu.Unlock()

	if err != nil {
		s.reply(550, "Create directory operation failed: "+err.Error())
		return
	}
	s.logger.Info("mkdir", "path", target)
	s.reply(257, `"`+strings.ReplaceAll(target, `"`, `""`)+`" created.`)
}

func (s *session) handleTYPE(arg string) {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A", "A N":
		s.transferType = "A"
		s.reply(200, "Type set to A.")
	case "I", "L 8":
		s.transferType = "I"
		s.reply(200, "Type set to I.")
	default:
		s.reply(504, "Command not implemented for that parameter.")
	}
}

// listenPassive replaces any pending passive listener with a new one.
func (s *session) listenPassive() (int, error) {
	if s.pasvList != nil {
		s.pasvList.Close()
		s.pasvList = nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	s.pasvList = ln
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (s *session) handlePASV(string) {
	port, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.reply(227, fmt.Sprintf("Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256))
}

func (s *session) handleEPSV(string) {
	port, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	s.reply(229, "Entering Extended Passive Mode (|||"+strconv.Itoa(port)+"|)")
}

func (s *session) handleSTOR(arg string) {
	ln := s.pasvList
	s.pasvList = nil
	if ln == nil {
		s.reply(425, "Use PASV or EPSV first.")
		return
	}
	defer ln.Close()

	if arg == "" {
		s.reply(501, "Syntax error in parameters or arguments.")
		return
	}

	target := s.resolve(arg)
	if err := s.server.checkFault("STOR", target); err != nil {
		s.reply(451, "Requested action aborted: "+err.Error())
		return
	}

	parent, err := s.stat(path.Dir(target))
	if err != nil || !parent.IsDir() {
		s.reply(550, "No such directory.")
		return
	}

	s.reply(150, "Ok to send data.")

	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(dataTimeout))
	}
	dataConn, err := ln.Accept()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return
	}

	var buf bytes.Buffer
	_, err = io.Copy(&buf, dataConn)
	dataConn.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}

	data := buf.Bytes()
	if s.transferType == "A" {
		data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	}

	s.server.fsMu.Lock()
	err = util.WriteFile(s.server.fs, target, data, 0o644)
	s.server.fsMu.Unlock()
	if err != nil {
		s.reply(451, "Requested action aborted: "+err.Error())
		return
	}

	s.server.recordUpload(Upload{Path: target, Type: s.transferType, Size: int64(len(data))})
	s.logger.Info("upload", "path", target, "type", s.transferType, "bytes", len(data))
	s.reply(226, "Transfer complete.")
}
