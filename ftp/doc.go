// Package ftp implements the FTP client used by cymo's upload sessions.
//
// # Overview
//
// The client covers what an uploader needs from a server and nothing more:
//   - Plain FTP and FTPS (explicit AUTH TLS or implicit TLS)
//   - Passive data connections (EPSV, falling back to PASV)
//   - Login, working directory navigation and directory creation
//   - Binary (TYPE I) and text (TYPE A) uploads
//   - Protocol errors that keep the command, reply text and reply code
//
// # Basic Usage
//
//	client, err := ftp.Dial("ftp.example.com:21", ftp.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
//
//	if err := client.Login("username", "password"); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.ChangeDir("/upload"); err != nil {
//	    log.Fatal(err)
//	}
//
//	f, _ := os.Open("report.csv")
//	defer f.Close()
//	if err := client.StoreText("report.csv", f); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transfer Types
//
// Store always switches the session to binary mode. StoreText switches to
// ASCII mode and rewrites bare LF line endings to CRLF on the wire, as
// required for NVT-ASCII transfers. The client remembers the current type
// and only sends TYPE when it changes.
//
// # Error Handling
//
// Server rejections are returned as *ProtocolError. A 550 reply matches
// fs.ErrNotExist, which lets callers tell "directory missing" apart from
// transport failures:
//
//	if err := client.ChangeDir("a/b"); errors.Is(err, fs.ErrNotExist) {
//	    _ = client.MakeDir("a/b")
//	}
package ftp
