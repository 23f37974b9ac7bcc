package shell

// SSH helpers for out-of-band interaction with nodes reachable over
// SSH: one-shot commands and file transfers alongside the interactive
// session.

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/sftp"
	"go4.org/writerutil"
	"golang.org/x/crypto/ssh"
)

// ProxyJump connects to addr through an already established client,
// the way ssh -J does.
func ProxyJump(c *ssh.Client, addr string, config *ssh.ClientConfig) (cc *ssh.Client, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("ProxyJump %s: %w", addr, err)
		}
	}()

	conn, err := c.Dial("tcp", net.JoinHostPort(addr, "22"))
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// RunCommand executes a single command in its own session, outside the
// interactive shell, and returns its stdout. Arguments are quoted for
// the remote shell.
func RunCommand(c *ssh.Client, name string, args ...string) ([]byte, error) {
	var b strings.Builder

	b.WriteString(ShellQuote(name))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(ShellQuote(a))
	}
	cmd := b.String()

	sess, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var stdout bytes.Buffer
	stderr := &writerutil.PrefixSuffixSaver{N: 1024}
	sess.Stdout = &stdout
	sess.Stderr = stderr

	if err := sess.Run(cmd); err != nil {
		if msg := stderr.Bytes(); len(msg) > 0 {
			return nil, fmt.Errorf("RunCommand: %w | %s |", err, msg)
		}
		return nil, fmt.Errorf("RunCommand: %w", err)
	}

	return stdout.Bytes(), nil
}

// SFTPGet retrieves the contents of the remote file at path.
func SFTPGet(conn *ssh.Client, path string) (content []byte, err error) {
	c, err := sftp.NewClient(conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	fd, err := c.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	return io.ReadAll(fd)
}

// SFTPPutReader creates or replaces the remote file at dstPath with
// the contents of src.
func SFTPPutReader(conn *ssh.Client, dstPath string, src io.Reader) (err error) {
	c, err := sftp.NewClient(conn)
	if err != nil {
		return err
	}
	defer c.Close()

	fd, err := c.Create(dstPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := fd.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(fd, src)
	return err
}

// SFTPPut creates or replaces the remote file at dstPath with content.
func SFTPPut(conn *ssh.Client, dstPath string, content []byte) (err error) {
	return SFTPPutReader(conn, dstPath, bytes.NewReader(content))
}

// ShellQuote returns s in a form suitable to pass it to the shell as an
// argument. Obviously, it works for Bourne-like shells only.  The way this
// works is that first the whole string is enclosed in single quotes. Now the
// only character that needs special handling is the single quote itself.  We
// replace it by '\'' (the outer quotes are part of the replacement) and make
// use of the fact that the shell concatenates adjacent strings.
func ShellQuote(s string) string {
	t := strings.Replace(s, "'", `'\''`, -1)
	return "'" + t + "'"
}
