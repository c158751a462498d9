package archive

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = "21"

// FTP mirrors archived snapshots to a remote directory. Like Local, it never overwrites.
type FTP struct {
	addr     string
	user     string
	password string
	dir      string
	timeout  time.Duration
}

// ParseFTPURL builds a mirror from ftp://[user[:password]@]host[:port][/dir].
// Without credentials the anonymous login is used.
func ParseFTPURL(raw string, timeout time.Duration) (*FTP, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse ftp url: %w", err)
	}
	if u.Scheme != "ftp" {
		return nil, fmt.Errorf("parse ftp url: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parse ftp url: missing host")
	}

	port := u.Port()
	if port == "" {
		port = defaultFTPPort
	}

	f := &FTP{
		addr:     net.JoinHostPort(u.Hostname(), port),
		user:     "anonymous",
		password: "anonymous",
		dir:      u.Path,
		timeout:  timeout,
	}
	if f.dir == "" {
		f.dir = "/"
	}
	if u.User != nil {
		f.user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			f.password = p
		}
	}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	return f, nil
}

// Addr returns host:port.
func (f *FTP) Addr() string {
	return f.addr
}

// RemotePath is where localPath is stored on the server.
func (f *FTP) RemotePath(localPath string) string {
	return path.Join(f.dir, filepath.Base(localPath))
}

// Upload copies the snapshot at localPath into the remote directory.
func (f *FTP) Upload(ctx context.Context, localPath string) error {
	conn, err := ftp.Dial(f.addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.user, f.password); err != nil {
		return fmt.Errorf("ftp login: %w", err)
	}

	remote := f.RemotePath(localPath)
	if _, err := conn.FileSize(remote); err == nil {
		return fmt.Errorf("%w: ftp://%s%s", ErrSnapshotExists, f.addr, remote)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	if err := conn.Stor(remote, file); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remote, err)
	}
	return nil
}
