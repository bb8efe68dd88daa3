package operations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpFetch retrieves one file over SFTP and discards it. It
// authenticates with the URL password or else a private key.
type sftpFetch struct {
	metrolib.BaseOperation
	host       string
	path       string
	user       string
	password   string
	keyPath    string
	knownHosts string
	cleanURL   string
	read       int64
}

func (d Deps) newSFTPFetch(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	raw, err := args.Require("url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: url: %v", metrolib.ErrInvalidArgs, err)
	}
	if strings.ToLower(u.Scheme) != "sftp" {
		return nil, fmt.Errorf("%w: unsupported scheme %q, expected sftp", metrolib.ErrInvalidArgs, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("%w: sftp url needs a file path", metrolib.ErrInvalidArgs)
	}
	o := &sftpFetch{
		host:       u.Host,
		path:       u.Path,
		keyPath:    args.Get("key", ""),
		knownHosts: d.KnownHostsPath,
		cleanURL:   stripCredentials(u),
	}
	if u.Port() == "" {
		o.host = net.JoinHostPort(u.Hostname(), "22")
	}
	if u.User != nil {
		o.user = u.User.Username()
		o.password, _ = u.User.Password()
	}
	return o, nil
}

func (o *sftpFetch) authMethods() ([]ssh.AuthMethod, error) {
	if o.password != "" {
		return []ssh.AuthMethod{ssh.Password(o.password)}, nil
	}
	paths := []string{o.keyPath}
	if o.keyPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		paths = []string{filepath.Join(home, ".ssh", "id_ed25519"), filepath.Join(home, ".ssh", "id_rsa")}
	}
	for _, p := range paths {
		pem, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			var ppErr *ssh.PassphraseMissingError
			if errors.As(err, &ppErr) {
				return nil, fmt.Errorf("sftp: key %q is passphrase-protected", p)
			}
			continue
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("sftp: no usable credentials, tried %s", strings.Join(paths, ", "))
}

func (o *sftpFetch) Run(ctx context.Context) error {
	auth, err := o.authMethods()
	if err != nil {
		return err
	}
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", o.host)
	if err != nil {
		return fmt.Errorf("sftp dial: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, o.host, &ssh.ClientConfig{
		User:            o.user,
		Auth:            auth,
		HostKeyCallback: trustOnFirstUse(o.knownHosts),
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("sftp handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp subsystem: %w", err)
	}
	defer sc.Close()

	f, err := sc.Open(o.path)
	if err != nil {
		return fmt.Errorf("sftp open: %w", err)
	}
	defer f.Close()
	o.read, err = io.Copy(io.Discard, f)
	return err
}

func (o *sftpFetch) Debug() string {
	return fmt.Sprintf("url=%s&bytes=%d", o.cleanURL, o.read)
}
