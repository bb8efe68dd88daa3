package operations

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/jlaffaye/ftp"
)

const ftpTimeout = 30 * time.Second

// ftpFetch retrieves one file over FTP or explicit FTPS and discards it.
type ftpFetch struct {
	metrolib.BaseOperation
	host     string
	path     string
	user     string
	password string
	useTLS   bool
	cleanURL string
	read     int64
}

func (d Deps) newFTPFetch(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	raw, err := args.Require("url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: url: %v", metrolib.ErrInvalidArgs, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "ftp" && scheme != "ftps" {
		return nil, fmt.Errorf("%w: unsupported scheme %q, expected ftp or ftps", metrolib.ErrInvalidArgs, scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("%w: ftp url needs a file path", metrolib.ErrInvalidArgs)
	}
	o := &ftpFetch{
		host:     u.Host,
		path:     u.Path,
		user:     "anonymous",
		password: "anonymous",
		useTLS:   scheme == "ftps",
		cleanURL: stripCredentials(u),
	}
	if u.Port() == "" {
		o.host = net.JoinHostPort(u.Hostname(), "21")
	}
	if u.User != nil {
		o.user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			o.password = p
		}
	}
	return o, nil
}

func stripCredentials(u *url.URL) string {
	c := *u
	c.User = nil
	return c.String()
}

func (o *ftpFetch) connect(ctx context.Context) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(ftpTimeout),
		ftp.DialWithContext(ctx),
	}
	if o.useTLS {
		hostname, _, _ := net.SplitHostPort(o.host)
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: hostname,
			MinVersion: tls.VersionTLS12,
		}))
	}
	conn, err := ftp.Dial(o.host, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Login(o.user, o.password); err != nil {
		conn.Quit()
		return nil, err
	}
	return conn, nil
}

func (o *ftpFetch) Run(ctx context.Context) error {
	conn, err := o.connect(ctx)
	if err != nil {
		return fmt.Errorf("ftp connect: %w", err)
	}
	defer conn.Quit()
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		return fmt.Errorf("ftp type: %w", err)
	}
	resp, err := conn.Retr(o.path)
	if err != nil {
		return fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()
	o.read, err = io.Copy(io.Discard, resp)
	if err != nil {
		return fmt.Errorf("ftp read: %w", err)
	}
	return nil
}

func (o *ftpFetch) Debug() string {
	return fmt.Sprintf("url=%s&bytes=%d", o.cleanURL, o.read)
}
