package operations

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

var (
	ErrInvalidProxyURL   = errors.New("invalid proxy URL")
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")
)

const maxRedirects = 10

var errTooManyRedirects = errors.New("too many redirects")

func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidProxyURL
	}
	switch u.Scheme {
	case "http", "https", "socks5":
		return u, nil
	}
	return nil, ErrUnsupportedScheme
}

// contextDialer dials TCP directly or through a SOCKS5 proxy.
type contextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

func newDialer(proxyURL string, timeout time.Duration) (contextDialer, error) {
	direct := &net.Dialer{Timeout: timeout}
	if proxyURL == "" {
		return direct, nil
	}
	u, err := parseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "socks5" {
		return nil, ErrUnsupportedScheme
	}
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, direct)
	if err != nil {
		return nil, err
	}
	cd, ok := d.(contextDialer)
	if !ok {
		return nil, ErrUnsupportedScheme
	}
	return cd, nil
}

// newHTTPClient returns a client routed through proxyURL when it is set.
// socks5 proxies dial through x/net/proxy; http(s) proxies use the
// transport's CONNECT support.
func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		u, err := parseProxyURL(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "socks5" {
			d, err := newDialer(proxyURL, timeout)
			if err != nil {
				return nil, err
			}
			transport.DialContext = d.DialContext
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}, nil
}
