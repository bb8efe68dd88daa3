package operations

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/energylab/metronom/pkg/metrolib"
)

func TestWebFetch(t *testing.T) {
	body := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			w.Write([]byte(body))
		}
	}))
	defer srv.Close()
	reg := NewRegistry(testDeps(t))

	op := create(t, reg, TypeWeb, "url="+srv.URL+"/page")
	if err := execute(t, op); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if want := "url=" + srv.URL + "/page&status=200&bytes=5000"; op.Debug() != want {
		t.Errorf("Debug = %q, want %q", op.Debug(), want)
	}

	if err := execute(t, create(t, reg, TypeWeb, "url="+srv.URL+"/missing")); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("404: err = %v", err)
	}
	if err := execute(t, create(t, reg, TypeWeb, "url="+srv.URL+"/loop")); !errors.Is(err, errTooManyRedirects) {
		t.Errorf("redirect loop: err = %v", err)
	}
}

func TestWebThroughProxy(t *testing.T) {
	var seen string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.String()
		w.Write([]byte("proxied"))
	}))
	defer proxy.Close()

	deps := testDeps(t)
	deps.Proxy = proxy.URL
	op := create(t, NewRegistry(deps), TypeWeb, "url=http://measurement.invalid/index.html")
	if err := execute(t, op); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if seen != "http://measurement.invalid/index.html" {
		t.Errorf("proxy saw %q", seen)
	}
}

func TestWebInvalidProxy(t *testing.T) {
	reg := NewRegistry(testDeps(t))
	for _, p := range []string{"ftp://proxy:21", "not a url"} {
		a := metrolib.Args{"proxy": p}
		if _, err := reg.Create(TypeWeb, "x", metrolib.NoPause, a); !errors.Is(err, metrolib.ErrInvalidArgs) {
			t.Errorf("proxy %q: err = %v", p, err)
		}
	}
}

func TestParseProxyURL(t *testing.T) {
	cases := []struct {
		in  string
		err error
	}{
		{"socks5://user:pw@127.0.0.1:1080", nil},
		{"http://proxy:3128", nil},
		{"https://proxy:3128", nil},
		{"ftp://proxy:21", ErrUnsupportedScheme},
		{"proxy:3128", ErrInvalidProxyURL},
		{"://", ErrInvalidProxyURL},
	}
	for _, c := range cases {
		if _, err := parseProxyURL(c.in); !errors.Is(err, c.err) {
			t.Errorf("parseProxyURL(%q) = %v, want %v", c.in, err, c.err)
		}
	}
}
