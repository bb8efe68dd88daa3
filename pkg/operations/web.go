package operations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/energylab/metronom/pkg/metrolib"
)

const webTimeout = 30 * time.Second

// webOperation fetches a page and drains the body.
type webOperation struct {
	metrolib.BaseOperation
	url    string
	client *http.Client
	read   int64
	status int
}

func (d Deps) newWeb(_ string, _ metrolib.Pause, args metrolib.Args) (metrolib.Operation, error) {
	client, err := newHTTPClient(args.Get("proxy", d.Proxy), webTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", metrolib.ErrInvalidArgs, err)
	}
	return &webOperation{url: args.Get("url", "https://www.google.com"), client: client}, nil
}

func (o *webOperation) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	o.status = resp.StatusCode
	o.read, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("GET %s: %s", o.url, resp.Status)
	}
	return nil
}

func (o *webOperation) After(context.Context) error {
	o.client.CloseIdleConnections()
	return nil
}

func (o *webOperation) Debug() string {
	return fmt.Sprintf("url=%s&status=%d&bytes=%d", o.url, o.status, o.read)
}
