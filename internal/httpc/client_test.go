package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewFillsDefaults(t *testing.T) {
	c := New(Options{Timeout: 2 * time.Second})
	if c.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	tr := c.Transport.(*http.Transport)
	if tr.MaxConnsPerHost != DefaultOptions().MaxConnsPerHost {
		t.Errorf("max conns = %d", tr.MaxConnsPerHost)
	}
	if tr.TLSHandshakeTimeout != DefaultOptions().ConnectTimeout {
		t.Errorf("handshake timeout = %v", tr.TLSHandshakeTimeout)
	}
}

func TestClientTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Options{Timeout: 50 * time.Millisecond})
	if _, err := c.Get(srv.URL); err == nil {
		t.Error("expected timeout")
	}
}
