package ingest

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"finset/internal/config"
)

// Proxy builds rotating-session proxy URLs from explicit credentials. The
// process environment is never read or written.
type Proxy struct {
	Host         string
	Port         int
	UsernameBase string
	Password     string

	// SessionID returns a fresh session id for each request
	SessionID func() string
}

// NewProxy returns nil when the proxy is disabled
func NewProxy(cfg config.ProxyConfig) *Proxy {
	if !cfg.Enabled {
		return nil
	}
	return &Proxy{
		Host:         cfg.Host,
		Port:         cfg.Port,
		UsernameBase: cfg.UsernameBase,
		Password:     cfg.Password,
		SessionID:    randomSessionID,
	}
}

// randomSessionID is a dashless UUID, safe inside a proxy username
func randomSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// URL returns the proxy URL for one session
func (p *Proxy) URL(sessionID string) *url.URL {
	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(fmt.Sprintf("%s-session-%s", p.UsernameBase, sessionID), p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
}

// Client returns an HTTP client for one request. With a proxy, each call
// gets its own transport bound to a new session so exits rotate.
func (p *Proxy) Client(timeout time.Duration) *http.Client {
	if p == nil {
		return &http.Client{Timeout: timeout}
	}
	proxyURL := p.URL(p.SessionID())
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
	}
}
