// Package util provides the shared logger and the pooled HTTP transports used
// by the fetch client, the unified accelerator and the media relay.
package util

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// ErrDisallowedIP is returned by guarded dials that land on a private address.
var ErrDisallowedIP = errors.New("ip address is not allowed")

// ClientOptions describes one pooled client.
type ClientOptions struct {
	// Timeout is the whole-request budget. Zero leaves requests bounded only
	// by the transport's dial, handshake and response-header timeouts.
	Timeout time.Duration
	// Proxy is an optional http(s):// or socks5:// upstream proxy.
	Proxy string
	// FingerprintHosts are hosts that get a Chrome TLS fingerprint.
	FingerprintHosts []string
	// BlockPrivate refuses connections to loopback, private and multicast IPs.
	BlockPrivate bool
}

// httpClientConfig holds configuration for creating optimized HTTP clients
type httpClientConfig struct {
	maxIdleConns          int
	maxIdleConnsPerHost   int
	maxConnsPerHost       int
	idleConnTimeout       time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	expectContinue        time.Duration
	keepAlive             time.Duration
	dialTimeout           time.Duration
}

// defaultConfig returns the pool sizing shared by every client
func defaultConfig() httpClientConfig {
	return httpClientConfig{
		maxIdleConns:          200,
		maxIdleConnsPerHost:   20,
		maxConnsPerHost:       50,
		idleConnTimeout:       120 * time.Second,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 30 * time.Second,
		expectContinue:        1 * time.Second,
		keepAlive:             30 * time.Second,
		dialTimeout:           10 * time.Second,
	}
}

// IsDisallowedIP reports whether hostIP points somewhere a relay must not reach.
func IsDisallowedIP(hostIP string) bool {
	ip := net.ParseIP(hostIP)
	if ip == nil {
		return true
	}
	return ip.IsMulticast() || ip.IsUnspecified() || ip.IsLoopback() || ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

func checkDisallowedIP(conn net.Conn) error {
	ip, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return err
	}
	if IsDisallowedIP(ip) {
		return errors.Wrapf(ErrDisallowedIP, "refusing %s", ip)
	}
	return nil
}

type dialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func guardDial(dial dialContextFunc) dialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := checkDisallowedIP(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// dialerFor picks the base dialer: direct, or through a SOCKS proxy.
func dialerFor(cfg httpClientConfig, proxyURL *url.URL) (dialContextFunc, error) {
	direct := &net.Dialer{Timeout: cfg.dialTimeout, KeepAlive: cfg.keepAlive}
	if proxyURL == nil || !strings.HasPrefix(proxyURL.Scheme, "socks5") {
		return direct.DialContext, nil
	}
	dialer, err := proxy.FromURL(proxyURL, direct)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SOCKS5 dialer")
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// createTransport creates an optimized HTTP transport with the given config
func createTransport(cfg httpClientConfig, dial dialContextFunc, proxyURL *url.URL) *http.Transport {
	t := &http.Transport{
		DialContext:           dial,
		MaxIdleConns:          cfg.maxIdleConns,
		MaxIdleConnsPerHost:   cfg.maxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.maxConnsPerHost,
		IdleConnTimeout:       cfg.idleConnTimeout,
		TLSHandshakeTimeout:   cfg.tlsHandshakeTimeout,
		ResponseHeaderTimeout: cfg.responseHeaderTimeout,
		ExpectContinueTimeout: cfg.expectContinue,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if proxyURL != nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
		t.Proxy = http.ProxyURL(proxyURL)
	} else if proxyURL == nil {
		t.Proxy = http.ProxyFromEnvironment
	}
	return t
}

// NewHTTPClient builds a pooled client. Redirect policy is left to the caller.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	cfg := defaultConfig()

	var proxyURL *url.URL
	if opts.Proxy != "" {
		parsed, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid proxy url %q", opts.Proxy)
		}
		switch parsed.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, errors.Errorf("unsupported proxy scheme %q", parsed.Scheme)
		}
		proxyURL = parsed
	}

	dial, err := dialerFor(cfg, proxyURL)
	if err != nil {
		return nil, err
	}
	if opts.BlockPrivate && proxyURL == nil {
		dial = guardDial(dial)
	}

	var rt http.RoundTripper = createTransport(cfg, dial, proxyURL)
	// The fingerprinted path dials directly, so it is skipped behind a proxy.
	if len(opts.FingerprintHosts) > 0 && proxyURL == nil {
		rt = &hostRouter{
			base:        rt,
			fingerprint: newUTLSRoundTripper(cfg, dial),
			hosts:       normalizeHosts(opts.FingerprintHosts),
		}
	}

	return &http.Client{Transport: rt, Timeout: opts.Timeout}, nil
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// MatchesHost reports whether host equals, or is a subdomain of, any entry.
func MatchesHost(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// hostRouter sends https requests for listed hosts through the fingerprinted
// round tripper and everything else through the pooled transport.
type hostRouter struct {
	base        http.RoundTripper
	fingerprint http.RoundTripper
	hosts       []string
}

func (r *hostRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" && MatchesHost(req.URL.Hostname(), r.hosts) {
		Debug("using fingerprinted transport", "host", req.URL.Host)
		return r.fingerprint.RoundTrip(req)
	}
	return r.base.RoundTrip(req)
}

// utlsRoundTripper implements http.RoundTripper with a Chrome ClientHello and
// HTTP/2 support. Connections are not pooled.
type utlsRoundTripper struct {
	dial        dialContextFunc
	h2Transport *http2.Transport
}

func newUTLSRoundTripper(cfg httpClientConfig, dial dialContextFunc) *utlsRoundTripper {
	return &utlsRoundTripper{
		dial: dial,
		h2Transport: &http2.Transport{
			ReadIdleTimeout: cfg.idleConnTimeout,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "443")
	}

	conn, err := t.dial(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{ServerName: req.URL.Hostname()}, utls.HelloChrome_120)
	if err := uconn.HandshakeContext(req.Context()); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "utls handshake")
	}

	if uconn.ConnectionState().NegotiatedProtocol == "h2" {
		h2Conn, err := t.h2Transport.NewClientConn(uconn)
		if err != nil {
			_ = uconn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	}
	return doHTTP1Request(uconn, req)
}

func doHTTP1Request(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	resp.Body = &connCloser{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

type connCloser struct {
	io.ReadCloser
	conn net.Conn
}

func (c *connCloser) Close() error {
	_ = c.ReadCloser.Close()
	return c.conn.Close()
}
