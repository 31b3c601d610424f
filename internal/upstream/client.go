// Package upstream is the outbound HTTP client the provider adapters send
// through: timeout discipline for long streams, an optional outbound
// proxy, and a local:// scheme that bypasses the network.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/awsl-project/gproxy/internal/domain"
)

const (
	defaultConnectTimeout = 5 * time.Second
	// Streams can stay open for a day; the read-idle timeout is what
	// actually reaps dead connections.
	defaultRequestTimeout = 86400 * time.Second
	defaultReadIdle       = 30 * time.Second
)

// Client sends adapter-built requests upstream.
type Client interface {
	Send(ctx context.Context, req *domain.UpstreamHTTPRequest) (*domain.UpstreamHTTPResponse, *domain.TransportError)
}

// HTTPClient is the production client. Instances are cached per outbound
// proxy URL; construction is one-shot per key.
type HTTPClient struct {
	client *http.Client
}

var (
	clientCache   sync.Map // proxy URL -> *HTTPClient
	clientBuilder singleflight.Group
)

// ForProxy returns the shared client for an outbound proxy URL ("" for
// direct egress).
func ForProxy(proxyURL string) (*HTTPClient, error) {
	if cached, ok := clientCache.Load(proxyURL); ok {
		return cached.(*HTTPClient), nil
	}
	built, err, _ := clientBuilder.Do(proxyURL, func() (any, error) {
		client, err := newHTTPClient(proxyURL)
		if err != nil {
			return nil, err
		}
		clientCache.Store(proxyURL, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*HTTPClient), nil
}

func newHTTPClient(proxyURL string) (*HTTPClient, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: defaultConnectTimeout,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ResponseHeaderTimeout: defaultReadIdle,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
		ForceAttemptHTTP2:     true,
	}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(parsed)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   defaultRequestTimeout,
		},
	}, nil
}

// Send performs the request. local:// URLs short-circuit to a 200 echoing
// the request body, which the tokenizer-count and static-catalogue paths
// rely on.
func (c *HTTPClient) Send(ctx context.Context, req *domain.UpstreamHTTPRequest) (*domain.UpstreamHTTPResponse, *domain.TransportError) {
	if strings.HasPrefix(req.URL, "local://") {
		headers := http.Header{}
		headers.Set("Content-Type", "application/json")
		return &domain.UpstreamHTTPResponse{
			Status:  http.StatusOK,
			Headers: headers,
			Body:    req.Body,
		}, nil
	}

	var body *bytes.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	} else {
		body = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &domain.TransportError{Kind: domain.TransportOther, Message: err.Error()}
	}
	for name, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if req.IsStream {
		return &domain.UpstreamHTTPResponse{
			Status:  resp.StatusCode,
			Headers: resp.Header,
			Stream:  resp.Body,
		}, nil
	}
	defer resp.Body.Close()
	buffered := &bytes.Buffer{}
	if _, err := buffered.ReadFrom(resp.Body); err != nil {
		return nil, classifyTransportError(err)
	}
	return &domain.UpstreamHTTPResponse{
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    buffered.Bytes(),
	}, nil
}

// classifyTransportError buckets a client error into the transport kinds.
func classifyTransportError(err error) *domain.TransportError {
	message := err.Error()
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &domain.TransportError{Kind: domain.TransportDNS, Message: message}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return &domain.TransportError{Kind: domain.TransportTLS, Message: message}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.TransportError{Kind: domain.TransportTimeout, Message: message}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.TransportError{Kind: domain.TransportReadTimeout, Message: message}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &domain.TransportError{Kind: domain.TransportConnect, Message: message}
	}
	if strings.Contains(message, "tls") || strings.Contains(message, "x509") {
		return &domain.TransportError{Kind: domain.TransportTLS, Message: message}
	}
	return &domain.TransportError{Kind: domain.TransportOther, Message: message}
}
