package upstream

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/gproxy/internal/domain"
)

// local:// URLs bypass the network and echo the request body with a 200.
func TestLocalSchemeBypassesNetwork(t *testing.T) {
	client, err := ForProxy("")
	require.NoError(t, err)
	resp, terr := client.Send(context.Background(), &domain.UpstreamHTTPRequest{
		Method: "POST",
		URL:    "local://count",
		Body:   []byte(`{"input_tokens":42}`),
	})
	require.Nil(t, terr)
	assert.Equal(t, 200, resp.Status)
	assert.JSONEq(t, `{"input_tokens":42}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestForProxyCachesPerKey(t *testing.T) {
	a, err := ForProxy("")
	require.NoError(t, err)
	b, err := ForProxy("")
	require.NoError(t, err)
	assert.Same(t, a, b)

	proxied, err := ForProxy("http://127.0.0.1:9999")
	require.NoError(t, err)
	assert.NotSame(t, a, proxied)
}

func TestForProxyRejectsBadURL(t *testing.T) {
	_, err := ForProxy("://not-a-url")
	assert.Error(t, err)
}

func TestClassifyTransportError(t *testing.T) {
	dns := classifyTransportError(&net.DNSError{Err: "no such host", Name: "x"})
	assert.Equal(t, domain.TransportDNS, dns.Kind)

	dial := classifyTransportError(&net.OpError{Op: "dial", Err: assertError("refused")})
	assert.Equal(t, domain.TransportConnect, dial.Kind)

	timeout := classifyTransportError(timeoutError{})
	assert.Equal(t, domain.TransportTimeout, timeout.Kind)

	other := classifyTransportError(assertError("boom"))
	assert.Equal(t, domain.TransportOther, other.Kind)
}

type assertError string

func (e assertError) Error() string { return string(e) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
