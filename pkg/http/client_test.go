package http

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSquareClient_Timeouts(t *testing.T) {
	client := NewSquareClient()

	assert.Equal(t, 30*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, transport.TLSHandshakeTimeout)
	assert.Equal(t, 20, transport.MaxIdleConnsPerHost)
	assert.Equal(t, uint16(tls.VersionTLS12), transport.TLSClientConfig.MinVersion)
	assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
	assert.True(t, transport.ForceAttemptHTTP2)
}

func TestSquareTransportConfig_ConnectTimeout(t *testing.T) {
	cfg := SquareTransportConfig()
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, SquareTimeout, cfg.ResponseHeaderTimeout)
}
