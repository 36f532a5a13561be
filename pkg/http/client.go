package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// SquareTimeout is the total per-request timeout for Square API calls
const SquareTimeout = 30 * time.Second

// TransportConfig tunes the pooled transport shared by outbound API calls
type TransportConfig struct {
	MaxIdleConns          int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	MinTLSVersion         uint16
}

// SquareTransportConfig returns the transport settings for the Square API.
// Every call goes to one host, so the idle pool is sized per host.
func SquareTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:          20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: SquareTimeout,
		MinTLSVersion:         tls.VersionTLS12,
	}
}

// NewSquareClient returns the HTTP client used for all Square API calls
func NewSquareClient() *http.Client {
	return NewClient(SquareTransportConfig(), SquareTimeout)
}

// NewClient builds a client over a keep-alive HTTP/2 transport
func NewClient(cfg TransportConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: cfg.MinTLSVersion},
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
