package shared

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrProviderUnreachable marks failures to reach a remote model or speech
// backend at the transport level.
var ErrProviderUnreachable = errors.New("provider unreachable")

var connectionMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"dial tcp",
	"i/o timeout",
	"tls handshake timeout",
	"network is unreachable",
}

// IsConnectionError reports whether err looks like a network-level failure
// rather than an error response from a reachable service.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderUnreachable) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range connectionMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// MarkUnreachable wraps err with ErrProviderUnreachable when it is a
// connection failure and returns it unchanged otherwise.
func MarkUnreachable(err error) error {
	if err == nil || errors.Is(err, ErrProviderUnreachable) || !IsConnectionError(err) {
		return err
	}
	return errors.Join(ErrProviderUnreachable, err)
}
