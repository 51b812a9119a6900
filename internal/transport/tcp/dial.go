package tcp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Options describe how to reach the server.
type Options struct {
	Address    string
	ServerName string
	// CAFile is a PEM bundle used as the only trusted roots.
	// System roots are used when empty.
	CAFile  string
	Timeout time.Duration
}

// ClientTLSConfig returns the TLS settings for connecting to serverName.
func ClientTLSConfig(serverName, caFile string) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("failed to parse certificate %s: no PEM certificates found", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Dial connects to the server and completes the TLS handshake.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	tlsConfig, err := ClientTLSConfig(opts.ServerName, opts.CAFile)
	if err != nil {
		return nil, err
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: opts.Timeout},
		Config:    tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}

// Listen opens the server socket. With a certificate and key it accepts TLS
// connections, otherwise plain TCP.
func Listen(address, certFile, keyFile string) (net.Listener, error) {
	if certFile == "" && keyFile == "" {
		l, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to start server: %w", err)
		}
		return l, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("failed to start server: certificate and key must be given together")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}
	l, err := tls.Listen("tcp", address, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	return l, nil
}
