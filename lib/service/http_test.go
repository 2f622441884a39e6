// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/significa/appdist/lib/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startServer runs server in the background and returns a function
// that cancels it and waits for Serve to return.
func startServer(t *testing.T, server *HTTPServer) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx)
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	return func() error {
		cancel()
		return testutil.RequireReceive(t, done, 5*time.Second, "server shutdown")
	}
}

func echoPath() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		io.WriteString(writer, request.URL.Path)
	})
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	response, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatal(err)
	}
	if response.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, response.StatusCode)
	}
	return string(body)
}

func TestHTTPServerServesUntilCancelled(t *testing.T) {
	server := NewHTTPServer(HTTPServerConfig{
		Address: "127.0.0.1:0",
		Handler: echoPath(),
		Logger:  discardLogger(),
	})
	if server.TLS() {
		t.Error("TLS() = true without a certificate")
	}
	stop := startServer(t, server)

	if got := get(t, http.DefaultClient, "http://"+server.Addr().String()+"/get/abc/app.ipa"); got != "/get/abc/app.ipa" {
		t.Errorf("body = %q", got)
	}
	if err := stop(); err != nil {
		t.Errorf("Serve() = %v, want nil after cancel", err)
	}
	if _, err := net.DialTimeout("tcp", server.Addr().String(), time.Second); err == nil {
		t.Error("listener still accepting after shutdown")
	}
}

func TestHTTPServerTLS(t *testing.T) {
	certFile, keyFile, pool := writeSelfSigned(t)
	server := NewHTTPServer(HTTPServerConfig{
		Address:     "127.0.0.1:0",
		Handler:     echoPath(),
		Logger:      discardLogger(),
		TLSCertFile: certFile,
		TLSKeyFile:  keyFile,
	})
	if !server.TLS() {
		t.Error("TLS() = false with a certificate")
	}
	stop := startServer(t, server)
	defer stop()

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	if got := get(t, client, "https://"+server.Addr().String()+"/healthz"); got != "/healthz" {
		t.Errorf("body = %q", got)
	}
}

func TestHTTPServerStartupErrors(t *testing.T) {
	certFile, _, _ := writeSelfSigned(t)
	tests := []struct {
		name    string
		config  HTTPServerConfig
		wantErr string
	}{
		{
			name:    "port out of range",
			config:  HTTPServerConfig{Address: "127.0.0.1:99999"},
			wantErr: "listening on",
		},
		{
			name:    "certificate without key",
			config:  HTTPServerConfig{Address: "127.0.0.1:0", TLSCertFile: certFile},
			wantErr: "both a certificate and a key",
		},
		{
			name:    "unreadable key pair",
			config:  HTTPServerConfig{Address: "127.0.0.1:0", TLSCertFile: certFile, TLSKeyFile: filepath.Join(t.TempDir(), "missing.pem")},
			wantErr: "loading TLS key pair",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.config.Handler = http.NotFoundHandler()
			test.config.Logger = discardLogger()
			err := NewHTTPServer(test.config).Serve(t.Context())
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Serve() = %v, want an error mentioning %q", err, test.wantErr)
			}
		})
	}
}

func TestNewHTTPServerRequiredFields(t *testing.T) {
	complete := HTTPServerConfig{Address: ":0", Handler: http.NotFoundHandler(), Logger: discardLogger()}
	for name, unset := range map[string]func(*HTTPServerConfig){
		"address": func(c *HTTPServerConfig) { c.Address = "" },
		"handler": func(c *HTTPServerConfig) { c.Handler = nil },
		"logger":  func(c *HTTPServerConfig) { c.Logger = nil },
	} {
		t.Run(name, func(t *testing.T) {
			config := complete
			unset(&config)
			defer func() {
				if recover() == nil {
					t.Errorf("NewHTTPServer without %s did not panic", name)
				}
			}()
			NewHTTPServer(config)
		})
	}

	server := NewHTTPServer(complete)
	if server.config.ShutdownTimeout != DefaultShutdownTimeout || server.config.TransferTimeout != DefaultTransferTimeout {
		t.Errorf("timeouts = %v, %v, want the defaults", server.config.ShutdownTimeout, server.config.TransferTimeout)
	}
}

func TestCheckToken(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		presented string
		want      bool
	}{
		{"no token configured", "", "", true},
		{"no token configured, one presented", "", "anything", true},
		{"match", "s3cret", "s3cret", true},
		{"mismatch", "s3cret", "s3crex", false},
		{"prefix", "s3cret", "s3c", false},
		{"missing", "s3cret", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckToken(tt.expected, tt.presented); got != tt.want {
				t.Errorf("CheckToken(%q, %q) = %v, want %v", tt.expected, tt.presented, got, tt.want)
			}
		})
	}
}

// writeSelfSigned writes a certificate for 127.0.0.1 and its key as PEM
// files and returns a pool trusting it.
func writeSelfSigned(t *testing.T) (certFile, keyFile string, pool *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "appdist test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	directory := t.TempDir()
	certFile = filepath.Join(directory, "cert.pem")
	keyFile = filepath.Join(directory, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}

	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	pool = x509.NewCertPool()
	pool.AddCert(certificate)
	return certFile, keyFile, pool
}
