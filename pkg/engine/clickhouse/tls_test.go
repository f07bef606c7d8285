package clickhouse_test

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/dbchores/pkg/connection"
	"github.com/pseudomuto/dbchores/pkg/engine/clickhouse"
	"github.com/stretchr/testify/require"
)

// If you ever need to regenerate the fixtures in testdata/
//
// openssl req -x509 -new -nodes -key ca.key -sha256 -days 365 \
//  -out ca.crt \
//  -subj "/C=AB/ST=CD/L=SomeRock/O=TestCA/CN=Test Root CA"
//
// openssl genrsa -out client.key 2048
//
// openssl req -new -key client.key -out client.csr \
//  -subj "/C=AB/ST=CD/L=TheMoon/O=TestOrg/CN=foobar"
//
// openssl x509 -req -in client.csr -CA ca.crt -CAkey ca.key -CAcreateserial \
// -out client.crt -days 365 -sha256

func TestTLSConfig(t *testing.T) {
	certFile := filepath.Join("testdata", "client.crt")
	keyFile := filepath.Join("testdata", "client.key")
	caFile := filepath.Join("testdata", "ca.crt")

	tests := []struct {
		name     string
		target   connection.Target
		wantErr  bool
		wantNil  bool
		wantCert bool
		wantCA   bool
		insecure bool
	}{
		{
			name:    "plaintext",
			target:  connection.Target{Host: "localhost"},
			wantNil: true,
		},
		{
			name:     "mutual TLS",
			target:   connection.Target{CertFile: certFile, KeyFile: keyFile, CAFile: caFile},
			wantCert: true,
			wantCA:   true,
		},
		{
			name:   "custom CA only",
			target: connection.Target{CAFile: caFile, SSLMode: "verify-full"},
			wantCA: true,
		},
		{
			name:     "require skips verification",
			target:   connection.Target{SSLMode: "require"},
			insecure: true,
		},
		{
			name:    "invalid cert file",
			target:  connection.Target{CertFile: "bogus.tls", KeyFile: keyFile, CAFile: caFile},
			wantErr: true,
		},
		{
			name:    "invalid key file",
			target:  connection.Target{CertFile: certFile, KeyFile: "bogus.key", CAFile: caFile},
			wantErr: true,
		},
		{
			name:    "invalid CA file",
			target:  connection.Target{CertFile: certFile, KeyFile: keyFile, CAFile: "bogus.tls"},
			wantErr: true,
		},
		{
			name:    "CA file without certificates",
			target:  connection.Target{CAFile: keyFile},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := clickhouse.TLSConfig(tt.target)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			if tt.wantNil {
				require.Nil(t, cfg)
				return
			}

			require.NotNil(t, cfg)
			require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
			require.Equal(t, tt.insecure, cfg.InsecureSkipVerify)
			require.Equal(t, tt.wantCA, cfg.RootCAs != nil)

			if tt.wantCert {
				require.Len(t, cfg.Certificates, 1)
			} else {
				require.Empty(t, cfg.Certificates)
			}
		})
	}
}
