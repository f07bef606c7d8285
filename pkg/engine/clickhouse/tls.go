package clickhouse

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/dbchores/pkg/connection"
)

// TLSConfig creates the TLS config for a target, or nil when the target
// doesn't use TLS.
//
// TLS is enabled by any of CAFile, CertFile or an ssl_mode of require,
// verify-ca or verify-full. CertFile and KeyFile together enable mTLS.
// ssl_mode require skips server verification.
//
// Example usage:
//
//	cfg, err := TLSConfig(connection.Target{
//		CAFile:   "/etc/clickhouse/ca.crt",
//		CertFile: "/etc/clickhouse/client.crt",
//		KeyFile:  "/etc/clickhouse/client.key",
//	})
//	if err != nil {
//		return err
//	}
func TLSConfig(t connection.Target) (*tls.Config, error) {
	if !usesTLS(t) {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.SSLMode == "require", //nolint:gosec
	}

	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to load certfile/keyfile")
		}

		cfg.Certificates = []tls.Certificate{cert}
	}

	if t.CAFile != "" {
		caCert, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to load CAfile")
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.Errorf("no certificates found in %s", t.CAFile)
		}

		cfg.RootCAs = pool
	}

	return cfg, nil
}

func usesTLS(t connection.Target) bool {
	switch t.SSLMode {
	case "require", "verify-ca", "verify-full":
		return true
	}

	return t.CAFile != "" || t.CertFile != ""
}
