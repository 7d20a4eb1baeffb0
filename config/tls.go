package config

import (
	"fmt"

	"github.com/c360/varmsg/errors"
)

// ServerTLSConfig enables TLS on the HTTP API
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig validates client certificates on the HTTP API
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`
	RequireClientCert bool     `json:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`
}

// ClientTLSConfig enables TLS on the NATS connection. The system CA pool
// is always trusted; CAFiles are added to it.
type ClientTLSConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // dev/test only
	MinVersion         string   `json:"min_version,omitempty"`
	CertFile           string   `json:"cert_file,omitempty"` // client certificate for mTLS
	KeyFile            string   `json:"key_file,omitempty"`
}

func (t ServerTLSConfig) validate() error {
	if !t.Enabled {
		return nil
	}
	if t.CertFile == "" || t.KeyFile == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: http.tls needs cert_file and key_file", errors.ErrMissingConfig),
			"Config", "Validate", "check http tls")
	}
	if t.MTLS.Enabled && len(t.MTLS.ClientCAFiles) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: http.tls.mtls needs client_ca_files", errors.ErrMissingConfig),
			"Config", "Validate", "check http mtls")
	}
	return validMinVersion(t.MinVersion)
}

func (t ClientTLSConfig) validate() error {
	if !t.Enabled {
		return nil
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats.tls cert_file and key_file go together", errors.ErrInvalidConfig),
			"Config", "Validate", "check nats tls")
	}
	return validMinVersion(t.MinVersion)
}

func validMinVersion(v string) error {
	switch v {
	case "", "1.2", "1.3":
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: tls min_version %q", errors.ErrInvalidConfig, v),
		"Config", "Validate", "check tls version")
}
