//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig defines the mutual TLS identity of a party.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// ClientAuth is one of none, request, require, verify,
	// require_and_verify.
	ClientAuth string   `yaml:"client_auth"`
	ClientCAs  []string `yaml:"client_cas"`

	// ServerName overrides the server name the client verifies.
	ServerName string `yaml:"server_name"`

	MinVersion string `yaml:"min_version"`
}

func (cfg *TLSConfig) base() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	minVersion := uint16(tls.VersionTLS12)
	if cfg.MinVersion != "" {
		minVersion = parseTLSVersion(cfg.MinVersion)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}, nil
}

// ServerConfig loads the server side tls.Config. It returns nil if
// TLS is not enabled.
func (cfg *TLSConfig) ServerConfig() (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsConfig, err := cfg.base()
	if err != nil {
		return nil, err
	}

	if cfg.ClientAuth != "" && cfg.ClientAuth != "none" {
		clientAuth, err := parseClientAuthType(cfg.ClientAuth)
		if err != nil {
			return nil, fmt.Errorf("invalid client_auth value: %w", err)
		}
		tlsConfig.ClientAuth = clientAuth

		if cfg.CAFile != "" || len(cfg.ClientCAs) > 0 {
			pool, err := loadCertPool(cfg.CAFile, cfg.ClientCAs)
			if err != nil {
				return nil, fmt.Errorf("failed to load client CA certificates: %w",
					err)
			}
			tlsConfig.ClientCAs = pool
		}
	}
	return tlsConfig, nil
}

// ClientConfig loads the client side tls.Config. It returns nil if
// TLS is not enabled.
func (cfg *TLSConfig) ClientConfig() (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsConfig, err := cfg.base()
	if err != nil {
		return nil, err
	}
	if cfg.CAFile != "" {
		pool, err := loadCertPool(cfg.CAFile, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load CA certificates: %w", err)
		}
		tlsConfig.RootCAs = pool
	}
	tlsConfig.ServerName = cfg.ServerName
	return tlsConfig, nil
}

// parseTLSVersion converts a string to a tls version constant
func parseTLSVersion(version string) uint16 {
	switch version {
	case "TLS1.2":
		return tls.VersionTLS12
	case "TLS1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// parseClientAuthType converts a string to a tls.ClientAuthType
func parseClientAuthType(authType string) (tls.ClientAuthType, error) {
	switch authType {
	case "none", "":
		return tls.NoClientCert, nil
	case "request":
		return tls.RequestClientCert, nil
	case "require":
		return tls.RequireAnyClientCert, nil
	case "verify":
		return tls.VerifyClientCertIfGiven, nil
	case "require_and_verify":
		return tls.RequireAndVerifyClientCert, nil
	default:
		return tls.NoClientCert, fmt.Errorf("unknown client auth type: %s",
			authType)
	}
}

// loadCertPool loads CA certificates into a cert pool
func loadCertPool(caFile string, additionalCAs []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	for _, caPath := range append([]string{caFile}, additionalCAs...) {
		if caPath == "" {
			continue
		}
		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", caPath, err)
		}
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s",
				caPath)
		}
	}
	return pool, nil
}
