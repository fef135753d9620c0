// SPDX-FileCopyrightText: Copyright 2025 Janssen Project contributors
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the authorization core config
// structure and logic required to load it.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration of the authorization core.
type Config struct {
	RelyingParty RelyingParty `yaml:"relying_party"`
	UMA          UMA          `yaml:"uma"`
	HTTP         HTTP         `yaml:"http,omitempty"`
}

// RelyingParty contains the FIDO2 relying party settings.
type RelyingParty struct {
	// ID is the relying party identifier, normally the effective domain of
	// the origin, e.g. "login.example.org".
	ID string `yaml:"id"`

	// Name is the human-readable relying party name shown by browsers.
	Name string `yaml:"name"`

	// Origin is the base URL browsers use during ceremonies,
	// e.g. "https://login.example.org".
	Origin string `yaml:"origin"`

	// UserVerification is the ceremony user-verification policy:
	// "required", "preferred" or "discouraged". Defaults to "preferred".
	UserVerification string `yaml:"user_verification,omitempty"`

	// ChallengeTTL bounds how long an issued challenge stays resolvable.
	ChallengeTTL time.Duration `yaml:"challenge_ttl,omitempty"`
}

// UMA contains the UMA 2.0 authorization server settings.
type UMA struct {
	// AuthorizationServerURI is advertised to clients in ticket challenges
	// as the as_uri value.
	AuthorizationServerURI string `yaml:"authorization_server_uri"`

	// HostID identifies this resource server in ticket challenges.
	HostID string `yaml:"host_id"`

	// TokenEndpoint is the OAuth2 token endpoint used for PAT acquisition.
	TokenEndpoint string `yaml:"token_endpoint"`

	// IntrospectionEndpoint is the RPT introspection endpoint.
	IntrospectionEndpoint string `yaml:"introspection_endpoint"`

	// PermissionEndpoint is the UMA permission registration endpoint.
	PermissionEndpoint string `yaml:"permission_endpoint"`

	// JWKSURL serves the authorization server keys for validating
	// JWT-formatted RPTs locally.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	// ClientID identifies this resource server to the authorization server.
	ClientID string `yaml:"client_id"`

	// KeyID selects the private_key_jwt signing key for PAT requests.
	KeyID string `yaml:"key_id,omitempty"`
}

// HTTP contains the outbound HTTP client settings.
type HTTP struct {
	// Timeout bounds every outbound verification call. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// CACertificatePath optionally points at a CA bundle for outbound TLS.
	CACertificatePath string `yaml:"ca_certificate_path,omitempty"`
}

// Default returns a config populated with default values. The relying party
// and UMA endpoints have no usable defaults and must come from the caller.
func Default() *Config {
	return &Config{
		RelyingParty: RelyingParty{
			UserVerification: "preferred",
			ChallengeTTL:     5 * time.Minute,
		},
		HTTP: HTTP{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML config from the given reader on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML config from the given path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks the config for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party.id is required")
	}
	if c.RelyingParty.Origin == "" {
		return fmt.Errorf("relying_party.origin is required")
	}
	switch c.RelyingParty.UserVerification {
	case "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid relying_party.user_verification: %q", c.RelyingParty.UserVerification)
	}
	if c.UMA.AuthorizationServerURI == "" {
		return fmt.Errorf("uma.authorization_server_uri is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	return nil
}
