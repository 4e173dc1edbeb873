// Package vault loads exchange and AI provider credentials from HashiCorp
// Vault. When Vault is disabled, config/env values are used as-is and this
// package is a no-op.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection configuration.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ExchangeCredentials are the OKX API credentials stored in Vault.
type ExchangeCredentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Client wraps the HashiCorp Vault client with a small read-through cache.
type Client struct {
	client *api.Client
	config Config
	mu     sync.RWMutex
	cache  map[string]map[string]string
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose reads always report not-found.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "okx-trading-bot"
	}
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]map[string]string)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]map[string]string),
	}, nil
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// readSecret reads one KV v2 secret and flattens its string fields.
func (c *Client) readSecret(ctx context.Context, name string) (map[string]string, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	path := fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	fields := make(map[string]string, len(data))
	for key, val := range data {
		if str, ok := val.(string); ok {
			fields[key] = str
		}
	}

	c.mu.Lock()
	c.cache[name] = fields
	c.mu.Unlock()

	return fields, nil
}

// GetExchangeCredentials loads the OKX API credentials.
func (c *Client) GetExchangeCredentials(ctx context.Context) (*ExchangeCredentials, error) {
	fields, err := c.readSecret(ctx, "okx")
	if err != nil {
		return nil, err
	}
	return &ExchangeCredentials{
		APIKey:     fields["api_key"],
		SecretKey:  fields["secret_key"],
		Passphrase: fields["passphrase"],
	}, nil
}

// GetLLMAPIKey loads the API key for an AI provider (e.g. "deepseek").
func (c *Client) GetLLMAPIKey(ctx context.Context, provider string) (string, error) {
	fields, err := c.readSecret(ctx, "llm")
	if err != nil {
		return "", err
	}
	key, ok := fields[provider+"_api_key"]
	if !ok || key == "" {
		return "", fmt.Errorf("no API key for provider %q", provider)
	}
	return key, nil
}

// ClearCache clears the in-memory secret cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]string)
	c.mu.Unlock()
}

// Health checks the Vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
