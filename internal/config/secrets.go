package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Keys read from the proxy credentials file
const (
	proxyHostKey     = "BRD_HOST"
	proxyPortKey     = "BRD_PORT"
	proxyUserBaseKey = "BRD_USERNAME_BASE"
	proxyPasswordKey = "BRD_PASSWORD"
)

// ResolveProxy fills missing proxy credentials from the env file found in
// dir (or at an absolute EnvFile). The file is parsed into a map; the process
// environment is never modified. Enabled proxies without credentials are an error.
func (c *Config) ResolveProxy(dir string) error {
	if !c.Proxy.Enabled {
		return nil
	}

	path := c.Proxy.EnvFile
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			vars, err := godotenv.Read(path)
			if err != nil {
				return fmt.Errorf("failed to read proxy env file: %w", err)
			}
			c.applyProxyVars(vars)
		}
	}

	if c.Proxy.UsernameBase == "" || c.Proxy.Password == "" {
		return fmt.Errorf("proxy enabled but %s/%s are not set", proxyUserBaseKey, proxyPasswordKey)
	}
	return nil
}

func (c *Config) applyProxyVars(vars map[string]string) {
	if v := vars[proxyHostKey]; v != "" {
		c.Proxy.Host = v
	}
	if v := vars[proxyPortKey]; v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Proxy.Port = port
		}
	}
	if v := vars[proxyUserBaseKey]; v != "" && c.Proxy.UsernameBase == "" {
		c.Proxy.UsernameBase = v
	}
	if v := vars[proxyPasswordKey]; v != "" && c.Proxy.Password == "" {
		c.Proxy.Password = v
	}
}
