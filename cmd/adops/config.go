package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// cliConfig holds the operator CLI's connection settings, persisted at
// ~/.adops/config.yaml. ADOPS_ADDR, ADOPS_TOKEN and ADOPS_CACERT override
// the file without touching it.
type cliConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	TLSCACert string `yaml:"tls_ca_cert"`
}

const defaultAddress = "http://127.0.0.1:8300"

func cliConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".adops", "config.yaml")
}

// readConfigFile loads only the persisted settings. `config set` works on
// this so env overrides never leak into the file.
func readConfigFile() cliConfig {
	c := cliConfig{Address: defaultAddress}
	if data, err := os.ReadFile(cliConfigPath()); err == nil {
		yaml.Unmarshal(data, &c) //nolint:errcheck
	}
	return c
}

// effectiveConfig is what commands connect with: the file plus env overrides.
func effectiveConfig() cliConfig {
	c := readConfigFile()
	if v := os.Getenv("ADOPS_ADDR"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("ADOPS_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("ADOPS_CACERT"); v != "" {
		c.TLSCACert = v
	}
	return c
}

func (c cliConfig) write() error {
	path := cliConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
