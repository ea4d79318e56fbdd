// Package config holds the explicit configuration value resolved once at
// startup and passed to constructors: object-store endpoint and credentials,
// logging, and download settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environments with distinct endpoint tables.
const (
	EnvBOE  = "BOE"
	EnvProd = "PROD"
)

const (
	DefaultRegion = "cn-north-1"
	DefaultScheme = "tos"
)

// Environment variables read by FromEnv.
const (
	EnvAccessKey    = "VOLC_ACCESSKEY"
	EnvSecretKey    = "VOLC_SECRETKEY"
	EnvSessionToken = "VOLC_SESSIONTOKEN"
	EnvRegion       = "VOLC_REGION"
	EnvEndpoint     = "TOS_ENDPOINT"
	EnvPlatform     = "ML_PLATFORM_ENV"
)

var tosEndpoints = map[string]map[string]string{
	EnvBOE: {
		"cn-north-1": "http://boe-s3-official-test.volces.com",
	},
	EnvProd: {
		"cn-qingdao": "http://tos-s3-cn-qingdao.volces.com",
		"cn-north-1": "http://tos-s3-cn-qingdao.volces.com",
		"cn-beijing": "http://tos-s3-cn-beijing.volces.com",
	},
}

// Credential is an access key pair for the object store.
type Credential struct {
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
}

// Empty reports whether no key pair is set.
func (c Credential) Empty() bool {
	return c.AccessKey == "" && c.SecretKey == ""
}

type Config struct {
	Env        string     `yaml:"env"`
	Region     string     `yaml:"region"`
	Endpoint   string     `yaml:"endpoint"` // overrides the region table
	PathStyle  bool       `yaml:"path_style"`
	Credential Credential `yaml:"credential"`

	Log      LogConfig      `yaml:"log"`
	Download DownloadConfig `yaml:"download"`
}

type LogConfig struct {
	Level   string `yaml:"level"`   // zerolog level name
	Console bool   `yaml:"console"` // human-readable output instead of JSON
}

type DownloadConfig struct {
	Workers int `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Env:       EnvProd,
		Region:    DefaultRegion,
		PathStyle: true,
		Log:       LogConfig{Level: "info", Console: true},
		Download:  DownloadConfig{Workers: 8},
	}
}

// Load reads a yaml file on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv overrides fields from the process environment, using lookup to read
// variables (os.LookupEnv in production).
func (c Config) FromEnv(lookup func(string) (string, bool)) Config {
	if v, ok := lookup(EnvAccessKey); ok {
		c.Credential.AccessKey = v
	}
	if v, ok := lookup(EnvSecretKey); ok {
		c.Credential.SecretKey = v
	}
	if v, ok := lookup(EnvSessionToken); ok {
		c.Credential.SessionToken = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		c.Region = v
	}
	if v, ok := lookup(EnvEndpoint); ok && v != "" {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvPlatform); ok && v != "" {
		c.Env = v
	}
	return c
}

// Validate checks the fields that would otherwise fail late.
func (c Config) Validate() error {
	if c.Env != EnvBOE && c.Env != EnvProd {
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.Download.Workers < 0 {
		return errors.New("download.workers must be >= 0")
	}
	if (c.Credential.AccessKey == "") != (c.Credential.SecretKey == "") {
		return errors.New("credential requires both access_key and secret_key")
	}
	return nil
}

// TOSEndpoint returns the S3-compatible endpoint for the configured env and
// region, or Endpoint when set.
func (c Config) TOSEndpoint() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	if ep, ok := tosEndpoints[c.Env][c.Region]; ok {
		return ep, nil
	}
	return "", fmt.Errorf("no TOS endpoint for env %s region %s", c.Env, c.Region)
}

// ResolveCredential returns explicit when it is set, else the configured one.
func (c Config) ResolveCredential(explicit *Credential) Credential {
	if explicit != nil && !explicit.Empty() {
		return *explicit
	}
	return c.Credential
}

func (c Config) String() string {
	return "env=" + c.Env + " region=" + c.Region + " path_style=" + strconv.FormatBool(c.PathStyle)
}
