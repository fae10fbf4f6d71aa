// Package config loads runtime settings from defaults, an optional
// anistream.toml and ANISTREAM_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Name is the config file base name and the environment prefix.
const Name = "anistream"

// EnvKeyReplacer maps config keys to environment variable suffixes.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the typed view of every setting.
type Config struct {
	Server struct {
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Sites struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"sites"`

	Session struct {
		MaxRedirects     int      `mapstructure:"max_redirects"`
		UserAgent        string   `mapstructure:"user_agent"`
		FingerprintHosts []string `mapstructure:"fingerprint_hosts"`
		Proxy            string   `mapstructure:"proxy"`
	} `mapstructure:"session"`

	Unified struct {
		Endpoint string        `mapstructure:"endpoint"`
		Param    string        `mapstructure:"param"`
		Source   string        `mapstructure:"source"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"unified"`

	Resolver struct {
		TrustedHosts []string `mapstructure:"trusted_hosts"`
	} `mapstructure:"resolver"`

	Relay struct {
		Referers     []string      `mapstructure:"referers"`
		ImageMaxAge  time.Duration `mapstructure:"image_max_age"`
		MaxBytes     int64         `mapstructure:"max_bytes"`
		BlockPrivate bool          `mapstructure:"block_private"`
	} `mapstructure:"relay"`

	Enrich struct {
		Workers int `mapstructure:"workers"`
		Rate    int `mapstructure:"rate"`
	} `mapstructure:"enrich"`

	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Log struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// Field is one registered setting.
type Field struct {
	Key         string
	Value       interface{}
	Description string
}

// Env returns the environment variable that overrides the field.
func (f Field) Env() string {
	return strings.ToUpper(Name + "_" + EnvKeyReplacer.Replace(f.Key))
}

// Default holds every registered field by key.
var Default = make(map[string]Field)

func init() {
	register := func(k string, v interface{}, desc string) {
		if _, exists := Default[k]; exists {
			panic("duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc}
	}

	register("server.port", 8080, "Port the HTTP API listens on")
	register("server.read_timeout", 15*time.Second, "Maximum duration for reading a request")
	register("server.write_timeout", 60*time.Second, "Maximum duration for writing a response")
	register("sites.base_url", "https://animefire.plus", "Root of the upstream catalog site")
	register("session.max_redirects", 5, "Redirects followed per fetch")
	register("session.user_agent", "", "User-Agent sent upstream (empty uses a desktop Chrome string)")
	register("session.fingerprint_hosts", []string{}, "Hosts fetched with a browser TLS fingerprint")
	register("session.proxy", "", "Upstream proxy URL (http, https or socks5)")
	register("unified.endpoint", "", "Unified stream API endpoint; empty disables it")
	register("unified.param", "id", "Query parameter carrying the alternate identifier")
	register("unified.source", "AnimeFire", "Source key read from the unified response")
	register("unified.timeout", 25*time.Second, "Unified lookup timeout")
	register("resolver.trusted_hosts", []string{"lightspeedst.net", "blogger.com", "googlevideo.com"}, "Hosts preferred when ranking stream candidates")
	register("relay.referers", []string{}, "Referer per media host suffix, as host=referer pairs")
	register("relay.image_max_age", 24*time.Hour, "Upper bound on relayed image cache lifetime")
	register("relay.max_bytes", int64(20<<20), "Largest relayed payload in bytes")
	register("relay.block_private", true, "Refuse to relay loopback and private addresses")
	register("enrich.workers", 4, "Concurrent related-title lookups")
	register("enrich.rate", 8, "Related-title lookups per second (0 is unlimited)")
	register("store.path", defaultStorePath(), "SQLite database for user progress and lists; empty keeps them in memory")
	register("log.level", "info", "Log level: debug, info, warn, error")
	register("log.file", "", "Optional rotating log file")
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, Name, Name+".db")
}

// Keys returns registered keys, sorted.
func Keys() []string {
	keys := make([]string, 0, len(Default))
	for k := range Default {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults returns the registered defaults without consulting files or the
// environment.
func Defaults() *Config {
	v := viper.New()
	for key, field := range Default {
		v.SetDefault(key, field.Value)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: registered defaults do not decode: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration. cfgFile, when set, must exist; otherwise
// anistream.toml is looked up in the working directory and the user config
// directory and skipped when absent.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(Name)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.SetTypeByDefaultValue(true)
	for key, field := range Default {
		v.SetDefault(key, field.Value)
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", cfgFile)
		}
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, Name))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "reading config")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RefererMap parses relay.referers into host suffix -> referer.
func (c *Config) RefererMap() (map[string]string, error) {
	out := make(map[string]string, len(c.Relay.Referers))
	for _, pair := range c.Relay.Referers {
		host, referer, ok := strings.Cut(pair, "=")
		host = strings.ToLower(strings.TrimSpace(host))
		referer = strings.TrimSpace(referer)
		if !ok || host == "" || referer == "" {
			return nil, errors.Errorf("relay.referers entry %q is not host=referer", pair)
		}
		out[host] = referer
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Session.MaxRedirects < 0 {
		return errors.Errorf("session.max_redirects must not be negative: %d", c.Session.MaxRedirects)
	}
	if strings.TrimSpace(c.Sites.BaseURL) == "" {
		return errors.New("sites.base_url is required")
	}
	if _, err := c.RefererMap(); err != nil {
		return err
	}
	if c.Enrich.Rate < 0 {
		return errors.Errorf("enrich.rate must not be negative: %d", c.Enrich.Rate)
	}
	return nil
}
