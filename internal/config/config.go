// Package config provides functionality for managing configuration options
// for the server using command-line flags, a JSON config file and
// environment variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/atinyakov/practiceserver/internal/service"
)

// Duration is a time.Duration that reads "90s"-style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// List is a comma separated flag value that may be repeated.
type List []string

// String joins the items with commas.
func (l *List) String() string { return strings.Join(*l, ",") }

// Set appends every non-empty comma separated item.
func (l *List) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			*l = append(*l, item)
		}
	}
	return nil
}

// Options holds the configuration values for the server.
type Options struct {
	// Address defines the server's listening address (ip:port).
	Address string `json:"address"`

	// DatabaseDSN is the Postgres connection string of the seed database.
	// Seed records are read from it only when it is set.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the config file.
	Config string `json:"-"`

	// SeedFiles are JSON seed files for the public store.
	SeedFiles List `json:"seed_files"`

	// ProtectedSeedFiles are JSON seed files for users and sessions.
	ProtectedSeedFiles List `json:"protected_seed_files"`

	// SeedCollections limits the collections read from the seed database.
	SeedCollections List `json:"seed_collections"`

	// NoDefaults skips the built-in users and books.
	NoDefaults bool `json:"no_defaults"`

	// StoreSeed writes the merged seed into the database on start.
	StoreSeed bool `json:"store_seed"`

	// RulesFile is a YAML or JSON access rule file merged over the defaults.
	RulesFile string `json:"rules_file"`

	// JSONStoreDir holds the *.json documents served by /jsonstore.
	JSONStoreDir string `json:"jsonstore_dir"`

	// Identity is the user field that must be unique ("email" or "username").
	Identity string `json:"identity"`

	// HashSecret is the HMAC key for passwords and access tokens.
	HashSecret string `json:"hash_secret"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Throttle is the initial value of the throttle toggle.
	Throttle bool `json:"throttle"`

	// SessionTTL is how long a session lives. Zero keeps sessions forever.
	SessionTTL Duration `json:"session_ttl"`

	// CleanupInterval is how often expired sessions are removed.
	CleanupInterval Duration `json:"cleanup_interval"`

	// TLSCert and TLSKey are the PEM files of the server certificate.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// SelfSigned serves HTTPS with a certificate generated at start.
	SelfSigned bool `json:"self_signed"`
}

// Defaults of the server options. The identity field and hash secret come
// from the service package.
const (
	// DefaultAddress is the listening address.
	DefaultAddress = "localhost:3030"
	// DefaultLogLevel is the zap level name.
	DefaultLogLevel = "info"
	// DefaultCleanupInterval is how often expired sessions are swept.
	DefaultCleanupInterval = time.Minute
)

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	register(flag.CommandLine, options)
}

func register(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.Address, "a", DefaultAddress, "run on ip:port server")
	fs.StringVar(&o.DatabaseDSN, "d", "", "seed database address")
	fs.StringVar(&o.Config, "config", "config.json", "path to config file")
	fs.StringVar(&o.Config, "c", "config.json", "path to config file (shorthand)")
	fs.Var(&o.SeedFiles, "seed", "public seed file(s), comma separated")
	fs.Var(&o.ProtectedSeedFiles, "protected-seed", "protected seed file(s), comma separated")
	fs.Var(&o.SeedCollections, "seed-collections", "collections to read from the seed database")
	fs.BoolVar(&o.NoDefaults, "no-defaults", false, "do not load the built-in seed data")
	fs.BoolVar(&o.StoreSeed, "store-seed", false, "write the merged seed data into the seed database")
	fs.StringVar(&o.RulesFile, "rules", "", "access rules file (YAML or JSON)")
	fs.StringVar(&o.JSONStoreDir, "jsonstore-dir", "", "directory with jsonstore documents")
	fs.StringVar(&o.Identity, "identity", service.DefaultIdentity, "unique user field")
	fs.StringVar(&o.HashSecret, "secret", service.DefaultSecret, "password and token hashing secret")
	fs.StringVar(&o.LogLevel, "l", DefaultLogLevel, "log level")
	fs.BoolVar(&o.Throttle, "throttle", false, "delay every request by 0.5-1s")
	fs.Func("session-ttl", "session lifetime, 0 keeps sessions", durationFlag(&o.SessionTTL))
	o.CleanupInterval = Duration(DefaultCleanupInterval)
	fs.Func("cleanup-interval", "expired session sweep interval", durationFlag(&o.CleanupInterval))
	fs.StringVar(&o.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&o.TLSKey, "tls-key", "", "TLS key file")
	fs.BoolVar(&o.SelfSigned, "self-signed", false, "serve HTTPS with a generated self-signed certificate")
}

func durationFlag(d *Duration) func(string) error {
	return func(v string) error {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	if err := resolve(options, os.Getenv); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return options
}

// resolve applies the config file and then the environment on top of the
// parsed flags, and validates the result.
func resolve(o *Options, getenv func(string) string) error {
	if configPath := getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}

	if o.Config != "" {
		if _, err := os.Stat(o.Config); err == nil {
			data, err := os.ReadFile(o.Config)
			if err != nil {
				return fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, o); err != nil {
				return fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	for env, field := range map[string]*string{
		"SERVER_ADDRESS": &o.Address,
		"DATABASE_DSN":   &o.DatabaseDSN,
		"HASH_SECRET":    &o.HashSecret,
		"RULES_FILE":     &o.RulesFile,
		"LOG_LEVEL":      &o.LogLevel,
	} {
		if v := getenv(env); v != "" {
			*field = v
		}
	}

	return o.validate()
}

func (o *Options) validate() error {
	var errs error
	if o.Address == "" {
		errs = multierr.Append(errs, fmt.Errorf("address is empty"))
	}
	if o.Identity == "" {
		errs = multierr.Append(errs, fmt.Errorf("identity field is empty"))
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		errs = multierr.Append(errs, fmt.Errorf("tls-cert and tls-key must be set together"))
	}
	if o.SelfSigned && o.TLSCert != "" {
		errs = multierr.Append(errs, fmt.Errorf("self-signed conflicts with tls-cert"))
	}
	if o.StoreSeed && o.DatabaseDSN == "" {
		errs = multierr.Append(errs, fmt.Errorf("store-seed requires a database DSN"))
	}
	if o.SessionTTL < 0 {
		errs = multierr.Append(errs, fmt.Errorf("session-ttl is negative"))
	}
	return errs
}

// TLSEnabled reports whether the server should listen with TLS.
func (o *Options) TLSEnabled() bool {
	return o.SelfSigned || o.TLSCert != ""
}
