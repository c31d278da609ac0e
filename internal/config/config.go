// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/qsrv/sourceq/internal/logger"
	"github.com/qsrv/sourceq/internal/vars"
)

// DefaultQueryPort is used when a target address carries no port.
const DefaultQueryPort = 27015

// Config represents the complete application flags configuration.
type Config struct {
	Query     Query         `group:"Query Options" env-namespace:"SOURCEQ"`
	Watch     Watch         `group:"Watch Options" namespace:"watch" env-namespace:"SOURCEQ_WATCH"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"SOURCEQ_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"SOURCEQ_GEOIP"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"SOURCEQ_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`

	Args struct {
		Servers []string `positional-arg-name:"HOST[:PORT]" description:"Game server addresses to query"`
	} `positional-args:"yes"`
}

// Query holds Source Query protocol configuration.
type Query struct {
	Kind       string        `short:"q" long:"query" env:"QUERY" description:"Query to send" choice:"info" choice:"players" choice:"rules" choice:"all" default:"info"`
	Encoding   string        `long:"encoding" env:"ENCODING" description:"Text encoding of server responses (IANA charset name)" default:"utf-8"`
	Timeout    time.Duration `short:"t" long:"timeout" env:"TIMEOUT" description:"Receive timeout per datagram" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Receive buffer size for the first response packet" default:"1400"`
	Retries    int           `long:"retries" env:"RETRIES" description:"Maximum challenge-response retries per query" default:"5"`
	JSON       bool          `short:"j" long:"json" env:"JSON" description:"Print results as JSON"`
}

// Watch holds the periodic monitoring configuration.
type Watch struct {
	Interval time.Duration `short:"w" long:"interval" env:"INTERVAL" description:"Re-query interval, 0 disables watch mode" default:"0"`
	Workers  int           `long:"workers" env:"WORKERS" description:"Concurrent query workers" default:"10"`
	Rate     float64       `long:"rate" env:"RATE" description:"Outbound queries per second across all workers" default:"16"`
	Burst    int           `long:"burst" env:"BURST" description:"Outbound query burst size" default:"4"`
}

// Storage holds database configuration.
type Storage struct {
	Path          string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite snapshot database, empty disables persistence"`
	Prune         time.Duration `long:"prune" env:"PRUNE" description:"Delete snapshots older than this duration and exit" default:"0"`
	GenerateCount int           `long:"gen-fake-data" hidden:"true"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file, empty disables country lookup"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// Maintenance reports whether a flag combination requests a one-off
// database task instead of querying servers.
func (c *Config) Maintenance() bool {
	return c.Storage.Path != "" && (c.Storage.Prune > 0 || c.Storage.GenerateCount > 0)
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	if len(cfg.Args.Servers) == 0 && !cfg.Maintenance() {
		fmt.Fprintln(os.Stderr, "At least one HOST[:PORT] argument is required")
		os.Exit(1)
	}

	if cfg.Watch.Interval > 0 && cfg.Watch.Interval < cfg.Query.Timeout {
		fmt.Fprintln(os.Stderr, "Watch interval must not be shorter than the query timeout")
		os.Exit(1)
	}

	return &cfg
}
