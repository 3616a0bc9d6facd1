package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/flaresync/flaresync"
)

type config struct {
	Token   string `env:"CLOUDFLARE_API_KEY"`
	APIBase string `env:"CLOUDFLARE_API_URL"`

	Domain     string
	Nameserver string
	Ifaces     []string
	IP         string
	EchoURL    string
	Apex       bool
	Check      bool
	Timeout    time.Duration
	Verbose    bool
}

func (c config) validate() error {
	if c.Token == "" {
		return errors.New("CLOUDFLARE_API_KEY must be set")
	}
	if c.Domain == "" {
		return errors.New("domain cannot be empty")
	}
	if !strings.Contains(c.Domain, ".") {
		return errors.New("domain must have at least one dot")
	}
	set := 0
	for _, used := range []bool{c.IP != "", len(c.Ifaces) > 0, c.EchoURL != ""} {
		if used {
			set++
		}
	}
	if set > 1 {
		return errors.New("--ip, --iface and --echo are mutually exclusive")
	}
	return nil
}

var errUsage = errors.New("missing domain argument")

func main() {
	cfg, err := loadConfig(os.Args[1:])
	switch {
	case errors.Is(err, errUsage):
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "flaresync:", err)
		os.Exit(2)
	}

	zlog := newLogger(cfg.Verbose)
	if err := run(context.Background(), cfg, zlog); err != nil {
		zlog.Fatal().Err(err).Msg("sync failed")
	}
}

func loadConfig(args []string) (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error reading environment: %w", err)
	}

	fs := pflag.NewFlagSet("flaresync", pflag.ExitOnError)
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")
	fs.StringVar(&cfg.Nameserver, "nameserver", "", "query this DNS server for the domain instead of the system resolver")
	fs.StringArrayVar(&cfg.Ifaces, "iface", nil, "read the current address from this network interface instead of the echo service (repeatable)")
	fs.StringVar(&cfg.IP, "ip", "", "use this IPv4 address instead of asking the echo service")
	fs.StringVar(&cfg.EchoURL, "echo", "", "address-echo service URL (default "+flaresync.DefaultEchoURL+")")
	fs.BoolVar(&cfg.Apex, "apex", false, "fall back to the registrable apex when no zone matches the domain exactly")
	fs.BoolVar(&cfg.Check, "check", false, "verify the token, zone and record, then exit without updating")
	fs.DurationVar(&cfg.Timeout, "timeout", 1*time.Minute, "abort the run after this long")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: flaresync [flags] <domain>")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return cfg, errUsage
	}
	cfg.Domain = fs.Arg(0)
	return cfg, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.ErrorLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
}

func run(ctx context.Context, cfg config, zlog zerolog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	zlog.Debug().Str("domain", cfg.Domain).Msg("config is valid")

	opts := []flaresync.Option{
		flaresync.UsingCloudflare(cfg.Token),
		flaresync.UsingResolver(pickResolver(cfg)),
		flaresync.UsingDomainResolver(pickDomainResolver(cfg)),
		flaresync.WithLogger(zlog),
		flaresync.WithStatus(os.Stdout),
	}
	if cfg.APIBase != "" {
		opts = append(opts, flaresync.WithBaseURL(cfg.APIBase))
	}
	if cfg.Apex {
		opts = append(opts, flaresync.MatchZoneApex())
	}
	client, err := flaresync.New(cfg.Domain, opts...)
	if err != nil {
		return fmt.Errorf("error creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if cfg.Check {
		if err := client.Check(ctx); err != nil {
			return err
		}
		fmt.Println("Check passed. Token, zone and A record are all reachable.")
		return nil
	}

	_, err = client.Run(ctx)
	return err
}

func pickResolver(cfg config) flaresync.Resolver {
	switch {
	case cfg.IP != "":
		return flaresync.FromString(cfg.IP)
	case len(cfg.Ifaces) > 0:
		return flaresync.InterfaceResolver(cfg.Ifaces...)
	default:
		return flaresync.WebResolver(cfg.EchoURL)
	}
}

func pickDomainResolver(cfg config) flaresync.DomainResolver {
	if cfg.Nameserver != "" {
		return flaresync.Nameserver(cfg.Nameserver)
	}
	return flaresync.SystemResolver()
}
