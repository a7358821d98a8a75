// Command moduledb-client connects to a module database, applies its
// initial subscriptions, and logs every event it observes. It exists as a
// reference host for the client package, not as a general-purpose CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/moduledb/moduledb-go/internal/client"
	"github.com/moduledb/moduledb-go/internal/conn"
	"github.com/moduledb/moduledb-go/internal/diag"
	"github.com/moduledb/moduledb-go/internal/config"
	"github.com/moduledb/moduledb-go/internal/protocol"
	"github.com/moduledb/moduledb-go/internal/schemafetch"
	"github.com/moduledb/moduledb-go/internal/tokenstore"
	"github.com/moduledb/moduledb-go/pkg/schema"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		host        string
		database    string
		token       string
		subscribe   string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&host, "host", "", "Server host:port")
	flag.StringVar(&database, "database", "", "Database name")
	flag.StringVar(&token, "token", "", "Auth token (overrides token store)")
	flag.StringVar(&subscribe, "subscribe", "", "Comma-separated SQL subscription queries")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "moduledb-client - reference client for module databases\n\n")
		fmt.Fprintf(os.Stderr, "Usage: moduledb-client [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  MODULEDB_HOST, MODULEDB_DATABASE, MODULEDB_TOKEN\n")
		fmt.Fprintf(os.Stderr, "  MODULEDB_COMPRESSION, MODULEDB_TLS, MODULEDB_TOKEN_STORE_PATH\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("moduledb-client version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// .env is optional: a missing file is not an error, just nothing to load.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, host, database, token, subscribe)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	printBanner(cfg)

	var store *tokenstore.Store
	if cfg.TokenStorePath != "" {
		store, err = tokenstore.Open(cfg.TokenStorePath)
		if err != nil {
			log.Fatalf("failed to open token store: %v", err)
		}
		defer store.Close()
	}

	bus := diag.New(64)
	stopDiagLog := logDiagEvents(bus)
	defer stopDiagLog()

	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		log.Fatalf("invalid compression: %v", err)
	}

	c := client.New(client.Config{
		Host:          cfg.Host,
		Database:      cfg.Database,
		Token:         cfg.Token,
		Subscriptions: cfg.Subscriptions,
		Compression:   compression,
		TLS:           cfg.TLS,
		Reconnect: client.ReconnectConfig{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseBackoff: cfg.Reconnect.BaseBackoff,
			MaxBackoff:  cfg.Reconnect.MaxBackoff,
		},
		TokenStore: store,
		Diag:       bus,
	}, loggingObserver{})

	src := &schemafetch.HTTPSchemaSource{Host: cfg.Host, Database: cfg.Database}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx, src); err != nil {
		log.Fatalf("failed to start client: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("received signal: %v", sig)

	if err := c.Stop(); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file and environment, then applies
// command-line flags as the highest-priority override.
func loadConfig(configFile, host, database, token, subscribe string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if host != "" {
		cfg.Host = host
	}
	if database != "" {
		cfg.Database = database
	}
	if token != "" {
		cfg.Token = token
	}
	if subscribe != "" {
		cfg.Subscriptions = strings.Split(subscribe, ",")
	}

	return cfg, nil
}

func parseCompression(s string) (conn.Compression, error) {
	switch s {
	case "", string(conn.CompressionNone):
		return conn.CompressionNone, nil
	case string(conn.CompressionGzip):
		return conn.CompressionGzip, nil
	case string(conn.CompressionBrotli):
		return conn.CompressionBrotli, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

func printBanner(cfg *config.Config) {
	log.Printf("moduledb-client connecting to %s/%s", cfg.Host, cfg.Database)
	log.Printf("  compression: %s, tls: %v", cfg.Compression, cfg.TLS)
	if len(cfg.Subscriptions) > 0 {
		log.Printf("  subscriptions: %s", strings.Join(cfg.Subscriptions, "; "))
	}
}

// logDiagEvents drains the diagnostic bus to the standard logger until the
// returned stop function is called.
func logDiagEvents(bus *diag.Bus) func() {
	ch, unsubscribe := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			log.Printf("diag[%s]: kind=%d table=%q attempt=%d detail=%q",
				ev.TraceID, ev.Kind, ev.Table, ev.Attempt, ev.Detail)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

// loggingObserver logs every callback it receives; it exists to give the
// binary visible output without requiring a real application on top.
type loggingObserver struct {
	client.BaseObserver
}

func (loggingObserver) OnConnect(identity [32]byte, connectionID [16]byte) {
	log.Printf("connected: identity=%x connection=%x", identity, connectionID)
}

func (loggingObserver) OnSubscribeApplied(table string, rows []schema.Row) {
	log.Printf("subscription applied: table=%s rows=%d", table, len(rows))
}

func (loggingObserver) OnInsert(table string, row schema.Row) {
	log.Printf("insert: table=%s row=%v", table, row.Map())
}

func (loggingObserver) OnDelete(table string, row schema.Row) {
	log.Printf("delete: table=%s row=%v", table, row.Map())
}

func (loggingObserver) OnUpdate(table string, before, after schema.Row) {
	log.Printf("update: table=%s before=%v after=%v", table, before.Map(), after.Map())
}

func (loggingObserver) OnReducerResult(result protocol.ReducerResult) {
	log.Printf("reducer result: %+v", result)
}

func (loggingObserver) OnSubscriptionError(querySetID uint32, requestID *uint32, message string) {
	log.Printf("subscription error: qs=%d req=%v message=%s", querySetID, requestID, message)
}

func (loggingObserver) OnDisconnect(reason error, attempt int) {
	log.Printf("disconnected: reason=%v attempt=%d", reason, attempt)
}

func (loggingObserver) OnConnectionFailed() {
	log.Printf("connection failed permanently")
}
