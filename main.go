package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"simpleindex/internal/config"
	"simpleindex/internal/gateway"
	"simpleindex/internal/index"
	"simpleindex/internal/logger"
	"simpleindex/internal/metrics"
	"simpleindex/internal/server"
	"simpleindex/internal/storage"
)

const usage = `usage: simpleindex [-config file] <command> [args]

commands:
  serve                    serve the index over HTTP (default)
  reindex                  regenerate index.html and print the result
  request <path> [method]  route one request and print the response envelope
  event                    read an API Gateway proxy event on stdin and print the response envelope
`

// app holds the components shared by every command
type app struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	indexer *index.Indexer
	router  *index.Router
}

func main() {
	configPath := flag.String("config", "", "Path to an optional YAML configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := checkCommand(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// One-shot commands keep stdout for their JSON output
	command := flag.Arg(0)
	out := os.Stdout
	if command != "" && command != "serve" {
		out = os.Stderr
	}
	log := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	switch command {
	case "", "serve":
		err = a.serve(ctx)
	case "reindex":
		err = a.reindex(ctx)
	case "request":
		err = a.request(ctx, flag.Args()[1:])
	case "event":
		err = gateway.NewHandler(a.router, log).Serve(ctx, os.Stdin, os.Stdout)
	}

	if err != nil {
		log.Errorf("%s failed: %v", commandName(command), err)
		os.Exit(1)
	}
}

// checkCommand rejects unknown commands and missing arguments before any
// storage client is created
func checkCommand(args []string) error {
	command := ""
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "", "serve", "reindex", "event":
		return nil
	case "request":
		if len(args) < 2 {
			return errors.New("request needs a path")
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	store, err := storage.Open(ctx, storage.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		PresignTTL:      cfg.Storage.PresignTTL(),
		AzureAccountKey: cfg.Storage.AzureAccountKey,
	})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	ix := index.NewIndexer(m.InstrumentStore(store), cfg.Storage.PresignConcurrency, log)

	return &app{
		config:  cfg,
		logger:  log,
		metrics: m,
		indexer: ix,
		router:  index.NewRouter(cfg.Server.BasePath, ix),
	}, nil
}

// serve runs the index and ops listeners until ctx is cancelled
func (a *app) serve(ctx context.Context) error {
	srv := server.New(a.config, a.logger, a.router, a.indexer, a.metrics)

	public := &http.Server{
		Addr:              a.config.Server.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ops := &http.Server{
		Addr:              a.config.Server.OpsAddress,
		Handler:           srv.OpsHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	listen := func(name string, s *http.Server) {
		a.logger.Infof("%s listening on %s", name, s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go listen("Index", public)
	go listen("Ops", ops)

	a.logger.Infof("BASE_PATH: %s", a.router.BasePath())

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	sched := server.NewScheduler(a.indexer, a.config.Reindex.Interval, a.metrics, a.logger)
	sched.Start(schedCtx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	a.logger.Info("Shutting down...")
	cancelSched()
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := public.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorf("Index server shutdown error: %v", err)
	}
	if err := ops.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorf("Ops server shutdown error: %v", err)
	}

	a.logger.Info("Stopped gracefully")
	return runErr
}

// reindex regenerates the root index once and prints the write result
func (a *app) reindex(ctx context.Context) error {
	res, err := a.indexer.ReindexBucket(ctx)
	a.metrics.ObserveReindex(packageCount(res), err)
	if err != nil {
		return err
	}
	return printJSON(res)
}

// request routes a single request given on the command line
func (a *app) request(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("request needs a path")
	}
	method := http.MethodGet
	if len(args) > 1 {
		method = strings.ToUpper(args[1])
	}

	res, err := a.router.Route(ctx, method, args[0])
	if err != nil {
		return err
	}
	return printJSON(res)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func packageCount(res *index.WriteResult) int {
	if res == nil {
		return 0
	}
	return res.Packages
}

func commandName(command string) string {
	if command == "" {
		return "serve"
	}
	return command
}
