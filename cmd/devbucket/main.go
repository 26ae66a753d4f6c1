package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"simpleindex/internal/devbucket"
	"simpleindex/internal/logger"
)

func main() {
	dataDir := flag.String("data-dir", "./bucket", "Directory served as the bucket")
	bucket := flag.String("bucket", "packages", "Bucket name")
	port := flag.Int("port", 9090, "HTTP port")
	host := flag.String("host", "127.0.0.1", "Bind host")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.New(*logLevel, "text")

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create data dir: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           devbucket.New(*dataDir, *bucket, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Serving %s as bucket %q on http://%s (set S3_ENDPOINT to this URL)", *dataDir, *bucket, addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
