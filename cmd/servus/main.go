// servus is a self-hosted, multi-tenant content server. Each hosted
// domain is a directory of signed events and static files; content is
// published over the relay WebSocket, media over the Blossom blob
// endpoints, and everything is served back as a rendered website.
//
// Usage:
//
//	./servus                  # reads ./servus.json, serves ./sites
//	./servus -c /etc/servus.json
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/servuscms/servus/internal/config"
	"github.com/servuscms/servus/internal/server"
	"github.com/servuscms/servus/internal/site"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	configPath := flag.String("c", "servus.json", "path to the server configuration file")
	flag.Parse()

	log.Println("servus starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (listen=%s sites=%s)", cfg.ListenAddr, cfg.SitesDir)

	// Root context cancelled on SIGINT or SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down...", sig)
		cancel()
	}()

	registry, err := site.LoadAll(cfg.SitesDir)
	if err != nil {
		log.Fatalf("Failed to load sites: %v", err)
	}

	// Start the HTTP server (blocks until context is cancelled).
	srv := server.New(cfg, registry)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("servus stopped")
}
