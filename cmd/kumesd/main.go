package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MRDNPRNCE/kumes-otomasyon/internal/auth"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/config"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/device"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/hub"
	"github.com/MRDNPRNCE/kumes-otomasyon/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	host := flag.String("host", "", "Override server host")
	usersFile := flag.String("users", "", "Override users file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("no config at %s, using defaults", *configPath)
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *usersFile != "" {
		cfg.Auth.UsersFile = *usersFile
	}

	store, err := auth.Open(cfg.Auth.UsersFile)
	if err != nil {
		log.Fatalf("Failed to open user store: %v", err)
	}

	state := device.NewState(cfg.Coop.Count)
	coordinator := session.NewCoordinator(store, state)
	h := hub.New(coordinator, state, cfg.Server.SnapshotInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	mux := http.NewServeMux()
	h.SetupRoutes(mux)

	for i, name := range cfg.Coop.Names {
		if i >= cfg.Coop.Count {
			break
		}
		log.Printf("coop %d: %s", i+1, name)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := hub.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
