package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/termrelay/host/internal/config"
	"github.com/termrelay/host/internal/mdns"
	"github.com/termrelay/host/internal/notify"
	"github.com/termrelay/host/internal/server"
	"github.com/termrelay/host/internal/storage"
	"github.com/termrelay/host/internal/terminal"
	"github.com/termrelay/host/internal/tmux"
	"github.com/termrelay/host/internal/watch"
)

// runDaemon starts the relay daemon and blocks until SIGINT/SIGTERM.
func runDaemon(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (default ~/.termrelay/config.toml)")
	addr := fs.String("addr", "", "listen address (overrides config)")
	dbPath := fs.String("db", "", "database path (overrides config)")
	mdnsFlag := fs.Bool("mdns", false, "advertise via mDNS (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *mdnsFlag {
		cfg.MdnsEnabled = true
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
			fmt.Fprintf(stderr, "Error: create log directory: %v\n", err)
			return 1
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(stderr, "Error: open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		log.SetOutput(f)
	}

	if cfg.DBPath == "" {
		cfg.DBPath, err = config.DefaultDBPath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		fmt.Fprintf(stderr, "Error: create data directory: %v\n", err)
		return 1
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	notifyCfg := buildNotifyConfig(cfg)

	directory := tmux.NewDirectory()
	executor := tmux.NewExecutor()

	srv := server.NewServer(cfg.Addr, nil)

	manager := terminal.NewManager(terminal.ManagerConfig{
		Directory:   directory,
		Executor:    executor,
		Transport:   srv,
		Notify:      notifyCfg,
		Audit:       store,
		BufferBytes: cfg.BufferBytes,
	})
	srv.SetEngine(manager)

	watcher := watch.New(manager)

	directory.SetRemovalHandler(func(sessionID string) {
		watcher.Stop(sessionID)
		manager.Teardown(sessionID)
	})

	srv.SetSessionListHandler(func() []server.SessionSummary {
		sessions := directory.List()
		out := make([]server.SessionSummary, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, server.SessionSummary{
				ID:        s.ID,
				Name:      s.Name,
				Windows:   s.Windows,
				Attached:  s.Attached,
				CreatedAt: s.CreatedAt.Unix(),
			})
		}
		return out
	})

	// Poll tmux for the session list. New sessions get a capture
	// goroutine; removed ones are handled by the removal callback.
	pollStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.PollInterval())
		defer ticker.Stop()
		for {
			if err := directory.Refresh(); err != nil {
				log.Printf("daemon: tmux refresh failed: %v", err)
			} else {
				for _, s := range directory.List() {
					watcher.Ensure(s.ID, s.Name)
					if err := store.TouchSession(s.ID, s.Name, time.Now()); err != nil {
						log.Printf("daemon: record session %s: %v", s.ID, err)
					}
				}
			}
			select {
			case <-pollStop:
				return
			case <-ticker.C:
			}
		}
	}()

	var advertiser *mdns.Advertiser
	if cfg.MdnsEnabled {
		port := portFromAddr(cfg.Addr)
		advertiser = mdns.NewAdvertiser(mdns.Config{Port: port})
		if err := advertiser.Start(); err != nil {
			log.Printf("daemon: mdns advertisement failed: %v", err)
		} else {
			log.Printf("daemon: advertising %s on port %d", mdns.ServiceType, port)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	fmt.Fprintf(stdout, "termrelay %s listening on %s\n", Version, cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("daemon: received %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "Error: server: %v\n", err)
			close(pollStop)
			watcher.StopAll()
			if advertiser != nil {
				advertiser.Stop()
			}
			return 1
		}
	}

	close(pollStop)
	watcher.StopAll()
	if advertiser != nil {
		advertiser.Stop()
	}
	if err := srv.Stop(); err != nil {
		log.Printf("daemon: server shutdown: %v", err)
	}
	fmt.Fprintln(stdout, "termrelay stopped")
	return 0
}

// buildNotifyConfig compiles the configured patterns, falling back to
// the built-in defaults for any empty family.
func buildNotifyConfig(cfg *config.Config) *notify.Config {
	nc := notify.DefaultConfig()
	nc.Cooldown = cfg.NotifyCooldown()
	nc.ScanBudget = cfg.ScanBudget()
	nc.WindowBytes = cfg.WindowBytes

	if len(cfg.ApprovalPatterns) > 0 {
		compiled, errs := notify.CompilePatterns(cfg.ApprovalPatterns)
		logPatternErrors("approval", errs)
		nc.Approval = compiled
	}
	if len(cfg.ErrorPatterns) > 0 {
		compiled, errs := notify.CompilePatterns(cfg.ErrorPatterns)
		logPatternErrors("error", errs)
		nc.Error = compiled
	}
	if len(cfg.PromptPatterns) > 0 {
		compiled, errs := notify.CompilePatterns(cfg.PromptPatterns)
		logPatternErrors("prompt", errs)
		nc.Prompt = compiled
	}
	return nc
}

func logPatternErrors(family string, errs []error) {
	for _, err := range errs {
		log.Printf("daemon: skipping %s pattern: %v", family, err)
	}
}

// portFromAddr extracts the port from a host:port address, defaulting
// to 7070 when it cannot be parsed.
func portFromAddr(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 7070
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 7070
	}
	return port
}
