package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koscakluka/delphi-call/core/delphi"
	"github.com/koscakluka/delphi-call/internal/config"
	"github.com/koscakluka/delphi-call/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	client := delphi.NewClient(cfg.DelphiAPIKey, cfg.DelphiAPIBaseURI, delphi.WithScheme(cfg.DelphiAPIScheme))
	server := &http.Server{
		Addr:              cfg.ProxyAddr,
		Handler:           proxy.NewServer(client).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Delphi proxy listening on %s", cfg.ProxyAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Proxy server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down proxy...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Proxy shutdown failed: %v", err)
	}
}
