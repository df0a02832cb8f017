package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epicrm.org/internal/auth"
	"epicrm.org/internal/config"
	"epicrm.org/internal/crm"
	"epicrm.org/internal/httpapi"
	"epicrm.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := crm.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAlgorithm,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithTokenIssuerName(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	authSvc, err := auth.NewService(store, store, issuer)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	crmSvc, err := crm.NewService(store, authSvc)
	if err != nil {
		log.Fatalf("crm service: %v", err)
	}

	api := httpapi.New(authSvc, crmSvc, httpapi.ReadyProbe{DB: store.DB()}, version, httpapi.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting epicrm-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
