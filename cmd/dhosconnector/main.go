package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/dhosconnector/internal/api"
	"github.com/savegress/dhosconnector/internal/bus"
	"github.com/savegress/dhosconnector/internal/config"
	"github.com/savegress/dhosconnector/internal/epr"
	"github.com/savegress/dhosconnector/internal/inbound"
	"github.com/savegress/dhosconnector/internal/jwtauth"
	"github.com/savegress/dhosconnector/internal/outbound"
	"github.com/savegress/dhosconnector/internal/soapclient"
	"github.com/savegress/dhosconnector/internal/store"
	"github.com/savegress/dhosconnector/internal/transform"
	"github.com/savegress/dhosconnector/internal/trustomer"
)

func main() {
	log.Println("Starting dhos-connector...")

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to message store: %v", err)
	}
	defer st.Close()

	publisher, err := bus.Dial(cfg.Bus.URL, cfg.Bus.Exchange, cfg.Bus.RoutingKey)
	if err != nil {
		log.Fatalf("failed to dial event bus: %v", err)
	}
	defer publisher.Close()

	tz, err := time.LoadLocation(cfg.Server.ServerTimezone)
	if err != nil {
		log.Printf("unknown SERVER_TIMEZONE %q, falling back to UTC: %v", cfg.Server.ServerTimezone, err)
		tz = time.UTC
	}

	scopeCache := jwtauth.NewScopeCache(5 * time.Minute)
	issuer := &jwtauth.Issuer{
		Key:        cfg.EPR.ServiceAdapterHSKey,
		Issuer:     cfg.EPR.ServiceAdapterIssuer,
		Audience:   cfg.EPR.ServiceAdapterURLBase,
		Expiry:     cfg.EPR.JWTExpiry,
		Scopes:     scopeCache,
		Production: cfg.Server.Environment == "production",
	}

	eprClient := epr.NewClient(cfg.EPR.ServiceAdapterURLBase, issuer)
	soapClient := soapclient.NewClient(cfg.Mirth.HostURLBase, cfg.Mirth.Username, cfg.Mirth.Password)

	trustomerFetcher := trustomer.NewHTTPFetcher(cfg.Trustomer.BaseURL)
	trustomerCache := trustomer.New(trustomerFetcher, cfg.Trustomer.CacheTTL)

	transforms := transform.NewRegistry()

	inboundPipeline := &inbound.Pipeline{
		Store:            st,
		Publisher:        publisher,
		Transforms:       transforms,
		DefaultTZ:        tz,
		PreTransformName: cfg.Server.TransformerModule,
	}

	outboundPipeline := &outbound.Pipeline{
		Trustomer:     trustomerCache,
		EPR:           eprClient,
		Store:         st,
		Transforms:    transforms,
		Product:       cfg.Trustomer.Product,
		TrustomerName: cfg.Trustomer.Name,
	}

	cdaPipeline := &outbound.CDAPipeline{
		SOAP:     soapClient,
		Store:    st,
		Endpoint: cfg.Mirth.HostURLBase,
	}

	handlers := api.NewHandlers(inboundPipeline, outboundPipeline, cdaPipeline, st)
	server := api.NewServer(handlers, cfg.EPR.ServiceAdapterHSKey)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("dhos-connector listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down dhos-connector...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("dhos-connector stopped")
}

func loadConfig() *config.Config {
	configPath := os.Getenv("DHOS_CONNECTOR_CONFIG")
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Printf("failed to load config from %s: %v, using defaults", configPath, err)
			return config.LoadFromEnv()
		}
		return cfg
	}
	return config.LoadFromEnv()
}
