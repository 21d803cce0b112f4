package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/api"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/billing"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/metrics"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/overlay"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/proxy"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/session"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/settings"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/tokenizer"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/upstream"
)

var dbPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering proxy server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&dbPath, "db", "meter.db", "path to the SQLite database")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	database, err := db.InitDB(dbPath)
	if err != nil {
		return err
	}

	// Exact encoders load in the background; counting falls back to the
	// approximation until they are ready.
	tokenizer.Init()

	store := settings.NewStore(database)
	stop := make(chan struct{})
	defer close(stop)
	if err := store.Watch(stop); err != nil {
		log.Printf("[Settings] Hot reload disabled: %v", err)
	}

	aggregator := session.NewAggregator(database, store)

	hub := overlay.NewHub()
	go hub.Run()

	m := metrics.New()
	tokenizer.OnFallback = m.TokenizerFallbacksTotal.Inc
	db.OnWriteError = m.PersistErrorsTotal.Inc
	interceptor := proxy.NewInterceptor(upstream.NewClient(), aggregator, store, hub, m)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		api.Mount(r, aggregator, store, hub)
		if apiKey := os.Getenv("METER_OPENAI_API_KEY"); apiKey != "" {
			r.Route("/billing", func(r chi.Router) {
				billing.Mount(r, billing.NewClient(apiKey))
			})
		}
	})
	r.Get("/ws", hub.Handler())
	r.Handle("/metrics", m.Handler())

	// Everything else is proxy traffic: the chat endpoints are metered,
	// the rest passes through untouched.
	r.NotFound(interceptor.ServeHTTP)
	r.MethodNotAllowed(interceptor.ServeHTTP)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8787"
	}
	addr := ":" + port

	log.Printf("🚀 ChatGPT Meter starting on http://localhost:%s", port)
	log.Printf("🔌 Proxying chat traffic to %s", interceptorUpstream())
	log.Printf("📊 Session API: http://localhost:%s/api", port)
	log.Printf("📈 Metrics: http://localhost:%s/metrics", port)

	return http.ListenAndServe(addr, r)
}

func interceptorUpstream() string {
	if base := os.Getenv("METER_UPSTREAM"); base != "" {
		return base
	}
	return upstream.DefaultBaseURL
}
