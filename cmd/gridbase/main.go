// gridbase serves the race data API: cache-aside reads over SQLite or
// PostgreSQL, with Redis as the optional cache tier. Configuration comes
// from the environment; see internal/config.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paddockdata/gridbase/api"
	"github.com/paddockdata/gridbase/internal/config"
	"github.com/paddockdata/gridbase/internal/store"
	"github.com/paddockdata/gridbase/internal/version"
)

func main() {
	listen := flag.String("listen", "", "listen address (overrides LISTEN_ADDR)")
	adminRoutes := flag.Bool("admin", true, "mount the /debug admin routes")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("gridbase %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()
	log.Printf("gridbase %s: engine=%s cache=%v", version.Version, st.Engine().Name(), cfg.CacheEnabled)

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", api.NewServer(st).ServeMux()))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := st.Engine().RowCount(r.Context(), "races"); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	if *adminRoutes {
		if db, ok := st.Engine().(*store.DB); ok {
			db.AttachAdminRoutes(mux)
		}
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		log.Printf("listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
