package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"nextup/api"
	"nextup/config"
	"nextup/handlers"
	"nextup/internal/database"
	"nextup/internal/storage"
	"nextup/services/identity"
	"nextup/services/refresher"
	"nextup/services/shows"
	"nextup/services/syncapi"
	"nextup/services/tvmaze"
	"nextup/services/wikidata"
	"nextup/utils"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("nextup starting...")

	configPath := os.Getenv("NEXTUP_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Storage tiers
	fs := afero.NewOsFs()
	localStore, err := storage.NewStore(fs, settings.Storage.Directory)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	syncedStore, err := storage.NewSyncStore(fs, filepath.Join(settings.Storage.Directory, "synced"), settings.Storage.SyncQuotaBytes)
	if err != nil {
		log.Fatalf("failed to open synced store: %v", err)
	}
	identityStore, err := storage.NewStore(fs, filepath.Join(settings.Storage.Directory, "identity"))
	if err != nil {
		log.Fatalf("failed to open identity store: %v", err)
	}

	// Row database (also backs the sync endpoint this instance serves)
	db, err := database.NewDB(database.Config{DatabasePath: settings.Database.Path})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	rowRepo := database.NewShowRowRepository(db.Connection())

	identitySvc, err := identity.NewService(identityStore)
	if err != nil {
		log.Fatalf("failed to init identity service: %v", err)
	}

	// Remote tier: another instance when a remote URL is configured,
	// otherwise the local row database.
	var remote shows.RemoteStore = rowRepo
	if settings.Sync.RemoteURL != "" {
		log.Printf("Syncing against remote instance %s", settings.Sync.RemoteURL)
		remote = syncapi.NewClient(settings.Sync.RemoteURL, func() string {
			return os.Getenv("NEXTUP_SYNC_TOKEN")
		})
	}

	showsSvc := shows.NewService(identitySvc, localStore, syncedStore, remote)

	// Catalog sources
	tvmazeClient := tvmaze.NewClient(settings.Sources.TVMazeBaseURL, settings.Sources.CacheDirectory, settings.Sources.CacheTTLHours)
	wikidataClient := wikidata.NewClient(settings.Sources.WikidataEndpoint)

	refresherSvc := refresher.NewService(tvmazeClient, showsSvc, refresher.Options{
		FreshnessWindow: time.Duration(settings.Refresh.FreshnessHours) * time.Hour,
		MaxConcurrent:   settings.Refresh.MaxConcurrent,
	})
	refresherSvc.Start(time.Duration(settings.Refresh.IntervalMinutes)*time.Minute, identitySvc.Current)

	// Router and handlers
	r := utils.NewRouter()
	api.Register(
		r,
		handlers.NewShowsHandler(showsSvc, identitySvc, refresherSvc),
		handlers.NewIdentityHandler(identitySvc, showsSvc),
		handlers.NewSearchHandler(tvmazeClient, wikidataClient),
		handlers.NewSyncHandler(rowRepo),
		handlers.NewImageHandler(settings.Sources.CacheDirectory),
		identitySvc,
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	refresherSvc.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
