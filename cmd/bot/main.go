package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_signal_trader/internal/config"
	"github.com/vitos/crypto_signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/crypto_signal_trader/internal/infrastructure/logger"
	"github.com/vitos/crypto_signal_trader/internal/infrastructure/storage"
	"github.com/vitos/crypto_signal_trader/internal/usecase"
	"github.com/vitos/crypto_signal_trader/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to yaml config")
	dbPath := flag.String("db", "bot.db", "path to credentials database")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	view := cfg.View()

	// 2. Init Logger
	var log *zap.Logger
	if view.Logging.File != "" {
		log, err = logger.NewFileLogger(view.Logging.File, view.Logging.Level)
	} else {
		log, err = logger.NewLogger(view.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	key, err := encryptionKey(log)
	if err != nil {
		log.Fatal("Failed to load encryption key", zap.Error(err))
	}
	cipher, err := storage.NewSecretCipher(key)
	if err != nil {
		log.Fatal("Failed to init cipher", zap.Error(err))
	}
	store, err := storage.NewSQLiteStore(*dbPath, cipher)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange Accounts
	accounts := exchange.NewRegistry(log)
	if err := accounts.Rebuild(context.Background(), store); err != nil {
		log.Fatal("Failed to connect exchanges", zap.Error(err))
	}
	if names := accounts.Names(); len(names) == 0 {
		log.Warn("no exchange credentials stored yet, use POST /api/keys to add them")
	} else {
		log.Info("exchanges connected", zap.Strings("exchanges", names))
	}

	// 5. Init Dispatcher
	dispatcher := usecase.NewDispatcher(accounts, cfg, log)

	// 6. Init Web Server
	server := web.NewServer(cfg, dispatcher, accounts, store, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Shutdown failed", zap.Error(err))
	}
}

// encryptionKey reads ENCRYPTION_KEY from the environment. When the
// variable is unset a fresh key is generated and printed once; the
// operator must export it before the next start or stored credentials
// become unreadable.
func encryptionKey(log *zap.Logger) ([]byte, error) {
	if encoded := os.Getenv("ENCRYPTION_KEY"); encoded != "" {
		return storage.DecodeKey(encoded)
	}

	encoded, err := storage.GenerateKey()
	if err != nil {
		return nil, err
	}
	log.Warn("ENCRYPTION_KEY not set, generated a new one for this run",
		zap.String("export", "ENCRYPTION_KEY="+encoded))
	return storage.DecodeKey(encoded)
}
