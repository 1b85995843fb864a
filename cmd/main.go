package main

import (
	"context"
	"log"

	"github.com/biolingo/sync-engine/internal/catalog"
	"github.com/biolingo/sync-engine/internal/connectivity"
	"github.com/biolingo/sync-engine/internal/identity"
	infra "github.com/biolingo/sync-engine/internal/infrastructure"
	"github.com/biolingo/sync-engine/internal/infrastructure/driver"
	"github.com/biolingo/sync-engine/internal/infrastructure/logging"
	"github.com/biolingo/sync-engine/internal/infrastructure/uuid"
	"github.com/biolingo/sync-engine/internal/infrastructure/validate"
	ihttp "github.com/biolingo/sync-engine/internal/interfaces/http"
	"github.com/biolingo/sync-engine/internal/progress"
	"github.com/biolingo/sync-engine/internal/remote"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	logger = logger.With(
		zap.String("service.id", option.AppID),
	)
	defer logger.Sync()

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		Driver:   option.Database.Driver,
		Path:     option.Database.Path,
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		log.Fatalf("Failed to create DB connection: %s\n", err)
	}
	logger.Debug("Create durable store connection", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.Any("config", option.Database),
	)
	if err := progress.EnsureSchema(context.Background(), dbConn); err != nil {
		log.Fatalf("Failed to ensure durable store schema: %s\n", err)
	}

	rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password)

	validator := validate.NewValidator()
	provider, err := catalog.GetProvider(option.Catalog.Source, option.Catalog.Path,
		option.Remote.BaseURL, option.Remote.Timeout)
	if err != nil {
		log.Fatalf("Failed to create catalog provider: %s\n", err)
	}
	Catalog, err := catalog.NewStore(context.Background(), provider, validator, logger)
	if err != nil {
		log.Fatalf("Failed to load course catalog: %s\n", err)
	}

	RemoteClient := remote.NewHTTPClient(option.Remote.BaseURL, option.Remote.Timeout, logger)
	Monitor := connectivity.NewMonitor(RemoteClient, option.Sync.ProbeInterval, logger)
	Monitor.Start()
	defer Monitor.Stop()

	Session := identity.NewSession()
	CompletionCache := progress.NewSQLCompletionCache(dbConn)
	SyncQueue := progress.NewSQLSyncQueue(dbConn)
	GuestProgress := progress.NewGuestProgress(rdb, option.Sync.GuestSessionTTL)

	Coordinator := progress.NewCoordinator(RemoteClient, SyncQueue, Session, Monitor,
		option.Sync.FlushInterval, logger)
	Coordinator.Start()
	defer Coordinator.Stop()

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	sessionID, err := UUIDGenerator.Generate()
	if err != nil {
		log.Fatalf("Failed to generate session ID: %s\n", err)
	}
	Store := progress.NewStore(Catalog, CompletionCache, SyncQueue, GuestProgress,
		RemoteClient, Monitor, Coordinator, sessionID, logger)

	ihttp.Serve(dbConn, rdb, option, Store, Coordinator, Session, logger)
}
