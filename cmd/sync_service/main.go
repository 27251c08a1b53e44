package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"conversation_sync_service/internal/conversation/api/handlers"
	"conversation_sync_service/internal/conversation/app"
	"conversation_sync_service/internal/conversation/repository"
	"conversation_sync_service/internal/conversation/retention"
	"conversation_sync_service/internal/conversation/router"
	"conversation_sync_service/internal/conversation/view"
	"conversation_sync_service/pkg/config"
	"conversation_sync_service/pkg/database"
	"conversation_sync_service/pkg/logger"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.SyncService, config.EnvConfig.SyncServiceLogPath)
	cfg := config.LoadConfig[config.Sync](config.EnvConfig.SyncService, config.EnvConfig.SyncServiceYAMLPath)

	ctx := context.Background()

	// PostgreSQL holds conversations, participants, messages and shares.
	pgConnStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password,
		cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgPool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgConnStr,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres after retries",
			zap.String("host", cfg.PostgreSQL.Host),
			zap.Error(err),
		)
	}
	defer pgPool.Close()

	gormDB, err := database.NewGormConnection(database.Connection{
		ConnectStr:    pgConnStr,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to open gorm connection", zap.Error(err))
	}

	// Mongo keeps the cold archive written by the retention sweep.
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d",
		cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    mongoURI,
		RetryCount:    cfg.MongoSQL.RetryCount,
		RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
	}, cfg.MongoSQL.Database) // mongo helper sleeps the interval as-is
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB after retries",
			zap.String("address", mongoURI),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis pub/sub carries the change feed between mutations and views.
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to kafka after retries", zap.Error(err))
	}
	defer kafkaWriter.Close()

	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.MinIO.Endpoint,
		User:          cfg.MinIO.User,
		Password:      cfg.MinIO.Password,
		BucketName:    cfg.MinIO.Bucket,
		UseSSL:        cfg.MinIO.UseSSL,
		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.Error(err))
	}

	convRepo := repository.NewConversationRepository(pgPool)
	participantRepo := repository.NewParticipantRepository(pgPool)
	msgRepo := repository.NewMessageRepository(pgPool)
	shareRepo := repository.NewResourceShareRepository(pgPool)
	profileRepo := repository.NewProfileRepository(gormDB)
	archiveRepo := repository.NewMongoArchiveRepository(mongo.Database)
	feed := repository.NewRedisChangeFeed(redisClient)
	exporter := repository.NewKafkaEventExporter(kafkaWriter)

	if err := profileRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("profile migration failed", zap.Error(err))
	}

	bus := app.NewOutcomeBus()
	convUC := app.NewConversationUseCase(convRepo, participantRepo, msgRepo, feed, bus)
	msgUC := app.NewMessageUseCase(convRepo, participantRepo, msgRepo, shareRepo, archiveRepo, feed, exporter, bus)
	shareUC := app.NewShareUseCase(shareRepo, msgRepo, participantRepo, minioClient)

	sweeper, err := retention.NewSweeper(msgUC, cfg.Retention.Cron, cfg.Retention.BatchSize)
	if err != nil {
		logger.Log.Fatal("retention setup failed", zap.Error(err))
	}
	stopSweeper := sweeper.Start(ctx)
	defer stopSweeper()

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	coalescer := view.NewCoalescer()
	wsHandler := app.NewSyncWebsocketHandler(convUC, msgUC, feed, bus, coalescer, fetchTimeout)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.SyncServiceLogPath),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{Output: file}))

	router.RegisterRoutes(r,
		&handlers.ConversationHandler{ConvUC: convUC},
		&handlers.MessageHandler{MsgUC: msgUC, ShareUC: shareUC, ArchiveRepo: archiveRepo},
		&handlers.ProfileHandler{ProfileRepo: profileRepo},
		wsHandler,
	)

	port := ":" + cfg.Port
	log.Printf("Sync Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
