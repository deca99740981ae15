package data

import (
	"context"
	"fmt"

	"github.com/clipstash/clipstash-backend/internal/conf"
	mediadata "github.com/clipstash/clipstash-backend/internal/media/data"
	"github.com/clipstash/clipstash-backend/internal/pkg/database"
	"github.com/clipstash/clipstash-backend/internal/pkg/logger"
	pkgminio "github.com/clipstash/clipstash-backend/internal/pkg/minio"
	pkgredis "github.com/clipstash/clipstash-backend/internal/pkg/redis"
)

// Data 聚合所有基础设施客户端
type Data struct {
	DB     *database.DB
	Redis  *pkgredis.Client
	MinIO  *pkgminio.Client
	Logger *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	// Initialize PostgreSQL
	db, err := initDB(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize Redis
	redisClient, err := initRedis(config, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Initialize MinIO
	minioClient, err := initMinIO(config, log)
	if err != nil {
		redisClient.Close()
		db.Close()
		return nil, nil, fmt.Errorf("failed to init minio: %w", err)
	}

	d := &Data{
		DB:     db,
		Redis:  redisClient,
		MinIO:  minioClient,
		Logger: log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		minioClient.Close()
		redisClient.Close()
		db.Close()
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *logger.Logger) (*database.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Host = config.Database.Host
	dbCfg.Port = config.Database.Port
	dbCfg.User = config.Database.User
	dbCfg.Password = config.Database.Password
	dbCfg.DBName = config.Database.DBName
	dbCfg.SSLMode = config.Database.SSLMode

	db, err := database.New(dbCfg, log)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&mediadata.MediaObjectPO{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}

func initRedis(config *conf.Config, log *logger.Logger) (*pkgredis.Client, error) {
	redisCfg := pkgredis.DefaultConfig()
	redisCfg.Addr = fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port)
	redisCfg.Password = config.Redis.Password
	redisCfg.DB = config.Redis.DB

	return pkgredis.New(redisCfg, log)
}

func initMinIO(config *conf.Config, log *logger.Logger) (*pkgminio.Client, error) {
	minioCfg := &pkgminio.Config{
		Endpoint:        config.MinIO.Endpoint,
		AccessKeyID:     config.MinIO.AccessKey,
		SecretAccessKey: config.MinIO.SecretKey,
		UseSSL:          config.MinIO.UseSSL,
	}

	client, err := pkgminio.NewClient(minioCfg, log.GetZapLogger())
	if err != nil {
		return nil, err
	}

	// Create bucket if not exists
	if err := client.EnsureBucket(context.Background(), config.MinIO.Bucket, pkgminio.MakeBucketOptions{}); err != nil {
		return nil, err
	}

	return client, nil
}
