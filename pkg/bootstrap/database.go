package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sieve/internal/config"
	"sieve/internal/constants"
	"sieve/internal/logger"
	"sieve/pkg/health"
	"sieve/pkg/migrations"
)

const connectTimeout = 30 * time.Second

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Storage holds the open backends. Unconfigured backends stay nil.
type Storage struct {
	Postgres    *sql.DB
	MongoClient *mongo.Client
	Mongo       *mongo.Database
	Redis       *redis.Client
}

// OpenStorage connects the filter set backend chosen by storage.type, plus
// Postgres for versioning when it is configured alongside Mongo, and Redis
// when withRedis is set. A Redis failure is logged and leaves Redis nil.
func (dc *DatabaseConnector) OpenStorage(ctx context.Context, withRedis bool) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	s := &Storage{}

	db, err := dc.InitPostgreSQL(ctx)
	if err != nil {
		return nil, err
	}
	s.Postgres = db

	switch dc.Config.Storage.Type {
	case config.StorageTypeMongoDB:
		client, err := dc.InitMongoDB(ctx)
		if err != nil {
			dc.Shutdown(ctx, s)
			return nil, err
		}
		s.MongoClient = client
		s.Mongo = client.Database(dc.mongoDatabaseName())
		if err := migrations.EnsureMongoCollection(ctx, s.Mongo); err != nil {
			dc.Shutdown(ctx, s)
			return nil, fmt.Errorf("failed to prepare mongodb collection: %w", err)
		}
	default:
		if s.Postgres == nil {
			return nil, fmt.Errorf("storage type %q requires database.postgres", config.StorageTypePostgres)
		}
	}

	if s.Postgres != nil && dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(s.Postgres); err != nil {
			dc.Shutdown(ctx, s)
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	if withRedis && dc.Config.Database.Redis.Host != "" {
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			dc.Logger.Warnw("Redis unavailable, filter set cache disabled", "error", err)
		} else {
			s.Redis = rdb
		}
	}

	return s, nil
}

func (dc *DatabaseConnector) mongoDatabaseName() string {
	if dc.Config.Database.MongoDB.Database != "" {
		return dc.Config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

// HealthCheckers registers a checker per open backend. Redis only degrades.
func (s *Storage) HealthCheckers(r *health.CheckerRegistry) {
	if s.Postgres != nil {
		r.Register(health.NewPostgreSQLChecker(s.Postgres))
	}
	if s.MongoClient != nil {
		r.Register(health.NewMongoDBChecker(s.MongoClient))
	}
	if s.Redis != nil {
		r.RegisterOptional(health.NewRedisChecker(s.Redis))
	}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.Config.Database.Postgres.Host == "" {
		return nil, nil // PostgreSQL is optional
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.Config.Database.Postgres.User,
		dc.Config.Database.Postgres.Password,
		dc.Config.Database.Postgres.Host,
		dc.Config.Database.Postgres.Port,
		dc.Config.Database.Postgres.DBName,
		dc.Config.Database.Postgres.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, fmt.Errorf("database.mongodb.uri is required")
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(dc.Config.Database.MongoDB.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

// Shutdown closes every open backend in s.
func (dc *DatabaseConnector) Shutdown(ctx context.Context, s *Storage) []error {
	if s == nil {
		return nil
	}

	var errs []error

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if s.MongoClient != nil {
		if err := s.MongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
