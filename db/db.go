package db

import (
	"fmt"
	"os"
	"path/filepath"

	"chatbridge/config"
	"chatbridge/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"go.uber.org/zap"
)

var conf config.Configuration

func SetConfigurations(configuration config.Configuration) {
	conf = configuration
}

// Connect abre conexão com DB (sqlite3 por padrão).
// "memory" opens a private in-memory sqlite database (dev and tests).
func Connect() (*gorm.DB, error) {
	database := conf.Database
	if database == "" {
		database = "sqlite3"
	}

	var (
		db  *gorm.DB
		err error
	)

	switch database {
	case "postgres", "postgresql":
		zap.L().Info("db: using postgresql")
		path := "host=" + conf.DbHost + " port=" + conf.DbPort
		path += " user=" + conf.DbUser + " dbname=" + conf.DbName
		path += " password=" + conf.DbPass + " sslmode=disable"
		db, err = gorm.Open("postgres", path)
	case "memory":
		return OpenInMemory()
	default:
		zap.L().Info("db: using sqlite3", zap.String("path", conf.DbPath))
		dbPath := conf.DbPath
		if dbPath == "" {
			dbPath = "db/database.db"
		}
		if dir := filepath.Dir(dbPath); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		db, err = gorm.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	}

	if err != nil {
		zap.L().Error("db: connect failed", zap.Error(err))
		return nil, err
	}

	db.LogMode(conf.LogDevelopment)

	if conf.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// OpenInMemory returns a migrated sqlite database living in memory. The pool is
// pinned to one connection because every new :memory: connection is a new,
// empty database.
func OpenInMemory() (*gorm.DB, error) {
	db, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	db.DB().SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.IntegrationConfig{},
		&models.ChatThread{},
		&models.ChatParticipant{},
		&models.Message{},
		&models.StatusJob{},
		&models.Notification{},
	).Error
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
