// Package sqlite is the gorm-backed Store. The DSN picks the driver:
// mysql:// and postgres:// DSNs use their servers, anything else is
// treated as a sqlite file path.
package sqlite

import (
	"strings"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects and migrates the schema.
func Open(dsn string) (*Store, error) {
	dialector := dialectorFor(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&providerModel{},
		&credentialModel{},
		&disallowModel{},
		&userModel{},
		&userKeyModel{},
		&settingModel{},
		&eventModel{},
	); err != nil {
		return nil, err
	}
	log.WithField("dsn", redactDSN(dsn)).Info("storage ready")
	return &Store{db: db}, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	default:
		return sqlite.Open(dsn)
	}
}

// redactDSN hides credentials embedded in server DSNs.
func redactDSN(dsn string) string {
	if at := strings.LastIndexByte(dsn, '@'); at >= 0 {
		if scheme := strings.Index(dsn, "://"); scheme >= 0 && scheme < at {
			return dsn[:scheme+3] + "***" + dsn[at:]
		}
	}
	return dsn
}

// Store implements repository.Store on gorm.
type Store struct {
	db *gorm.DB
}

// Sync flushes the underlying database (sqlite WAL checkpoint and
// friends); for server backends it is a connectivity ping.
func (s *Store) Sync() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
