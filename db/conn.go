// Package db contains the gorm bootstrap for the relational index
package db

import (
	"fmt"
	"webora/storage-sync/internal/model"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func New() (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch viper.GetString("db.type") {
	case "postgres":
		dialector = postgres.Open(viper.GetString("db.dsn"))
	default:
		dialector = sqlite.Open(viper.GetString("db.dsn"))
	}

	// TranslateError maps driver-specific unique violations to
	// gorm.ErrDuplicatedKey, which the directory builder relies on to
	// detect concurrent inserts
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	err = db.AutoMigrate(
		model.Bucket{},
		model.Directory{},
		model.File{},
		model.FileUploadSession{},
		model.FileUploadRequest{},
		model.PinToCrustRequest{},
		model.IpnsRecord{},
		model.IpfsCluster{},
		model.Job{},
		model.WorkerAlert{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}
