package database

import (
	"fmt"

	"github.com/mahidalhan/axon/internal/config"
	logging "github.com/mahidalhan/axon/internal/logging"
	"github.com/mahidalhan/axon/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// DSN builds the postgres connection string.
func DSN(c config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port)
}

// Init opens the connection, migrates the schema and sets DB.
func Init(conf config.DatabaseConfig, log *zap.Logger) error {
	db, err := gorm.Open(postgres.Open(DSN(conf)), &gorm.Config{
		Logger: logging.NewGormZapLogger(log),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.", zap.String("host", conf.Host), zap.String("dbname", conf.DBName))

	if err := runMigrations(db, log); err != nil {
		return err
	}
	DB = db
	return nil
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	err := db.AutoMigrate(
		&models.LRIScore{},
		&models.SleepRecord{},
		&models.ExerciseEvent{},
		&models.DNOSScore{},
		&models.BrainScore{},
		&models.SessionRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	// Day-range scans over LRI history read newest rows first.
	lriIndex := `CREATE INDEX IF NOT EXISTS idx_lri_scores_timestamp_desc ON lri_scores ("timestamp" DESC);`
	if err := db.Exec(lriIndex).Error; err != nil {
		return fmt.Errorf("failed to create index on lri_scores: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}

// Close releases the pool.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
