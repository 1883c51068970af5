package config

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"campus_shuttle/internal/models"
)

// ChangeChannel is the NOTIFY channel row triggers publish on.
const ChangeChannel = "row_changes"

// NotifiedTables are the tables whose writes are pushed to realtime subscribers.
var NotifiedTables = []string{"shuttles", "rides", "profiles"}

const notifyFunctionSQL = `
CREATE OR REPLACE FUNCTION notify_row_change() RETURNS trigger AS $$
DECLARE
	payload json;
BEGIN
	payload := json_build_object(
		'table', TG_TABLE_NAME,
		'type', TG_OP,
		'record', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
		'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END
	);
	PERFORM pg_notify('` + ChangeChannel + `', payload::text);
	RETURN COALESCE(NEW, OLD);
END;
$$ LANGUAGE plpgsql;`

// InitDB opens the database, migrates the schema and installs the change
// notification triggers.
func InitDB(cfg DatabaseConfig, log gormlogger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: log,
		// Unique violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Profile{}, &models.Shuttle{}, &models.Ride{}); err != nil {
		return nil, fmt.Errorf("auto-migration failed: %w", err)
	}

	if err := db.Exec(notifyFunctionSQL).Error; err != nil {
		return nil, fmt.Errorf("installing notify function: %w", err)
	}
	for _, table := range NotifiedTables {
		trigger := table + "_notify"
		if err := db.Exec(fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, table)).Error; err != nil {
			return nil, fmt.Errorf("dropping trigger %s: %w", trigger, err)
		}
		stmt := fmt.Sprintf(
			"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION notify_row_change()",
			trigger, table,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("creating trigger %s: %w", trigger, err)
		}
	}

	return db, nil
}
