package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS vehicle_snapshots (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		vehicle_id VARCHAR(64) NOT NULL,
		license_plate VARCHAR(32) NOT NULL,
		plate_key VARCHAR(32) NOT NULL DEFAULT '',
		brand VARCHAR(128) NOT NULL DEFAULT '',
		model VARCHAR(128) NOT NULL DEFAULT '',
		color VARCHAR(64) NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		fuel_type VARCHAR(32) NOT NULL DEFAULT '',
		seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vehicle_snapshots_vehicle_id ON vehicle_snapshots (vehicle_id);`,
	`CREATE INDEX IF NOT EXISTS idx_vehicle_snapshots_plate_key ON vehicle_snapshots (plate_key);`,
	`CREATE TABLE IF NOT EXISTS step_edit_audits (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		preparation_id VARCHAR(64) NOT NULL,
		admin_user_id VARCHAR(64) NOT NULL,
		admin_notes TEXT NOT NULL,
		changes JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_step_edit_audits_preparation ON step_edit_audits (preparation_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_step_edit_audits_admin ON step_edit_audits (admin_user_id);`,
	`CREATE OR REPLACE FUNCTION set_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'trg_vehicle_snapshots_updated_at') THEN
			CREATE TRIGGER trg_vehicle_snapshots_updated_at
				BEFORE UPDATE ON vehicle_snapshots
				FOR EACH ROW
				EXECUTE PROCEDURE set_updated_at();
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
