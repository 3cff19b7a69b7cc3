package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'user_role') THEN
			CREATE TYPE user_role AS ENUM ('admin', 'company', 'correspondent');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'request_status') THEN
			CREATE TYPE request_status AS ENUM ('open', 'in_review', 'assigned', 'accepted', 'in_progress', 'completed', 'cancelled', 'rejected');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role user_role NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email ON users (lower(email));`,
	`CREATE TABLE IF NOT EXISTS companies (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		cnpj VARCHAR(18) NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		verification_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_companies_cnpj ON companies (cnpj);`,
	`CREATE TABLE IF NOT EXISTS correspondents (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL REFERENCES users(id),
		full_name TEXT NOT NULL,
		oab_number VARCHAR(16) NOT NULL,
		oab_state CHAR(2) NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		specialties JSONB NOT NULL DEFAULT '[]'::jsonb,
		availability VARCHAR(16) NOT NULL DEFAULT 'available',
		rating_average NUMERIC(4,2) NOT NULL DEFAULT 0,
		rating_sum INTEGER NOT NULL DEFAULT 0,
		rating_count INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_correspondents_oab ON correspondents (oab_state, oab_number);`,
	`CREATE TABLE IF NOT EXISTS correspondent_service_areas (
		correspondent_id UUID NOT NULL REFERENCES correspondents(id) ON DELETE CASCADE,
		city TEXT NOT NULL,
		state CHAR(2) NOT NULL,
		radius_km INTEGER NOT NULL DEFAULT 50,
		PRIMARY KEY (correspondent_id, state, city)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_correspondent_service_areas_state ON correspondent_service_areas (upper(state));`,
	`CREATE TABLE IF NOT EXISTS service_requests (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		company_id UUID NOT NULL REFERENCES companies(id),
		correspondent_id UUID REFERENCES correspondents(id),
		title VARCHAR(200) NOT NULL,
		description TEXT NOT NULL,
		service_type VARCHAR(32) NOT NULL,
		practice_area TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL,
		state CHAR(2) NOT NULL,
		court TEXT NOT NULL DEFAULT '',
		court_section TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		process_number VARCHAR(25) NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		client_document VARCHAR(20) NOT NULL DEFAULT '',
		opposing_party TEXT NOT NULL DEFAULT '',
		urgency VARCHAR(16) NOT NULL DEFAULT 'medium',
		deadline TIMESTAMPTZ NOT NULL,
		scheduled_date TIMESTAMPTZ,
		scheduled_time VARCHAR(5) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL DEFAULT '',
		status request_status NOT NULL DEFAULT 'open',
		company_value NUMERIC(14,2),
		correspondent_value NUMERIC(14,2),
		profit_margin NUMERIC(14,2),
		completed_at TIMESTAMPTZ,
		completion_report JSONB,
		documents JSONB NOT NULL DEFAULT '[]'::jsonb,
		payment_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(16),
		payment_paid_at TIMESTAMPTZ,
		payment_notes TEXT NOT NULL DEFAULT '',
		rating_value SMALLINT,
		rating_comment TEXT,
		rated_at TIMESTAMPTZ,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT chk_service_requests_values CHECK (
			correspondent_value IS NULL OR company_value IS NULL OR correspondent_value < company_value
		)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_service_requests_company_id ON service_requests (company_id);`,
	`CREATE INDEX IF NOT EXISTS idx_service_requests_correspondent_id ON service_requests (correspondent_id) WHERE correspondent_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_service_requests_status ON service_requests (status);`,
	`CREATE INDEX IF NOT EXISTS idx_service_requests_created_at ON service_requests (created_at);`,
	`CREATE TABLE IF NOT EXISTS service_request_status_history (
		request_id UUID NOT NULL REFERENCES service_requests(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		status request_status NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		actor_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (request_id, seq)
	);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
