package postgres

import (
	"context"
	"fmt"
)

const schemaLockID int64 = 2026100101

const schemaDDL = `
CREATE TABLE IF NOT EXISTS clients (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	street TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	case_number TEXT NOT NULL UNIQUE,
	client_id TEXT NOT NULL REFERENCES clients(id),
	agent_id TEXT NOT NULL,
	status TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	insurance_company TEXT NOT NULL,
	policy_number TEXT NOT NULL,
	policy_type TEXT NOT NULL DEFAULT '',
	termination_date DATE,
	reason_for_termination TEXT NOT NULL DEFAULT '',
	secure_token TEXT,
	token_expires_at TIMESTAMPTZ,
	reminded_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

UPDATE cases SET status = 'email_sent' WHERE status = 'pending_documents';

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'cases_completed_at_matches_status') THEN
		ALTER TABLE cases ADD CONSTRAINT cases_completed_at_matches_status
			CHECK ((status IN ('signed', 'completed')) = (completed_at IS NOT NULL));
	END IF;
END $$;

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_client_id ON cases(client_id);

CREATE TABLE IF NOT EXISTS case_tokens (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id),
	token TEXT NOT NULL UNIQUE,
	issued_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_case_tokens_case_issued ON case_tokens(case_id, issued_at DESC);

CREATE TABLE IF NOT EXISTS case_documents (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id),
	document_type TEXT NOT NULL,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_ref TEXT NOT NULL,
	status TEXT NOT NULL,
	uploaded_by TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	reviewed_by TEXT NOT NULL DEFAULT '',
	review_note TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_case_documents_case ON case_documents(case_id, uploaded_at);

CREATE TABLE IF NOT EXISTS case_signatures (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id),
	data BYTEA NOT NULL,
	signer_id TEXT NOT NULL,
	signed_at TIMESTAMPTZ NOT NULL,
	is_valid BOOLEAN NOT NULL,
	invalidated_at TIMESTAMPTZ,
	source TEXT NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	consent_reference TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_case_signatures_valid ON case_signatures(case_id) WHERE is_valid;

CREATE TABLE IF NOT EXISTS generated_documents (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL REFERENCES cases(id),
	template_id TEXT NOT NULL,
	blob_ref TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	sha256 TEXT NOT NULL,
	is_signed BOOLEAN NOT NULL,
	signed_at TIMESTAMPTZ,
	signature_id TEXT NOT NULL DEFAULT '',
	source_document_id TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generated_documents_case ON generated_documents(case_id, created_at);

CREATE TABLE IF NOT EXISTS case_events (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	case_id TEXT NOT NULL REFERENCES cases(id),
	type TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_events_case ON case_events(case_id, seq);
`

// EnsureSchema creates the tables and normalizes legacy status values.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
