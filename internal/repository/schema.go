package repository

import "database/sql"

// EnsureSchema creates the schedule table if it does not exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS schedule (
  id BIGSERIAL PRIMARY KEY,
  platform TEXT NOT NULL CHECK(platform IN ('instagram','text_only','video_attached')),
  account_ref TEXT NOT NULL,
  media_ref TEXT,
  caption TEXT NOT NULL DEFAULT '',
  scheduled_time TIMESTAMPTZ NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','processing','posted','failed')) DEFAULT 'pending',
  posted_at TIMESTAMPTZ,
  error_detail TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_schedule_due ON schedule(status, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_schedule_account ON schedule(account_ref, status, scheduled_time);
`
	_, err := db.Exec(schema)
	return err
}
