package store

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    title_fold TEXT NOT NULL,
    num_rows INTEGER NOT NULL DEFAULT 0,
    columns TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'parsed',
    summary_id TEXT,
    uploaded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_user_title ON reports(user_id, title_fold);
CREATE INDEX IF NOT EXISTS idx_reports_user_uploaded ON reports(user_id, uploaded_at);
`

const schemaRowSamples = `
CREATE TABLE IF NOT EXISTS report_row_samples (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL UNIQUE REFERENCES reports(id) ON DELETE CASCADE,
    sample_rows TEXT NOT NULL
);
`

const schemaSummaries = `
CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    summary_text TEXT NOT NULL DEFAULT '',
    summary_struct TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    tokens_used INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_report ON summaries(report_id);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_user_type_created ON audit_logs(user_id, event_type, created_at);
`

const schemaSubscriptions = `
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// allSchemas is the version-1 layout, applied in order.
var allSchemas = []string{
	schemaReports,
	schemaRowSamples,
	schemaSummaries,
	schemaAuditLogs,
	schemaSubscriptions,
	schemaMigrations,
}
