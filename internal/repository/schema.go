package repository

// Schema definitions for the impacts database.
// Compatible with both SQLite and PostgreSQL.

const schemaRulebaseVersions = `
CREATE TABLE IF NOT EXISTS rulebase_versions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    checksum TEXT NOT NULL,
    rule_count INTEGER NOT NULL,
    raw TEXT NOT NULL,
    loaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rulebase_versions_loaded ON rulebase_versions(loaded_at);
CREATE INDEX IF NOT EXISTS idx_rulebase_versions_checksum ON rulebase_versions(checksum);
`

// schemaActivationSnapshots keeps the last activation fetched for each
// selection, used when the rules service is unreachable.
const schemaActivationSnapshots = `
CREATE TABLE IF NOT EXISTS activation_snapshots (
    id TEXT NOT NULL,
    region TEXT NOT NULL,
    climate TEXT NOT NULL,
    ensemble TEXT NOT NULL,
    activation TEXT NOT NULL,
    fetched_at TIMESTAMP NOT NULL,
    PRIMARY KEY (region, climate, ensemble)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRulebaseVersions,
		schemaActivationSnapshots,
	}
}
