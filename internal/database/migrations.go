package database

import (
	"database/sql"
	"fmt"
)

var migrations = []struct {
	name   string
	schema string
}{
	{
		name: "users",
		schema: `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL COLLATE NOCASE,
        password TEXT NOT NULL,
        display_name TEXT NOT NULL DEFAULT '',
        account_number TEXT UNIQUE NOT NULL,
        nic TEXT UNIQUE NOT NULL,
        status TEXT NOT NULL,
        mobile_encrypted TEXT NOT NULL DEFAULT '',
        email_encrypted TEXT NOT NULL DEFAULT '',
        preferred_channel TEXT NOT NULL DEFAULT '',
        login_attempts INTEGER NOT NULL DEFAULT 0,
        locked_until DATETIME,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_users_nic ON users(nic);
    CREATE INDEX IF NOT EXISTS idx_users_account ON users(account_number);
    `,
	},
	{
		name: "audit_log",
		schema: `
    CREATE TABLE IF NOT EXISTS audit_log (
        id TEXT PRIMARY KEY,
        timestamp DATETIME NOT NULL,
        level TEXT NOT NULL,
        username TEXT NOT NULL DEFAULT '',
        action TEXT NOT NULL,
        resource TEXT NOT NULL DEFAULT '',
        success BOOLEAN NOT NULL,
        error_message TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '{}'
    );

    CREATE INDEX IF NOT EXISTS idx_audit_username ON audit_log(username);
    CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
    CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
    `,
	},
}

// Migrate creates the users and audit_log tables when missing
func Migrate(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", m.name, err)
		}
	}
	return nil
}
