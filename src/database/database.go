package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/stocktracker/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateTransactionTable()

	// Decimal amounts are stored as TEXT so no precision is lost between
	// writing and reading them back.
	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		auth_provider TEXT DEFAULT 'local',
		is_email_verified BOOLEAN DEFAULT FALSE,
		email_verification_token TEXT,
		email_verification_token_expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		symbol TEXT NOT NULL,
		company_name TEXT,
		transaction_date TEXT NOT NULL,
		shares TEXT NOT NULL,
		price_per_share TEXT NOT NULL,
		broker_fee TEXT NOT NULL DEFAULT '0',
		notes TEXT,
		total_amount TEXT NOT NULL,
		import_batch_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(user_id, transaction_date, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_symbol
		ON transactions(user_id, symbol);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

func migrateTransactionTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'transactions' table does not exist, no migration needed as table will be created.")
			} else {
				stdlog.Println("'transactions' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'transactions' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'transactions' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(transactions)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'transactions': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'transactions'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'transactions': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'transactions'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'transactions': %v", err)
		}
		return
	}

	if _, ok := columnExists["broker_fee"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN broker_fee TEXT NOT NULL DEFAULT '0'")
		if err != nil {
			logger.L.Error("Error adding 'broker_fee' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'broker_fee' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["company_name"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN company_name TEXT")
		if err != nil {
			logger.L.Error("Error adding 'company_name' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'company_name' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["notes"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN notes TEXT")
		if err != nil {
			logger.L.Error("Error adding 'notes' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'notes' column to 'transactions' table")
		}
	}
	if _, ok := columnExists["import_batch_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE transactions ADD COLUMN import_batch_id TEXT")
		if err != nil {
			logger.L.Error("Error adding 'import_batch_id' column to 'transactions' table", "error", err)
		} else {
			logger.L.Info("Added 'import_batch_id' column to 'transactions' table")
		}
	}
}
