package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/lotfolio/src/logger"
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
	migrateLotsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account TEXT NOT NULL,
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity REAL,
		price REAL,
		amount REAL,
		category TEXT NOT NULL,
		hash_id TEXT,
		UNIQUE(account, hash_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account);
	CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(account, symbol);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
	CREATE INDEX IF NOT EXISTS idx_transactions_action ON transactions(action);

	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		security_id TEXT NOT NULL,
		account TEXT NOT NULL,
		symbol TEXT NOT NULL,
		quantity REAL NOT NULL,
		original_quantity REAL NOT NULL,
		remaining_quantity REAL NOT NULL,
		acquisition_date TEXT NOT NULL,
		cost_basis REAL NOT NULL,
		price_per_share REAL NOT NULL,
		status TEXT NOT NULL,
		transaction_derived INTEGER NOT NULL DEFAULT 0,
		source_transaction_id TEXT,
		adjustments TEXT,
		sale_transactions TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lots_security_id ON lots(security_id);
	CREATE INDEX IF NOT EXISTS idx_lots_account ON lots(account);

	CREATE TABLE IF NOT EXISTS securities (
		symbol TEXT NOT NULL,
		account TEXT NOT NULL,
		acquisition_date TEXT,
		description TEXT,
		updated_at TEXT,
		PRIMARY KEY(account, symbol)
	);
	CREATE INDEX IF NOT EXISTS idx_securities_symbol ON securities(symbol);
	CREATE INDEX IF NOT EXISTS idx_securities_account ON securities(account);

	CREATE TABLE IF NOT EXISTS manual_adjustments (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		account TEXT NOT NULL,
		type TEXT NOT NULL,
		date TEXT NOT NULL,
		ratio REAL,
		dividend_amount REAL,
		description TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_adjustments_symbol ON manual_adjustments(account, symbol);
	CREATE INDEX IF NOT EXISTS idx_adjustments_account ON manual_adjustments(account);
	CREATE INDEX IF NOT EXISTS idx_adjustments_date ON manual_adjustments(date);
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

// migrateLotsTable back-fills columns added after the first release. The
// lots table predates source_transaction_id, which the acquisition pass
// now uses for replay dedup.
func migrateLotsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='lots'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Info("'lots' table does not exist, no migration needed as table will be created.")
			}
			return
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'lots' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'lots' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(lots)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'lots'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'lots': %v", err)
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
				logger.L.Error("Error scanning column info for 'lots'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'lots': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'lots'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'lots': %v", err)
		}
		return
	}

	if _, ok := columnExists["source_transaction_id"]; !ok {
		_, err := DB.Exec("ALTER TABLE lots ADD COLUMN source_transaction_id TEXT")
		if err != nil {
			logger.L.Error("Error adding 'source_transaction_id' column to 'lots' table", "error", err)
		} else {
			logger.L.Info("Added 'source_transaction_id' column to 'lots' table")
		}
	}
}
