package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/navhub/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	// One writer at a time keeps sqlite happy; readers are unaffected.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		stdlog.Printf("failed to set busy_timeout: %v", err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Ensuring database schema", "databasePath", databasePath)
	} else {
		stdlog.Println("Ensuring database schema for:", databasePath)
	}

	if err := CreateSchema(db); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	}
}

// CreateSchema creates all tables if they do not exist yet. Split out from
// InitDB so tests can run against their own *sql.DB.
func CreateSchema(db *sql.DB) error {
	createTableStatement := `
	CREATE TABLE IF NOT EXISTS series (
		isin TEXT PRIMARY KEY,
		common_code TEXT,
		series_number TEXT,
		series_name TEXT NOT NULL,
		status TEXT,
		issuance_type TEXT,
		product_type TEXT,
		issuance_date TEXT,
		maturity_date TEXT,
		close_date TEXT,
		issuer TEXT,
		series_region TEXT,
		portfolio_manager TEXT,
		asset_manager TEXT,
		currency TEXT,
		nav_frequency TEXT,
		issuance_principal_amount REAL,
		fees_frequency TEXT,
		payment_method TEXT,
		underlying_valuation_cycle TEXT
	);

	CREATE TABLE IF NOT EXISTS custodians (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		series_isin TEXT NOT NULL,
		custodian_name TEXT NOT NULL,
		account_number TEXT,
		FOREIGN KEY(series_isin) REFERENCES series(isin)
	);

	CREATE TABLE IF NOT EXISTS fee_structures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		series_isin TEXT NOT NULL,
		fee_type TEXT NOT NULL,
		fee_category TEXT NOT NULL,
		fee_percentage REAL,
		fixed_amount REAL,
		currency TEXT,
		notes TEXT,
		FOREIGN KEY(series_isin) REFERENCES series(isin)
	);

	CREATE TABLE IF NOT EXISTS nav_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		isin TEXT NOT NULL,
		series_number TEXT,
		nav_date TEXT NOT NULL,
		nav_value TEXT NOT NULL,
		source TEXT NOT NULL,
		file_type TEXT,
		raw_ref TEXT,
		ingested_at TEXT NOT NULL,
		UNIQUE(isin, nav_date, source)
	);
	CREATE INDEX IF NOT EXISTS idx_nav_entries_isin ON nav_entries(isin);
	CREATE INDEX IF NOT EXISTS idx_nav_entries_date ON nav_entries(nav_date);
	CREATE INDEX IF NOT EXISTS idx_nav_entries_series_number ON nav_entries(series_number);
	`
	_, err := db.Exec(createTableStatement)
	return err
}
