package db

// Schema defines the SQLite manifest of installed tools.
// tools holds one row per executable in the libs folder, and
// provision_runs records every provisioning workflow attempt.
const Schema = `
CREATE TABLE IF NOT EXISTS tools (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    path TEXT NOT NULL,
    source_url TEXT NOT NULL DEFAULT '',
    sha256 TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL CHECK(status IN ('pending', 'installing', 'ready', 'failed')),
    error_message TEXT,
    checked_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tools_status ON tools(status);

CREATE TABLE IF NOT EXISTS provision_runs (
    id TEXT PRIMARY KEY,
    libs_dir TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running', 'complete', 'failed')),
    failed_step TEXT,
    error_message TEXT,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_provision_runs_started_at ON provision_runs(started_at);
`

// Tool status constants
const (
	StatusPending    = "pending"
	StatusInstalling = "installing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Run status constants
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Tool names
const (
	ToolDownloader = "downloader"
	ToolTranscoder = "transcoder"
)

// Tool represents an installed executable
type Tool struct {
	ID           int64
	Name         string
	Path         string
	SourceURL    string
	SHA256       string
	Size         int64
	Status       string
	ErrorMessage string
	CheckedAt    string
	CreatedAt    string
	UpdatedAt    string
}

// Run represents one provisioning attempt
type Run struct {
	ID           string
	LibsDir      string
	Status       string
	FailedStep   string
	ErrorMessage string
	StartedAt    string
	FinishedAt   string
}
