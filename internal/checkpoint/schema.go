package checkpoint

// Schema is the append-only completion log
const Schema = `
CREATE TABLE IF NOT EXISTS completed_tasks (
	task_id TEXT PRIMARY KEY,
	interface_id TEXT NOT NULL,
	output_path TEXT NOT NULL,
	completed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_completed_interface ON completed_tasks(interface_id);
`
