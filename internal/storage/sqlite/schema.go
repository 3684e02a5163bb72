// ABOUTME: SQLite database schema for the local knowledge index
// ABOUTME: One row per collection plus one row per chunk with a float32 vector BLOB
package sqlite

// Schema contains all SQL statements for database initialization
const Schema = `
-- Collections fix the vector dimension and metric for their chunks
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL,
    metric TEXT NOT NULL DEFAULT 'L2',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Knowledge chunks (text, weight, little-endian float32 vector)
CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
    source TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(collection, source);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 2
