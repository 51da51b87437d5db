package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	total_price    REAL NOT NULL DEFAULT 0,
	order_status   TEXT NOT NULL DEFAULT 'pending',
	payment_id     TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL DEFAULT '',
	payment_status TEXT NOT NULL DEFAULT 'unpaid',
	item_count     INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	fetched_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	message    TEXT NOT NULL,
	read       INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status);
CREATE INDEX IF NOT EXISTS idx_activity_read ON activity(read);
CREATE INDEX IF NOT EXISTS idx_activity_created ON activity(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_activity_order_id
	ON activity(order_id);

CREATE INDEX IF NOT EXISTS idx_orders_payment_status
	ON orders(payment_status);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
