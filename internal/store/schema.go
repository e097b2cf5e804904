package store

import "strings"

// initSchema creates the database schema
func (s *DB) initSchema() error {
	_, err := s.db.Exec(s.schema())
	return err
}

func (s *DB) schema() string {
	decimalType, blobType, tsType := "TEXT", "BLOB", "TIMESTAMP"
	nonNeg := func(col string) string { return "CAST(" + col + " AS REAL) >= 0" }
	if s.driver == DriverPostgres {
		decimalType, blobType, tsType = "NUMERIC(18,4)", "BYTEA", "TIMESTAMPTZ"
		nonNeg = func(col string) string { return col + " >= 0" }
	}

	r := strings.NewReplacer(
		"{{decimal}}", decimalType,
		"{{blob}}", blobType,
		"{{timestamp}}", tsType,
		"{{qty_nonneg}}", nonNeg("quantity"),
		"{{reserved_nonneg}}", nonNeg("reserved_quantity"),
	)

	schema := r.Replace(baseSchema)
	if s.driver == DriverSQLite {
		schema += sqliteJournalGuards
	}
	return schema
}

const baseSchema = `
	-- Master data
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		sku TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		default_unit TEXT NOT NULL,
		requires_batch BOOLEAN NOT NULL DEFAULT FALSE,
		requires_serial BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{timestamp}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warehouses (
		id TEXT PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bins (
		id TEXT PRIMARY KEY,
		warehouse_id TEXT NOT NULL REFERENCES warehouses(id),
		code TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL,
		UNIQUE (warehouse_id, code)
	);

	-- Operation reservation log: status_code 0 means in flight
	CREATE TABLE IF NOT EXISTS operation_reservations (
		operation_id TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		response_body {{blob}},
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL
	);

	-- Ledger projections
	CREATE TABLE IF NOT EXISTS stock_lines (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		bin_id TEXT NOT NULL REFERENCES bins(id),
		quantity {{decimal}} NOT NULL,
		reserved_quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		UNIQUE (product_id, bin_id),
		CHECK ({{qty_nonneg}}),
		CHECK ({{reserved_nonneg}})
	);

	CREATE TABLE IF NOT EXISTS lot_lines (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		bin_id TEXT NOT NULL REFERENCES bins(id),
		batch_number TEXT NOT NULL,
		quantity {{decimal}} NOT NULL,
		expiry_date DATE,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		UNIQUE (product_id, bin_id, batch_number),
		CHECK ({{qty_nonneg}})
	);

	CREATE TABLE IF NOT EXISTS serial_units (
		id TEXT PRIMARY KEY,
		serial_number TEXT UNIQUE NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		current_bin_id TEXT REFERENCES bins(id),
		status TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		CHECK (status IN ('in_stock', 'in_transit', 'issued')),
		CHECK ((status = 'in_stock') = (current_bin_id IS NOT NULL))
	);

	-- Movement journal (append-only)
	CREATE TABLE IF NOT EXISTS movement_entries (
		id TEXT PRIMARY KEY,
		movement_type TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_number TEXT NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		from_bin_id TEXT REFERENCES bins(id),
		to_bin_id TEXT REFERENCES bins(id),
		quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		performed_by TEXT NOT NULL,
		performed_at {{timestamp}} NOT NULL,
		metadata TEXT NOT NULL,
		CHECK (from_bin_id IS NOT NULL OR to_bin_id IS NOT NULL)
	);

	-- Goods receipts
	CREATE TABLE IF NOT EXISTS goods_receipts (
		id TEXT PRIMARY KEY,
		number TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL,
		supplier_ref TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		completed_by TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		completed_at {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS goods_receipt_items (
		id TEXT PRIMARY KEY,
		receipt_id TEXT NOT NULL REFERENCES goods_receipts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		bin_id TEXT NOT NULL REFERENCES bins(id),
		quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		batch_number TEXT,
		expiry_date DATE,
		serial_numbers TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	);

	-- Goods issues
	CREATE TABLE IF NOT EXISTS goods_issues (
		id TEXT PRIMARY KEY,
		number TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL,
		customer_ref TEXT,
		notes TEXT,
		created_by TEXT NOT NULL,
		completed_by TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		completed_at {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS goods_issue_items (
		id TEXT PRIMARY KEY,
		issue_id TEXT NOT NULL REFERENCES goods_issues(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		bin_id TEXT NOT NULL REFERENCES bins(id),
		requested_quantity {{decimal}} NOT NULL,
		issued_quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		batch_number TEXT,
		use_fefo BOOLEAN NOT NULL DEFAULT FALSE,
		serial_numbers TEXT NOT NULL,
		allocations TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	);

	-- Intra-warehouse stock transfers
	CREATE TABLE IF NOT EXISTS stock_transfers (
		id TEXT PRIMARY KEY,
		number TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL,
		notes TEXT,
		created_by TEXT NOT NULL,
		completed_by TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		completed_at {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS stock_transfer_items (
		id TEXT PRIMARY KEY,
		transfer_id TEXT NOT NULL REFERENCES stock_transfers(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		from_bin_id TEXT NOT NULL REFERENCES bins(id),
		to_bin_id TEXT NOT NULL REFERENCES bins(id),
		quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		batch_number TEXT,
		serial_numbers TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	);

	-- Inter-warehouse transfers
	CREATE TABLE IF NOT EXISTS inter_warehouse_transfers (
		id TEXT PRIMARY KEY,
		number TEXT UNIQUE NOT NULL,
		from_warehouse_id TEXT NOT NULL REFERENCES warehouses(id),
		to_warehouse_id TEXT NOT NULL REFERENCES warehouses(id),
		status TEXT NOT NULL,
		notes TEXT,
		created_by TEXT NOT NULL,
		dispatched_by TEXT,
		received_by TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		dispatched_at {{timestamp}},
		received_at {{timestamp}},
		cancelled_at {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS inter_warehouse_transfer_items (
		id TEXT PRIMARY KEY,
		transfer_id TEXT NOT NULL REFERENCES inter_warehouse_transfers(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		from_bin_id TEXT NOT NULL REFERENCES bins(id),
		to_bin_id TEXT NOT NULL REFERENCES bins(id),
		requested_quantity {{decimal}} NOT NULL,
		dispatched_quantity {{decimal}} NOT NULL,
		received_quantity {{decimal}} NOT NULL,
		unit TEXT NOT NULL,
		batch_number TEXT,
		expiry_date DATE,
		serial_numbers TEXT NOT NULL,
		allocations TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	);

	-- Inventory counts
	CREATE TABLE IF NOT EXISTS inventory_count_sessions (
		id TEXT PRIMARY KEY,
		number TEXT UNIQUE NOT NULL,
		warehouse_id TEXT REFERENCES warehouses(id),
		status TEXT NOT NULL,
		tolerance_quantity {{decimal}} NOT NULL,
		notes TEXT,
		created_by TEXT NOT NULL,
		completed_by TEXT,
		created_at {{timestamp}} NOT NULL,
		updated_at {{timestamp}} NOT NULL,
		generated_at {{timestamp}},
		completed_at {{timestamp}}
	);

	CREATE TABLE IF NOT EXISTS inventory_count_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES inventory_count_sessions(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		bin_id TEXT NOT NULL REFERENCES bins(id),
		snapshot_quantity {{decimal}} NOT NULL,
		counted_quantity {{decimal}},
		difference {{decimal}},
		unit TEXT NOT NULL,
		recount_required BOOLEAN NOT NULL DEFAULT FALSE,
		count_attempts INTEGER NOT NULL DEFAULT 0,
		counted_by TEXT,
		last_counted_at {{timestamp}},
		UNIQUE (session_id, product_id, bin_id)
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_bins_warehouse_id ON bins(warehouse_id);
	CREATE INDEX IF NOT EXISTS idx_stock_lines_bin_id ON stock_lines(bin_id);
	CREATE INDEX IF NOT EXISTS idx_lot_lines_product_bin ON lot_lines(product_id, bin_id);
	CREATE INDEX IF NOT EXISTS idx_serial_units_product_id ON serial_units(product_id);
	CREATE INDEX IF NOT EXISTS idx_movement_entries_product_id ON movement_entries(product_id);
	CREATE INDEX IF NOT EXISTS idx_movement_entries_reference ON movement_entries(reference_type, reference_number);
	CREATE INDEX IF NOT EXISTS idx_movement_entries_performed_at ON movement_entries(performed_at);
	CREATE INDEX IF NOT EXISTS idx_operation_reservations_updated_at ON operation_reservations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_goods_receipt_items_receipt_id ON goods_receipt_items(receipt_id);
	CREATE INDEX IF NOT EXISTS idx_goods_issue_items_issue_id ON goods_issue_items(issue_id);
	CREATE INDEX IF NOT EXISTS idx_stock_transfer_items_transfer_id ON stock_transfer_items(transfer_id);
	CREATE INDEX IF NOT EXISTS idx_iwt_items_transfer_id ON inter_warehouse_transfer_items(transfer_id);
	CREATE INDEX IF NOT EXISTS idx_count_items_session_id ON inventory_count_items(session_id);
`

const sqliteJournalGuards = `
	CREATE TRIGGER IF NOT EXISTS movement_entries_no_update
	BEFORE UPDATE ON movement_entries
	BEGIN
		SELECT RAISE(ABORT, 'movement_entries is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS movement_entries_no_delete
	BEFORE DELETE ON movement_entries
	BEGIN
		SELECT RAISE(ABORT, 'movement_entries is append-only');
	END;
`
