package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for local sqlite databases and tests.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS vending_machines (
  id TEXT PRIMARY KEY,
  machine_code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  location TEXT NOT NULL,
  latitude REAL,
  longitude REAL,
  qr_code TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  api_key_hash TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  image_url TEXT,
  category TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS machine_inventory (
  id TEXT PRIMARY KEY,
  machine_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  slot_number TEXT NOT NULL,
  quantity_available INTEGER NOT NULL DEFAULT 0,
  max_capacity INTEGER NOT NULL,
  updated_at DATETIME,
  UNIQUE (machine_id, slot_number),
  UNIQUE (machine_id, product_id),
  CHECK (quantity_available >= 0 AND quantity_available <= max_capacity)
);`,
	`CREATE TABLE IF NOT EXISTS inventory_holds (
  id TEXT PRIMARY KEY,
  checkout_session_id TEXT NOT NULL,
  machine_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  slot_number TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'reserved',
  expires_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS checkout_sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  machine_id TEXT NOT NULL,
  machine_code TEXT NOT NULL,
  order_number TEXT NOT NULL,
  merchant_order_id TEXT UNIQUE,
  provider_order_id TEXT,
  redirect_url TEXT,
  total_amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  cart TEXT NOT NULL,
  gateway_expires_at DATETIME,
  hold_expires_at DATETIME NOT NULL,
  order_id TEXT,
  failure_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL,
  user_id TEXT NOT NULL,
  machine_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'paid',
  payment_method TEXT NOT NULL DEFAULT 'phonepe',
  payment_id TEXT NOT NULL UNIQUE,
  dispensing_code TEXT NOT NULL,
  dispensing_code_expires_at DATETIME NOT NULL,
  dispensed_at DATETIME,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  product_id TEXT NOT NULL,
  slot_number TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  total_price TEXT NOT NULL,
  dispensed INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// ApplySQLite creates any missing tables on a sqlite database.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
