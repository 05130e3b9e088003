package models

// All lists every persisted model in dependency order. Used by the sqlite
// dev mode and repository tests; Postgres is migrated with goose.
func All() []any {
	return []any{
		&Product{},
		&InventoryVariant{},
		&Address{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&OrderStatusEvent{},
		&Notification{},
	}
}
