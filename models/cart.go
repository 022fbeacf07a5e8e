package models

import "time"

// CartRecord is the durable copy of one buyer's cart. StoreKey is the
// namespaced storage key ("cart:<buyer_id>"). The row itself doubles as
// the "a save has occurred" marker: a buyer with no row has never saved,
// while a row with zero lines means the cart was explicitly cleared.
type CartRecord struct {
	StoreKey  string           `gorm:"primaryKey"`
	Lines     []CartLineRecord `gorm:"foreignKey:StoreKey;references:StoreKey;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartLineRecord struct {
	ID               uint   `gorm:"primaryKey"`
	StoreKey         string `gorm:"index"`
	Position         int    // insertion order, preserved for display
	ProductID        string
	ProductName      string // snapshot at add-time, never re-fetched
	ProductImage     string
	UnitPrice        int64 // minor currency units, snapshot at add-time
	Quantity         int
	CustomizationKey string
	Customization    string // customization map, JSON-encoded
	AddedAt          time.Time
}
