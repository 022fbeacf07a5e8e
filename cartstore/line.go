package cartstore

import (
	"encoding/json"
	"time"
)

// Product is the catalog data a line snapshots at add-time. The cart
// never re-fetches or re-validates it against the catalog.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	UnitPrice int64  `json:"unit_price"` // minor currency units
}

// Line is one merged cart entry. Two additions land on the same line iff
// ProductID matches and the customization maps are structurally equal.
type Line struct {
	ProductID     string            `json:"product_id"`
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	UnitPrice     int64             `json:"unit_price"`
	Quantity      int               `json:"quantity"`
	Customization map[string]string `json:"customization"`
	AddedAt       time.Time         `json:"added_at"`
}

// Snapshot is an immutable copy of the cart with its derived totals.
// Totals are always recomputed from the lines, never stored.
type Snapshot struct {
	Lines    []Line `json:"lines"`
	Count    int    `json:"count"`
	Subtotal int64  `json:"subtotal"`
}

// CustomizationKey reduces a customization map to its canonical string
// form. encoding/json sorts map keys, so key order in the input never
// affects the result. A nil and an empty map canonicalize identically.
func CustomizationKey(customization map[string]string) string {
	if len(customization) == 0 {
		return "{}"
	}
	data, err := json.Marshal(customization)
	if err != nil {
		// map[string]string cannot fail to marshal
		return "{}"
	}
	return string(data)
}

func copyCustomization(customization map[string]string) map[string]string {
	out := make(map[string]string, len(customization))
	for k, v := range customization {
		out[k] = v
	}
	return out
}

func snapshotOf(lines []Line) Snapshot {
	snap := Snapshot{Lines: make([]Line, len(lines))}
	for i, line := range lines {
		line.Customization = copyCustomization(line.Customization)
		snap.Lines[i] = line
		snap.Count += line.Quantity
		snap.Subtotal += int64(line.Quantity) * line.UnitPrice
	}
	return snap
}
