package domain

import "time"

// CardRef identifies a catalog card together with the metadata needed to
// render it. It is immutable once fetched from the catalog.
type CardRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	SetName  string `json:"set_name,omitempty"`
	Number   string `json:"number,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
}

// InventoryEntry is one ledger line. Quantity is always >= 1 while the entry
// exists.
type InventoryEntry struct {
	ID       string
	Card     CardRef
	Quantity int
}

// StoredEntry is an inventory row as persisted, before its card is resolved.
type StoredEntry struct {
	ID       string
	OwnerID  string
	CardID   string
	Quantity int
}

type Collector struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// OwnerTotal aggregates a collector's stored rows.
type OwnerTotal struct {
	OwnerID  string
	Entries  int
	Quantity int
}
