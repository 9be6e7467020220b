package store

import "sort"

// CellPrice is the cost of opening a cell on the board.
const CellPrice = 10

type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ItemType string `json:"item_type"`
	Price    int    `json:"price"`
}

type PurchaseItemRequest struct {
	ItemID string `json:"item_id"`
}

type PurchaseResponse struct {
	ItemID     string   `json:"item_id"`
	Balance    int      `json:"balance"`
	OwnedItems []string `json:"owned_items"`
}

type AvailableItemsResponse struct {
	AvailableBG []string `json:"available_bg"`
}

// Catalog is an immutable set of purchasable cosmetics keyed by id.
type Catalog struct {
	items map[string]Item
}

func NewCatalog(items ...Item) *Catalog {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// DefaultCatalog holds the board backgrounds shipped with the game.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Item{ID: "bg_classic", Name: "Classic", ItemType: "background", Price: 0},
		Item{ID: "bg_forest", Name: "Forest", ItemType: "background", Price: 150},
		Item{ID: "bg_ocean", Name: "Ocean", ItemType: "background", Price: 300},
		Item{ID: "bg_desert", Name: "Desert", ItemType: "background", Price: 500},
		Item{ID: "bg_space", Name: "Deep Space", ItemType: "background", Price: 1000},
		Item{ID: "bg_gold", Name: "Gold", ItemType: "background", Price: 2500},
	)
}

func (c *Catalog) Get(id string) (Item, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Items returns the catalogue sorted by price, then id.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].ID < out[j].ID
	})
	return out
}
