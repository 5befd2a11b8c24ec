package models

import (
	"encoding/json"
	"time"
)

// Batched update operations understood by the remote authority.
const (
	OpUpdateInstance = "updateInstance"
	OpDeleteInstance = "deleteInstance"
	OpCreateTrade    = "createTrade"
	OpUpdateTrade    = "updateTrade"
)

// BatchedUpdate is a pending local mutation waiting to be replayed against
// the remote authority. Payload always carries the complete record.
type BatchedUpdate struct {
	Key        string          `json:"key"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	Seq        int64           `json:"-"`
	LastUpdate int64           `json:"last_update"`
	Attempts   int             `json:"-"`
	LastError  string          `json:"-"`
	CreatedAt  time.Time       `json:"-"`
}

// BatchResult is the remote outcome for one replayed key.
type BatchResult struct {
	Key   string `json:"key"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// InstanceKey and TradeKey namespace batched update keys per collection.
func InstanceKey(instanceID string) string { return "instance:" + instanceID }

// TradeKey returns the batched update key for a trade.
func TradeKey(tradeID string) string { return "trade:" + tradeID }

// TagItem is the display snapshot of one instance inside a tag bucket.
type TagItem struct {
	InstanceID      string `json:"instance_id"`
	VariantID       string `json:"variant_id"`
	Name            string `json:"name"`
	PokedexNumber   int    `json:"pokedex_number"`
	CurrentImage    string `json:"currentImage,omitempty"`
	VariantType     string `json:"variantType,omitempty"`
	Rarity          string `json:"rarity,omitempty"`
	CP              int    `json:"cp,omitempty"`
	HP              int    `json:"hp,omitempty"`
	Gender          string `json:"gender,omitempty"`
	Favorite        bool   `json:"favorite,omitempty"`
	MostWanted      bool   `json:"most_wanted,omitempty"`
	IsForTrade      bool   `json:"is_for_trade,omitempty"`
	Mirror          bool   `json:"mirror,omitempty"`
	PrefLucky       bool   `json:"pref_lucky,omitempty"`
	FriendshipLevel int    `json:"friendship_level,omitempty"`
	LocationCard    string `json:"location_card,omitempty"`
}

// TagBuckets groups instances by ownership status.
type TagBuckets struct {
	Caught  map[string]TagItem `json:"caught"`
	Trade   map[string]TagItem `json:"trade"`
	Wanted  map[string]TagItem `json:"wanted"`
	Missing map[string]TagItem `json:"missing"`
}

// NewTagBuckets returns buckets with every map allocated.
func NewTagBuckets() *TagBuckets {
	return &TagBuckets{
		Caught:  map[string]TagItem{},
		Trade:   map[string]TagItem{},
		Wanted:  map[string]TagItem{},
		Missing: map[string]TagItem{},
	}
}

// Bucket returns the bucket for a status, or nil for unknown statuses.
func (b *TagBuckets) Bucket(status string) map[string]TagItem {
	if b == nil {
		return nil
	}
	switch status {
	case StatusCaught:
		return b.Caught
	case StatusTrade:
		return b.Trade
	case StatusWanted:
		return b.Wanted
	case StatusMissing:
		return b.Missing
	}
	return nil
}

// SystemChildren are the built-in sub-tags derived from the buckets.
type SystemChildren struct {
	CaughtFavorite   map[string]TagItem `json:"caught.favorite"`
	CaughtTrade      map[string]TagItem `json:"caught.trade"`
	WantedMostWanted map[string]TagItem `json:"wanted.mostWanted"`
}

// TagSnapshot is the persisted form of one built partition.
type TagSnapshot struct {
	Partition string          `json:"partition"`
	Buckets   *TagBuckets     `json:"buckets"`
	Children  *SystemChildren `json:"children"`
	BuiltAt   time.Time       `json:"built_at"`
}
