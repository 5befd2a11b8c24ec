package events

// Topics dispatched by the sync engine.
const (
	TopicVariantsChanged         = "variants:changed"
	TopicInstancesChanged        = "instances:changed"
	TopicForeignInstancesChanged = "foreign_instances:changed"
	TopicTagsRebuilt             = "tags:rebuilt"
	TopicBatchFlushed            = "batch:flushed"
	TopicTradeUpdated            = "trade:updated"
)

// AllTopics lists every topic in dispatch documentation order.
var AllTopics = []string{
	TopicVariantsChanged,
	TopicInstancesChanged,
	TopicForeignInstancesChanged,
	TopicTagsRebuilt,
	TopicBatchFlushed,
	TopicTradeUpdated,
}

// VariantsChangedEvent is the payload for variants:changed.
// Sent whenever the variant cache publishes a new catalog.
type VariantsChangedEvent struct {
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
	Source  string `json:"source"` // "cache" or "remote"
}

// InstancesChangedEvent is the payload for instances:changed.
type InstancesChangedEvent struct {
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
	Reason  string `json:"reason"` // e.g. "bootstrap", "merge", "status", "details", "delete", "reset"
}

// ForeignInstancesChangedEvent is the payload for foreign_instances:changed.
type ForeignInstancesChangedEvent struct {
	Version  uint64 `json:"version"`
	Count    int    `json:"count"`
	Username string `json:"username,omitempty"`
}

// TagsRebuiltEvent is the payload for tags:rebuilt.
type TagsRebuiltEvent struct {
	Partition string `json:"partition"` // "local" or "foreign"
	Caught    int    `json:"caught"`
	Trade     int    `json:"trade"`
	Wanted    int    `json:"wanted"`
	Missing   int    `json:"missing"`
}

// BatchFlushedEvent is the payload for batch:flushed.
type BatchFlushedEvent struct {
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"` // transport failure, entries stay queued
}

// TradeUpdatedEvent is the payload for trade:updated.
type TradeUpdatedEvent struct {
	TradeID string `json:"tradeId"`
	Status  string `json:"status"`
	Action  string `json:"action"` // "proposed", "accepted", "completed", "cancelled", "rated", "superseded", "synced"
}
