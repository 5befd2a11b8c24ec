package remote

import (
	"encoding/json"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// batchRequest is the body of POST /batchedUpdates.
type batchRequest struct {
	Updates []batchEntry `json:"updates"`
}

type batchEntry struct {
	Key        string          `json:"key"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	LastUpdate int64           `json:"lastUpdate"`
}

type batchResponse struct {
	Results []models.BatchResult `json:"results"`
}

// TradesSnapshot is the trade read side for one trainer.
type TradesSnapshot struct {
	Trades           []models.TradeRecord     `json:"trades"`
	RelatedInstances []models.RelatedInstance `json:"relatedInstances"`
}

// Collection is a trainer's instance set as served by the remote authority.
type Collection struct {
	Username  string                      `json:"username"`
	Instances map[string]*models.Instance `json:"instances"`

	// ETag is the validator returned with the collection, if any.
	ETag string `json:"-"`

	// NotModified is set when the server answered 304 to a conditional
	// request; Instances is nil in that case.
	NotModified bool `json:"-"`
}
