package models

import "time"

// Trade lifecycle states.
const (
	TradeStatusProposed  = "proposed"
	TradeStatusAccepted  = "accepted"
	TradeStatusCompleted = "completed"
	TradeStatusCancelled = "cancelled"
)

// Friendship levels accepted on a trade (Good, Great, Ultra, Best).
const (
	MinFriendshipLevel = 1
	MaxFriendshipLevel = 4
)

// TradeRecord is a negotiated exchange of one instance between two trainers.
type TradeRecord struct {
	TradeID                        string  `json:"trade_id"`
	UsernameProposed               string  `json:"username_proposed"`
	UsernameAccepting              string  `json:"username_accepting"`
	PokemonInstanceIDUserProposed  string  `json:"pokemon_instance_id_user_proposed"`
	PokemonInstanceIDUserAccepting *string `json:"pokemon_instance_id_user_accepting"` // Nullable

	Status            string `json:"trade_status"`
	FriendshipLevel   int    `json:"trade_friendship_level"`
	IsSpecialTrade    bool   `json:"is_special_trade"`
	IsRegisteredTrade bool   `json:"is_registered_trade"`
	IsLuckyTrade      bool   `json:"is_lucky_trade"`
	DustCost          int    `json:"trade_dust_cost"`

	User1Satisfaction *bool `json:"user_1_trade_satisfaction"` // Proposer, nullable
	User2Satisfaction *bool `json:"user_2_trade_satisfaction"` // Accepter, nullable

	UserProposedCompletionConfirmed  bool `json:"user_proposed_completion_confirmed"`
	UserAcceptingCompletionConfirmed bool `json:"user_accepting_completion_confirmed"`

	ProposalDate   time.Time  `json:"trade_proposal_date"`
	AcceptanceDate *time.Time `json:"trade_acceptance_date"`
	CompletedDate  *time.Time `json:"trade_completed_date"`
	CancelledDate  *time.Time `json:"trade_cancelled_date"`
	CancelledBy    *string    `json:"trade_cancelled_by"`

	LastUpdate int64 `json:"last_update"`
}

// IsOpen reports whether the trade still blocks a duplicate proposal.
func (t *TradeRecord) IsOpen() bool {
	return t.Status == TradeStatusProposed || t.Status == TradeStatusAccepted
}

// Involves reports whether the trade references the given instance on either side.
func (t *TradeRecord) Involves(instanceID string) bool {
	if instanceID == "" {
		return false
	}
	if t.PokemonInstanceIDUserProposed == instanceID {
		return true
	}
	return t.PokemonInstanceIDUserAccepting != nil && *t.PokemonInstanceIDUserAccepting == instanceID
}

// Clone returns a deep copy of the record.
func (t *TradeRecord) Clone() *TradeRecord {
	if t == nil {
		return nil
	}
	c := *t
	c.PokemonInstanceIDUserAccepting = cloneString(t.PokemonInstanceIDUserAccepting)
	c.User1Satisfaction = cloneBool(t.User1Satisfaction)
	c.User2Satisfaction = cloneBool(t.User2Satisfaction)
	c.AcceptanceDate = cloneTime(t.AcceptanceDate)
	c.CompletedDate = cloneTime(t.CompletedDate)
	c.CancelledDate = cloneTime(t.CancelledDate)
	c.CancelledBy = cloneString(t.CancelledBy)
	return &c
}

// RelatedInstance is the snapshot of an offered creature stored next to a trade.
type RelatedInstance struct {
	InstanceID string         `json:"instance_id"`
	VariantID  string         `json:"variant_id"`
	Username   string         `json:"username,omitempty"`
	Data       map[string]any `json:"instanceData,omitempty"`
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
