package trades

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// Validation messages surfaced to the trainer.
const (
	msgUsernameProposed  = "username_proposed must be a non-empty string."
	msgUsernameAccepting = "username_accepting must be a non-empty string."
	msgInstanceProposed  = "pokemon_instance_id_user_proposed must be a non-empty string."
	msgInstanceAccepting = "pokemon_instance_id_user_accepting must be a string when provided."
	msgFriendshipLevel   = "trade_friendship_level must be an integer between 1 and 4."
	msgPokemon           = "pokemon must be a non-null object."
	msgBody              = "trade proposal must be a JSON object."
)

// TradeProposal is the input of ProposeTrade.
type TradeProposal struct {
	UsernameProposed               string         `json:"username_proposed"`
	UsernameAccepting              string         `json:"username_accepting"`
	PokemonInstanceIDUserProposed  string         `json:"pokemon_instance_id_user_proposed"`
	PokemonInstanceIDUserAccepting *string        `json:"pokemon_instance_id_user_accepting,omitempty"`
	FriendshipLevel                int            `json:"trade_friendship_level"`
	IsSpecialTrade                 bool           `json:"is_special_trade"`
	IsRegisteredTrade              bool           `json:"is_registered_trade"`
	IsLuckyTrade                   bool           `json:"is_lucky_trade"`
	DustCost                       int            `json:"trade_dust_cost"`
	Pokemon                        map[string]any `json:"pokemon"`
}

// Validate checks the proposal and returns the first violation.
func (p *TradeProposal) Validate() error {
	if p == nil {
		return invalid("", msgBody)
	}
	if strings.TrimSpace(p.UsernameProposed) == "" {
		return invalid("username_proposed", msgUsernameProposed)
	}
	if strings.TrimSpace(p.UsernameAccepting) == "" {
		return invalid("username_accepting", msgUsernameAccepting)
	}
	if strings.TrimSpace(p.PokemonInstanceIDUserProposed) == "" {
		return invalid("pokemon_instance_id_user_proposed", msgInstanceProposed)
	}
	if p.FriendshipLevel < 1 || p.FriendshipLevel > 4 {
		return invalid("trade_friendship_level", msgFriendshipLevel)
	}
	if p.Pokemon == nil {
		return invalid("pokemon", msgPokemon)
	}
	return nil
}

// DecodeTradeProposal parses a JSON proposal. Wrong JSON types are reported
// as *ValidationError with the same messages Validate uses, so a number in a
// username field and an empty username fail alike.
func DecodeTradeProposal(data []byte) (*TradeProposal, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, invalid("", msgBody)
	}

	p := &TradeProposal{}
	var err error
	if p.UsernameProposed, err = requiredString(raw, "username_proposed", msgUsernameProposed); err != nil {
		return nil, err
	}
	if p.UsernameAccepting, err = requiredString(raw, "username_accepting", msgUsernameAccepting); err != nil {
		return nil, err
	}
	if p.PokemonInstanceIDUserProposed, err = requiredString(raw, "pokemon_instance_id_user_proposed", msgInstanceProposed); err != nil {
		return nil, err
	}
	if v, ok := raw["pokemon_instance_id_user_accepting"]; ok && !isNull(v) {
		var s string
		if json.Unmarshal(v, &s) != nil {
			return nil, invalid("pokemon_instance_id_user_accepting", msgInstanceAccepting)
		}
		p.PokemonInstanceIDUserAccepting = &s
	}

	level, ok := raw["trade_friendship_level"]
	if !ok {
		return nil, invalid("trade_friendship_level", msgFriendshipLevel)
	}
	var f float64
	if json.Unmarshal(level, &f) != nil || f != math.Trunc(f) {
		return nil, invalid("trade_friendship_level", msgFriendshipLevel)
	}
	p.FriendshipLevel = int(f)

	if v, ok := raw["pokemon"]; ok && !isNull(v) {
		if json.Unmarshal(v, &p.Pokemon) != nil {
			return nil, invalid("pokemon", msgPokemon)
		}
	}

	for field, dst := range map[string]*bool{
		"is_special_trade":    &p.IsSpecialTrade,
		"is_registered_trade": &p.IsRegisteredTrade,
		"is_lucky_trade":      &p.IsLuckyTrade,
	} {
		if v, ok := raw[field]; ok && !isNull(v) {
			if json.Unmarshal(v, dst) != nil {
				return nil, invalid(field, field+" must be a boolean.")
			}
		}
	}
	if v, ok := raw["trade_dust_cost"]; ok && !isNull(v) {
		if json.Unmarshal(v, &p.DustCost) != nil {
			return nil, invalid("trade_dust_cost", "trade_dust_cost must be an integer.")
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func requiredString(raw map[string]json.RawMessage, field, message string) (string, error) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return "", invalid(field, message)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", invalid(field, message)
	}
	return s, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
