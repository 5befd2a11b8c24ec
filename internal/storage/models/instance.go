package models

// Ownership statuses an instance can be filtered or bucketed by.
const (
	StatusCaught  = "caught"
	StatusTrade   = "trade"
	StatusWanted  = "wanted"
	StatusMissing = "missing"
)

// KnownStatuses lists every status accepted by filters and status updates.
var KnownStatuses = []string{StatusCaught, StatusTrade, StatusWanted, StatusMissing}

// IsKnownStatus reports whether s is one of KnownStatuses.
func IsKnownStatus(s string) bool {
	for _, k := range KnownStatuses {
		if k == s {
			return true
		}
	}
	return false
}

// Instance is one creature owned (or wanted) by a trainer.
// InstanceID has the form "<variant_id>_<uuid>".
type Instance struct {
	InstanceID string `json:"instance_id"`
	VariantID  string `json:"variant_id"`
	PokemonID  int    `json:"pokemon_id"`
	Username   string `json:"username"`

	Nickname        string  `json:"nickname,omitempty"`
	CP              int     `json:"cp,omitempty"`
	HP              int     `json:"hp,omitempty"`
	Level           float64 `json:"level,omitempty"`
	AttackIV        *int    `json:"attack_iv,omitempty"`
	DefenseIV       *int    `json:"defense_iv,omitempty"`
	StaminaIV       *int    `json:"stamina_iv,omitempty"`
	Gender          string  `json:"gender,omitempty"`
	Shiny           bool    `json:"shiny,omitempty"`
	Lucky           bool    `json:"lucky,omitempty"`
	Shadow          bool    `json:"shadow,omitempty"`
	Purified        bool    `json:"purified,omitempty"`
	Favorite        bool    `json:"favorite,omitempty"`
	MostWanted      bool    `json:"most_wanted,omitempty"`
	Mirror          bool    `json:"mirror,omitempty"`
	PrefLucky       bool    `json:"pref_lucky,omitempty"`
	Registered      bool    `json:"registered,omitempty"`
	FriendshipLevel int     `json:"friendship_level,omitempty"`
	LocationCard    string  `json:"location_card,omitempty"`
	DateCaught      string  `json:"date_caught,omitempty"`
	DateAdded       string  `json:"date_added,omitempty"`

	IsCaught   bool `json:"is_caught"`
	IsForTrade bool `json:"is_for_trade"`
	IsWanted   bool `json:"is_wanted"`

	NotTradeList  map[string]bool `json:"not_trade_list,omitempty"`
	NotWantedList map[string]bool `json:"not_wanted_list,omitempty"`
	TradeFilters  map[string]bool `json:"trade_filters,omitempty"`
	WantedFilters map[string]bool `json:"wanted_filters,omitempty"`

	// LastUpdate is the unix millisecond timestamp of the last local mutation.
	LastUpdate int64 `json:"last_update"`
}

// VariantKey returns the catalog key this instance joins to.
func (i *Instance) VariantKey() string {
	if i.VariantID != "" {
		return i.VariantID
	}
	return VariantKeyFromInstanceID(i.InstanceID)
}

// IsMissing reports whether the instance is an unowned placeholder.
func (i *Instance) IsMissing() bool {
	return !i.IsCaught && !i.IsForTrade && !i.IsWanted
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	c := *i
	c.AttackIV = cloneInt(i.AttackIV)
	c.DefenseIV = cloneInt(i.DefenseIV)
	c.StaminaIV = cloneInt(i.StaminaIV)
	c.NotTradeList = CloneFlags(i.NotTradeList)
	c.NotWantedList = CloneFlags(i.NotWantedList)
	c.TradeFilters = CloneFlags(i.TradeFilters)
	c.WantedFilters = CloneFlags(i.WantedFilters)
	return &c
}

// ApplyStatus sets the ownership flags for one of KnownStatuses. Any visible
// status marks the instance registered; missing clears it.
func (i *Instance) ApplyStatus(status string) {
	switch status {
	case StatusCaught:
		i.IsCaught = true
		i.IsForTrade = false
		i.IsWanted = false
	case StatusTrade:
		i.IsCaught = true
		i.IsForTrade = true
		i.IsWanted = false
	case StatusWanted:
		i.IsWanted = true
		i.IsCaught = false
		i.IsForTrade = false
	case StatusMissing:
		i.IsCaught = false
		i.IsForTrade = false
		i.IsWanted = false
		i.MostWanted = false
		i.Favorite = false
		i.Registered = false
		return
	default:
		return
	}
	i.Registered = true
}

// IsPlaceholder reports whether the instance is an unregistered, unflagged
// row that can be reused when the variant gains a status.
func (i *Instance) IsPlaceholder() bool {
	return i.IsMissing() && !i.Registered
}

// InstancePatch is a partial update. Nil fields are left untouched; non-nil
// maps replace the instance's map wholesale.
type InstancePatch struct {
	Nickname        *string         `json:"nickname,omitempty"`
	CP              *int            `json:"cp,omitempty"`
	HP              *int            `json:"hp,omitempty"`
	Gender          *string         `json:"gender,omitempty"`
	Favorite        *bool           `json:"favorite,omitempty"`
	MostWanted      *bool           `json:"most_wanted,omitempty"`
	Mirror          *bool           `json:"mirror,omitempty"`
	PrefLucky       *bool           `json:"pref_lucky,omitempty"`
	Lucky           *bool           `json:"lucky,omitempty"`
	FriendshipLevel *int            `json:"friendship_level,omitempty"`
	LocationCard    *string         `json:"location_card,omitempty"`
	Username        *string         `json:"username,omitempty"`
	NotTradeList    map[string]bool `json:"not_trade_list,omitempty"`
	NotWantedList   map[string]bool `json:"not_wanted_list,omitempty"`
	TradeFilters    map[string]bool `json:"trade_filters,omitempty"`
	WantedFilters   map[string]bool `json:"wanted_filters,omitempty"`
}

// Apply writes the non-nil fields of p onto i.
func (p *InstancePatch) Apply(i *Instance) {
	if p == nil || i == nil {
		return
	}
	if p.Nickname != nil {
		i.Nickname = *p.Nickname
	}
	if p.CP != nil {
		i.CP = *p.CP
	}
	if p.HP != nil {
		i.HP = *p.HP
	}
	if p.Gender != nil {
		i.Gender = *p.Gender
	}
	if p.Favorite != nil {
		i.Favorite = *p.Favorite
	}
	if p.MostWanted != nil {
		i.MostWanted = *p.MostWanted
	}
	if p.Mirror != nil {
		i.Mirror = *p.Mirror
	}
	if p.PrefLucky != nil {
		i.PrefLucky = *p.PrefLucky
	}
	if p.Lucky != nil {
		i.Lucky = *p.Lucky
	}
	if p.FriendshipLevel != nil {
		i.FriendshipLevel = *p.FriendshipLevel
	}
	if p.LocationCard != nil {
		i.LocationCard = *p.LocationCard
	}
	if p.Username != nil {
		i.Username = *p.Username
	}
	if p.NotTradeList != nil {
		i.NotTradeList = CloneFlags(p.NotTradeList)
	}
	if p.NotWantedList != nil {
		i.NotWantedList = CloneFlags(p.NotWantedList)
	}
	if p.TradeFilters != nil {
		i.TradeFilters = CloneFlags(p.TradeFilters)
	}
	if p.WantedFilters != nil {
		i.WantedFilters = CloneFlags(p.WantedFilters)
	}
}

// CloneFlags copies a flag map. A nil input yields nil.
func CloneFlags(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
