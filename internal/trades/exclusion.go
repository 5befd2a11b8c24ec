package trades

import "github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"

// Exclusion list kinds.
const (
	ListNotTrade  = "not_trade_list"
	ListNotWanted = "not_wanted_list"
)

// UpdateNotTradeList returns otherID's not-trade list with the entry for
// currentID set (add) or removed. It returns nil when otherID has no record.
// The input collection is not modified.
//
// mirror is ignored: the reciprocal entry is written the same way for mirror
// listings. Only the other instance is ever touched.
func UpdateNotTradeList(instances map[string]*models.Instance, currentID, otherID string, add, mirror bool) map[string]bool {
	other, ok := instances[otherID]
	if !ok || other == nil {
		return nil
	}
	return toggle(other.NotTradeList, currentID, add)
}

// UpdateNotWantedList is UpdateNotTradeList for the not-wanted list.
func UpdateNotWantedList(instances map[string]*models.Instance, currentID, otherID string, add, mirror bool) map[string]bool {
	other, ok := instances[otherID]
	if !ok || other == nil {
		return nil
	}
	return toggle(other.NotWantedList, currentID, add)
}

// BuildExclusionPatches turns edits to one exclusion list of currentID into
// the patches that keep both sides consistent. changes maps other instance
// ids to true (exclude) or false (include again). Editing the current
// instance's not-wanted list updates each other instance's not-trade list,
// and the other way round. The result is meant for a single
// UpdateInstanceDetails call. Unknown ids are skipped; an unknown current
// instance yields nil.
func BuildExclusionPatches(instances map[string]*models.Instance, currentID, list string, changes map[string]bool, mirror bool) map[string]*models.InstancePatch {
	current, ok := instances[currentID]
	if !ok || current == nil {
		return nil
	}

	var own map[string]bool
	switch list {
	case ListNotTrade:
		own = models.CloneFlags(current.NotTradeList)
	case ListNotWanted:
		own = models.CloneFlags(current.NotWantedList)
	default:
		return nil
	}
	if own == nil {
		own = map[string]bool{}
	}

	patches := map[string]*models.InstancePatch{}
	for otherID, add := range changes {
		if otherID == currentID {
			continue
		}
		if add {
			own[otherID] = true
		} else {
			delete(own, otherID)
		}

		var reciprocal map[string]bool
		if list == ListNotWanted {
			reciprocal = UpdateNotTradeList(instances, currentID, otherID, add, mirror)
			if reciprocal != nil {
				patches[otherID] = &models.InstancePatch{NotTradeList: reciprocal}
			}
		} else {
			reciprocal = UpdateNotWantedList(instances, currentID, otherID, add, mirror)
			if reciprocal != nil {
				patches[otherID] = &models.InstancePatch{NotWantedList: reciprocal}
			}
		}
	}

	if list == ListNotTrade {
		patches[currentID] = &models.InstancePatch{NotTradeList: own}
	} else {
		patches[currentID] = &models.InstancePatch{NotWantedList: own}
	}
	return patches
}

// toggle returns a copy of flags with key set or removed. The result is never
// nil so a patch can clear the last entry.
func toggle(flags map[string]bool, key string, add bool) map[string]bool {
	out := models.CloneFlags(flags)
	if out == nil {
		out = map[string]bool{}
	}
	if add {
		out[key] = true
	} else {
		delete(out, key)
	}
	return out
}
