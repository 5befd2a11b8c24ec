package instances

import (
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// MergeInstances folds a remote snapshot into the local collection for
// username. Entries owned by other trainers are dropped from both sides.
//
// An id in pending has a local edit the remote has not seen yet, so the
// incoming record for it is ignored, including for ids deleted locally.
// Otherwise a local record newer than the incoming one is kept. Among the
// rest a flagged incoming record wins and an unflagged one wins only when
// newer. Local-only records are kept. Neither input is modified.
func MergeInstances(local, incoming map[string]*models.Instance, username string, pending map[string]struct{}) map[string]*models.Instance {
	merged := make(map[string]*models.Instance, len(local)+len(incoming))

	owned := func(inst *models.Instance) bool {
		return inst != nil && (inst.Username == "" || username == "" || session.SameUser(inst.Username, username))
	}

	for id, inst := range local {
		if owned(inst) {
			merged[id] = inst
		}
	}

	for id, inc := range incoming {
		if !owned(inc) {
			continue
		}
		if _, queued := pending[models.InstanceKey(id)]; queued {
			continue
		}
		cur, exists := merged[id]
		switch {
		case !exists:
			merged[id] = inc
		case cur.LastUpdate > inc.LastUpdate:
		case !inc.IsMissing():
			merged[id] = inc
		case inc.LastUpdate > cur.LastUpdate:
			merged[id] = inc
		}
	}

	for id, inst := range merged {
		c := inst.Clone()
		if c.InstanceID == "" {
			c.InstanceID = id
		}
		merged[id] = c
	}
	return merged
}
