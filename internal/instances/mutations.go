package instances

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/freshness"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

var (
	// ErrNotFound is returned for an unknown instance id.
	ErrNotFound = errors.New("instance not found")
	// ErrUnknownStatus is returned for a status outside models.KnownStatuses.
	ErrUnknownStatus = errors.New("unknown instance status")
)

func defaultNewID() string {
	return uuid.NewString()
}

// SetInstances merges a remote snapshot into the local collection, persists
// the result as the authoritative local set and stamps the instances key.
func (s *Store) SetInstances(ctx context.Context, incoming map[string]*models.Instance) error {
	_, err := s.mergeRemote(ctx, 0, false, incoming)
	return err
}

// MergePulled is SetInstances for a pull that began at token. If the store
// was reset or reloaded since, the snapshot is discarded and false returned.
func (s *Store) MergePulled(ctx context.Context, token uint64, incoming map[string]*models.Instance) (bool, error) {
	return s.mergeRemote(ctx, token, true, incoming)
}

func (s *Store) mergeRemote(ctx context.Context, token uint64, checkToken bool, incoming map[string]*models.Instance) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stale := func() bool { return checkToken && s.generation != token }

	s.mu.RLock()
	current, discard := s.instances, stale()
	s.mu.RUnlock()
	if discard {
		s.logger.Debug("Discarding stale pulled collection", "count", len(incoming))
		return false, nil
	}

	pending, err := s.persist.PendingKeys(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read pending updates: %w", err)
	}

	username := ""
	if s.session != nil {
		username = s.session.Username()
	}
	merged := MergeInstances(current, incoming, username, pending)

	if err := s.persist.ReplaceInstances(ctx, merged); err != nil {
		s.logger.Warn("Failed to persist merged instances", "error", err)
	} else if s.stamper != nil {
		if err := s.stamper.SetCacheTimestamp(ctx, freshness.KeyInstances); err != nil {
			s.logger.Warn("Failed to stamp instances", "error", err)
		}
	}

	s.mu.Lock()
	if stale() {
		s.mu.Unlock()
		s.logger.Debug("Store reset during merge; keeping reset state")
		return false, nil
	}
	s.generation++
	s.instances = merged
	s.loading = false
	s.version++
	version := s.version
	s.mu.Unlock()

	s.logger.Debug("Merged instances", "count", len(merged), "pending", len(pending))
	s.publishLocal(ctx, version, len(merged), "merge")
	return true, nil
}

// UpdateInstanceStatus moves each target to status. A target is either an
// instance id or a variant key; for a variant key an unregistered placeholder
// of that variant is reused, or a new instance is created. Marking a caught
// instance wanted records the want on a new instance of the same variant.
// Lucky and shadow instances cannot be moved to trade or wanted and are
// skipped. Returns the ids that changed.
func (s *Store) UpdateInstanceStatus(ctx context.Context, targets []string, status string) ([]string, error) {
	if !models.IsKnownStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, _ := s.Snapshot()
	ts := s.now().UnixMilli()
	changed := map[string]*models.Instance{}
	order := make([]string, 0, len(targets))

	for _, target := range targets {
		inst := s.resolveTarget(current, changed, target)
		if inst == nil {
			s.logger.Warn("No instance or variant for status update", "target", target)
			continue
		}

		if (status == models.StatusTrade || status == models.StatusWanted) && (inst.Lucky || inst.Shadow) {
			s.logger.Warn("Instance cannot move to status", "instance", inst.InstanceID, "status", status,
				"lucky", inst.Lucky, "shadow", inst.Shadow)
			continue
		}

		if status == models.StatusWanted && inst.IsCaught {
			want := inst.Clone()
			want.InstanceID = inst.VariantKey() + "_" + s.newID()
			want.NotTradeList = nil
			want.NotWantedList = nil
			inst = want
		}

		inst.ApplyStatus(status)
		inst.LastUpdate = ts
		if _, seen := changed[inst.InstanceID]; !seen {
			order = append(order, inst.InstanceID)
		}
		changed[inst.InstanceID] = inst
	}

	if len(order) == 0 {
		return nil, nil
	}
	if err := s.commit(ctx, order, changed, ts, "status"); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) resolveTarget(current, changed map[string]*models.Instance, target string) *models.Instance {
	if inst, ok := changed[target]; ok {
		return inst
	}
	if inst, ok := current[target]; ok {
		return inst.Clone()
	}

	variant, ok := s.variants.Variant(target)
	if !ok {
		return nil
	}
	for _, inst := range current {
		if inst.VariantKey() == target && inst.IsPlaceholder() {
			if c, ok := changed[inst.InstanceID]; ok {
				return c
			}
			return inst.Clone()
		}
	}

	username := ""
	if s.session != nil {
		username = s.session.Username()
	}
	return &models.Instance{
		InstanceID: variant.VariantID + "_" + s.newID(),
		VariantID:  variant.VariantID,
		PokemonID:  variant.PokemonID,
		Username:   username,
		Shiny:      variant.VariantType == "shiny",
		DateAdded:  s.now().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// UpdateInstanceDetails applies patches to several instances in one
// transaction. Unknown ids are skipped.
func (s *Store) UpdateInstanceDetails(ctx context.Context, patches map[string]*models.InstancePatch) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, _ := s.Snapshot()
	ts := s.now().UnixMilli()
	changed := make(map[string]*models.Instance, len(patches))
	order := make([]string, 0, len(patches))

	for id, patch := range patches {
		inst, ok := current[id]
		if !ok {
			s.logger.Warn("Skipping patch for unknown instance", "instance", id)
			continue
		}
		c := inst.Clone()
		patch.Apply(c)
		c.LastUpdate = ts
		changed[id] = c
		order = append(order, id)
	}
	if len(order) == 0 {
		return nil
	}
	return s.commit(ctx, order, changed, ts, "details")
}

// PutInstances writes whole records, creating or replacing them, and queues
// their updates.
func (s *Store) PutInstances(ctx context.Context, records []*models.Instance, reason string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.now().UnixMilli()
	changed := make(map[string]*models.Instance, len(records))
	order := make([]string, 0, len(records))
	for _, r := range records {
		if r == nil || r.InstanceID == "" {
			continue
		}
		c := r.Clone()
		c.LastUpdate = ts
		if _, seen := changed[c.InstanceID]; !seen {
			order = append(order, c.InstanceID)
		}
		changed[c.InstanceID] = c
	}
	if len(order) == 0 {
		return nil
	}
	return s.commit(ctx, order, changed, ts, reason)
}

// DeleteInstance removes an instance at the trainer's request and queues the
// delete for the remote authority.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, _ := s.Snapshot()
	inst, ok := current[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ts := s.now().UnixMilli()
	update, err := batch.NewUpdate(models.InstanceKey(id), models.OpDeleteInstance, map[string]any{
		"instance_id": id,
		"variant_id":  inst.VariantKey(),
		"username":    inst.Username,
		"last_update": ts,
	}, ts)
	if err != nil {
		return err
	}
	if err := s.persist.DeleteInstance(ctx, id, update); err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}

	s.mu.Lock()
	next := make(map[string]*models.Instance, len(s.instances))
	for k, v := range s.instances {
		if k != id {
			next[k] = v
		}
	}
	s.instances = next
	s.version++
	version := s.version
	s.mu.Unlock()

	s.publishLocal(ctx, version, len(next), "delete")
	s.schedule()
	return nil
}

// commit persists changed records with their batched updates, then swaps
// them into a new map so existing snapshots stay untouched.
func (s *Store) commit(ctx context.Context, order []string, changed map[string]*models.Instance, ts int64, reason string) error {
	records := make([]*models.Instance, 0, len(order))
	updates := make([]*models.BatchedUpdate, 0, len(order))
	for _, id := range order {
		inst := changed[id]
		update, err := batch.NewUpdate(models.InstanceKey(id), models.OpUpdateInstance, inst, ts)
		if err != nil {
			return err
		}
		records = append(records, inst)
		updates = append(updates, update)
	}

	if err := s.persist.SaveInstances(ctx, records, updates); err != nil {
		return fmt.Errorf("failed to save instances: %w", err)
	}

	s.mu.Lock()
	next := make(map[string]*models.Instance, len(s.instances)+len(changed))
	for k, v := range s.instances {
		next[k] = v
	}
	for id, inst := range changed {
		next[id] = inst
	}
	s.instances = next
	s.version++
	version := s.version
	s.mu.Unlock()

	s.publishLocal(ctx, version, len(next), reason)
	s.schedule()
	return nil
}

func (s *Store) schedule() {
	if s.scheduler != nil {
		s.scheduler.Schedule()
	}
}
