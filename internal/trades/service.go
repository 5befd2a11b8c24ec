package trades

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ramonehamilton/Pokedex-Companion/internal/batch"
	"github.com/ramonehamilton/Pokedex-Companion/internal/events"
	"github.com/ramonehamilton/Pokedex-Companion/internal/metrics"
	"github.com/ramonehamilton/Pokedex-Companion/internal/session"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// Statuses the remote authority may report that are not part of the local
// state machine.
const (
	remoteStatusPending = "pending"
	remoteStatusDenied  = "denied"
	remoteStatusDeleted = "deleted"
)

// CancelledBySystem marks proposals superseded by another accepted trade.
const CancelledBySystem = "system"

// Persister is the storage the service reads from and writes through.
type Persister interface {
	LoadTrades(ctx context.Context) (map[string]*models.TradeRecord, map[string]*models.RelatedInstance, error)
	SaveTrades(ctx context.Context, trades []*models.TradeRecord, related []*models.RelatedInstance, updates []*models.BatchedUpdate) error
	DeleteTrades(ctx context.Context, tradeIDs []string) error
	PendingKeys(ctx context.Context) (map[string]struct{}, error)
}

// InstanceWriter is the part of the instance store a completed trade touches.
type InstanceWriter interface {
	Get(id string) (*models.Instance, bool)
	UpdateInstanceDetails(ctx context.Context, patches map[string]*models.InstancePatch) error
}

// FlushScheduler requests a debounced flush.
type FlushScheduler interface {
	Schedule()
}

// ServiceOptions holds the optional collaborators of a Service.
type ServiceOptions struct {
	Logger    *slog.Logger
	Events    events.Publisher
	Metrics   *metrics.SyncMetrics
	Session   session.Session
	Instances InstanceWriter
	Scheduler FlushScheduler
	Now       func() time.Time
	NewID     func() string
}

// Service owns the trade records and related instance snapshots.
type Service struct {
	persist   Persister
	coord     *Coordinator
	instances InstanceWriter
	scheduler FlushScheduler
	session   session.Session
	events    events.Publisher
	metrics   *metrics.SyncMetrics
	logger    *slog.Logger
	now       func() time.Time

	// writeMu serializes read-modify-write operations.
	writeMu sync.Mutex

	mu      sync.RWMutex
	trades  map[string]*models.TradeRecord
	related map[string]*models.RelatedInstance
}

// NewService creates an empty trade service. Call Hydrate to load stored trades.
func NewService(persist Persister, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		persist:   persist,
		instances: opts.Instances,
		scheduler: opts.Scheduler,
		session:   opts.Session,
		events:    opts.Events,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "trades"),
		now:       now,
		trades:    map[string]*models.TradeRecord{},
		related:   map[string]*models.RelatedInstance{},
	}
	s.coord = NewCoordinator(s, CoordinatorOptions{Logger: logger, Now: now, NewID: opts.NewID})
	return s
}

// Hydrate replaces the in-memory state with what is stored.
func (s *Service) Hydrate(ctx context.Context) error {
	trades, related, err := s.persist.LoadTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}
	s.mu.Lock()
	s.trades = trades
	s.related = related
	s.mu.Unlock()
	s.logger.Debug("Trades loaded", "trades", len(trades), "related", len(related))
	return nil
}

// Reset clears the in-memory state.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = map[string]*models.TradeRecord{}
	s.related = map[string]*models.RelatedInstance{}
}

// Trades returns copies of every trade ordered by most recent update.
func (s *Service) Trades() []*models.TradeRecord {
	s.mu.RLock()
	out := make([]*models.TradeRecord, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdate != out[j].LastUpdate {
			return out[i].LastUpdate > out[j].LastUpdate
		}
		return out[i].TradeID < out[j].TradeID
	})
	return out
}

// Trade returns a copy of one trade.
func (s *Service) Trade(id string) (*models.TradeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// RelatedInstances returns the stored snapshots keyed by instance id.
func (s *Service) RelatedInstances() map[string]*models.RelatedInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.RelatedInstance, len(s.related))
	for k, v := range s.related {
		c := *v
		out[k] = &c
	}
	return out
}

// FindOpenTrade implements OpenTradeFinder over the in-memory trades.
func (s *Service) FindOpenTrade(_ context.Context, proposedInstanceID string, acceptingInstanceID *string) (*models.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trades {
		if !t.IsOpen() || t.PokemonInstanceIDUserProposed != proposedInstanceID {
			continue
		}
		switch {
		case acceptingInstanceID == nil && t.PokemonInstanceIDUserAccepting == nil:
			return t.Clone(), nil
		case acceptingInstanceID != nil && t.PokemonInstanceIDUserAccepting != nil &&
			*acceptingInstanceID == *t.PokemonInstanceIDUserAccepting:
			return t.Clone(), nil
		}
	}
	return nil, nil
}

// Propose validates and records a new trade, persists it with its related
// instance snapshot and enqueues a createTrade update.
func (s *Service) Propose(ctx context.Context, p *TradeProposal) (*models.TradeRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	proposal, err := s.coord.ProposeTrade(ctx, p)
	if err != nil {
		s.metrics.TradeAction("propose", err)
		return nil, err
	}

	record := proposal.TradeEntry
	update, err := batch.NewUpdate(models.TradeKey(record.TradeID), models.OpCreateTrade, record, record.LastUpdate)
	if err != nil {
		return nil, err
	}
	if err := s.persist.SaveTrades(ctx, []*models.TradeRecord{record},
		[]*models.RelatedInstance{proposal.RelatedInstance}, []*models.BatchedUpdate{update}); err != nil {
		err = fmt.Errorf("failed to save trade proposal: %w", err)
		s.metrics.TradeAction("propose", err)
		return nil, err
	}

	s.mu.Lock()
	s.trades[record.TradeID] = record
	s.related[proposal.RelatedInstance.InstanceID] = proposal.RelatedInstance
	s.mu.Unlock()

	s.logger.Info("Trade proposed", "trade", record.TradeID, "accepting", record.UsernameAccepting)
	s.metrics.TradeAction("propose", nil)
	s.publish(ctx, record, "propose")
	s.schedule()
	return record.Clone(), nil
}

// Accept moves a proposed trade to accepted. Other proposals that share
// either instance are cancelled by the system.
func (s *Service) Accept(ctx context.Context, id string) (*models.TradeRecord, error) {
	return s.transition(ctx, id, "accept", func(t *models.TradeRecord, now time.Time) ([]*models.TradeRecord, error) {
		if t.Status != models.TradeStatusProposed {
			return nil, &TransitionError{TradeID: t.TradeID, From: t.Status, To: models.TradeStatusAccepted}
		}
		t.Status = models.TradeStatusAccepted
		t.AcceptanceDate = &now
		return append([]*models.TradeRecord{t}, s.clashing(t, now)...), nil
	})
}

// Complete records the signed-in trainer's confirmation. Once both parties
// have confirmed, the trade is completed and the traded instance changes
// owner.
func (s *Service) Complete(ctx context.Context, id string) (*models.TradeRecord, error) {
	var handover *models.TradeRecord
	record, err := s.transition(ctx, id, "complete", func(t *models.TradeRecord, now time.Time) ([]*models.TradeRecord, error) {
		if t.Status != models.TradeStatusAccepted {
			return nil, &TransitionError{TradeID: t.TradeID, From: t.Status, To: models.TradeStatusCompleted}
		}
		switch s.side(t) {
		case sideProposer:
			t.UserProposedCompletionConfirmed = true
		case sideAccepter:
			t.UserAcceptingCompletionConfirmed = true
		default:
			return nil, ErrNotParticipant
		}
		if t.UserProposedCompletionConfirmed && t.UserAcceptingCompletionConfirmed {
			t.Status = models.TradeStatusCompleted
			t.CompletedDate = &now
			handover = t
		}
		return []*models.TradeRecord{t}, nil
	})
	if err != nil || handover == nil {
		return record, err
	}

	s.handOver(ctx, handover)
	return record, nil
}

// Cancel cancels a proposed or accepted trade. An empty by records the
// signed-in trainer.
func (s *Service) Cancel(ctx context.Context, id, by string) (*models.TradeRecord, error) {
	if by == "" && s.session != nil {
		by = s.session.Username()
	}
	return s.transition(ctx, id, "cancel", func(t *models.TradeRecord, now time.Time) ([]*models.TradeRecord, error) {
		if !t.IsOpen() {
			return nil, &TransitionError{TradeID: t.TradeID, From: t.Status, To: models.TradeStatusCancelled}
		}
		t.Status = models.TradeStatusCancelled
		t.CancelledDate = &now
		cancelledBy := by
		t.CancelledBy = &cancelledBy
		return []*models.TradeRecord{t}, nil
	})
}

// RateTrade records the signed-in trainer's satisfaction with a completed trade.
func (s *Service) RateTrade(ctx context.Context, id string, satisfied bool) (*models.TradeRecord, error) {
	return s.transition(ctx, id, "rate", func(t *models.TradeRecord, _ time.Time) ([]*models.TradeRecord, error) {
		if t.Status != models.TradeStatusCompleted {
			return nil, &TransitionError{TradeID: t.TradeID, From: t.Status, To: "rated"}
		}
		v := satisfied
		switch s.side(t) {
		case sideProposer:
			t.User1Satisfaction = &v
		case sideAccepter:
			t.User2Satisfaction = &v
		default:
			return nil, ErrNotParticipant
		}
		return []*models.TradeRecord{t}, nil
	})
}

// ApplyRemoteTrades merges trades and related instances reported by the
// remote authority. Deleted trades are removed, denied trades become
// cancelled and pending trades become accepted, superseding clashing local
// proposals. Nothing is enqueued; the remote side already has these records.
//
// A trade keeps its local record when it has an update still queued, when
// the local copy is newer, or when the local copy is completed or cancelled
// and the remote reports another status.
func (s *Service) ApplyRemoteTrades(ctx context.Context, incoming map[string]*models.TradeRecord, related map[string]*models.RelatedInstance) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pending, err := s.persist.PendingKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to read pending updates: %w", err)
	}

	now := s.now()
	var (
		save    []*models.TradeRecord
		deleted []string
		kept    int
	)
	for id, t := range incoming {
		if t == nil {
			continue
		}
		c := t.Clone()
		if c.TradeID == "" {
			c.TradeID = id
		}
		if _, queued := pending[models.TradeKey(c.TradeID)]; queued {
			kept++
			continue
		}
		switch c.Status {
		case remoteStatusDeleted:
			deleted = append(deleted, c.TradeID)
			continue
		case remoteStatusDenied:
			c.Status = models.TradeStatusCancelled
			if c.CancelledBy == nil {
				by := c.UsernameAccepting
				c.CancelledBy = &by
			}
		case remoteStatusPending:
			c.Status = models.TradeStatusAccepted
		}
		if local, ok := s.Trade(c.TradeID); ok && !remoteWins(local, c) {
			kept++
			continue
		}
		save = append(save, c)
	}

	superseded := map[string]*models.TradeRecord{}
	for _, t := range save {
		if t.Status != models.TradeStatusAccepted {
			continue
		}
		for _, clash := range s.clashing(t, now) {
			if _, remote := incoming[clash.TradeID]; !remote {
				superseded[clash.TradeID] = clash
			}
		}
	}
	for _, t := range superseded {
		save = append(save, t)
	}

	relatedList := make([]*models.RelatedInstance, 0, len(related))
	for id, r := range related {
		if r == nil {
			continue
		}
		c := *r
		if c.InstanceID == "" {
			c.InstanceID = id
		}
		relatedList = append(relatedList, &c)
	}

	if len(deleted) > 0 {
		if err := s.persist.DeleteTrades(ctx, deleted); err != nil {
			return fmt.Errorf("failed to delete trades: %w", err)
		}
	}
	if err := s.persist.SaveTrades(ctx, save, relatedList, nil); err != nil {
		return fmt.Errorf("failed to save remote trades: %w", err)
	}

	s.mu.Lock()
	for _, id := range deleted {
		delete(s.trades, id)
	}
	for _, t := range save {
		s.trades[t.TradeID] = t
	}
	for _, r := range relatedList {
		s.related[r.InstanceID] = r
	}
	s.mu.Unlock()

	for _, t := range save {
		s.publish(ctx, t, "remote")
	}
	s.logger.Debug("Applied remote trades", "saved", len(save), "deleted", len(deleted),
		"superseded", len(superseded), "kept_local", kept)
	return nil
}

func remoteWins(local, remote *models.TradeRecord) bool {
	if local.LastUpdate > remote.LastUpdate {
		return false
	}
	terminal := local.Status == models.TradeStatusCompleted || local.Status == models.TradeStatusCancelled
	return !terminal || remote.Status == local.Status
}

type mutation func(t *models.TradeRecord, now time.Time) ([]*models.TradeRecord, error)

// transition applies fn to a copy of the trade, persists every record fn
// returns with an updateTrade update each, then publishes them.
func (s *Service) transition(ctx context.Context, id, action string, fn mutation) (*models.TradeRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, ok := s.Trade(id)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrTradeNotFound, id)
		s.metrics.TradeAction(action, err)
		return nil, err
	}

	now := s.now()
	changed, err := fn(current, now)
	if err != nil {
		s.metrics.TradeAction(action, err)
		return nil, err
	}

	updates := make([]*models.BatchedUpdate, 0, len(changed))
	for _, t := range changed {
		t.LastUpdate = now.UnixMilli()
		u, err := batch.NewUpdate(models.TradeKey(t.TradeID), models.OpUpdateTrade, t, t.LastUpdate)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	if err := s.persist.SaveTrades(ctx, changed, nil, updates); err != nil {
		err = fmt.Errorf("failed to save trade %s: %w", id, err)
		s.metrics.TradeAction(action, err)
		return nil, err
	}

	s.mu.Lock()
	for _, t := range changed {
		s.trades[t.TradeID] = t
	}
	s.mu.Unlock()

	s.metrics.TradeAction(action, nil)
	for _, t := range changed {
		a := action
		if t.TradeID != id {
			a = "supersede"
		}
		s.publish(ctx, t, a)
	}
	s.schedule()
	return current.Clone(), nil
}

// clashing returns cancelled copies of other open proposals that share an
// instance with t.
func (s *Service) clashing(t *models.TradeRecord, now time.Time) []*models.TradeRecord {
	ids := []string{t.PokemonInstanceIDUserProposed}
	if t.PokemonInstanceIDUserAccepting != nil {
		ids = append(ids, *t.PokemonInstanceIDUserAccepting)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TradeRecord
	for id, other := range s.trades {
		if id == t.TradeID || other.Status != models.TradeStatusProposed {
			continue
		}
		for _, inst := range ids {
			if other.Involves(inst) {
				c := other.Clone()
				c.Status = models.TradeStatusCancelled
				c.CancelledDate = &now
				by := CancelledBySystem
				c.CancelledBy = &by
				c.LastUpdate = now.UnixMilli()
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TradeID < out[j].TradeID })
	return out
}

// handOver moves the traded instances to their new owners: the related
// snapshots change username, and a local instance the trainer gave away is
// re-assigned to the other party.
func (s *Service) handOver(ctx context.Context, t *models.TradeRecord) {
	pairs := map[string]string{t.PokemonInstanceIDUserProposed: t.UsernameAccepting}
	if t.PokemonInstanceIDUserAccepting != nil {
		pairs[*t.PokemonInstanceIDUserAccepting] = t.UsernameProposed
	}

	var related []*models.RelatedInstance
	patches := map[string]*models.InstancePatch{}

	s.mu.Lock()
	for instanceID, owner := range pairs {
		if r, ok := s.related[instanceID]; ok {
			c := *r
			c.Username = owner
			s.related[instanceID] = &c
			related = append(related, &c)
		}
		if s.instances != nil {
			if _, ok := s.instances.Get(instanceID); ok {
				o := owner
				patches[instanceID] = &models.InstancePatch{Username: &o}
			}
		}
	}
	s.mu.Unlock()

	if len(related) > 0 {
		if err := s.persist.SaveTrades(ctx, nil, related, nil); err != nil {
			s.logger.Warn("Failed to save related instances after trade", "trade", t.TradeID, "error", err)
		}
	}
	if len(patches) > 0 {
		if err := s.instances.UpdateInstanceDetails(ctx, patches); err != nil {
			s.logger.Warn("Failed to reassign traded instances", "trade", t.TradeID, "error", err)
		}
	}
}

type side int

const (
	sideNone side = iota
	sideProposer
	sideAccepter
)

func (s *Service) side(t *models.TradeRecord) side {
	if s.session == nil {
		return sideNone
	}
	user := s.session.Username()
	switch {
	case user == "":
		return sideNone
	case session.SameUser(user, t.UsernameProposed):
		return sideProposer
	case session.SameUser(user, t.UsernameAccepting):
		return sideAccepter
	}
	return sideNone
}

func (s *Service) publish(ctx context.Context, t *models.TradeRecord, action string) {
	events.Publish(ctx, s.events, events.TopicTradeUpdated, events.TradeUpdatedEvent{
		TradeID: t.TradeID,
		Status:  t.Status,
		Action:  action,
	})
}

func (s *Service) schedule() {
	if s.scheduler != nil {
		s.scheduler.Schedule()
	}
}
