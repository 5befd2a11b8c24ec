package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ramonehamilton/Pokedex-Companion/internal/storage/models"
)

// TradeRepository handles trade records and the instance snapshots they reference.
type TradeRepository interface {
	// Get retrieves a trade by id. Returns nil if not found.
	Get(ctx context.Context, tradeID string) (*models.TradeRecord, error)

	// GetAll retrieves every stored trade keyed by id.
	GetAll(ctx context.Context) (map[string]*models.TradeRecord, error)

	// Put inserts or replaces a trade.
	Put(ctx context.Context, trade *models.TradeRecord) error

	// Delete removes a trade.
	Delete(ctx context.Context, tradeID string) error

	// FindOpenByPair returns the open (proposed or accepted) trade for the exact
	// ordered instance pair, or nil. A nil accepting id matches only trades
	// whose accepting side is unset.
	FindOpenByPair(ctx context.Context, proposedInstanceID string, acceptingInstanceID *string) (*models.TradeRecord, error)

	// FindOpenInvolving returns open trades that reference the instance on either side.
	FindOpenInvolving(ctx context.Context, instanceID string) ([]*models.TradeRecord, error)

	// GetRelated retrieves a related instance snapshot. Returns nil if not found.
	GetRelated(ctx context.Context, instanceID string) (*models.RelatedInstance, error)

	// GetAllRelated retrieves every related instance keyed by instance id.
	GetAllRelated(ctx context.Context) (map[string]*models.RelatedInstance, error)

	// PutRelated inserts or replaces a related instance snapshot.
	PutRelated(ctx context.Context, related *models.RelatedInstance) error

	// DeleteRelated removes a related instance snapshot.
	DeleteRelated(ctx context.Context, instanceID string) error
}

type tradeRepository struct {
	db DBTX
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db DBTX) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) Get(ctx context.Context, tradeID string) (*models.TradeRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM trades WHERE trade_id = ?`, tradeID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", tradeID, err)
	}
	return decodeTrade(tradeID, payload)
}

func (r *tradeRepository) GetAll(ctx context.Context) (map[string]*models.TradeRecord, error) {
	trades, err := r.queryTrades(ctx, `SELECT trade_id, payload FROM trades`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.TradeRecord, len(trades))
	for _, t := range trades {
		out[t.TradeID] = t
	}
	return out, nil
}

func (r *tradeRepository) Put(ctx context.Context, trade *models.TradeRecord) error {
	if trade == nil || trade.TradeID == "" {
		return fmt.Errorf("trade id is required")
	}
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to encode trade %s: %w", trade.TradeID, err)
	}

	var accepting sql.NullString
	if trade.PokemonInstanceIDUserAccepting != nil {
		accepting = sql.NullString{String: *trade.PokemonInstanceIDUserAccepting, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, username_proposed, username_accepting,
			instance_id_proposed, instance_id_accepting, status, payload, last_update
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			username_proposed = excluded.username_proposed,
			username_accepting = excluded.username_accepting,
			instance_id_proposed = excluded.instance_id_proposed,
			instance_id_accepting = excluded.instance_id_accepting,
			status = excluded.status,
			payload = excluded.payload,
			last_update = excluded.last_update
	`,
		trade.TradeID, trade.UsernameProposed, trade.UsernameAccepting,
		trade.PokemonInstanceIDUserProposed, accepting, trade.Status, string(payload), trade.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to put trade %s: %w", trade.TradeID, err)
	}
	return nil
}

func (r *tradeRepository) Delete(ctx context.Context, tradeID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE trade_id = ?`, tradeID); err != nil {
		return fmt.Errorf("failed to delete trade %s: %w", tradeID, err)
	}
	return nil
}

func (r *tradeRepository) FindOpenByPair(ctx context.Context, proposedInstanceID string, acceptingInstanceID *string) (*models.TradeRecord, error) {
	var accepting sql.NullString
	if acceptingInstanceID != nil {
		accepting = sql.NullString{String: *acceptingInstanceID, Valid: true}
	}

	trades, err := r.queryTrades(ctx, `
		SELECT trade_id, payload FROM trades
		WHERE instance_id_proposed = ?
			AND instance_id_accepting IS ?
			AND status IN (?, ?)
		ORDER BY last_update DESC
		LIMIT 1
	`, proposedInstanceID, accepting, models.TradeStatusProposed, models.TradeStatusAccepted)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	return trades[0], nil
}

func (r *tradeRepository) FindOpenInvolving(ctx context.Context, instanceID string) ([]*models.TradeRecord, error) {
	return r.queryTrades(ctx, `
		SELECT trade_id, payload FROM trades
		WHERE (instance_id_proposed = ? OR instance_id_accepting = ?)
			AND status IN (?, ?)
		ORDER BY trade_id
	`, instanceID, instanceID, models.TradeStatusProposed, models.TradeStatusAccepted)
}

func (r *tradeRepository) queryTrades(ctx context.Context, query string, args ...any) ([]*models.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var trades []*models.TradeRecord
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t, err := decodeTrade(id, payload)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

func decodeTrade(id, payload string) (*models.TradeRecord, error) {
	t := &models.TradeRecord{}
	if err := json.Unmarshal([]byte(payload), t); err != nil {
		return nil, fmt.Errorf("failed to decode trade %s: %w", id, err)
	}
	if t.TradeID == "" {
		t.TradeID = id
	}
	return t, nil
}

func (r *tradeRepository) GetRelated(ctx context.Context, instanceID string) (*models.RelatedInstance, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM related_instances WHERE instance_id = ?`, instanceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get related instance %s: %w", instanceID, err)
	}

	related := &models.RelatedInstance{}
	if err := json.Unmarshal([]byte(payload), related); err != nil {
		return nil, fmt.Errorf("failed to decode related instance %s: %w", instanceID, err)
	}
	return related, nil
}

func (r *tradeRepository) GetAllRelated(ctx context.Context) (map[string]*models.RelatedInstance, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT instance_id, payload FROM related_instances`)
	if err != nil {
		return nil, fmt.Errorf("failed to query related instances: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string]*models.RelatedInstance)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan related instance: %w", err)
		}
		related := &models.RelatedInstance{}
		if err := json.Unmarshal([]byte(payload), related); err != nil {
			return nil, fmt.Errorf("failed to decode related instance %s: %w", id, err)
		}
		out[id] = related
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating related instances: %w", err)
	}
	return out, nil
}

func (r *tradeRepository) PutRelated(ctx context.Context, related *models.RelatedInstance) error {
	if related == nil || related.InstanceID == "" {
		return fmt.Errorf("related instance id is required")
	}
	payload, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("failed to encode related instance %s: %w", related.InstanceID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO related_instances (instance_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, related.InstanceID, string(payload), nowMillis())
	if err != nil {
		return fmt.Errorf("failed to put related instance %s: %w", related.InstanceID, err)
	}
	return nil
}

func (r *tradeRepository) DeleteRelated(ctx context.Context, instanceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM related_instances WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete related instance %s: %w", instanceID, err)
	}
	return nil
}
