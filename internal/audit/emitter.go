package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Config configures audit emission.
type Config struct {
	Enabled bool

	// Endpoint receives each event as a JSON POST. Without it events are
	// only written to StateDir.
	Endpoint string

	// StateDir holds the chain heads and a copy of every event.
	StateDir string
}

// Emitter chains, stores and publishes audit events. A nil *Emitter is
// valid and discards every event.
type Emitter struct {
	endpoint string
	client   *http.Client
	chain    *ChainTracker
	dir      string
	now      func() time.Time
	log      *slog.Logger
}

// NewEmitter returns nil when auditing is disabled.
func NewEmitter(cfg Config) (*Emitter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.StateDir == "" {
		return nil, errors.New("audit state dir required")
	}

	chain, err := NewChainTracker(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	mode := "file"
	if cfg.Endpoint != "" {
		mode = "http"
	}
	log := slog.With("component", "audit", "mode", mode)
	log.Info("audit emitter ready", "endpoint", cfg.Endpoint, "state_dir", cfg.StateDir)

	return &Emitter{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		chain:    chain,
		dir:      cfg.StateDir,
		now:      time.Now,
		log:      log,
	}, nil
}

// Emit links evt to the head of its chain, saves it under the state
// directory, posts it to the endpoint when one is configured and finally
// advances the chain head. A failed post leaves the head where it was.
func (e *Emitter) Emit(ctx context.Context, evt *Event) error {
	if e == nil {
		return nil
	}

	key := evt.Run.ChainKey()
	prev, err := e.chain.Head(key)
	if err != nil && !errors.Is(err, ErrNoChainHead) {
		return fmt.Errorf("get chain head: %w", err)
	}

	evt.Version = EventVersion
	evt.EventType = EventType
	evt.EventID = uuid.NewString()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	evt.SetChainHashes(prev)

	log := e.log.With("run_id", evt.Run.RunID, "chain", key)
	log.Debug("emitting audit event", "prev_hash", prev, "event_hash", evt.Chain.EventHash)

	if err := e.save(evt); err != nil {
		if e.endpoint == "" {
			return err
		}
		log.Warn("audit backup failed", "error", err)
	}

	if e.endpoint != "" {
		if err := e.post(ctx, evt); err != nil {
			return fmt.Errorf("post audit event: %w", err)
		}
	}

	if err := e.chain.SetHead(key, evt.Chain.EventHash); err != nil {
		return fmt.Errorf("update chain head: %w", err)
	}
	log.Info("audit event emitted", "event_hash", evt.Chain.EventHash)
	return nil
}

func (e *Emitter) save(evt *Event) error {
	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	path := filepath.Join(e.dir, "events", evt.Run.RunID+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create event dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (e *Emitter) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
}
