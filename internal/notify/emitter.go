package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/obsrvr-bucketizer/internal/logging"
)

// Emitter publishes run events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// Config configures event emission.
type Config struct {
	Enabled       bool
	EndpointURL   string
	FilePath      string
	ChainHeadPath string
}

// NewEmitter builds the configured emitter chain. Disabled notify
// returns a Noop emitter.
func NewEmitter(cfg Config) (Emitter, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}

	chain, err := newChainState(cfg.ChainHeadPath)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.EndpointURL != "":
		return &HTTPEmitter{
			url:    cfg.EndpointURL,
			client: &http.Client{Timeout: 10 * time.Second},
			chain:  chain,
			log:    logging.Component("notify"),
		}, nil
	case cfg.FilePath != "":
		return &FileEmitter{
			path:  cfg.FilePath,
			chain: chain,
			log:   logging.Component("notify"),
		}, nil
	default:
		return nil, fmt.Errorf("notify enabled but no endpoint_url or file_path configured")
	}
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(ctx context.Context, ev Event) error { return nil }
func (Noop) Close() error                             { return nil }

// seal assigns identity, chain position and hash to an event.
func seal(ev *Event, chain *chainState) error {
	ev.EventID = uuid.New().String()
	ev.EmittedAt = time.Now().UTC()
	ev.Chain = chain.next()

	hash, err := ComputeEventHash(*ev)
	if err != nil {
		return err
	}
	ev.EventHash = hash
	return nil
}

// HTTPEmitter posts events as JSON to an endpoint.
type HTTPEmitter struct {
	url    string
	client *http.Client
	chain  *chainState
	log    *slog.Logger
}

func (e *HTTPEmitter) Emit(ctx context.Context, ev Event) error {
	if err := seal(&ev, e.chain); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("posting event: unexpected status %s", resp.Status)
	}

	if err := e.chain.advance(ev.EventHash); err != nil {
		return err
	}
	e.log.Info("event emitted", "event_id", ev.EventID, "sequence", ev.Chain.Sequence)
	return nil
}

func (e *HTTPEmitter) Close() error { return nil }

// FileEmitter appends events as JSON lines to a local file.
type FileEmitter struct {
	path  string
	chain *chainState
	log   *slog.Logger

	mu sync.Mutex
}

func (e *FileEmitter) Emit(ctx context.Context, ev Event) error {
	if err := seal(&ev, e.chain); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("creating event dir: %w", err)
	}
	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening event file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}

	if err := e.chain.advance(ev.EventHash); err != nil {
		return err
	}
	e.log.Info("event emitted", "event_id", ev.EventID, "sequence", ev.Chain.Sequence)
	return nil
}

func (e *FileEmitter) Close() error { return nil }
