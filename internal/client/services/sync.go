package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/myid/internal/client/client"
	"github.com/dmitrijs2005/myid/internal/client/models"
	"github.com/dmitrijs2005/myid/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/myid/internal/client/repositories/queue"
	"github.com/dmitrijs2005/myid/internal/logging"
	"github.com/google/uuid"
)

// ErrSyncDisabled is returned by Process when no remote is configured.
var ErrSyncDisabled = errors.New("sync disabled: no remote configured")

// SyncReport summarizes one pass over the queue.
type SyncReport struct {
	Sent      int
	Failed    int
	Abandoned int
}

// SyncService queues profile changes and delivers them to the remote
// endpoint. Failed actions are retried on later passes until they reach
// models.MaxSyncAttempts, after which they stay in the queue untouched.
type SyncService interface {
	QueueUpsert(ctx context.Context, values map[string]string) error
	QueueDelete(ctx context.Context) error
	Process(ctx context.Context) (SyncReport, error)
	Pending(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	// Run processes the queue whenever the remote comes back online and on
	// every sync interval while it stays online. It returns when ctx ends.
	Run(ctx context.Context)
}

type syncService struct {
	queue  queue.Repository
	remote client.Client
	store  ProfileStore
	meta   metadata.Repository
	log    logging.Logger
	now    func() time.Time

	checkEvery time.Duration
	syncEvery  time.Duration
}

type SyncOption func(*syncService)

// WithSyncIntervals sets how often connectivity is probed and how often an
// online remote is synced.
func WithSyncIntervals(check, sync time.Duration) SyncOption {
	return func(s *syncService) {
		if check > 0 {
			s.checkEvery = check
		}
		if sync > 0 {
			s.syncEvery = sync
		}
	}
}

func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *syncService) { s.now = now }
}

// NewSyncService wires the worker. remote may be nil, in which case actions
// are still queued but never sent.
func NewSyncService(q queue.Repository, remote client.Client, store ProfileStore, meta metadata.Repository, log logging.Logger, opts ...SyncOption) SyncService {
	if log == nil {
		log = logging.Discard()
	}
	s := &syncService{
		queue:      q,
		remote:     remote,
		store:      store,
		meta:       meta,
		log:        log,
		now:        time.Now,
		checkEvery: 3 * time.Second,
		syncEvery:  30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// profileID returns the stable remote id of this profile, creating it on
// first use.
func (s *syncService) profileID(ctx context.Context) (string, error) {
	raw, err := s.meta.Get(ctx, keyProfileID)
	if err != nil {
		return "", fmt.Errorf("failed to read profile id: %w", err)
	}
	if len(raw) > 0 {
		return string(raw), nil
	}

	id := uuid.NewString()
	if err := s.meta.Set(ctx, keyProfileID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to save profile id: %w", err)
	}
	return id, nil
}

// QueueUpsert queues the full field map. With protection on only the id
// stays readable in the queue.
func (s *syncService) QueueUpsert(ctx context.Context, values map[string]string) error {
	id, err := s.profileID(ctx)
	if err != nil {
		return err
	}

	profile := models.RemoteProfile{ID: id, Fields: values, UpdatedAt: s.now().UTC()}
	sealed, err := s.store.SealPayload(ctx, profile)
	if err != nil {
		return err
	}

	var payload any = profile
	if sealed != nil {
		payload = models.RecordID{ID: id}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode sync payload: %w", err)
	}

	return s.queue.Enqueue(ctx, &models.SyncAction{
		ID:               uuid.NewString(),
		Type:             models.ActionUpsert,
		Payload:          b,
		EncryptedPayload: sealed,
		CreatedAt:        s.now().UTC(),
	})
}

func (s *syncService) QueueDelete(ctx context.Context) error {
	id, err := s.profileID(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(models.RecordID{ID: id})
	if err != nil {
		return fmt.Errorf("failed to encode sync payload: %w", err)
	}

	return s.queue.Enqueue(ctx, &models.SyncAction{
		ID:        uuid.NewString(),
		Type:      models.ActionDelete,
		Payload:   b,
		CreatedAt: s.now().UTC(),
	})
}

func (s *syncService) Pending(ctx context.Context) (int, error) {
	return s.queue.Count(ctx)
}

func (s *syncService) Clear(ctx context.Context) error {
	return s.queue.Clear(ctx)
}

// Process makes one pass over the queue, oldest first. It returns an error
// wrapping client.ErrUnavailable when the remote does not answer the probe.
func (s *syncService) Process(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	if s.remote == nil {
		return report, ErrSyncDisabled
	}
	if err := s.remote.Ping(ctx); err != nil {
		return report, fmt.Errorf("remote offline: %w", err)
	}

	actions, err := s.queue.List(ctx)
	if err != nil {
		return report, err
	}

	for _, a := range actions {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if a.Attempts >= models.MaxSyncAttempts {
			report.Abandoned++
			continue
		}

		if err := s.deliver(ctx, a); err != nil {
			s.log.Warn(ctx, "sync action failed", "id", a.ID, "type", a.Type, "attempt", a.Attempts+1, "error", err)
			if err := s.queue.IncrementAttempts(ctx, a.ID); err != nil {
				return report, err
			}
			report.Failed++
			continue
		}

		if err := s.queue.Remove(ctx, a.ID); err != nil {
			return report, err
		}
		report.Sent++
	}

	return report, nil
}

func (s *syncService) deliver(ctx context.Context, a models.SyncAction) error {
	switch a.Type {
	case models.ActionUpsert:
		var p models.RemoteProfile
		if a.EncryptedPayload != nil {
			if err := s.store.OpenPayload(ctx, *a.EncryptedPayload, &p); err != nil {
				return fmt.Errorf("failed to decrypt payload: %w", err)
			}
		} else if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		return s.remote.Upsert(ctx, p)

	case models.ActionDelete:
		var r models.RecordID
		if err := json.Unmarshal(a.Payload, &r); err != nil {
			return fmt.Errorf("failed to decode payload: %w", err)
		}
		return s.remote.Delete(ctx, r.ID)

	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
}

func (s *syncService) runOnce(ctx context.Context) {
	report, err := s.Process(ctx)
	if err != nil {
		s.log.Debug(ctx, "sync pass skipped", "error", err)
		return
	}
	if report != (SyncReport{}) {
		s.log.Info(ctx, "sync pass finished", "sent", report.Sent, "failed", report.Failed, "abandoned", report.Abandoned)
	}
}

func (s *syncService) Run(ctx context.Context) {
	if s.remote == nil {
		return
	}

	check := time.NewTicker(s.checkEvery)
	defer check.Stop()
	periodic := time.NewTicker(s.syncEvery)
	defer periodic.Stop()

	online := s.remote.Ping(ctx) == nil
	if online {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-check.C:
			up := s.remote.Ping(ctx) == nil
			if up && !online {
				s.log.Info(ctx, "remote back online")
				s.runOnce(ctx)
			}
			online = up
		case <-periodic.C:
			if online {
				s.runOnce(ctx)
			}
		}
	}
}
