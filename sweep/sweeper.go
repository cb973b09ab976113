package sweep

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"planboard-api/domain"
	"planboard-api/storage"
)

// DefaultInterval is how often the expiry scan runs.
const DefaultInterval = 30 * time.Second

const idlePollDelay = time.Second

// Storage is the slice of persistence the sweeper needs.
type Storage interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
	EnqueueDeletions(ctx context.Context, refs []storage.DeletionRef) error
	DequeueDeletion(ctx context.Context) (*storage.DeletionMessage, error)
	AckDeletion(ctx context.Context, messageID, popReceipt string) error
}

// Sweeper periodically scans for expired auto-delete tasks and removes them
// through the deletion queue. Every failure is logged and dropped: the next
// scan re-enqueues anything still expired, and unacknowledged queue messages
// come back on their own.
type Sweeper struct {
	store    Storage
	logger   *log.Logger
	interval time.Duration

	now func() time.Time
}

func New(store Storage, logger *log.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run blocks until the context is cancelled, driving the scan loop and the
// deletion consumer concurrently.
func (s *Sweeper) Run(ctx context.Context) {
	go s.consumeLoop(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce enqueues a deletion request for every expired auto-delete task.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx, "")
	if err != nil {
		s.logger.Errorf("sweep scan failed: %v", err)
		return
	}

	now := s.now()
	var refs []storage.DeletionRef
	for _, t := range tasks {
		if domain.SweepEligible(t, now) {
			refs = append(refs, storage.DeletionRef{OwnerID: t.OwnerID, TaskID: t.ID})
		}
	}
	if len(refs) == 0 {
		return
	}

	if err := s.store.EnqueueDeletions(ctx, refs); err != nil {
		s.logger.Errorf("sweep enqueue failed: %v", err)
		return
	}
	s.logger.WithFields(log.Fields{"count": len(refs)}).Info("expired tasks scheduled for deletion")
}

func (s *Sweeper) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := s.consumeOne(ctx)
		if err != nil {
			s.logger.Errorf("deletion consumer: %v", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePollDelay):
			}
		}
	}
}

// consumeOne handles a single deletion request. The message is acknowledged
// only after the delete succeeds; otherwise it reappears after the visibility
// timeout.
func (s *Sweeper) consumeOne(ctx context.Context) (bool, error) {
	msg, err := s.store.DequeueDeletion(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	if err := s.store.DeleteTask(ctx, msg.Ref.OwnerID, msg.Ref.TaskID); err != nil {
		return true, err
	}
	if err := s.store.AckDeletion(ctx, msg.MessageID, msg.PopReceipt); err != nil {
		return true, err
	}
	return true, nil
}
