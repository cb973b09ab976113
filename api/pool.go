package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"planboard-api/domain"
)

type orderScope int

const (
	scopeTasks orderScope = iota
	scopeUsers
)

// persistJob carries a renumber batch produced by a reorder request. The
// client has already applied the move locally, so failed persists are logged
// and never rolled back; the next successful reorder rewrites every key.
type persistJob struct {
	scope   orderScope
	updates []domain.OrderUpdate
}

var (
	once           sync.Once
	jobs           chan persistJob
	workerCount    int
	jobBuf         int
	persistTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalStore    Storage
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownOrderWriter stops worker goroutines and clears shared state. It is intended for tests.
func shutdownOrderWriter() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalStore = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	persistTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initOrderWriter(store Storage, log *log.Logger) {
	once.Do(func() {
		globalStore = store
		if log == nil {
			panic("Logger is not initialized")
		}
		globalLog = log

		workerCount = envInt("ORDER_WORKERS", 8)
		jobBuf = envInt("ORDER_BUFFER", 1024)
		persistTimeout = envDur("ORDER_PERSIST_TIMEOUT", 60*time.Second)
		handoffTimeout = envDur("ORDER_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan persistJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("order writer started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, persistTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan persistJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, persistTimeout)
		var err error
		switch j.scope {
		case scopeUsers:
			err = globalStore.ApplyUserOrders(ctx, j.updates)
		default:
			err = globalStore.ApplyTaskOrders(ctx, j.updates)
		}
		cancel()

		if err != nil {
			globalLog.Errorf("order persist failed, err: %v, count: %d, worker: %d", err, len(j.updates), id)
		}
	}
}

func tryEnqueueJob(job persistJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan persistJob, job persistJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan persistJob, job persistJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}
