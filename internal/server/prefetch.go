package server

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

const (
	prefetchTaskPrefix          = "task-"
	prefetchStatusRunning       = prefetchStatus("running")
	prefetchStatusCompleted     = prefetchStatus("completed")
	prefetchStatusFailed        = prefetchStatus("failed")
	prefetchTaskNotFoundMessage = "prefetch task not found"
)

// prefetchStatus represents the lifecycle state of a prefetch task.
type prefetchStatus string

// prefetchTask captures state for one background prefetch.
type prefetchTask struct {
	identifier string
	total      int
	completed  int
	status     prefetchStatus
	errors     map[string]string
}

// prefetchTaskSnapshot copies the public portions of a task for serialization.
type prefetchTaskSnapshot struct {
	Identifier string            `json:"id"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Status     prefetchStatus    `json:"status"`
	Errors     map[string]string `json:"errors"`
}

// prefetchTracker tracks active and completed prefetch tasks.
type prefetchTracker struct {
	mutex        sync.Mutex
	tasks        map[string]*prefetchTask
	nextSequence int
}

func newPrefetchTracker() *prefetchTracker {
	return &prefetchTracker{tasks: make(map[string]*prefetchTask)}
}

// CreateTask registers a task covering total pages and returns its snapshot.
func (tracker *prefetchTracker) CreateTask(total int) prefetchTaskSnapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.nextSequence++
	identifier := fmt.Sprintf("%s%d", prefetchTaskPrefix, tracker.nextSequence)
	task := &prefetchTask{
		identifier: identifier,
		total:      total,
		status:     prefetchStatusRunning,
		errors:     make(map[string]string),
	}
	tracker.tasks[identifier] = task
	return tracker.snapshotTask(task)
}

// RecordPage updates task progress for one page and its optional error.
func (tracker *prefetchTracker) RecordPage(taskIdentifier string, page int, pageErr error) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	if pageErr != nil {
		task.errors[strconv.Itoa(page)] = pageErr.Error()
	}
	task.completed++
	if task.completed > task.total {
		task.completed = task.total
	}
}

// CompleteTask transitions a task to its terminal status.
func (tracker *prefetchTracker) CompleteTask(taskIdentifier string, failed bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return
	}
	if failed {
		task.status = prefetchStatusFailed
	} else {
		task.status = prefetchStatusCompleted
	}
	task.completed = task.total
}

// TaskSnapshot returns a copy of the task state.
func (tracker *prefetchTracker) TaskSnapshot(taskIdentifier string) (prefetchTaskSnapshot, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return prefetchTaskSnapshot{}, false
	}
	return tracker.snapshotTask(task), true
}

func (tracker *prefetchTracker) snapshotTask(task *prefetchTask) prefetchTaskSnapshot {
	clonedErrors := make(map[string]string, len(task.errors))
	for page, message := range task.errors {
		clonedErrors[page] = message
	}
	return prefetchTaskSnapshot{
		Identifier: task.identifier,
		Total:      task.total,
		Completed:  task.completed,
		Status:     task.status,
		Errors:     clonedErrors,
	}
}

// PacingConfig spaces the page requests of a prefetch task. The zero value fetches pages back to back.
type PacingConfig struct {
	// PageInterval is the gap before every page after the first.
	PageInterval time.Duration
	// IntervalSpread varies each gap uniformly within plus or minus this amount.
	IntervalSpread time.Duration
	// PagesPerBurst pages are fetched before the gap grows by BurstPause. Zero disables the pause.
	PagesPerBurst int
	BurstPause    time.Duration
	Random        *rand.Rand
}

// pageSpacing decides how long a prefetch task waits before each of its pages. Gaps depend only on
// the page number, so concurrent tasks keep separate bursts.
type pageSpacing struct {
	interval      time.Duration
	spread        time.Duration
	pagesPerBurst int
	burstPause    time.Duration

	randomMutex sync.Mutex
	random      *rand.Rand
}

func newPageSpacing(configuration PacingConfig) *pageSpacing {
	random := configuration.Random
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &pageSpacing{
		interval:      configuration.PageInterval,
		spread:        configuration.IntervalSpread,
		pagesPerBurst: configuration.PagesPerBurst,
		burstPause:    configuration.BurstPause,
		random:        random,
	}
}

// gapBefore returns the wait before fetching page. The first page never waits.
func (spacing *pageSpacing) gapBefore(page int) time.Duration {
	if page <= 1 {
		return 0
	}
	gap := spacing.interval + spacing.variation()
	if spacing.pagesPerBurst > 0 && (page-1)%spacing.pagesPerBurst == 0 {
		gap += spacing.burstPause
	}
	if gap < 0 {
		return 0
	}
	return gap
}

func (spacing *pageSpacing) variation() time.Duration {
	if spacing.spread <= 0 {
		return 0
	}
	spacing.randomMutex.Lock()
	defer spacing.randomMutex.Unlock()
	return time.Duration(spacing.random.Int63n(2*int64(spacing.spread)+1)) - spacing.spread
}

// waitForPage sleeps for gap unless ctx ends first.
func waitForPage(ctx context.Context, gap time.Duration) error {
	if gap <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(gap)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
