package timer

import (
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// CronEngine lets callers additionally express periodic deliveries with
// cron expressions, wrapping robfig/cron/v3 exactly as the teacher's
// Scheduler.registerWithCron does (ScheduleJob -> cron.ParseStandard ->
// cronScheduler.AddFunc), generalized from "execute a JobFunc" to "invoke
// a timer.Deliverer". It is additive to the Service: a CronEngine is used
// directly by callers that want cron syntax, alongside (not instead of)
// a Schedule/SingleTimer-backed Engine for delay/period timers.
type CronEngine struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[uuid.UUID]cron.EntryID
}

// NewCronEngine constructs a CronEngine. Start must be called before
// ScheduleCron entries begin firing.
func NewCronEngine() *CronEngine {
	return &CronEngine{cron: cron.New(), entries: make(map[uuid.UUID]cron.EntryID)}
}

// Start begins the cron scheduler's own dispatch goroutine.
func (e *CronEngine) Start() {
	e.cron.Start()
}

// Stop blocks until any in-flight cron job finishes, then halts future
// firings.
func (e *CronEngine) Stop() {
	<-e.cron.Stop().Done()
}

// ScheduleCron registers deliver to run on the given standard (5-field)
// cron expression. Returns an ID usable with Cancel.
func (e *CronEngine) ScheduleCron(expr string, deliver Deliverer) (uuid.UUID, error) {
	key := uuid.New()
	entryID, err := e.cron.AddFunc(expr, func() { deliver() })
	if err != nil {
		return uuid.UUID{}, err
	}
	e.mu.Lock()
	e.entries[key] = entryID
	e.mu.Unlock()
	return key, nil
}

// Cancel removes a previously scheduled cron entry.
func (e *CronEngine) Cancel(key uuid.UUID) {
	e.mu.Lock()
	entryID, ok := e.entries[key]
	delete(e.entries, key)
	e.mu.Unlock()
	if ok {
		e.cron.Remove(entryID)
	}
}
