// Package asyncagent implements the Async Agent Manager (C11, spec §4.11):
// background-worker agents with states {IDLE, BUSY, SLEEPING, STOPPED},
// private task queues, sleep/wake timers, and broadcast events. It reuses
// the Agent Loop (internal/agentrt) but not the interactive streaming
// surface — background workers run to completion per task with no client
// connection.
//
// Grounded on the teacher's internal/tasks.Scheduler worker-loop idiom
// (a poll-interval goroutine per worker, WorkerID identity, a
// github.com/robfig/cron/v3 parser for recurring schedules) adapted from
// persisted/distributed task execution to in-process per-agent task
// queues and wake timers.
package asyncagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexus-contrib/agentmesh/internal/agentrt"
)

// State is a background agent's lifecycle state (spec §4.11).
type State string

const (
	StateIdle     State = "IDLE"
	StateBusy     State = "BUSY"
	StateSleeping State = "SLEEPING"
	StateStopped  State = "STOPPED"
)

// cronParser accepts both 5-field standard and 6-field-with-seconds cron
// expressions, matching the teacher's tasks.cronParser construction.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Event is a named payload broadcastEvent delivers to every sleeping
// worker watching for it.
type Event struct {
	Name string
	Data map[string]any
}

// Worker is one background agent instance: an Agent Loop plus a private
// task queue, a state machine, and a sleep timer.
type Worker struct {
	id    string
	agent *agentrt.Agent
	log   *slog.Logger

	mu         sync.Mutex
	state      State
	tasks      chan string
	wakeEvents map[string]bool
	wakeTimer  *time.Timer
	stopCh     chan struct{}
	report     func(State)
}

// setState updates the worker's state and reports it, if a recorder is
// configured. Caller must hold w.mu.
func (w *Worker) setState(s State) {
	w.state = s
	if w.report != nil {
		w.report(s)
	}
}

// Manager owns every background worker in the process.
type Manager struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	cron    *cron.Cron
	log     *slog.Logger
	metrics WorkerStateRecorder
}

// WorkerStateRecorder is the subset of *observability.Metrics the Async
// Agent Manager reports to. Kept narrow so this package never imports
// internal/observability directly.
type WorkerStateRecorder interface {
	SetAsyncWorkerState(agentID string, states []string, current string)
}

// knownStates lists every State value, for zeroing unselected gauge
// labels in SetAsyncWorkerState.
var knownStates = []string{string(StateIdle), string(StateBusy), string(StateSleeping), string(StateStopped)}

// New returns an empty Manager with its own cron scheduler for recurring
// background tasks. metrics may be nil to disable recording.
func New(log *slog.Logger, metrics ...WorkerStateRecorder) *Manager {
	if log == nil {
		log = slog.Default()
	}
	var m WorkerStateRecorder
	if len(metrics) > 0 {
		m = metrics[0]
	}
	c := cron.New(cron.WithParser(cronParser))
	c.Start()
	return &Manager{workers: make(map[string]*Worker), cron: c, log: log, metrics: m}
}

func (m *Manager) reportState(id string, state State) {
	if m.metrics != nil {
		m.metrics.SetAsyncWorkerState(id, knownStates, string(state))
	}
}

// CreateAgent registers agent as a background worker under id, starting it
// IDLE with a task queue that holds at most 64 pending tasks.
func (m *Manager) CreateAgent(id string, agent *agentrt.Agent) *Worker {
	w := &Worker{
		id:         id,
		agent:      agent,
		log:        m.log,
		state:      StateIdle,
		tasks:      make(chan string, 64),
		wakeEvents: make(map[string]bool),
		stopCh:     make(chan struct{}),
	}
	w.report = func(s State) { m.reportState(id, s) }
	m.mu.Lock()
	m.workers[id] = w
	m.mu.Unlock()
	m.reportState(id, StateIdle)
	return w
}

// Get looks up a background worker by id.
func (m *Manager) Get(id string) (*Worker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	return w, ok
}

// StartAgent launches id's consume loop, which pulls tasks off its queue
// and runs them through the Agent Loop until StopAgent is called.
func (m *Manager) StartAgent(id string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("asyncagent: unknown agent %q", id)
	}
	go w.run()
	return nil
}

// StopAgent signals id's consume loop to exit and marks it STOPPED.
func (m *Manager) StopAgent(id string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("asyncagent: unknown agent %q", id)
	}
	w.mu.Lock()
	if w.state != StateStopped {
		close(w.stopCh)
		w.setState(StateStopped)
	}
	w.mu.Unlock()
	return nil
}

// SendTask enqueues a prompt for id's worker to process on its own
// schedule. Non-blocking unless the queue (64 deep) is full.
func (m *Manager) SendTask(id, prompt string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("asyncagent: unknown agent %q", id)
	}
	select {
	case w.tasks <- prompt:
		return nil
	default:
		return fmt.Errorf("asyncagent: task queue full for agent %q", id)
	}
}

// SleepAgent puts id to SLEEPING. If duration > 0 a timer will WakeAgent
// it automatically; wakeEvents names events that also wake it early.
func (m *Manager) SleepAgent(id string, duration time.Duration, wakeEvents []string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("asyncagent: unknown agent %q", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setState(StateSleeping)
	w.wakeEvents = make(map[string]bool, len(wakeEvents))
	for _, e := range wakeEvents {
		w.wakeEvents[e] = true
	}
	if w.wakeTimer != nil {
		w.wakeTimer.Stop()
	}
	if duration > 0 {
		w.wakeTimer = time.AfterFunc(duration, func() { m.WakeAgent(id, "timer") })
	}
	return nil
}

// WakeAgent transitions id back to IDLE, regardless of reason, unless it
// is already STOPPED.
func (m *Manager) WakeAgent(id, reason string) error {
	w, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("asyncagent: unknown agent %q", id)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped {
		return nil
	}
	if w.wakeTimer != nil {
		w.wakeTimer.Stop()
		w.wakeTimer = nil
	}
	w.setState(StateIdle)
	w.log.Info("worker woke", "agent_id", id, "reason", reason)
	return nil
}

// BroadcastEvent wakes every SLEEPING worker whose wakeEvents set contains
// name (spec §4.11 "broadcastEvent(event, data)").
func (m *Manager) BroadcastEvent(evt Event) {
	m.mu.RLock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	for _, w := range workers {
		w.mu.Lock()
		sleeping := w.state == StateSleeping
		watching := w.wakeEvents[evt.Name]
		w.mu.Unlock()
		if sleeping && watching {
			_ = m.WakeAgent(w.id, "event:"+evt.Name)
		}
	}
}

// States returns a snapshot of every worker's current state, keyed by id
// (async.getAgentStates, spec §6).
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.workers))
	for id, w := range m.workers {
		w.mu.Lock()
		out[id] = w.state
		w.mu.Unlock()
	}
	return out
}

// ScheduleRecurring registers a cron expression that calls SendTask(id,
// prompt) on every tick, returning the cron.EntryID for later removal.
func (m *Manager) ScheduleRecurring(id, cronExpr, prompt string) (cron.EntryID, error) {
	return m.cron.AddFunc(cronExpr, func() {
		if err := m.SendTask(id, prompt); err != nil {
			m.log.Warn("scheduled task dropped", "agent_id", id, "error", err)
		}
	})
}

// run is a worker's consume loop: while IDLE, block for the next task and
// process it through the Agent Loop; while SLEEPING, ignore tasks until
// woken (spec §4.11 "while SLEEPING it ignores tasks until its timer fires
// or a matching wake event arrives").
func (w *Worker) run() {
	for {
		select {
		case <-w.stopCh:
			return
		case prompt := <-w.tasks:
			w.mu.Lock()
			sleeping := w.state == StateSleeping
			w.mu.Unlock()
			if sleeping {
				continue
			}
			w.process(prompt)
		}
	}
}

func (w *Worker) process(prompt string) {
	w.mu.Lock()
	w.setState(StateBusy)
	w.mu.Unlock()

	result := w.agent.Process(context.Background(), prompt, nil, agentrt.Options{})
	if result.Error != nil {
		w.log.Error("background task failed", "agent_id", w.id, "error", result.Error)
	}

	w.mu.Lock()
	if w.state == StateBusy {
		w.setState(StateIdle)
	}
	w.mu.Unlock()
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
