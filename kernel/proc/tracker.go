// Package proc tracks the user task currently running on the CPU.
package proc

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"kestrel/kernel"
	"kestrel/kernel/gate"
	"kestrel/kernel/kfmt"
	"kestrel/kernel/sync"
)

// ExitStatusFault is the exit status of a task terminated by a CPU fault.
const ExitStatusFault = 0xff

var (
	// ErrTaskRunning is returned when entering user mode while a task is
	// already running.
	ErrTaskRunning = &kernel.Error{Module: "proc", Message: "a user task is already running"}

	// ErrNoTask is returned when exiting while no task is running.
	ErrNoTask = &kernel.Error{Module: "proc", Message: "no user task is running"}

	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	log = kfmt.Logger("proc")
)

// Task describes a user task.
type Task struct {
	ID   uint64
	Name string

	// Exited and ExitStatus are set when the task terminates.
	Exited     bool
	ExitStatus uint64
}

// Tracker records the running user task and the kernel context to return to
// when it terminates.
type Tracker struct {
	mu      sync.Mutex
	current atomic.Pointer[Task]
	resume  gate.Registers
	nextID  uint64
}

// NewTracker returns a tracker with no running task.
func NewTracker() *Tracker {
	return &Tracker{nextID: 1}
}

// NewTask allocates a task with a unique ID.
func (t *Tracker) NewTask(name string) (*Task, *kernel.Error) {
	if err := t.mu.TryLock(); err != nil {
		return nil, err
	}
	defer t.mu.Unlock()

	task := &Task{ID: t.nextID, Name: name}
	t.nextID++
	return task, nil
}

// EnterUser marks task as running. resume is the kernel context restored
// when the task exits.
func (t *Tracker) EnterUser(task *Task, resume gate.Registers) *kernel.Error {
	if err := t.mu.TryLock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	if t.current.Load() != nil {
		return ErrTaskRunning
	}

	t.resume = resume
	t.current.Store(task)
	return nil
}

// UserTaskRunning returns true while a user task is running. It does not take
// the tracker lock so fault handlers can call it while the lock is held by
// the interrupted context.
func (t *Tracker) UserTaskRunning() bool {
	return t.current.Load() != nil
}

// Current returns the running task or nil.
func (t *Tracker) Current() *Task {
	return t.current.Load()
}

// Exit terminates the running task with status. regs is overwritten with
// the saved kernel context so returning from the interrupt resumes the
// scheduler with the exit status in RAX.
func (t *Tracker) Exit(regs *gate.Registers, status uint64) *kernel.Error {
	if err := t.mu.TryLock(); err != nil {
		return err
	}
	defer t.mu.Unlock()

	task := t.current.Load()
	if task == nil {
		return ErrNoTask
	}

	task.Exited, task.ExitStatus = true, status
	t.current.Store(nil)

	*regs = t.resume
	regs.RAX = status

	log.WithFields(logrus.Fields{
		"task":   task.ID,
		"name":   task.Name,
		"status": status,
	}).Info("user task exited")
	return nil
}

// AbortUserTask terminates the running task with ExitStatusFault.
func (t *Tracker) AbortUserTask(regs *gate.Registers) {
	if err := t.Exit(regs, ExitStatusFault); err != nil {
		panicFn(err)
	}
}
