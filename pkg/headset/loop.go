package headset

import (
	"sync"
	"time"
)

// timerKey identifies a cancelable delayed task. Scheduling a key that is
// already armed replaces the earlier task.
type timerKey struct {
	owner any
	kind  int
}

// Timer kinds.
const (
	timerConnect = iota + 1
	timerClccResponse
	timerVoiceRecognition
	timerDialingOut
)

type timerEntry struct {
	gen   uint64
	timer *time.Timer
}

// loop is the single worker every state machine of a Service runs on. Tasks
// run one at a time in the order they were posted; delayed tasks are posted
// to the same queue when they fire. Posting never blocks.
type loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	timers  map[timerKey]timerEntry
	gen     uint64
	running bool
	stopped bool
	idle    bool
	done    chan struct{}
}

func newLoop() *loop {
	l := &loop{
		timers: make(map[timerKey]timerEntry),
		done:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// start runs the worker goroutine.
func (l *loop) start() {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()
	go l.run()
}

func (l *loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.idle = true
			l.cond.Broadcast()
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.idle = true
			l.cond.Broadcast()
			l.mu.Unlock()
			return
		}
		l.idle = false
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

// post appends task to the queue.
func (l *loop) post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.queue = append(l.queue, task)
	l.idle = false
	l.cond.Broadcast()
}

// postFront puts tasks at the head of the queue, keeping their order.
func (l *loop) postFront(tasks ...func()) {
	if len(tasks) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	q := make([]func(), 0, len(tasks)+len(l.queue))
	q = append(q, tasks...)
	l.queue = append(q, l.queue...)
	l.idle = false
	l.cond.Broadcast()
}

// schedule posts task after d unless the key is canceled or rescheduled
// first.
func (l *loop) schedule(key timerKey, d time.Duration, task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if e, ok := l.timers[key]; ok {
		e.timer.Stop()
	}
	l.gen++
	gen := l.gen
	t := time.AfterFunc(d, func() {
		l.mu.Lock()
		e, ok := l.timers[key]
		if !ok || e.gen != gen || l.stopped {
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		l.post(func() {
			// A cancel between firing and running wins.
			l.mu.Lock()
			e, ok := l.timers[key]
			if !ok || e.gen != gen {
				l.mu.Unlock()
				return
			}
			delete(l.timers, key)
			l.mu.Unlock()
			task()
		})
	})
	l.timers[key] = timerEntry{gen: gen, timer: t}
}

// cancel disarms the delayed task for key. It reports whether one was armed.
func (l *loop) cancel(key timerKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(l.timers, key)
	return true
}

// pending reports whether a delayed task is armed for key.
func (l *loop) pending(key timerKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[key]
	return ok
}

// stop runs what is already queued, then ends the worker. Later posts and
// armed timers are dropped.
func (l *loop) stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	for k, e := range l.timers {
		e.timer.Stop()
		delete(l.timers, k)
	}
	running := l.running
	l.cond.Broadcast()
	l.mu.Unlock()
	if running {
		<-l.done
	}
}

// flush blocks until the queue is empty and the worker is idle.
func (l *loop) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.running && !(l.idle && len(l.queue) == 0) {
		if l.stopped && l.idle {
			return
		}
		l.cond.Wait()
	}
}
