package controller

import "sync"

// actor is the single execution context spec §5 requires: every timer
// firing, pipe read, and admin-dispatched command is converted into a
// closure submitted here and run to completion before the next is
// dequeued, regardless of which goroutine produced it.
type actor struct {
	ch       chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

func newActor() *actor {
	a := &actor{ch: make(chan func(), 1024), done: make(chan struct{})}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *actor) loop() {
	defer a.wg.Done()
	for {
		select {
		case fn := <-a.ch:
			fn()
		case <-a.done:
			a.drain()
			return
		}
	}
}

func (a *actor) drain() {
	for {
		select {
		case fn := <-a.ch:
			fn()
		default:
			return
		}
	}
}

// Submit implements service.Actor and proxy.Actor.
func (a *actor) Submit(fn func()) {
	select {
	case a.ch <- fn:
	case <-a.done:
	}
}

// run submits fn and blocks until it has executed, for synchronous callers
// (the admin endpoint, config loading) that need a result before replying.
func (a *actor) run(fn func()) {
	done := make(chan struct{})
	a.Submit(func() {
		fn()
		close(done)
	})
	<-done
}

func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.done) })
	a.wg.Wait()
}
