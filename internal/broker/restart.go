package broker

import "time"

type pendingRestart struct {
	driver    *Driver
	remaining time.Duration
}

// restartList holds drivers waiting to be relaunched, in the order they
// failed.
type restartList struct {
	items []pendingRestart
}

func (l *restartList) add(d *Driver, delay time.Duration) {
	l.remove(d)
	l.items = append(l.items, pendingRestart{driver: d, remaining: delay})
}

func (l *restartList) remove(d *Driver) bool {
	for i, it := range l.items {
		if it.driver == d {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *restartList) contains(d *Driver) bool {
	_, ok := l.remaining(d)
	return ok
}

func (l *restartList) remaining(d *Driver) (time.Duration, bool) {
	for _, it := range l.items {
		if it.driver == d {
			return it.remaining, true
		}
	}
	return 0, false
}

func (l *restartList) len() int { return len(l.items) }

// tick subtracts elapsed from every delay and removes and returns the
// drivers whose delay has run out, in list order.
func (l *restartList) tick(elapsed time.Duration) []*Driver {
	var due []*Driver
	kept := l.items[:0]
	for _, it := range l.items {
		it.remaining -= elapsed
		if it.remaining <= 0 {
			due = append(due, it.driver)
			continue
		}
		kept = append(kept, it)
	}
	clear(l.items[len(kept):])
	l.items = kept
	return due
}
