package session

import (
	"strings"
	"sync"
)

// Activity is a class of user interaction that counts as presence.
type Activity uint8

const (
	ActivityPointerDown Activity = iota
	ActivityPointerMove
	ActivityKeyDown
	ActivityScroll
	ActivityTouchStart
	activityCount
)

var activityNames = [activityCount]string{
	ActivityPointerDown: "pointerdown",
	ActivityPointerMove: "pointermove",
	ActivityKeyDown:     "keydown",
	ActivityScroll:      "scroll",
	ActivityTouchStart:  "touchstart",
}

func (a Activity) String() string {
	if a >= activityCount {
		return "unknown"
	}
	return activityNames[a]
}

// ParseActivity maps an event name (case-insensitive) to an Activity.
func ParseActivity(name string) (Activity, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range activityNames {
		if n == name {
			return Activity(i), true
		}
	}
	return 0, false
}

// ActivitySource delivers activity to subscribers. The returned function
// detaches the subscriber; it is safe to call more than once.
type ActivitySource interface {
	Subscribe(fn func(Activity)) (unsubscribe func())
}

// Feed is an in-process ActivitySource. Publish calls subscribers outside the
// feed lock, so a subscriber may unsubscribe from inside its callback.
type Feed struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]func(Activity)
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[uint64]func(Activity))}
}

func (f *Feed) Subscribe(fn func(Activity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	id := f.next
	f.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish delivers a to every current subscriber.
func (f *Feed) Publish(a Activity) {
	f.mu.Lock()
	fns := make([]func(Activity), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(a)
	}
}

// Subscribers reports the number of attached subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
