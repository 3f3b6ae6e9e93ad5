package download

// Hooks receive job lifecycle notifications for persistence or live push.
// They run on the updating goroutine; implementations must be fast and
// non-blocking.
type Hooks interface {
	// OnSubmit fires once when a job is accepted, before any progress.
	OnSubmit(id, url, quality string, audioOnly bool)
	// OnUpdate fires after every applied registry update with a snapshot.
	OnUpdate(id string, p Progress)
}

// MultiHooks fans notifications out to several hook sets in order.
type MultiHooks []Hooks

func (m MultiHooks) OnSubmit(id, url, quality string, audioOnly bool) {
	for _, h := range m {
		h.OnSubmit(id, url, quality, audioOnly)
	}
}

func (m MultiHooks) OnUpdate(id string, p Progress) {
	for _, h := range m {
		h.OnUpdate(id, p)
	}
}
