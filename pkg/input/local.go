package input

// Local is driven by key events of this machine.
type Local struct {
	state
}

func NewLocal() *Local { return &Local{} }

// Press marks the action held, auto-repeat of a held key is not an edge.
func (l *Local) Press(a Action) {
	b := a.bit()
	l.mu.Lock()
	if l.held&b == 0 {
		l.pending |= b
	}
	l.held |= b
	l.mu.Unlock()
}

func (l *Local) Release(a Action) {
	l.mu.Lock()
	l.held &^= a.bit()
	l.mu.Unlock()
}
