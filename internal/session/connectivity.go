package session

import "time"

// Monitor derives the clock's pause signal from network and page visibility.
// It is level-triggered: the session is paused while the exam asks for it and the
// candidate is either offline or not looking at the page.
type Monitor struct {
	pauseOnDisconnect bool
	online            bool
	visible           bool
	pausedAt          time.Time
	now               func() time.Time
}

// NewMonitor creates a Monitor that starts online and visible.
func NewMonitor(pauseOnDisconnect bool, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		pauseOnDisconnect: pauseOnDisconnect,
		online:            true,
		visible:           true,
		now:               now,
	}
}

// SetOnline records a network transition and reports whether the pause state changed.
func (m *Monitor) SetOnline(online bool) bool {
	before := m.IsPaused()
	m.online = online
	return m.settle(before)
}

// SetVisible records a page visibility transition and reports whether the pause state changed.
func (m *Monitor) SetVisible(visible bool) bool {
	before := m.IsPaused()
	m.visible = visible
	return m.settle(before)
}

func (m *Monitor) settle(before bool) bool {
	after := m.IsPaused()
	if after && !before {
		m.pausedAt = m.now()
	}
	if !after {
		m.pausedAt = time.Time{}
	}
	return before != after
}

// IsPaused reports whether the clock must hold.
func (m *Monitor) IsPaused() bool {
	if !m.pauseOnDisconnect {
		return false
	}
	return !m.online || !m.visible
}

// PausedAt returns when the current pause began, zero when running.
func (m *Monitor) PausedAt() time.Time {
	return m.pausedAt
}

// PauseOnDisconnect reports the exam's pause policy.
func (m *Monitor) PauseOnDisconnect() bool {
	return m.pauseOnDisconnect
}
