package session

// Notifier delivers a named event to one connection. Implementations must
// not call back into the registry and must not block on network I/O; the
// websocket gateway satisfies this with per-connection write serialization
// and a short write deadline.
type Notifier interface {
	Notify(connID, event string, payload any)
}

// NopNotifier discards everything. Useful where broadcasts are irrelevant.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string, any) {}
