package core

// Notifier is a fire-and-forget downstream trigger. Emission must never fail
// the operation that triggered it; delivery is at-least-once.
type Notifier interface {
	Emit(event string, payload map[string]string)
}
