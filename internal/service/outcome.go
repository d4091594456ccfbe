package service

// WriteOutcome reports what happened after a domain write was persisted.
// The write itself always stands; NotificationErr records a best-effort
// side effect failure so callers can surface partial success precisely.
type WriteOutcome struct {
	NotificationErr error
}

// NotificationFailed reports whether the follow-on notification failed.
func (o WriteOutcome) NotificationFailed() bool {
	return o.NotificationErr != nil
}
