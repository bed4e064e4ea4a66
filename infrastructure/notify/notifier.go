package notify

import (
	"log/slog"

	"deal-lab/contract"
)

// LogNotifier is the default notification dispatcher: it records what
// would have been sent. The real email/SMS/push dispatcher lives in the
// surrounding platform; either way the contract is fire-and-forget, so
// a failed notification can never fail the operation that triggered it.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(userID, kind string, payload map[string]any) {
	n.log.Info("Notification dispatched", "user", userID, "kind", kind, "payload", payload)
}

var _ contract.INotifier = (*LogNotifier)(nil)
