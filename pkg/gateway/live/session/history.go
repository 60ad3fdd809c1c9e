package session

import "github.com/vango-go/voice-relay/pkg/core/types"

// historyLog is the append-only conversation transcript. It lives as long as the
// connection; only request construction truncates it.
type historyLog struct {
	turns []types.Turn
}

func newHistoryLog() *historyLog {
	return &historyLog{turns: make([]types.Turn, 0, 16)}
}

func (h *historyLog) appendUser(text string) {
	h.turns = append(h.turns, types.UserTurn(text))
}

func (h *historyLog) appendModel(text string) {
	h.turns = append(h.turns, types.ModelTurn(text))
}

func (h *historyLog) len() int {
	return len(h.turns)
}

// snapshot returns a copy of every turn; request builders window it with types.Recent.
func (h *historyLog) snapshot() []types.Turn {
	return types.Recent(h.turns, 0)
}
