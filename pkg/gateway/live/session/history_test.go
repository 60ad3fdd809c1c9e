package session

import (
	"fmt"
	"testing"

	"github.com/vango-go/voice-relay/pkg/core/types"
)

func TestHistoryLog_RetainsEverythingButWindowsRequests(t *testing.T) {
	h := newHistoryLog()
	for i := 0; i < 6; i++ {
		h.appendUser(fmt.Sprintf("u%d", i))
		h.appendModel(fmt.Sprintf("m%d", i))
	}

	if h.len() != 12 {
		t.Fatalf("len=%d, want 12", h.len())
	}
	window := types.Recent(h.snapshot(), 10)
	if len(window) != 10 {
		t.Fatalf("window=%d, want 10", len(window))
	}
	if window[0] != types.UserTurn("u1") || window[9] != types.ModelTurn("m5") {
		t.Fatalf("window=%v", window)
	}
	if all := h.snapshot(); len(all) != 12 || all[0].Text != "u0" {
		t.Fatalf("snapshot=%v", all)
	}
}
