package types

import (
	"fmt"
	"testing"
)

func TestRecent_KeepsLastN(t *testing.T) {
	turns := make([]Turn, 0, 12)
	for i := 0; i < 12; i++ {
		turns = append(turns, UserTurn(fmt.Sprintf("t%d", i)))
	}

	got := Recent(turns, 10)
	if len(got) != 10 {
		t.Fatalf("len=%d, want 10", len(got))
	}
	if got[0].Text != "t2" || got[9].Text != "t11" {
		t.Fatalf("window=%q..%q, want t2..t11", got[0].Text, got[9].Text)
	}
}

func TestRecent_ReturnsCopy(t *testing.T) {
	turns := []Turn{UserTurn("a"), ModelTurn("b")}
	got := Recent(turns, 10)
	got[0].Text = "changed"
	if turns[0].Text != "a" {
		t.Fatalf("Recent must not alias its input")
	}
}

func TestRecent_NonPositiveReturnsAll(t *testing.T) {
	turns := []Turn{UserTurn("a"), ModelTurn("b"), UserTurn("c")}
	if got := Recent(turns, 0); len(got) != 3 {
		t.Fatalf("len=%d, want 3", len(got))
	}
}

func TestTurn_IsBlank(t *testing.T) {
	if !UserTurn("  \n").IsBlank() {
		t.Fatalf("whitespace turn should be blank")
	}
	if ModelTurn("hi").IsBlank() {
		t.Fatalf("non-empty turn should not be blank")
	}
}
