package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/coskb/pkg/utils"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Настройка VPN")
	b, _ := e.Embed(ctx, "настройка vpn")
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: case should not matter", i)
		}
	}
	if n := utils.L2Norm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(1024)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "vpn setup")
	near, _ := e.Embed(ctx, "vpn setup guide for office")
	far, _ := e.Embed(ctx, "vacation policy")
	if utils.Dot(q, near) <= utils.Dot(q, far) {
		t.Errorf("expected shared-word text to be closer: near=%f far=%f", utils.Dot(q, near), utils.Dot(q, far))
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	e := NewHashEmbedder(8)
	v, err := e.Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestWords(t *testing.T) {
	got := Words("Hello, мир! v2.0_beta")
	want := []string{"hello", "мир", "v2", "0", "beta"}
	if len(got) != len(want) {
		t.Fatalf("Words = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Words[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSimpleTokenizer(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := tok.Tokenize("one two three", 8)
	if len(ids) != 8 || len(mask) != 8 || len(types) != 8 {
		t.Fatalf("unexpected lengths %d %d %d", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 || ids[4] != 102 {
		t.Errorf("expected [CLS] ... [SEP], got %v", ids)
	}
	for i := 0; i < 5; i++ {
		if mask[i] != 1 {
			t.Errorf("mask[%d] = 0", i)
		}
	}
	if mask[5] != 0 {
		t.Errorf("padding should be masked: %v", mask)
	}

	ids, _, _ = tok.Tokenize("a b c d e f g h i j", 4)
	if ids[3] != 102 {
		t.Errorf("truncated sequence should end with [SEP]: %v", ids)
	}
}

func TestHashString_NonNegative(t *testing.T) {
	for _, s := range []string{"", "a", "a very long string that overflows the hash many times over"} {
		if HashString(s) < 0 {
			t.Errorf("HashString(%q) negative", s)
		}
	}
}
