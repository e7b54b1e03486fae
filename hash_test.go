package sharedmmap

import "testing"

func TestHashKeyDeterministic(t *testing.T) {
	keys := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("hello world"),
		[]byte{0, 1, 2, 3, 4, 5},
	}
	for _, k := range keys {
		p1, h1 := hashKey(k, 89)
		p2, h2 := hashKey(k, 89)
		if p1 != p2 || h1 != h2 {
			t.Fatalf("hashKey(%q) not deterministic: (%d,%d) vs (%d,%d)", k, p1, h1, p2, h2)
		}
	}
}

func TestHashKeyPageInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		p, _ := hashKey(key, 89)
		if p < 0 || p >= 89 {
			t.Fatalf("page %d out of range for key %v", p, key)
		}
	}
}

func TestHashKeyDistinguishesKeys(t *testing.T) {
	_, h1 := hashKey([]byte("alpha"), 89)
	_, h2 := hashKey([]byte("beta"), 89)
	if h1 == h2 {
		t.Fatalf("expected distinct intra-hashes for distinct keys, got %d == %d", h1, h2)
	}
}
