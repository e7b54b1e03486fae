package sharedmmap

import "testing"

func TestRoundUp(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0},
		{1, 8},
		{7, 8},
		{8, 8},
		{9, 16},
		{64, 64},
	}
	for _, c := range cases {
		if got := roundUp(c.in); got != c.want {
			t.Errorf("roundUp(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEntrySize(t *testing.T) {
	got := entrySize(3, 5)
	want := roundUp(entryHeaderBytes + 3 + 5)
	if got != want {
		t.Errorf("entrySize(3,5) = %d, want %d", got, want)
	}
}

func TestWordReadWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	writeWord(buf, 16, 0xdeadbeefcafef00d)
	if got := readWord(buf, 16); got != 0xdeadbeefcafef00d {
		t.Fatalf("readWord = %#x, want %#x", got, 0xdeadbeefcafef00d)
	}
}
