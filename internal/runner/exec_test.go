package runner

import (
	"regexp"
	"testing"
)

func TestExtractFlagsDedupesPreservingOrder(t *testing.T) {
	re := regexp.MustCompile(`FLAG\{[A-Za-z0-9]+\}`)
	output := []byte("junk FLAG{aaa} more junk FLAG{bbb} repeat FLAG{aaa} trailing")

	got := ExtractFlags(re, output)
	want := []string{"FLAG{aaa}", "FLAG{bbb}"}

	if len(got) != len(want) {
		t.Fatalf("ExtractFlags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExtractFlags[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractFlagsNoMatches(t *testing.T) {
	re := regexp.MustCompile(`FLAG\{[A-Za-z0-9]+\}`)
	if got := ExtractFlags(re, []byte("nothing here")); len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestStripNullBytes(t *testing.T) {
	in := []byte{'a', 0, 'b', 0, 0, 'c'}
	got := stripNullBytes(in)
	want := "abc"
	if string(got) != want {
		t.Fatalf("stripNullBytes = %q, want %q", got, want)
	}
}

func TestLockedBufferConcurrentWriteAndSnapshot(t *testing.T) {
	var buf lockedBuffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = buf.Write([]byte("x"))
		}
	}()

	// Snapshotting concurrently with the writer must not race or panic;
	// the exact length observed depends on scheduling.
	_ = buf.Bytes()
	<-done

	if got := len(buf.Bytes()); got != 100 {
		t.Fatalf("final snapshot length = %d, want 100", got)
	}
}
