// Package cptest contains shared helpers for chunkproof tests.
package cptest

import (
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"golang.org/x/crypto/blake2b"
)

// RandomDataForTest returns sz bytes that are stable for a given test name,
// so a failing case reproduces on rerun.
func RandomDataForTest(t testing.TB, sz int) []byte {
	out := make([]byte, sz)
	if _, err := rand.NewChaCha8(blake2b.Sum256([]byte(t.Name()))).Read(out); err != nil {
		t.Fatalf("generate test data: %v", err)
	}
	return out
}

// NewLogger returns a logger that writes through t.Log.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}

// ScheduleDuration is how long [ReceiveSoon] waits before failing the test.
const ScheduleDuration = 2 * time.Second

// ReceiveSoon returns the value received from ch,
// failing the test if no value arrives within [ScheduleDuration].
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScheduleDuration)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("did not receive value within %s", ScheduleDuration)
	}

	panic("unreachable")
}
