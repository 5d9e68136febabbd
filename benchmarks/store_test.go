package benchmarks

import (
	"context"
	"testing"

	"github.com/tmorell/beacon/pkg/beacon/store"
)

// BenchmarkLogEvent measures event log append throughput.
func BenchmarkLogEvent(b *testing.B) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	data := []byte(`{"order_id":"o-1","amount":150,"user_id":"alice"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.LogEvent(ctx, "order.created", data, "alice"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkExecuteQuery measures the watch-style polling query path.
func BenchmarkExecuteQuery(b *testing.B) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := s.LogEvent(ctx, "alert", []byte(`{"severity":"high"}`), "system"); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.ExecuteQuery(ctx, "SELECT id, event_type FROM events WHERE event_type = ?", "alert"); err != nil {
			b.Fatal(err)
		}
	}
}
