package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordQueryConcurrent tests concurrent RecordQuery calls for race conditions.
func TestRecordQueryConcurrent(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				us.RecordQuery("SELECT * FROM person")
				us.RecordQuery("SELECT * FROM message")
			}
		}(i)
	}

	wg.Wait()

	top := us.TopQueries(10)
	if len(top) != 2 {
		t.Errorf("expected 2 queries, got %d", len(top))
	}

	expectedFreq := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expectedFreq {
			t.Errorf("expected frequency %d for %s, got %d", expectedFreq, stat.Name, stat.Frequency)
		}
	}
}

// TestTopQueriesOrdering tests that TopQueries returns results sorted by frequency.
func TestTopQueriesOrdering(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		us.RecordQuery("SELECT * FROM person")
	}
	for i := 0; i < 5; i++ {
		us.RecordQuery("SELECT * FROM message")
	}
	for i := 0; i < 20; i++ {
		us.RecordQuery("SELECT * FROM online_status")
	}

	top := us.TopQueries(3)
	if len(top) != 3 {
		t.Errorf("expected 3 queries, got %d", len(top))
	}

	if top[0].Name != "SELECT * FROM online_status" || top[0].Frequency != 20 {
		t.Errorf("expected online_status with frequency 20, got %s with %d", top[0].Name, top[0].Frequency)
	}
	if top[1].Name != "SELECT * FROM person" || top[1].Frequency != 10 {
		t.Errorf("expected person with frequency 10, got %s with %d", top[1].Name, top[1].Frequency)
	}
	if top[2].Name != "SELECT * FROM message" || top[2].Frequency != 5 {
		t.Errorf("expected message with frequency 5, got %s with %d", top[2].Name, top[2].Frequency)
	}
}

// TestPruneRemovesOldEntries tests that Prune removes entries older than the window.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	us := NewUsageStats(window)

	us.RecordQuery("SELECT * FROM person")

	top := us.TopQueries(10)
	if len(top) != 1 {
		t.Errorf("expected 1 query before prune, got %d", len(top))
	}

	time.Sleep(window + 50*time.Millisecond)
	us.Prune()

	top = us.TopQueries(10)
	if len(top) != 0 {
		t.Errorf("expected 0 queries after prune, got %d", len(top))
	}
}

// TestRecordReducerFrequency tests that RecordReducer tracks reducer call frequency.
func TestRecordReducerFrequency(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)

	for i := 0; i < 15; i++ {
		us.RecordReducer("send_message")
	}
	for i := 0; i < 8; i++ {
		us.RecordReducer("set_name")
	}
	for i := 0; i < 3; i++ {
		us.RecordReducer("identity_disconnected")
	}

	top := us.TopReducers(3)
	if len(top) != 3 {
		t.Errorf("expected 3 reducers, got %d", len(top))
	}

	if top[0].Name != "send_message" || top[0].Frequency != 15 {
		t.Errorf("expected send_message with frequency 15, got %s with %d", top[0].Name, top[0].Frequency)
	}
	if top[1].Name != "set_name" || top[1].Frequency != 8 {
		t.Errorf("expected set_name with frequency 8, got %s with %d", top[1].Name, top[1].Frequency)
	}
	if top[2].Name != "identity_disconnected" || top[2].Frequency != 3 {
		t.Errorf("expected identity_disconnected with frequency 3, got %s with %d", top[2].Name, top[2].Frequency)
	}
}

// TestTopQueriesEmpty tests TopQueries with no data.
func TestTopQueriesEmpty(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)
	top := us.TopQueries(10)
	if len(top) != 0 {
		t.Errorf("expected 0 queries, got %d", len(top))
	}
}

// TestTopReducersEmpty tests TopReducers with no data.
func TestTopReducersEmpty(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)
	top := us.TopReducers(10)
	if len(top) != 0 {
		t.Errorf("expected 0 reducers, got %d", len(top))
	}
}

// TestTopQueriesLimitExceedsData tests TopQueries when n exceeds available data.
func TestTopQueriesLimitExceedsData(t *testing.T) {
	us := NewUsageStats(1 * time.Hour)
	us.RecordQuery("SELECT * FROM person")
	us.RecordQuery("SELECT * FROM message")

	top := us.TopQueries(100)
	if len(top) != 2 {
		t.Errorf("expected 2 queries, got %d", len(top))
	}
}
