package engine

import (
	"testing"
	"time"
)

func TestOrdinalIgnoreCaseComparerUnifiesKeys(t *testing.T) {
	eng := New(Options{
		StringComparer:        "ordinal_ignore_case",
		CommandTimeout:        5 * time.Second,
		InboxCapacity:         64,
		EvictionInterval:      time.Minute,
		MaxStateHistoryLength: 10,
	}, loggerForTest())
	defer eng.Stop()
	c := eng.NewConnection("conn")

	if err := c.IncrementCounter(ctx(), "Foo", 1, 0); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := c.IncrementCounter(ctx(), "FOO", 2, 0); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	v, err := c.GetCounter(ctx(), "foo")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if v != 3 {
		t.Fatalf("expected case-insensitive keys to collide into one counter (=3), got %d", v)
	}
}

func TestOrdinalIgnoreCaseComparerUnifiesSetMembers(t *testing.T) {
	eng := New(Options{
		StringComparer:        "ordinal_ignore_case",
		CommandTimeout:        5 * time.Second,
		InboxCapacity:         64,
		EvictionInterval:      time.Minute,
		MaxStateHistoryLength: 10,
	}, loggerForTest())
	defer eng.Stop()
	c := eng.NewConnection("conn")

	txn := c.CreateWriteTransaction()
	txn.AddToSet("schedule", "Job-1", 1)
	txn.AddToSet("schedule", "JOB-1", 5) // same member, new score
	if err := txn.Commit(ctx()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ok, err := c.GetSetContains(ctx(), "schedule", "job-1")
	if err != nil {
		t.Fatalf("GetSetContains: %v", err)
	}
	if !ok {
		t.Fatalf("expected membership check to go through the comparer")
	}
	n, err := c.GetSetCount(ctx(), []string{"schedule"}, 10)
	if err != nil {
		t.Fatalf("GetSetCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected comparer-equal members to stay a single entry, got %d", n)
	}
	member, found, err := c.GetFirstByLowestScoreFromSet(ctx(), "schedule", 5, 5)
	if err != nil {
		t.Fatalf("GetFirstByLowestScoreFromSet: %v", err)
	}
	if !found || member != "Job-1" {
		t.Fatalf("expected the re-add to move the score to 5 and keep the original member string, got %q (found=%v)", member, found)
	}
}

func TestOrdinalComparerIsCaseSensitiveByDefault(t *testing.T) {
	c := newTestConnection(t)
	if err := c.IncrementCounter(ctx(), "Foo", 1, 0); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	if err := c.IncrementCounter(ctx(), "foo", 2, 0); err != nil {
		t.Fatalf("IncrementCounter: %v", err)
	}
	v1, _ := c.GetCounter(ctx(), "Foo")
	v2, _ := c.GetCounter(ctx(), "foo")
	if v1 != 1 || v2 != 2 {
		t.Fatalf("expected distinct case-sensitive keys, got Foo=%d foo=%d", v1, v2)
	}
}
