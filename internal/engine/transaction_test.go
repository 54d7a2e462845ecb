package engine

import (
	"testing"
	"time"
)

func TestTransactionCommitsAllOpsAtomically(t *testing.T) {
	c := newTestConnection(t)

	jobKey, txn := c.CreateWriteTransaction().CreateExpiredJob(InvocationData{Type: "Worker", Queue: "default"}, nil, time.Hour)
	err := txn.
		SetJobParameter(jobKey, "attempt", "1").
		SetJobState(jobKey, &StateData{Name: "Enqueued", Data: map[string]string{"Queue": "default"}}).
		Enqueue("default", jobKey).
		Commit(ctx())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	data, err := c.GetJobData(ctx(), jobKey)
	if err != nil || data == nil {
		t.Fatalf("GetJobData: %v, %+v", err, data)
	}
	if data.State == nil || data.State.Name != "Enqueued" {
		t.Fatalf("expected Enqueued state, got %+v", data.State)
	}
	if data.Parameters["attempt"] != "1" {
		t.Fatalf("expected attempt=1, got %+v", data.Parameters)
	}

	fetched, err := c.FetchNextJob(ctx(), []string{"default"})
	if err != nil {
		t.Fatalf("FetchNextJob: %v", err)
	}
	if fetched.JobID != jobKey {
		t.Fatalf("expected %s enqueued atomically with the rest of the batch, got %+v", jobKey, fetched)
	}
}

func TestTransactionFailsEntirelyOnBuildTimeError(t *testing.T) {
	c := newTestConnection(t)

	// SetJobParameter with an empty name is a build-time argument error; the
	// whole batch (including the otherwise-valid CreateExpiredJob before it)
	// must never reach the dispatcher.
	jobKey, txn := c.CreateWriteTransaction().CreateExpiredJob(InvocationData{}, nil, time.Hour)
	err := txn.
		SetJobParameter(jobKey, "", "x").
		Commit(ctx())
	if err == nil || !IsKind(err, InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	data, getErr := c.GetJobData(ctx(), jobKey)
	if getErr != nil {
		t.Fatalf("GetJobData: %v", getErr)
	}
	if data != nil {
		t.Fatalf("expected no partial effects from a transaction that failed to build, got %+v", data)
	}
}

func TestTransactionValidatesBeforeApplyingAnyOp(t *testing.T) {
	c := newTestConnection(t)

	// SetJobState against a job that doesn't exist fails validate(); the
	// SetRangeInHash op before it in the same batch must not have taken
	// effect either.
	err := c.CreateWriteTransaction().
		SetRangeInHash("h1", []Parameter{{Name: "a", Value: "1"}}).
		SetJobState("ghost", &StateData{Name: "Enqueued"}).
		Commit(ctx())
	if err == nil || !IsKind(err, NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	fields, getErr := c.GetAllEntriesFromHash(ctx(), "h1")
	if getErr != nil {
		t.Fatalf("GetAllEntriesFromHash: %v", getErr)
	}
	if fields != nil {
		t.Fatalf("expected the hash write to not have applied, got %+v", fields)
	}
}

func TestTransactionEmptyCommitIsNoOp(t *testing.T) {
	c := newTestConnection(t)
	if err := c.CreateWriteTransaction().Commit(ctx()); err != nil {
		t.Fatalf("expected empty commit to succeed trivially, got %v", err)
	}
}

func TestFeatureAdvertisement(t *testing.T) {
	c := newTestConnection(t)

	canonical := []string{
		FeatureExtendedAPI,
		FeatureQueueing,
		FeatureBatchedLowestScoreFetch,
		FeatureUTCTimeAccessor,
		FeatureSetContains,
		FeatureLimitedSetCount,
		FeatureTransactionalLockAcquisition,
		FeatureInTransactionJobCreation,
		FeatureInTransactionJobParameterSet,
		FeatureTransactionalAcknowledgeFetchedJobs,
		FeatureDeletedStateGraphs,
		FeatureAwaitingStateListing,
	}
	for _, id := range canonical {
		ok, err := c.HasFeature(id)
		if err != nil || !ok {
			t.Errorf("expected %q to be advertised, got ok=%v err=%v", id, ok, err)
		}
	}

	ok, err := c.HasFeature("not-a-real-feature")
	if err != nil || ok {
		t.Errorf("expected unknown feature id to report false, got ok=%v err=%v", ok, err)
	}

	if _, err := c.HasFeature(""); !IsKind(err, InvalidArgument) {
		t.Errorf("expected InvalidArgument for empty id, got %v", err)
	}
}

func TestGetUtcDateTimeIsUtc(t *testing.T) {
	c := newTestConnection(t)
	now := c.GetUtcDateTime()
	if now.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", now.Location())
	}
}
