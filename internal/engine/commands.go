package engine

import "time"

// This file holds the command constructors that Connection methods hand to
// the Dispatcher directly, outside a TransactionBatch: every read query,
// plus a few writes (server heartbeat and timed-out server removal, the
// non-blocking dequeue, fetch-waiter registration, and lock grant and
// release). Every other write lives in transaction.go as a one- or
// many-op TransactionBatch.

// JobData is the point-in-time snapshot returned by GetJobData.
type JobData struct {
	Key        string
	Invocation InvocationData
	Parameters map[string]string
	State      *StateData
	History    []*StateData
	CreatedAt  time.Time
	ExpireAt   *time.Time
}

func getJobDataCmd(jobKey string) command {
	return func(st *MemoryState, now Time) (any, error) {
		j, ok := st.getJob(jobKey)
		if !ok {
			return nil, nil
		}
		data := &JobData{
			Key:        j.Key,
			Invocation: j.Invocation,
			Parameters: j.Parameters.Map(),
			State:      j.State.Clone(),
		}
		for _, h := range j.History {
			data.History = append(data.History, h.Clone())
		}
		data.CreatedAt = j.CreatedAt.UTC()
		if j.ExpireAt != nil {
			t := j.ExpireAt.UTC()
			data.ExpireAt = &t
		}
		return data, nil
	}
}

func getStateDataCmd(jobKey string) command {
	return func(st *MemoryState, now Time) (any, error) {
		j, ok := st.getJob(jobKey)
		if !ok {
			return nil, nil
		}
		return j.State.Clone(), nil
	}
}

func getJobParameterCmd(jobKey, name string) command {
	return func(st *MemoryState, now Time) (any, error) {
		value, ok := st.getJobParameter(jobKey, name)
		return [2]any{value, ok}, nil
	}
}

func getJobTtlCmd(jobKey string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.jobTtl(jobKey, now), nil
	}
}

func getAllEntriesFromHashCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		fields, _ := st.getAllEntriesFromHash(key)
		return fields, nil
	}
}

func getHashTtlCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.hashTtl(key, now), nil
	}
}

func getAllItemsFromListCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.getAllItemsFromList(key), nil
	}
}

func getRangeFromListCmd(key string, startingFrom, endingAt int) command {
	return func(st *MemoryState, now Time) (any, error) {
		if startingFrom < 0 || endingAt < startingFrom {
			return nil, newError("GetRangeFromList", InvalidRange, "invalid range")
		}
		return st.getRangeFromList(key, startingFrom, endingAt), nil
	}
}

func getListTtlCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.listTtl(key, now), nil
	}
}

func getSetContainsCmd(key, member string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.getSetContains(key, member), nil
	}
}

func getRangeFromSetCmd(key string, startingFrom, endingAt int) command {
	return func(st *MemoryState, now Time) (any, error) {
		if startingFrom < 0 || endingAt < startingFrom {
			return nil, newError("GetRangeFromSet", InvalidRange, "invalid range")
		}
		return st.getRangeFromSet(key, startingFrom, endingAt), nil
	}
}

func getFirstByLowestScoreFromSetCmd(key string, fromScore, toScore float64) command {
	return func(st *MemoryState, now Time) (any, error) {
		if toScore < fromScore {
			return nil, newError("GetFirstByLowestScoreFromSet", InvalidRange, "toScore < fromScore")
		}
		member, ok := st.getFirstByLowestScoreFromSet(key, fromScore, toScore)
		return [2]any{member, ok}, nil
	}
}

func getFirstNByLowestScoreFromSetCmd(key string, fromScore, toScore float64, count int) command {
	return func(st *MemoryState, now Time) (any, error) {
		if toScore < fromScore {
			return nil, newError("GetFirstNByLowestScoreFromSet", InvalidRange, "toScore < fromScore")
		}
		if count < 0 {
			return nil, newError("GetFirstNByLowestScoreFromSet", InvalidRange, "count must be >= 0")
		}
		return st.getFirstNByLowestScoreFromSet(key, fromScore, toScore, count), nil
	}
}

func getSetCountCmd(keys []string, limit int) command {
	return func(st *MemoryState, now Time) (any, error) {
		if limit < 0 {
			return nil, newError("GetSetCount", InvalidRange, "limit must be >= 0")
		}
		return st.getSetCount(keys, limit), nil
	}
}

func getSetTtlCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.setTtl(key, now), nil
	}
}

func getCounterCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.getCounter(key), nil
	}
}

func getCounterTtlCmd(key string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.counterTtl(key, now), nil
	}
}

func heartbeatCmd(id string) command {
	return func(st *MemoryState, now Time) (any, error) {
		if !st.heartbeat(id, now) {
			return nil, newError("Heartbeat", NotFound, "server not announced: "+id)
		}
		return nil, nil
	}
}

func removeTimedOutServersCmd(timeout time.Duration) command {
	return func(st *MemoryState, now Time) (any, error) {
		if timeout <= 0 {
			return nil, newError("RemoveTimedOutServers", InvalidArgument, "timeout must be > 0")
		}
		return st.removeTimedOutServers(now, timeout), nil
	}
}

// --- Monitoring read commands ---

func listQueuesCmd() command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.listQueues(), nil
	}
}

func queueHeadCmd(queueName string, count int) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.queueHead(queueName, count), nil
	}
}

func stateCountsCmd() command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.stateCounts(), nil
	}
}

func jobsInStateCmd(stateName string, offset, limit int) command {
	return func(st *MemoryState, now Time) (any, error) {
		if offset < 0 || limit < 0 {
			return nil, newError("GetJobsInState", InvalidRange, "offset and limit must be >= 0")
		}
		return st.jobsInState(stateName, offset, limit), nil
	}
}

func listServersCmd() command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.listServers(), nil
	}
}

// FetchedJob is the result of a successful FetchNextJob: the queue it came
// from (the first of the caller's queues, in the order given, that held a
// job) and the job key.
type FetchedJob struct {
	Queue string
	JobID string
}

// tryFetchNextJobCmd attempts one non-blocking dequeue across queues, in the
// order given, and is retried by Connection.FetchNextJob's wait loop between
// wake-ups. Wakes carry no payload; the only trustworthy source of truth for
// what's actually in a queue is this command running on the writer goroutine.
func tryFetchNextJobCmd(queues []string) command {
	return func(st *MemoryState, now Time) (any, error) {
		for _, q := range queues {
			if jobID, ok := st.dequeueHead(q); ok {
				return &FetchedJob{Queue: q, JobID: jobID}, nil
			}
		}
		return nil, nil
	}
}

// registerFetchWaiterCmd registers w against every named queue, creating the
// QueueEntry if necessary. It must run on the writer goroutine: QueueEntry
// creation mutates the map that Connection never touches directly.
func registerFetchWaiterCmd(queues []string, w *waiter) command {
	return func(st *MemoryState, now Time) (any, error) {
		for _, q := range queues {
			st.queueFor(q).waiters.register(w)
		}
		return nil, nil
	}
}

// deregisterFetchWaiterCmd removes w from every named queue's wait list,
// used after a hit, cancellation, or timeout so waiters don't accumulate on
// queues that never got written to.
func deregisterFetchWaiterCmd(queues []string, w *waiter) command {
	return func(st *MemoryState, now Time) (any, error) {
		for _, q := range queues {
			st.queueFor(q).waiters.remove(w)
		}
		return nil, nil
	}
}

// tryAcquireLockCmd makes one non-blocking acquisition attempt.
func tryAcquireLockCmd(resource, connID string) command {
	return func(st *MemoryState, now Time) (any, error) {
		return st.tryAcquireLock(resource, connID), nil
	}
}

// releaseLockCmd releases connID's hold on resource, waking a waiter if the
// release fully frees it.
func releaseLockCmd(resource, connID string) command {
	return func(st *MemoryState, now Time) (any, error) {
		st.releaseLock(resource, connID)
		return nil, nil
	}
}
