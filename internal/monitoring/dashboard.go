// Package monitoring is a read-only façade over engine.Connection
// composing the dashboard views described in the engine's monitoring
// surface: queue listings, per-state job counts, a server roster, and
// throughput buckets for sparkline charts. It never mutates the engine.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/bobmcallan/vire-engine/internal/engine"
)

// queueHeadDepth bounds how many head jobs the dashboard previews per queue.
const queueHeadDepth = 5

// trackedStates are the standard job states the dashboard offers throughput
// series for. ThroughputByDay/ThroughputByHour accept any state name,
// including a caller's own custom IState names.
var trackedStates = []string{"Succeeded", "Failed", "Processing", "Enqueued", "Scheduled", "Deleted"}

// Dashboard composes engine.Connection reads into the views an operator
// console needs. It holds no state of its own beyond the connection.
type Dashboard struct {
	conn *engine.Connection
}

// New returns a Dashboard reading through conn.
func New(conn *engine.Connection) *Dashboard {
	return &Dashboard{conn: conn}
}

// QueueView is one row of the dashboard's queue listing, plus a preview of
// its head jobs.
type QueueView struct {
	Name   string
	Length int
	Head   []string
}

// Snapshot is the full point-in-time dashboard payload.
type Snapshot struct {
	Queues      []QueueView
	StateCounts map[string]int
	Servers     []engine.ServerSummary
	TakenAt     time.Time
}

// Snapshot gathers every dashboard view in one pass.
func (d *Dashboard) Snapshot(ctx context.Context) (*Snapshot, error) {
	queues, err := d.conn.ListQueues(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]QueueView, 0, len(queues))
	for _, q := range queues {
		head, err := d.conn.GetQueueHead(ctx, q.Name, queueHeadDepth)
		if err != nil {
			return nil, err
		}
		views = append(views, QueueView{Name: q.Name, Length: q.Length, Head: head})
	}

	counts, err := d.conn.GetStateCounts(ctx)
	if err != nil {
		return nil, err
	}

	servers, err := d.conn.ListServers(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Queues:      views,
		StateCounts: counts,
		Servers:     servers,
		TakenAt:     d.conn.GetUtcDateTime(),
	}, nil
}

// JobPage is one page of the dashboard's per-state job browser.
type JobPage struct {
	State  string
	Offset int
	Limit  int
	Keys   []string
}

// JobsInState pages through job keys currently in stateName.
func (d *Dashboard) JobsInState(ctx context.Context, stateName string, offset, limit int) (*JobPage, error) {
	keys, err := d.conn.GetJobsInState(ctx, stateName, offset, limit)
	if err != nil {
		return nil, err
	}
	return &JobPage{State: stateName, Offset: offset, Limit: limit, Keys: keys}, nil
}

// Bucket is one time-bucketed throughput count.
type Bucket struct {
	Label string
	Count int
}

// ThroughputByDay buckets every job currently in stateName by the calendar
// day (UTC) its CreatedAt falls on. It samples at most sampleLimit jobs
// per state to bound the work a dashboard refresh does against a large
// engine; a sampleLimit of 0 or less samples at most 5000 jobs.
//
// This reports job creation day, not the day of the state transition
// itself: StateData carries no per-transition timestamp (the engine never
// timestamps individual history entries), so CreatedAt is the only
// timestamp available to bucket by.
func (d *Dashboard) ThroughputByDay(ctx context.Context, stateName string, sampleLimit int) ([]Bucket, error) {
	return d.throughput(ctx, stateName, sampleLimit, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
}

// ThroughputByHour is ThroughputByDay bucketed to the hour instead of the
// day, for a finer-grained sparkline over a shorter recent window.
func (d *Dashboard) ThroughputByHour(ctx context.Context, stateName string, sampleLimit int) ([]Bucket, error) {
	return d.throughput(ctx, stateName, sampleLimit, func(t time.Time) string {
		return t.Format("2006-01-02T15")
	})
}

func (d *Dashboard) throughput(ctx context.Context, stateName string, sampleLimit int, bucketOf func(time.Time) string) ([]Bucket, error) {
	if sampleLimit <= 0 {
		sampleLimit = 5000
	}
	keys, err := d.conn.GetJobsInState(ctx, stateName, 0, sampleLimit)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, key := range keys {
		data, err := d.conn.GetJobData(ctx, key)
		if err != nil {
			// evicted between listing and read: skip rather than fail the
			// whole dashboard refresh.
			continue
		}
		if data == nil {
			// same race, reported as an absent job rather than an error.
			continue
		}
		counts[bucketOf(data.CreatedAt.UTC())]++
	}

	out := make([]Bucket, 0, len(counts))
	for label, count := range counts {
		out = append(out, Bucket{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// TrackedStates returns the standard state names the dashboard offers
// throughput series for.
func TrackedStates() []string {
	out := make([]string, len(trackedStates))
	copy(out, trackedStates)
	return out
}
