// Package tracestore holds the per-trace state of the tail sampler: traces
// that are buffered while their decision is pending, and the decisions that
// have been made for recent traces.
//
// A trace id is at most one of unseen, buffered or decided at any instant.
// The store is split into shards, each guarded by its own mutex, so that
// operations on different trace ids do not contend.
package tracestore

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgryski/go-wyhash"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"

	"github.com/honeycombio/traceguard/generics"
)

// maxSpanSummaries bounds the span summaries kept per buffered trace; later
// spans are only counted.
const maxSpanSummaries = 64

// SpanSummary is what the store remembers about one span of a buffered
// trace.
type SpanSummary struct {
	Name    string
	Kind    trace.SpanKind
	Service string
	Error   bool
}

// Record is a trace whose decision is pending.
type Record struct {
	TraceID   trace.TraceID
	Created   time.Time
	Spans     []SpanSummary
	SpanCount int
	Services  generics.Set[string]
	HasError  bool
}

func (r *Record) add(s SpanSummary) {
	r.SpanCount++
	if len(r.Spans) < maxSpanSummaries {
		r.Spans = append(r.Spans, s)
	}
	if s.Service != "" {
		r.Services.Add(s.Service)
	}
	r.HasError = r.HasError || s.Error
}

// Decision is the outcome stored for a decided trace. DecidedAt is stamped
// by the store.
type Decision struct {
	Keep      bool
	Priority  int
	Mechanism int
	// Rate is the sampling probability that produced the decision, when
	// HasRate is set.
	Rate      float64
	HasRate   bool
	Reason    string
	DecidedAt time.Time
}

// BufferResult is the outcome of Buffer.
type BufferResult int

const (
	// Buffered means the span was added to a new or existing pending record.
	Buffered BufferResult = iota
	// AlreadyDecided means the trace has a decision; it is returned alongside.
	AlreadyDecided
	// Full means the trace was unseen and the buffer is at capacity.
	Full
)

func (b BufferResult) String() string {
	switch b {
	case Buffered:
		return "buffered"
	case AlreadyDecided:
		return "decided"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

type Options struct {
	Shards      int
	MaxBuffered int
	MaxDecided  int
}

type shard struct {
	mut      sync.Mutex
	buffered map[trace.TraceID]*Record
	// decided is ordered by DecidedAt because every write stamps the current
	// time and reads use Peek, which does not change the order. Its own size
	// limit is never the binding one; the store-wide count is.
	decided *lru.Cache[trace.TraceID, Decision]
}

// Store is the buffered and decided trace state of one tail sampler.
type Store struct {
	clock       clockwork.Clock
	shards      []*shard
	seed        uint64
	maxBuffered int64
	maxDecided  int64
	buffered    atomic.Int64
	decided     atomic.Int64
	evicted     atomic.Int64
}

func New(opts Options, clock clockwork.Clock) *Store {
	if opts.Shards < 1 {
		opts.Shards = 1
	}
	maxDecided := max(opts.MaxDecided, 1)
	s := &Store{
		clock:       clock,
		shards:      make([]*shard, opts.Shards),
		seed:        rand.Uint64(),
		maxBuffered: int64(opts.MaxBuffered),
		maxDecided:  int64(maxDecided),
	}
	for i := range s.shards {
		// any one shard may hold every decision
		cache, err := lru.New[trace.TraceID, Decision](maxDecided)
		if err != nil {
			// only possible for a non-positive size
			panic(err)
		}
		s.shards[i] = &shard{
			buffered: make(map[trace.TraceID]*Record),
			decided:  cache,
		}
	}
	return s
}

func (s *Store) shardFor(id trace.TraceID) *shard {
	h := wyhash.Hash(id[:], s.seed)
	return s.shards[h%uint64(len(s.shards))]
}

// reserve claims one slot of counter, failing when it has reached limit.
func reserve(counter *atomic.Int64, limit int64) bool {
	for {
		cur := counter.Load()
		if cur >= limit {
			return false
		}
		if counter.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Decided returns the stored decision for id.
func (s *Store) Decided(id trace.TraceID) (Decision, bool) {
	sh := s.shardFor(id)
	sh.mut.Lock()
	defer sh.mut.Unlock()
	return sh.decided.Peek(id)
}

// Buffer records a span of a trace whose decision is pending. If the trace
// already has a decision it is returned with AlreadyDecided. An unseen trace
// is only buffered when there is room.
func (s *Store) Buffer(id trace.TraceID, span SpanSummary) (BufferResult, Decision) {
	sh := s.shardFor(id)
	sh.mut.Lock()
	defer sh.mut.Unlock()

	if d, ok := sh.decided.Peek(id); ok {
		return AlreadyDecided, d
	}
	if rec, ok := sh.buffered[id]; ok {
		rec.add(span)
		return Buffered, Decision{}
	}
	if !reserve(&s.buffered, s.maxBuffered) {
		return Full, Decision{}
	}
	rec := &Record{
		TraceID:  id,
		Created:  s.clock.Now(),
		Services: generics.NewSet[string](),
	}
	rec.add(span)
	sh.buffered[id] = rec
	return Buffered, Decision{}
}

// Decide stores d for id unless a decision already exists, in which case the
// existing decision wins. Any buffered record for id is removed. It returns
// the decision in effect and whether d was stored.
func (s *Store) Decide(id trace.TraceID, d Decision) (Decision, bool) {
	sh := s.shardFor(id)
	sh.mut.Lock()
	defer sh.mut.Unlock()

	if existing, ok := sh.decided.Peek(id); ok {
		return existing, false
	}
	s.removeBuffered(sh, id)
	d.DecidedAt = s.clock.Now()
	s.addDecided(sh, id, d)
	return d, true
}

// Force replaces whatever state id has with d. It returns false, and stores
// nothing, when the trace is neither buffered nor decided.
func (s *Store) Force(id trace.TraceID, d Decision) bool {
	sh := s.shardFor(id)
	sh.mut.Lock()
	defer sh.mut.Unlock()

	_, buffered := sh.buffered[id]
	if !buffered && !sh.decided.Contains(id) {
		return false
	}
	s.removeBuffered(sh, id)
	d.DecidedAt = s.clock.Now()
	// Remove first so the entry moves to the newest end of the order.
	s.removeDecided(sh, id)
	s.addDecided(sh, id, d)
	return true
}

// call with the shard lock held
func (s *Store) removeBuffered(sh *shard, id trace.TraceID) {
	if _, ok := sh.buffered[id]; ok {
		delete(sh.buffered, id)
		s.buffered.Add(-1)
	}
}

// call with the shard lock held
func (s *Store) removeDecided(sh *shard, id trace.TraceID) {
	if sh.decided.Remove(id) {
		s.decided.Add(-1)
	}
}

// addDecided stores a decision for an id that has none. Only when the store
// already holds MaxDecided decisions is an old one evicted to make room.
// Call with the shard lock held.
func (s *Store) addDecided(sh *shard, id trace.TraceID, d Decision) {
	if !reserve(&s.decided, s.maxDecided) && !s.evictOldest(sh) {
		// every other shard was busy and this one is empty; go over the
		// limit by one rather than wait
		s.decided.Add(1)
	}
	if sh.decided.Add(id, d) {
		s.decided.Add(-1)
		s.evicted.Add(1)
	}
}

// evictOldest drops the oldest decision of sh, or of the first other shard
// that is not locked when sh has none. The store-wide count is unchanged
// because the caller takes the freed slot. Call with sh's lock held.
func (s *Store) evictOldest(sh *shard) bool {
	if _, _, ok := sh.decided.RemoveOldest(); ok {
		s.evicted.Add(1)
		return true
	}
	for _, other := range s.shards {
		if other == sh || !other.mut.TryLock() {
			continue
		}
		_, _, ok := other.decided.RemoveOldest()
		other.mut.Unlock()
		if ok {
			s.evicted.Add(1)
			return true
		}
	}
	return false
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Promoted int
	Expired  int
}

// Sweep promotes every buffered record at least timeout old to a decision
// produced by fallback, and evicts every decision at least timeout old.
// Decisions made by this sweep are not evicted by it.
func (s *Store) Sweep(timeout time.Duration, fallback func(*Record) Decision) SweepResult {
	var res SweepResult
	now := s.clock.Now()
	cutoff := now.Add(-timeout)
	for _, sh := range s.shards {
		sh.mut.Lock()
		for {
			id, d, ok := sh.decided.GetOldest()
			if !ok || d.DecidedAt.After(cutoff) {
				break
			}
			s.removeDecided(sh, id)
			res.Expired++
		}
		for id, rec := range sh.buffered {
			if rec.Created.After(cutoff) {
				continue
			}
			d := fallback(rec)
			d.DecidedAt = now
			delete(sh.buffered, id)
			s.buffered.Add(-1)
			s.addDecided(sh, id, d)
			res.Promoted++
		}
		sh.mut.Unlock()
	}
	return res
}

// Stats describes the size of the store.
type Stats struct {
	Buffered    int   `json:"buffered"`
	Decided     int   `json:"decided"`
	Shards      int   `json:"shards"`
	Evicted     int64 `json:"evicted"`
	ApproxBytes int64 `json:"approx_bytes"`
}

// rough per-entry sizes used for ApproxBytes
const (
	recordBytes   = 160
	summaryBytes  = 64
	serviceBytes  = 32
	decisionBytes = 96
)

func (s *Store) Stats() Stats {
	st := Stats{Shards: len(s.shards), Evicted: s.evicted.Load()}
	for _, sh := range s.shards {
		sh.mut.Lock()
		st.Buffered += len(sh.buffered)
		st.Decided += sh.decided.Len()
		for _, rec := range sh.buffered {
			st.ApproxBytes += recordBytes + int64(len(rec.Spans))*summaryBytes + int64(len(rec.Services))*serviceBytes
			for _, sp := range rec.Spans {
				st.ApproxBytes += int64(len(sp.Name) + len(sp.Service))
			}
		}
		st.ApproxBytes += int64(sh.decided.Len()) * decisionBytes
		sh.mut.Unlock()
	}
	return st
}

// Clear removes every buffered record and decision.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mut.Lock()
		s.buffered.Add(-int64(len(sh.buffered)))
		clear(sh.buffered)
		s.decided.Add(-int64(sh.decided.Len()))
		sh.decided.Purge()
		sh.mut.Unlock()
	}
}
