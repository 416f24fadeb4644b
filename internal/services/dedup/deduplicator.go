package dedup

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aurum/internal/models"
)

// Verdict reasons
const (
	ReasonIdentity      = "identity"
	ReasonSeen          = "seen"
	ReasonNearDuplicate = "near_duplicate"
	ReasonSemantic      = "semantic"
)

// Verdict is the outcome of a duplicate check
type Verdict struct {
	Duplicate  bool
	Reason     string
	MatchID    string
	Distance   int
	Similarity float64
}

// IdentityChecker reports whether a source id or url is already persisted
type IdentityChecker interface {
	IsDuplicate(ctx context.Context, sourceID, url string) (bool, error)
}

// State is the serializable part of a Deduplicator, persisted between live runs
type State struct {
	Seen         []string           `json:"seen"`
	Fingerprints []FingerprintEntry `json:"fingerprints"`
}

// Deduplicator is the two-stage gate in front of classification: an identity
// check against the store and run-local seen set, then a SimHash near-duplicate
// check against the rolling fingerprint history. Check and admission happen
// under one lock so concurrent sources cannot both admit the same story.
type Deduplicator struct {
	mu        sync.Mutex
	store     IdentityChecker
	seen      *BoundedSet
	history   *FingerprintHistory
	threshold int
	logger    arbor.ILogger
}

// NewDeduplicator creates the gate. threshold is the Hamming distance below
// which two fingerprints are considered the same story.
func NewDeduplicator(store IdentityChecker, historySize, threshold int, logger arbor.ILogger) *Deduplicator {
	if threshold <= 0 {
		threshold = 3
	}
	return &Deduplicator{
		store:     store,
		seen:      NewBoundedSet(historySize),
		history:   NewFingerprintHistory(historySize),
		threshold: threshold,
		logger:    logger,
	}
}

// Admit runs both stages and, when the item passes, records its identity and
// fingerprint. Every item is marked seen regardless of the verdict.
func (d *Deduplicator) Admit(ctx context.Context, item *models.RawItem) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v := d.checkIdentity(ctx, item); v.Duplicate {
		d.seen.Add(item.SourceID)
		return v
	}

	fp, ok := SimHash(item.Content)
	if !ok {
		// Nothing to fingerprint: let it through rather than drop real news
		d.seen.Add(item.SourceID)
		return Verdict{}
	}

	if match, dist, found := d.history.Nearest(fp); found && dist < d.threshold {
		d.seen.Add(item.SourceID)
		return Verdict{Duplicate: true, Reason: ReasonNearDuplicate, MatchID: match.ID, Distance: dist}
	}

	d.seen.Add(item.SourceID)
	d.history.Add(item.SourceID, fp)
	return Verdict{}
}

// Filter admits items in order and returns the survivors
func (d *Deduplicator) Filter(ctx context.Context, items []*models.RawItem) []*models.RawItem {
	out := make([]*models.RawItem, 0, len(items))
	for _, item := range items {
		v := d.Admit(ctx, item)
		if v.Duplicate {
			d.logger.Debug().
				Str("source_id", item.SourceID).
				Str("author", item.Author).
				Str("reason", v.Reason).
				Str("match_id", v.MatchID).
				Int("distance", v.Distance).
				Msg("Dropping duplicate item")
			continue
		}
		out = append(out, item)
	}
	return out
}

func (d *Deduplicator) checkIdentity(ctx context.Context, item *models.RawItem) Verdict {
	if item == nil || (item.SourceID == "" && item.URL == "") {
		return Verdict{}
	}

	if item.SourceID != "" && d.seen.Contains(item.SourceID) {
		return Verdict{Duplicate: true, Reason: ReasonSeen, MatchID: item.SourceID}
	}

	if d.store == nil {
		return Verdict{}
	}

	dup, err := d.store.IsDuplicate(ctx, item.SourceID, item.URL)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("source_id", item.SourceID).
			Msg("Identity check failed, treating item as new")
		return Verdict{}
	}
	if dup {
		return Verdict{Duplicate: true, Reason: ReasonIdentity, MatchID: item.SourceID}
	}
	return Verdict{}
}

// Snapshot exports the seen ids and fingerprints
func (d *Deduplicator) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{
		Seen:         d.seen.Items(),
		Fingerprints: d.history.Entries(),
	}
}

// Restore replaces the in-memory state
func (d *Deduplicator) Restore(state State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Load(state.Seen)
	d.history.Load(state.Fingerprints)
}

// Prime adds fingerprints for already persisted records, oldest first, so a
// resumed run compares new items against what earlier runs admitted. Records
// are not marked seen; the store answers identity for them. Returns the
// number of fingerprints added.
func (d *Deduplicator) Prime(records []*models.IntelligenceRecord) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		fp, ok := SimHash(rec.Content)
		if !ok {
			continue
		}
		d.history.Add(rec.SourceID, fp)
		n++
	}
	return n
}
