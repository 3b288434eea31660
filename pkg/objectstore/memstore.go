package objectstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/objectvalidator/pkg/types"
)

// objectKey identifies one (id, version) slot.
type objectKey struct {
	id      types.ObjectId
	version types.Version
}

// MemStore is an in-process reference implementation of Store, used by
// every other component's tests. Notification on availability follows the
// waker-table pattern spec §9 suggests: a per-key list of channels, closed
// (broadcast, one-shot) when the key's condition becomes true. No pack
// library offers this narrow a primitive (see DESIGN.md), so it is built
// directly on sync.Mutex + chan struct{}, matching the mutex-guarded-map
// discipline the teacher's pkg/ledger already uses for its own state.
type MemStore struct {
	mu sync.Mutex

	objects map[objectKey]*types.Object
	latest  map[types.ObjectId]types.Version // highest known version per id, including tombstones
	effects map[types.TransactionDigest]*types.Effects

	committees map[types.EpochId]*types.Committee

	checkpointsBySeq    map[types.CheckpointSequenceNumber]*types.CertifiedCheckpointSummary
	checkpointsByDigest map[types.CheckpointDigest]*types.CertifiedCheckpointSummary
	contents            map[types.Digest]*types.CheckpointContents
	highestSynced       types.CheckpointSequenceNumber
	haveHighestSynced   bool

	// objectWaiters fires when an (id, version) slot is written, or when the
	// same id is written at a higher version (for receiving keys).
	objectWaiters map[objectKey][]chan struct{}
	// effectsWaiters fires when a digest's effects are recorded.
	effectsWaiters map[types.TransactionDigest][]chan struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects:             make(map[objectKey]*types.Object),
		latest:              make(map[types.ObjectId]types.Version),
		effects:             make(map[types.TransactionDigest]*types.Effects),
		committees:          make(map[types.EpochId]*types.Committee),
		checkpointsBySeq:    make(map[types.CheckpointSequenceNumber]*types.CertifiedCheckpointSummary),
		checkpointsByDigest: make(map[types.CheckpointDigest]*types.CertifiedCheckpointSummary),
		contents:            make(map[types.Digest]*types.CheckpointContents),
		objectWaiters:       make(map[objectKey][]chan struct{}),
		effectsWaiters:      make(map[types.TransactionDigest][]chan struct{}),
	}
}

func (s *MemStore) Get(_ context.Context, id types.ObjectId, version types.Version) (*types.Object, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectKey{id, version}]
	return obj, ok, nil
}

func (s *MemStore) GetLatest(_ context.Context, id types.ObjectId) (*types.Object, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.latest[id]
	if !ok {
		return nil, false, nil
	}
	obj, ok := s.objects[objectKey{id, v}]
	return obj, ok, nil
}

// SeedObject is a test helper to place an object directly, bypassing the
// transactional write path (for constructing initial fixtures).
func (s *MemStore) SeedObject(obj *types.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setObjectLocked(obj)
}

func (s *MemStore) setObjectLocked(obj *types.Object) {
	key := objectKey{obj.Id, obj.Version}
	s.objects[key] = obj
	if cur, ok := s.latest[obj.Id]; !ok || obj.Version > cur {
		s.latest[obj.Id] = obj.Version
	}
	for _, ch := range s.objectWaiters[key] {
		close(ch)
	}
	delete(s.objectWaiters, key)
	// Receiving keys are satisfied by any version >= the one they wait on.
	for k, chs := range s.objectWaiters {
		if k.id == obj.Id && k.version < obj.Version {
			for _, ch := range chs {
				close(ch)
			}
			delete(s.objectWaiters, k)
		}
	}
}

func (s *MemStore) WriteBatch(_ context.Context, writes []ObjectWrite, deletes []ObjectDelete, effects *types.Effects) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if w.Object.Version == 0 {
			return fmt.Errorf("objectstore: write with zero version for %s", w.Object.Id)
		}
		s.setObjectLocked(w.Object)
	}
	for _, d := range deletes {
		tomb := &types.Object{Id: d.ObjectId, Version: d.NewVersion}
		s.setObjectLocked(tomb)
	}
	if effects != nil {
		s.effects[effects.TransactionDigest] = effects
		for _, ch := range s.effectsWaiters[effects.TransactionDigest] {
			close(ch)
		}
		delete(s.effectsWaiters, effects.TransactionDigest)
	}
	return nil
}

func (s *MemStore) NotifyReadInputObjects(ctx context.Context, inputKeys []InputKey, receivingKeys map[types.ObjectId]bool, _ types.EpochId) <-chan error {
	out := make(chan error, 1)
	s.mu.Lock()

	var pending []chan struct{}
	allSatisfied := true
	for _, ik := range inputKeys {
		if s.satisfiedLocked(ik) {
			continue
		}
		allSatisfied = false
		ch := make(chan struct{})
		key := objectKey{ik.ObjectId, ik.Version}
		s.objectWaiters[key] = append(s.objectWaiters[key], ch)
		pending = append(pending, ch)
	}
	s.mu.Unlock()

	if allSatisfied {
		out <- nil
		return out
	}

	go func() {
		for _, ch := range pending {
			select {
			case <-ch:
			case <-ctx.Done():
				out <- ctx.Err()
				return
			}
		}
		// Re-check: a waiter firing once doesn't guarantee the exact
		// version we wanted showed up (could've been a different write
		// racing the same key bucket); loop until truly satisfied.
		for {
			s.mu.Lock()
			done := true
			var retry []chan struct{}
			for _, ik := range inputKeys {
				if !s.satisfiedLocked(ik) {
					done = false
					ch := make(chan struct{})
					key := objectKey{ik.ObjectId, ik.Version}
					s.objectWaiters[key] = append(s.objectWaiters[key], ch)
					retry = append(retry, ch)
				}
			}
			s.mu.Unlock()
			if done {
				out <- nil
				return
			}
			for _, ch := range retry {
				select {
				case <-ch:
				case <-ctx.Done():
					out <- ctx.Err()
					return
				}
			}
		}
	}()
	return out
}

// satisfiedLocked reports whether an InputKey's availability condition
// already holds. Must be called with s.mu held.
func (s *MemStore) satisfiedLocked(ik InputKey) bool {
	if ik.Receiving {
		latest, ok := s.latest[ik.ObjectId]
		return ok && latest >= ik.Version
	}
	_, ok := s.objects[objectKey{ik.ObjectId, ik.Version}]
	return ok
}

func (s *MemStore) NotifyReadExecutedEffects(ctx context.Context, digests []types.TransactionDigest) <-chan NotifyEffectsResult {
	out := make(chan NotifyEffectsResult, 1)

	s.mu.Lock()
	var pending []chan struct{}
	for _, d := range digests {
		if _, ok := s.effects[d]; ok {
			continue
		}
		ch := make(chan struct{})
		s.effectsWaiters[d] = append(s.effectsWaiters[d], ch)
		pending = append(pending, ch)
	}
	s.mu.Unlock()

	collect := func() NotifyEffectsResult {
		s.mu.Lock()
		defer s.mu.Unlock()
		result := make([]*types.Effects, 0, len(digests))
		for _, d := range digests {
			result = append(result, s.effects[d])
		}
		return NotifyEffectsResult{Effects: result}
	}

	if len(pending) == 0 {
		out <- collect()
		return out
	}

	go func() {
		for _, ch := range pending {
			select {
			case <-ch:
			case <-ctx.Done():
				out <- NotifyEffectsResult{Err: ctx.Err()}
				return
			}
		}
		out <- collect()
	}()
	return out
}

func (s *MemStore) GetCommittee(epoch types.EpochId) (*types.Committee, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.committees[epoch]
	return c, ok
}

// SetCommittee is a test/bootstrap helper.
func (s *MemStore) SetCommittee(c *types.Committee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committees[c.Epoch] = c
}

func (s *MemStore) InsertCheckpoint(_ context.Context, summary *types.CertifiedCheckpointSummary, contents *types.CheckpointContents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	digest := summary.Summary.Digest()
	s.checkpointsBySeq[summary.Summary.Sequence] = summary
	s.checkpointsByDigest[digest] = summary
	if contents != nil {
		s.contents[summary.Summary.ContentDigest] = contents
	}
	return nil
}

func (s *MemStore) UpdateHighestSyncedCheckpoint(_ context.Context, seq types.CheckpointSequenceNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveHighestSynced && seq <= s.highestSynced {
		return fmt.Errorf("objectstore: highest synced checkpoint must advance strictly (have %d, got %d)", s.highestSynced, seq)
	}
	s.highestSynced = seq
	s.haveHighestSynced = true
	return nil
}

func (s *MemStore) GetFullCheckpointContents(_ context.Context, contentDigest types.Digest) (*types.CheckpointContents, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[contentDigest]
	return c, ok, nil
}

func (s *MemStore) HighestSyncedCheckpoint() types.CheckpointSequenceNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highestSynced
}

func (s *MemStore) GetCheckpointBySequence(seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkpointsBySeq[seq]
	return c, ok
}

func (s *MemStore) GetCheckpointByDigest(digest types.CheckpointDigest) (*types.CertifiedCheckpointSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checkpointsByDigest[digest]
	return c, ok
}

func (s *MemStore) LatestCheckpoint() (*types.CertifiedCheckpointSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *types.CertifiedCheckpointSummary
	for _, c := range s.checkpointsBySeq {
		if best == nil || c.Summary.Sequence > best.Summary.Sequence {
			best = c
		}
	}
	return best, best != nil
}

var _ Store = (*MemStore)(nil)
