// Copyright 2025 Certen Protocol
//
// KV-backed implementation of the Object Store contract (C1). Grounded on
// the teacher's LedgerStore: same KV-key-layout and JSON-marshal-with-
// sentinel-errors idiom, now keyed by object id/version instead of block
// height, and backed by github.com/cometbft/cometbft-db via pkg/kvdb
// instead of bare system-ledger blocks.
//
// CONCURRENCY: WriteBatch holds a single mutex (mirroring the teacher's
// single-writer assumption for LedgerStore); the checkpoint, committee and
// highest-synced writers go to the KV layer without taking it. Await-on-availability
// notification uses the same in-memory waker-table pattern as
// objectstore.MemStore, since the KV layer itself has no notify primitive.

package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/types"
)

// KV defines the key-value store interface this package depends on.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

var (
	keyMeta             = []byte("objectstore:meta")
	keyObjectPrefix     = []byte("objectstore:object:")
	keyEffectsPrefix    = []byte("objectstore:effects:")
	keyCommitteePrefix  = []byte("objectstore:committee:")
	keyCheckpointSeqPfx = []byte("objectstore:checkpoint:seq:")
	keyCheckpointDigPfx = []byte("objectstore:checkpoint:digest:")
	keyContentsPrefix   = []byte("objectstore:contents:")
	keyHighestSynced    = []byte("objectstore:highest_synced")
)

func objectKeyBytes(id types.ObjectId, version types.Version) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(version))
	out := append([]byte{}, keyObjectPrefix...)
	out = append(out, id[:]...)
	return append(out, b...)
}

func effectsKeyBytes(d types.TransactionDigest) []byte {
	return append(append([]byte{}, keyEffectsPrefix...), d[:]...)
}

func committeeKeyBytes(epoch types.EpochId) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(epoch))
	return append(append([]byte{}, keyCommitteePrefix...), b...)
}

func checkpointSeqKeyBytes(seq types.CheckpointSequenceNumber) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(seq))
	return append(append([]byte{}, keyCheckpointSeqPfx...), b...)
}

func checkpointDigestKeyBytes(d types.CheckpointDigest) []byte {
	return append(append([]byte{}, keyCheckpointDigPfx...), d[:]...)
}

func contentsKeyBytes(d types.Digest) []byte {
	return append(append([]byte{}, keyContentsPrefix...), d[:]...)
}

// Store is the KV-backed Store implementation.
type Store struct {
	kv KV
	mu sync.Mutex

	objectWaiters  map[objectWaitKey][]chan struct{}
	effectsWaiters map[types.TransactionDigest][]chan struct{}
}

type objectWaitKey struct {
	id      types.ObjectId
	version types.Version
}

func NewStore(kv KV) *Store {
	return &Store{
		kv:             kv,
		objectWaiters:  make(map[objectWaitKey][]chan struct{}),
		effectsWaiters: make(map[types.TransactionDigest][]chan struct{}),
	}
}

func (s *Store) loadMeta() (*metaRecord, error) {
	b, err := s.kv.Get(keyMeta)
	if err != nil {
		return nil, fmt.Errorf("ledger: get meta: %w", err)
	}
	if len(b) == 0 {
		return &metaRecord{LatestVersions: map[string]uint64{}}, nil
	}
	var m metaRecord
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("ledger: unmarshal meta: %w", err)
	}
	if m.LatestVersions == nil {
		m.LatestVersions = map[string]uint64{}
	}
	return &m, nil
}

func (s *Store) saveMeta(m *metaRecord) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("ledger: marshal meta: %w", err)
	}
	return s.kv.Set(keyMeta, b)
}

func (s *Store) Get(_ context.Context, id types.ObjectId, version types.Version) (*types.Object, bool, error) {
	b, err := s.kv.Get(objectKeyBytes(id, version))
	if err != nil {
		return nil, false, fmt.Errorf("ledger: get object: %w", err)
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	var rec objectRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, false, fmt.Errorf("ledger: unmarshal object: %w", err)
	}
	return rec.toObject(), true, nil
}

func (s *Store) GetLatest(ctx context.Context, id types.ObjectId) (*types.Object, bool, error) {
	meta, err := s.loadMeta()
	if err != nil {
		return nil, false, err
	}
	v, ok := meta.LatestVersions[id.String()]
	if !ok {
		return nil, false, nil
	}
	return s.Get(ctx, id, types.Version(v))
}

func (s *Store) WriteBatch(_ context.Context, writes []objectstore.ObjectWrite, deletes []objectstore.ObjectDelete, effects *types.Effects) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.loadMeta()
	if err != nil {
		return err
	}

	var fired []objectWaitKey
	put := func(id types.ObjectId, version types.Version, rec *objectRecord) error {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("ledger: marshal object: %w", err)
		}
		if err := s.kv.Set(objectKeyBytes(id, version), b); err != nil {
			return fmt.Errorf("ledger: set object: %w", err)
		}
		if cur, ok := meta.LatestVersions[id.String()]; !ok || uint64(version) > cur {
			meta.LatestVersions[id.String()] = uint64(version)
		}
		fired = append(fired, objectWaitKey{id, version})
		return nil
	}

	for _, w := range writes {
		if err := put(w.Object.Id, w.Object.Version, toRecord(w.Object, false)); err != nil {
			return err
		}
	}
	for _, d := range deletes {
		tomb := toRecord(&types.Object{Id: d.ObjectId, Version: d.NewVersion}, true)
		if err := put(d.ObjectId, d.NewVersion, tomb); err != nil {
			return err
		}
	}
	if err := s.saveMeta(meta); err != nil {
		return err
	}

	if effects != nil {
		b, err := json.Marshal(toEffectsRecord(effects))
		if err != nil {
			return fmt.Errorf("ledger: marshal effects: %w", err)
		}
		if err := s.kv.Set(effectsKeyBytes(effects.TransactionDigest), b); err != nil {
			return fmt.Errorf("ledger: set effects: %w", err)
		}
		for _, ch := range s.effectsWaiters[effects.TransactionDigest] {
			close(ch)
		}
		delete(s.effectsWaiters, effects.TransactionDigest)
	}

	for _, k := range fired {
		for _, ch := range s.objectWaiters[k] {
			close(ch)
		}
		delete(s.objectWaiters, k)
		// Receiving keys are satisfied by any version >= the one they wait on.
		for wk, chs := range s.objectWaiters {
			if wk.id == k.id && wk.version < k.version {
				for _, ch := range chs {
					close(ch)
				}
				delete(s.objectWaiters, wk)
			}
		}
	}
	return nil
}

func (s *Store) objectPresent(id types.ObjectId, version types.Version) bool {
	b, err := s.kv.Get(objectKeyBytes(id, version))
	return err == nil && len(b) > 0
}

func (s *Store) latestVersion(id types.ObjectId) (types.Version, bool) {
	meta, err := s.loadMeta()
	if err != nil {
		return 0, false
	}
	v, ok := meta.LatestVersions[id.String()]
	return types.Version(v), ok
}

func (s *Store) satisfied(ik objectstore.InputKey) bool {
	if ik.Receiving {
		v, ok := s.latestVersion(ik.ObjectId)
		return ok && v >= ik.Version
	}
	return s.objectPresent(ik.ObjectId, ik.Version)
}

func (s *Store) NotifyReadInputObjects(ctx context.Context, inputKeys []objectstore.InputKey, _ map[types.ObjectId]bool, _ types.EpochId) <-chan error {
	out := make(chan error, 1)

	wait := func() []chan struct{} {
		s.mu.Lock()
		defer s.mu.Unlock()
		var pending []chan struct{}
		for _, ik := range inputKeys {
			if s.satisfied(ik) {
				continue
			}
			ch := make(chan struct{})
			key := objectWaitKey{ik.ObjectId, ik.Version}
			s.objectWaiters[key] = append(s.objectWaiters[key], ch)
			pending = append(pending, ch)
		}
		return pending
	}

	pending := wait()
	if len(pending) == 0 {
		out <- nil
		return out
	}

	go func() {
		for {
			for _, ch := range pending {
				select {
				case <-ch:
				case <-ctx.Done():
					out <- ctx.Err()
					return
				}
			}
			remaining := wait()
			if len(remaining) == 0 {
				out <- nil
				return
			}
			pending = remaining
		}
	}()
	return out
}

func (s *Store) NotifyReadExecutedEffects(ctx context.Context, digests []types.TransactionDigest) <-chan objectstore.NotifyEffectsResult {
	out := make(chan objectstore.NotifyEffectsResult, 1)

	hasEffects := func(d types.TransactionDigest) bool {
		b, err := s.kv.Get(effectsKeyBytes(d))
		return err == nil && len(b) > 0
	}

	s.mu.Lock()
	var pending []chan struct{}
	for _, d := range digests {
		if hasEffects(d) {
			continue
		}
		ch := make(chan struct{})
		s.effectsWaiters[d] = append(s.effectsWaiters[d], ch)
		pending = append(pending, ch)
	}
	s.mu.Unlock()

	collect := func() objectstore.NotifyEffectsResult {
		result := make([]*types.Effects, 0, len(digests))
		for _, d := range digests {
			b, err := s.kv.Get(effectsKeyBytes(d))
			if err != nil || len(b) == 0 {
				result = append(result, nil)
				continue
			}
			var rec effectsRecord
			if err := json.Unmarshal(b, &rec); err != nil {
				result = append(result, nil)
				continue
			}
			result = append(result, rec.toEffects())
		}
		return objectstore.NotifyEffectsResult{Effects: result}
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
				out <- objectstore.NotifyEffectsResult{Err: ctx.Err()}
				return
			}
		}
		out <- collect()
	}()
	return out
}

func (s *Store) GetCommittee(epoch types.EpochId) (*types.Committee, bool) {
	b, err := s.kv.Get(committeeKeyBytes(epoch))
	if err != nil || len(b) == 0 {
		return nil, false
	}
	var c types.Committee
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, false
	}
	return &c, true
}

// SetCommittee is a bootstrap/test helper (committee election is out of scope).
func (s *Store) SetCommittee(c *types.Committee) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("ledger: marshal committee: %w", err)
	}
	return s.kv.Set(committeeKeyBytes(c.Epoch), b)
}

func (s *Store) InsertCheckpoint(_ context.Context, summary *types.CertifiedCheckpointSummary, contents *types.CheckpointContents) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("ledger: marshal checkpoint: %w", err)
	}
	if err := s.kv.Set(checkpointSeqKeyBytes(summary.Summary.Sequence), b); err != nil {
		return fmt.Errorf("ledger: set checkpoint by seq: %w", err)
	}
	digest := summary.Summary.Digest()
	if err := s.kv.Set(checkpointDigestKeyBytes(digest), b); err != nil {
		return fmt.Errorf("ledger: set checkpoint by digest: %w", err)
	}
	if contents != nil {
		cb, err := json.Marshal(contents)
		if err != nil {
			return fmt.Errorf("ledger: marshal contents: %w", err)
		}
		if err := s.kv.Set(contentsKeyBytes(summary.Summary.ContentDigest), cb); err != nil {
			return fmt.Errorf("ledger: set contents: %w", err)
		}
	}
	return nil
}

func (s *Store) UpdateHighestSyncedCheckpoint(_ context.Context, seq types.CheckpointSequenceNumber) error {
	b, err := s.kv.Get(keyHighestSynced)
	if err == nil && len(b) == 8 {
		cur := binary.BigEndian.Uint64(b)
		if uint64(seq) <= cur {
			return fmt.Errorf("ledger: highest synced checkpoint must advance strictly (have %d, got %d)", cur, seq)
		}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return s.kv.Set(keyHighestSynced, buf)
}

func (s *Store) GetFullCheckpointContents(_ context.Context, contentDigest types.Digest) (*types.CheckpointContents, bool, error) {
	b, err := s.kv.Get(contentsKeyBytes(contentDigest))
	if err != nil {
		return nil, false, fmt.Errorf("ledger: get contents: %w", err)
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	var c types.CheckpointContents
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, false, fmt.Errorf("ledger: unmarshal contents: %w", err)
	}
	return &c, true, nil
}

func (s *Store) HighestSyncedCheckpoint() types.CheckpointSequenceNumber {
	b, err := s.kv.Get(keyHighestSynced)
	if err != nil || len(b) != 8 {
		return 0
	}
	return types.CheckpointSequenceNumber(binary.BigEndian.Uint64(b))
}

func (s *Store) GetCheckpointBySequence(seq types.CheckpointSequenceNumber) (*types.CertifiedCheckpointSummary, bool) {
	b, err := s.kv.Get(checkpointSeqKeyBytes(seq))
	if err != nil || len(b) == 0 {
		return nil, false
	}
	var c types.CertifiedCheckpointSummary
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, false
	}
	return &c, true
}

func (s *Store) GetCheckpointByDigest(digest types.CheckpointDigest) (*types.CertifiedCheckpointSummary, bool) {
	b, err := s.kv.Get(checkpointDigestKeyBytes(digest))
	if err != nil || len(b) == 0 {
		return nil, false
	}
	var c types.CertifiedCheckpointSummary
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, false
	}
	return &c, true
}

func (s *Store) LatestCheckpoint() (*types.CertifiedCheckpointSummary, bool) {
	seq := s.HighestSyncedCheckpoint()
	return s.GetCheckpointBySequence(seq)
}

var _ objectstore.Store = (*Store)(nil)
