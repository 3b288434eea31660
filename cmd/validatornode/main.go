// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/objectvalidator/pkg/config"
	"github.com/certen/objectvalidator/pkg/database"
	"github.com/certen/objectvalidator/pkg/execution"
	"github.com/certen/objectvalidator/pkg/kvdb"
	"github.com/certen/objectvalidator/pkg/ledger"
	"github.com/certen/objectvalidator/pkg/metrics"
	"github.com/certen/objectvalidator/pkg/objectstore"
	"github.com/certen/objectvalidator/pkg/orchestrator"
	"github.com/certen/objectvalidator/pkg/scheduler"
	"github.com/certen/objectvalidator/pkg/server"
	"github.com/certen/objectvalidator/pkg/statesync"
	"github.com/certen/objectvalidator/pkg/statesyncclient"
	"github.com/certen/objectvalidator/pkg/types"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		validatorID = flag.String("validator-id", "", "Validator ID (overrides VALIDATOR_ID env var)")
		configPath  = flag.String("config", "", "Path to a YAML config overlay (optional)")
		showHelp    = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.LoadWithFileOverlay(*configPath)
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}
	if *validatorID != "" {
		cfg.ValidatorID = *validatorID
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("config validation warning: %v", err)
	}
	log.Printf("starting validator %s (chain %s, network %s)", cfg.ValidatorID, cfg.ChainID, cfg.NetworkName)

	privateKey, err := loadOrGenerateEd25519Key(cfg)
	if err != nil {
		log.Fatal("failed to load/generate ed25519 key:", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)
	log.Printf("ed25519 key loaded: public key = %s...", hex.EncodeToString(publicKey)[:16])

	var dbClient *database.Client
	if cfg.DatabaseURL != "" {
		dbClient, err = database.NewClient(cfg, database.WithLogger(log.New(log.Writer(), "[database] ", log.LstdFlags)))
		if err != nil {
			if cfg.DatabaseRequired {
				log.Fatalf("database connection required but failed: %v", err)
			}
			log.Printf("database connection failed, falling back to file-backed pending log: %v", err)
			dbClient = nil
		} else if err := dbClient.MigrateUp(context.Background()); err != nil {
			log.Printf("database migration warning: %v", err)
		}
	}

	var pendingLog orchestrator.PendingLog
	if dbClient != nil {
		pendingLog = database.NewPendingTxLog(dbClient)
	} else {
		fileLog, err := orchestrator.NewFileLog(cfg.DataDir)
		if err != nil {
			log.Fatal("failed to create pending-transaction log:", err)
		}
		pendingLog = fileLog
	}

	registry := prometheus.NewRegistry()
	schedulerMetrics := metrics.NewScheduler(registry)
	orchestratorMetrics := metrics.NewOrchestrator(registry)
	statesyncMetrics := metrics.NewStateSync(registry)

	epoch := types.EpochId(0)
	committee := &types.Committee{
		Epoch: epoch,
		Validators: []types.Validator{
			{ID: cfg.ValidatorID, PublicKey: publicKey, VotingPower: 1},
		},
	}

	store, err := newObjectStore(cfg, committee)
	if err != nil {
		log.Fatal("failed to construct object store:", err)
	}
	seedGenesisCheckpoint(store, committee)

	pendingOut := make(chan scheduler.PendingCertificate, 4096)
	sched := scheduler.New(store, epoch, pendingOut, schedulerMetrics)

	driver := newLocalDriver(store, sched, committee, cfg.ValidatorID, privateKey)
	go driver.consume(context.Background(), pendingOut)

	orch := orchestrator.New(cfg.Orchestrator, pendingLog, driver, store, driver, orchestratorMetrics)

	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	orch.Recover(recoverCtx)
	recoverCancel()

	peerURLs := make(map[statesync.PeerID]string, len(cfg.PeerAddrs))
	for _, addr := range cfg.PeerAddrs {
		peerURLs[statesync.PeerID(addr)] = addr
	}
	peerSource := statesyncclient.NewStaticPeerSource(peerURLs, cfg.StateSync.Timeout)
	syncLoop, syncHandle := statesync.New(cfg.StateSync, store, peerSource, statesyncMetrics)
	syncCtx, syncCancel := context.WithCancel(context.Background())
	go syncLoop.Start(syncCtx)

	mux := http.NewServeMux()
	txHandlers := server.NewTransactionHandlers(orch, log.New(log.Writer(), "[transaction-api] ", log.LstdFlags))
	mux.HandleFunc("/api/v1/transactions", txHandlers.HandleExecuteTransaction)

	ssHandlers := server.NewStateSyncHandlers(store, syncHandle, log.New(log.Writer(), "[statesync-api] ", log.LstdFlags))
	mux.HandleFunc("/api/v1/statesync/checkpoint-summary", ssHandlers.HandleGetCheckpointSummary)
	mux.HandleFunc("/api/v1/statesync/checkpoint-contents", ssHandlers.HandleGetCheckpointContents)
	mux.HandleFunc("/api/v1/statesync/push-checkpoint", ssHandlers.HandlePushCheckpoint)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","validator_id":%q,"highest_synced_checkpoint":%d}`,
			cfg.ValidatorID, store.HighestSyncedCheckpoint())
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}

	go func() {
		log.Printf("transaction/statesync API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed:", err)
		}
	}()
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down validator node...")

	syncCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
	if dbClient != nil {
		if err := dbClient.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}
	log.Println("validator node stopped")
}

func printHelp() {
	fmt.Println("certen validator node")
	flag.PrintDefaults()
}

// newObjectStore builds the C1 object store chosen by cfg.ObjectStoreBackend
// and seeds it with the genesis committee: "memory" (objectstore.MemStore,
// the default, in-process and lost on restart) or "leveldb" (pkg/ledger.Store
// over a cometbft-db goleveldb backend via pkg/kvdb, durable across restarts).
func newObjectStore(cfg *config.Config, committee *types.Committee) (objectstore.Store, error) {
	switch strings.ToLower(cfg.ObjectStoreBackend) {
	case "leveldb":
		dir := filepath.Join(cfg.DataDir, "objectstore")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create object store directory: %w", err)
		}
		db, err := dbm.NewDB("objects", dbm.GoLevelDBBackend, dir)
		if err != nil {
			return nil, fmt.Errorf("open leveldb object store: %w", err)
		}
		store := ledger.NewStore(kvdb.NewKVAdapter(db))
		if err := store.SetCommittee(committee); err != nil {
			return nil, fmt.Errorf("seed committee: %w", err)
		}
		log.Printf("object store backend: leveldb (%s)", dir)
		return store, nil
	default:
		store := objectstore.NewMemStore()
		store.SetCommittee(committee)
		log.Printf("object store backend: memory")
		return store, nil
	}
}

// seedGenesisCheckpoint inserts the sequence-0 checkpoint every validator
// must already have before state-sync starts, self-certified by the local
// (single-member, at genesis) committee.
func seedGenesisCheckpoint(store objectstore.Store, committee *types.Committee) {
	if _, ok := store.GetCheckpointBySequence(0); ok {
		return
	}
	contents := &types.CheckpointContents{}
	summary := types.CheckpointSummary{
		Epoch:         committee.Epoch,
		Sequence:      0,
		ContentDigest: contents.ContentDigest(),
	}
	certified := &types.CertifiedCheckpointSummary{
		Summary: summary,
		Signatures: []types.ValidatorSignature{
			{ValidatorID: committee.Validators[0].ID, Signature: nil},
		},
	}
	if err := store.InsertCheckpoint(context.Background(), certified, contents); err != nil {
		log.Fatal("failed to seed genesis checkpoint:", err)
	}
	if err := store.UpdateHighestSyncedCheckpoint(context.Background(), 0); err != nil {
		log.Fatal("failed to mark genesis checkpoint synced:", err)
	}
}

// loadOrGenerateEd25519Key loads this validator's signing key from disk, or
// generates and persists a new one on first boot.
func loadOrGenerateEd25519Key(cfg *config.Config) (ed25519.PrivateKey, error) {
	keyPath := cfg.Ed25519KeyPath
	if keyPath == "" {
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "./data"
		}
		keyPath = filepath.Join(dataDir, "ed25519_key.hex")
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		_, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ed25519 key: %w", err)
		}
		if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(privateKey)), 0600); err != nil {
			return nil, fmt.Errorf("save ed25519 key: %w", err)
		}
		return privateKey, nil
	}

	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read ed25519 key: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode ed25519 key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 key size: expected %d, got %d", ed25519.PrivateKeySize, len(keyBytes))
	}
	return ed25519.PrivateKey(keyBytes), nil
}

// localDriver is the minimal in-process TransactionDriver/Validator for a
// single-validator deployment: it certifies with its own signature (a
// committee of one trivially meets quorum), drives the certificate through
// the scheduler and execution engine itself, and reports completion via the
// object store's own NotifyReadExecutedEffects rather than a networked
// quorum round. A multi-validator deployment replaces this with a real
// quorum-voting RPC client; TransactionDriver/Validator stay the same
// narrow interfaces either way.
type localDriver struct {
	store       objectstore.Store
	sched       *scheduler.Scheduler
	committee   *types.Committee
	validatorID string
	privateKey  ed25519.PrivateKey

	mu       sync.Mutex
	executed map[types.TransactionDigest]bool
}

func newLocalDriver(store objectstore.Store, sched *scheduler.Scheduler, committee *types.Committee, validatorID string, key ed25519.PrivateKey) *localDriver {
	return &localDriver{
		store:       store,
		sched:       sched,
		committee:   committee,
		validatorID: validatorID,
		privateKey:  key,
		executed:    make(map[types.TransactionDigest]bool),
	}
}

// Submit certifies tx under this validator's own signature and drives it
// through the scheduler, waiting for executed effects to appear.
func (d *localDriver) Submit(ctx context.Context, tx *types.Transaction, _ orchestrator.SubmitOptions) (*orchestrator.FinalizedEffects, error) {
	digest := tx.Digest()
	certified := &types.CertifiedTransaction{
		Transaction: *tx,
		Epoch:       tx.Data.Epoch,
		Signatures: []types.ValidatorSignature{
			{ValidatorID: d.validatorID, Signature: ed25519.Sign(d.privateKey, digest[:])},
		},
	}
	if !d.committee.HasQuorum(certified.Signatures) {
		return nil, fmt.Errorf("local committee did not reach quorum for %s", digest)
	}

	d.sched.Enqueue(ctx, []*types.CertifiedTransaction{certified})

	result := <-d.store.NotifyReadExecutedEffects(ctx, []types.TransactionDigest{digest})
	if result.Err != nil {
		return nil, result.Err
	}
	if len(result.Effects) == 0 || result.Effects[0] == nil {
		return nil, fmt.Errorf("no effects recorded for %s", digest)
	}
	return &orchestrator.FinalizedEffects{
		Effects:  result.Effects[0],
		Finality: orchestrator.FinalityInfo{Kind: orchestrator.FinalityQuorumExecuted, Epoch: tx.Data.Epoch},
	}, nil
}

// VerifySignature is a no-op in the single-validator case: there is no
// separate submitter to authenticate against. Real signature verification
// against the transaction sender's key is the external collaborator
// boundary this method stands in for.
func (d *localDriver) VerifySignature(_ context.Context, _ *types.Transaction) error {
	return nil
}

func (d *localDriver) CheckTransactionValidity(ctx context.Context, tx *types.Transaction, enforceLiveInputObjects bool) error {
	if !enforceLiveInputObjects {
		return nil
	}
	for _, ref := range tx.Data.InputObjects() {
		if ref.Kind == types.InputSharedObject {
			continue
		}
		if _, ok, err := d.store.Get(ctx, ref.ObjectId, ref.Version); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("input object %s at version %d no longer live", ref.ObjectId, ref.Version)
		}
	}
	return nil
}

func (d *localDriver) IsTransactionExecuted(_ context.Context, digest types.TransactionDigest) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.executed[digest]
}

// consume drains the scheduler's ready queue, running each certificate
// through the execution engine and committing its effects, the glue C3 and
// C2 don't provide themselves (scheduler.New's out channel is handed to the
// caller precisely so it can choose this wiring).
func (d *localDriver) consume(ctx context.Context, out <-chan scheduler.PendingCertificate) {
	for pc := range out {
		d.executeOne(ctx, pc)
	}
}

func (d *localDriver) executeOne(ctx context.Context, pc scheduler.PendingCertificate) {
	cert := pc.Certificate
	digest := cert.Digest()

	refs := cert.Transaction.Data.InputObjects()
	inputs := make(map[types.ObjectId]*types.Object, len(refs))
	var sharedInputs []types.ObjectId
	for _, ref := range refs {
		if ref.Kind == types.InputSharedObject {
			sharedInputs = append(sharedInputs, ref.ObjectId)
		}
		obj, ok, err := d.store.Get(ctx, ref.ObjectId, ref.Version)
		if err != nil || !ok {
			if ref.Kind != types.InputReceivingObject {
				continue
			}
			obj, ok, err = d.store.GetLatest(ctx, ref.ObjectId)
			if err != nil || !ok {
				continue
			}
		}
		inputs[ref.ObjectId] = obj
	}

	req := execution.Request{
		Certified:    cert,
		Inputs:       inputs,
		SharedInputs: sharedInputs,
	}
	ts, effects, execErr := execution.Execute(ctx, d.store, nil, req)
	if execErr != nil {
		log.Printf("execution error for %s: %v", digest, execErr)
	}
	if ts != nil && effects != nil {
		if err := ts.Commit(ctx, effects); err != nil {
			log.Printf("commit error for %s: %v", digest, err)
		} else {
			d.mu.Lock()
			d.executed[digest] = true
			d.mu.Unlock()
		}
	}
	d.sched.NotifyCommit(cert)
}
