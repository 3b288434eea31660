package types

// TransactionKindTag discriminates the closed set of single-transaction kinds.
type TransactionKindTag int

const (
	KindTransferObject TransactionKindTag = iota
	KindTransferSui
	KindPay
	KindPaySui
	KindPayAllSui
	KindPublish
	KindCall
	KindChangeEpoch
	KindGenesis
	KindConsensusCommitPrologue
	// KindProgrammableTransaction is accepted by the wire format but
	// deferred by the execution engine (see DESIGN.md open-question
	// decision): the dispatch table rejects it with a non-retriable
	// ExecutionFailureStatus rather than panicking.
	KindProgrammableTransaction
)

// TransferObjectData moves a single owned object to a new owner.
type TransferObjectData struct {
	ObjectRef ObjectRef
	Recipient ObjectId
}

// TransferSuiData optionally splits `Amount` units off the gas object to
// Recipient; if Amount is nil the whole gas object changes hands.
type TransferSuiData struct {
	Recipient ObjectId
	Amount    *uint64
}

// PayData moves input coins into fresh coins at `Amounts[i]` for `Recipients[i]`.
type PayData struct {
	Coins      []ObjectRef
	Recipients []ObjectId
	Amounts    []uint64
}

// PaySuiData is PayData restricted to the native gas coin type; the gas
// object itself is one of Coins.
type PaySuiData struct {
	Coins      []ObjectRef
	Recipients []ObjectId
	Amounts    []uint64
}

// PayAllSuiData merges every listed coin and sends the total to one recipient.
type PayAllSuiData struct {
	Coins     []ObjectRef
	Recipient ObjectId
}

// PublishData deploys a package of immutable modules.
type PublishData struct {
	Modules           [][]byte
	DependentPackages []ObjectId
}

// CallArg is a tagged union of a pure BCS-encoded value or an object reference.
type CallArg struct {
	IsObject  bool
	Pure      []byte
	Object    ObjectRef
	Shared    bool // true if Object refers to a shared object rather than an owned/immutable one
	Receiving bool // true if this object argument uses receiving semantics
}

// CallData invokes a function within a published package.
type CallData struct {
	Package     ObjectId
	Module      string
	Function    string
	TypeArgs    []string
	Args        []CallArg
}

// ChangeEpochData carries the parameters of the epoch-advance system call.
type ChangeEpochData struct {
	Epoch               EpochId
	ProtocolVersion      uint64
	StorageCharge        uint64
	ComputationCharge    uint64
	StorageRebate        uint64
	ReinvestRate         uint64
	RewardSlashingRate   uint64
	StakeSubsidyRate     uint64
	TimestampMs          uint64
}

// ConsensusCommitPrologueData updates the shared Clock object's timestamp.
type ConsensusCommitPrologueData struct {
	CommitTimestampMs uint64
}

// GenesisObjectData is one object materialized directly by a genesis
// transaction, bypassing the normal owned/shared input-object rules.
type GenesisObjectData struct {
	Object Object
	Owner  Owner
}

// GenesisData seeds the initial object set; only valid at EpochId 0.
type GenesisData struct {
	Objects []GenesisObjectData
}

// TransactionKind is a sum type over the kinds above; only the field
// matching Tag is meaningful. Go has no sum types, so the dispatch table in
// pkg/execution matches on Tag and reads the single populated field,
// mirroring the original's enum-match structure without inheritance.
type TransactionKind struct {
	Tag TransactionKindTag

	TransferObject         *TransferObjectData
	TransferSui            *TransferSuiData
	Pay                    *PayData
	PaySui                 *PaySuiData
	PayAllSui              *PayAllSuiData
	Publish                *PublishData
	Call                   *CallData
	ChangeEpoch            *ChangeEpochData
	ConsensusCommitPrologue *ConsensusCommitPrologueData
	Genesis                *GenesisData
}

// GasData declares the gas object(s) and budget for a transaction.
type GasData struct {
	Payment []ObjectRef
	Owner   ObjectId
	Price   uint64
	Budget  uint64
}

// TransactionData is the unsigned transaction body.
type TransactionData struct {
	Sender       ObjectId
	Kinds        []TransactionKind
	Gas          GasData
	Epoch        EpochId
	Expiration   *EpochId
}

// Transaction is a signed TransactionData with its deterministic digest
// cached for cheap repeated comparisons.
type Transaction struct {
	Data      TransactionData
	Signature []byte // opaque; signature verification is an out-of-scope external collaborator
	digest    *TransactionDigest
}

func (t *Transaction) Digest() TransactionDigest {
	if t.digest != nil {
		return *t.digest
	}
	d := computeTransactionDigest(&t.Data)
	t.digest = &d
	return d
}

// ValidatorSignature is one committee member's signature over a transaction
// or checkpoint digest.
type ValidatorSignature struct {
	ValidatorID string
	Signature   []byte
}

// CertifiedTransaction is a Transaction plus a quorum of validator signatures.
type CertifiedTransaction struct {
	Transaction Transaction
	Epoch       EpochId
	Signatures  []ValidatorSignature
}

func (c *CertifiedTransaction) Digest() TransactionDigest {
	return c.Transaction.Digest()
}

// InputObjectKind tells the scheduler/engine how to interpret a declared
// transaction input.
type InputObjectKind int

const (
	InputOwnedOrImmutable InputObjectKind = iota
	InputSharedObject
	InputReceivingObject
)

// InputObjectRef declares one transaction input, with enough information to
// derive an InputKey for the scheduler.
type InputObjectRef struct {
	ObjectId ObjectId
	Kind     InputObjectKind
	// Version is the strict expected version for owned/immutable inputs, or
	// the externally-assigned sequenced version for shared inputs; for
	// receiving inputs it is the minimum acceptable version.
	Version Version
}

// packageVersion is the convention used for dependent-package references:
// this model doesn't support package upgrades, so every package input is
// pinned at its publish version.
const packageVersion Version = 1

// InputObjects walks every kind in the transaction and the gas payment,
// returning the full declared input set the scheduler must wait on before
// the transaction is eligible for execution. Grounded on the original's
// TransactionData::input_objects().
func (d *TransactionData) InputObjects() []InputObjectRef {
	var refs []InputObjectRef
	add := func(ref InputObjectRef) { refs = append(refs, ref) }

	for _, ref := range d.Gas.Payment {
		add(InputObjectRef{ObjectId: ref.ObjectId, Kind: InputOwnedOrImmutable, Version: ref.Version})
	}

	for _, k := range d.Kinds {
		switch k.Tag {
		case KindTransferObject:
			add(InputObjectRef{ObjectId: k.TransferObject.ObjectRef.ObjectId, Kind: InputOwnedOrImmutable, Version: k.TransferObject.ObjectRef.Version})
		case KindPay:
			for _, c := range k.Pay.Coins {
				add(InputObjectRef{ObjectId: c.ObjectId, Kind: InputOwnedOrImmutable, Version: c.Version})
			}
		case KindPaySui:
			for _, c := range k.PaySui.Coins {
				add(InputObjectRef{ObjectId: c.ObjectId, Kind: InputOwnedOrImmutable, Version: c.Version})
			}
		case KindPayAllSui:
			for _, c := range k.PayAllSui.Coins {
				add(InputObjectRef{ObjectId: c.ObjectId, Kind: InputOwnedOrImmutable, Version: c.Version})
			}
		case KindPublish:
			for _, pkg := range k.Publish.DependentPackages {
				add(InputObjectRef{ObjectId: pkg, Kind: InputOwnedOrImmutable, Version: packageVersion})
			}
		case KindCall:
			add(InputObjectRef{ObjectId: k.Call.Package, Kind: InputOwnedOrImmutable, Version: packageVersion})
			for _, arg := range k.Call.Args {
				if !arg.IsObject {
					continue
				}
				switch {
				case arg.Receiving:
					add(InputObjectRef{ObjectId: arg.Object.ObjectId, Kind: InputReceivingObject, Version: arg.Object.Version})
				case arg.Shared:
					add(InputObjectRef{ObjectId: arg.Object.ObjectId, Kind: InputSharedObject, Version: arg.Object.Version})
				default:
					add(InputObjectRef{ObjectId: arg.Object.ObjectId, Kind: InputOwnedOrImmutable, Version: arg.Object.Version})
				}
			}
		case KindChangeEpoch:
			add(InputObjectRef{ObjectId: SystemStateObjectID, Kind: InputSharedObject, Version: Version(k.ChangeEpoch.Epoch)})
		case KindConsensusCommitPrologue:
			add(InputObjectRef{ObjectId: ClockObjectID, Kind: InputSharedObject, Version: 0})
		}
	}
	return refs
}

// ReceivingObjects returns only the receiving-kind inputs, for callers that
// need to build the scheduler's separate receiving-keys set.
func (d *TransactionData) ReceivingObjects() []InputObjectRef {
	var out []InputObjectRef
	for _, ref := range d.InputObjects() {
		if ref.Kind == InputReceivingObject {
			out = append(out, ref)
		}
	}
	return out
}

// SharedInputIDs returns the object ids of every shared-object input, for
// populating Effects.SharedInputs and for cancellation-sentinel lookups.
func (d *TransactionData) SharedInputIDs() []ObjectId {
	var out []ObjectId
	for _, ref := range d.InputObjects() {
		if ref.Kind == InputSharedObject {
			out = append(out, ref.ObjectId)
		}
	}
	return out
}
