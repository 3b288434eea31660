package types

// OwnerKind distinguishes the variants of object ownership.
type OwnerKind int

const (
	OwnerAddress OwnerKind = iota
	OwnerObject
	OwnerShared
	OwnerImmutable
)

// Owner is a sum type over the four ownership variants. Exactly the fields
// relevant to Kind are meaningful; the rest are zero.
type Owner struct {
	Kind OwnerKind

	// OwnerAddress
	Address ObjectId // a 32-byte address, reusing ObjectId's shape

	// OwnerObject: the parent object that owns this one
	Parent ObjectId

	// OwnerShared
	InitialSharedVersion Version
	Mutable              bool
}

func AddressOwner(addr ObjectId) Owner { return Owner{Kind: OwnerAddress, Address: addr} }
func ObjectOwner(parent ObjectId) Owner { return Owner{Kind: OwnerObject, Parent: parent} }
func SharedOwner(initialVersion Version, mutable bool) Owner {
	return Owner{Kind: OwnerShared, InitialSharedVersion: initialVersion, Mutable: mutable}
}
func ImmutableOwner() Owner { return Owner{Kind: OwnerImmutable} }

func (o Owner) IsShared() bool    { return o.Kind == OwnerShared }
func (o Owner) IsImmutable() bool { return o.Kind == OwnerImmutable }

// PayloadKind distinguishes packages from typed data objects.
type PayloadKind int

const (
	PayloadData PayloadKind = iota
	PayloadPackage
)

// Object is the store's fundamental unit: versioned, owned, content-addressed.
type Object struct {
	Id      ObjectId
	Version Version
	Owner   Owner
	Digest  Digest

	PayloadKind PayloadKind
	TypeTag     string // only meaningful for PayloadData
	Modules     [][]byte // only meaningful for PayloadPackage
	Contents    []byte   // BCS/JSON-equivalent serialized payload

	// PreviousTransaction is the digest of the transaction that produced
	// this exact (id, version).
	PreviousTransaction TransactionDigest
}

func (o *Object) Ref() ObjectRef {
	return ObjectRef{ObjectId: o.Id, Version: o.Version, Digest: o.Digest}
}

// SerializedSize approximates the on-chain size used for gas/storage accounting.
func (o *Object) SerializedSize() int {
	size := len(o.Contents) + len(o.TypeTag) + 32 /* id */ + 8 /* version */
	for _, m := range o.Modules {
		size += len(m)
	}
	return size
}

// IsCoin reports whether this object carries a coin-shaped payload, i.e. its
// TypeTag matches the well-known coin type tag used throughout this module.
func (o *Object) IsCoin() bool {
	return o.PayloadKind == PayloadData && o.TypeTag == CoinTypeTag
}

// CoinTypeTag is the type tag for the native gas/coin object, analogous to
// the original's "0x2::coin::Coin<0x2::sui::SUI>" but left generic since the
// bytecode type system itself is out of scope.
const CoinTypeTag = "coin"

// Balance reads the coin balance out of a coin object's contents. Coin
// balances are stored as a big-endian uint64 for determinism across replay.
func (o *Object) Balance() uint64 {
	if len(o.Contents) < 8 {
		return 0
	}
	var v uint64
	for _, b := range o.Contents[:8] {
		v = (v << 8) | uint64(b)
	}
	return v
}

// SetBalance overwrites the coin's balance in place.
func (o *Object) SetBalance(v uint64) {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	o.Contents = buf
}
