package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// Digest computation uses a deterministic byte encoding of the relevant
// struct fields fed through sha256. The choice of hash function itself is
// the one piece of "cryptographic primitive" this module cannot avoid
// touching directly (everything else --- signature verification, committee
// key material --- stays behind the external-collaborator boundary); sha256
// is stdlib and deterministic, which is all digesting for replay-equality
// needs.

func computeTransactionDigest(data *TransactionData) TransactionDigest {
	h := sha256.New()
	h.Write(data.Sender[:])
	for _, k := range data.Kinds {
		writeUint64(h, uint64(k.Tag))
		// Each kind's populated fields feed in via a cheap, lossy-but-stable
		// encoding; exactness across versions is not required, only
		// determinism for a single execution.
		switch k.Tag {
		case KindTransferObject:
			if k.TransferObject != nil {
				h.Write(k.TransferObject.ObjectRef.ObjectId[:])
				h.Write(k.TransferObject.Recipient[:])
			}
		case KindPay:
			if k.Pay != nil {
				for _, c := range k.Pay.Coins {
					h.Write(c.ObjectId[:])
				}
				for _, r := range k.Pay.Recipients {
					h.Write(r[:])
				}
				for _, a := range k.Pay.Amounts {
					writeUint64(h, a)
				}
			}
		}
	}
	for _, ref := range data.Gas.Payment {
		h.Write(ref.ObjectId[:])
		writeUint64(h, uint64(ref.Version))
	}
	writeUint64(h, uint64(data.Epoch))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// DigestBytes computes a sha256 digest over an arbitrary byte slice; used by
// effects and checkpoint digesting where the input is already a stable
// serialization.
func DigestBytes(b []byte) Digest {
	return sha256.Sum256(b)
}

// digestHasher is a tiny helper so effects/checkpoint digesting reads as a
// sequence of field writes rather than manual byte-buffer bookkeeping.
type digestHasher struct {
	inner interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func newDigestHasher() *digestHasher {
	return &digestHasher{inner: sha256.New()}
}

func (d *digestHasher) write(b []byte) {
	d.inner.Write(b)
}

func (d *digestHasher) writeInt(v int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	d.inner.Write(buf[:])
}

func (d *digestHasher) sum() Digest {
	var out Digest
	copy(out[:], d.inner.Sum(nil))
	return out
}
