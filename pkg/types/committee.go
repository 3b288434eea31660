// Committee membership and quorum-threshold helpers, adapted from the
// teacher's pkg/consensus/types.go business-level ValidatorInfo/threshold
// utilities (kept, generalized away from the original's Accumulate-specific
// request types). See DESIGN.md.

package types

// Validator is one committee member: an identity plus voting weight.
type Validator struct {
	ID          string
	PublicKey   []byte // opaque; signature verification is an external collaborator
	VotingPower int64
}

// Committee is the quorum-voting membership for one epoch.
type Committee struct {
	Epoch      EpochId
	Validators []Validator
}

func (c *Committee) TotalVotingPower() int64 {
	var total int64
	for _, v := range c.Validators {
		total += v.VotingPower
	}
	return total
}

// QuorumThreshold returns the minimum voting power needed for a 2f+1-of-3f+1
// Byzantine quorum.
func (c *Committee) QuorumThreshold() int64 {
	total := c.TotalVotingPower()
	// 2f+1 out of 3f+1: strictly more than 2/3.
	return total*2/3 + 1
}

// HasQuorum reports whether the given signer set meets the committee's
// quorum threshold.
func (c *Committee) HasQuorum(signers []ValidatorSignature) bool {
	byID := make(map[string]int64, len(c.Validators))
	for _, v := range c.Validators {
		byID[v.ID] = v.VotingPower
	}
	var power int64
	seen := make(map[string]bool, len(signers))
	for _, s := range signers {
		if seen[s.ValidatorID] {
			continue
		}
		seen[s.ValidatorID] = true
		power += byID[s.ValidatorID]
	}
	return power >= c.QuorumThreshold()
}

// IsByzantineFaultTolerant checks n >= 3f+1, matching the teacher's
// IsByzantineFaultTolerant helper.
func IsByzantineFaultTolerant(totalValidators, maxFaults int) bool {
	return totalValidators >= 3*maxFaults+1
}
