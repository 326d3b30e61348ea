package kvstore

import "fmt"

// Kind is one of the closed set of identifier kinds the store keeps a
// dedicated bucket for. Each kind has a fixed-width canonical byte
// encoding (see Len) used as the identifier segment of a composite key.
type Kind uint8

// The closed set of identifier kinds, one bucket per kind.
const (
	KindAccountID Kind = iota
	KindAccountIndex
	KindAuctionIndex
	KindBountyIndex
	KindCandidateHash
	KindEraIndex
	KindMessageID
	KindParaID
	KindPoolID
	KindPreimageHash
	KindProposalHash
	KindProposalIndex
	KindRefIndex
	KindRegistrarIndex
	KindSessionIndex
	KindTipHash
	KindVariant
)

// allKinds enumerates every Kind, used to create one bucket per kind.
var allKinds = []Kind{
	KindAccountID, KindAccountIndex, KindAuctionIndex, KindBountyIndex,
	KindCandidateHash, KindEraIndex, KindMessageID, KindParaID, KindPoolID,
	KindPreimageHash, KindProposalHash, KindProposalIndex, KindRefIndex,
	KindRegistrarIndex, KindSessionIndex, KindTipHash, KindVariant,
}

// bucketNames mirrors the on-disk layout: one named bucket per kind,
// matching the table in the design's data model exactly.
var bucketNames = map[Kind]string{
	KindAccountID:      "account_id",
	KindAccountIndex:   "account_index",
	KindAuctionIndex:   "auction_index",
	KindBountyIndex:    "bounty_index",
	KindCandidateHash:  "candidate_hash",
	KindEraIndex:       "era_index",
	KindMessageID:      "message_id",
	KindParaID:         "para_id",
	KindPoolID:         "pool_id",
	KindPreimageHash:   "preimage_hash",
	KindProposalHash:   "proposal_hash",
	KindProposalIndex:  "proposal_index",
	KindRefIndex:       "ref_index",
	KindRegistrarIndex: "registrar_index",
	KindSessionIndex:   "session_index",
	KindTipHash:        "tip_hash",
	KindVariant:        "variant",
}

// rootBucket holds progress metadata and miscellaneous node state; it is
// not one of the identifier-kind buckets.
const rootBucket = "root"

// BucketName returns the on-disk bucket name for a kind.
func (k Kind) BucketName() string {
	name, ok := bucketNames[k]
	if !ok {
		return fmt.Sprintf("unknown_kind_%d", uint8(k))
	}
	return name
}

// Len returns the canonical identifier byte length for a kind: 32 for
// accounts and content hashes, 4 for numeric indices, 2 for the
// (pallet, variant) pair used by Variant keys.
func (k Kind) Len() int {
	switch k {
	case KindAccountID, KindCandidateHash, KindMessageID, KindPreimageHash,
		KindProposalHash, KindTipHash:
		return 32
	case KindVariant:
		return 2
	default:
		return 4
	}
}

// String implements fmt.Stringer for logging.
func (k Kind) String() string { return k.BucketName() }
