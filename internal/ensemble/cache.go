package ensemble

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
)

// ScoreCache stores pairwise structure scores across evaluations. Only
// successful scores are stored.
type ScoreCache interface {
	GetScore(ctx context.Context, key string) (score float64, ok bool, err error)
	SetScore(ctx context.Context, key string, score float64) error
}

const pairKeyPrefix = "tmscore:pair:"

// PairKey identifies the score of pred against ref under norm. It covers
// chain labels, chain order and the exact coordinate bits of both sides.
func PairKey(norm scoring.Normalization, pred, ref structure.Structure) string {
	h := sha256.New()
	h.Write([]byte(norm))
	writeStructure(h, pred)
	writeStructure(h, ref)
	return pairKeyPrefix + string(norm) + ":" + hex.EncodeToString(h.Sum(nil))
}

func writeStructure(h hash.Hash, s structure.Structure) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s.Len()))
	h.Write(buf[:])
	for _, c := range s.Chains() {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(c.Label)))
		h.Write(buf[:])
		h.Write([]byte(c.Label))
		binary.LittleEndian.PutUint64(buf[:], uint64(len(c.Points)))
		h.Write(buf[:])
		for _, p := range c.Points {
			for _, v := range p {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				h.Write(buf[:])
			}
		}
	}
}
