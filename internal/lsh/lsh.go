// Package lsh is the LSH-accelerated candidate index (C7): MinHash
// signatures over a document's structural features, banded into Redis
// sets for O(1) candidate retrieval ahead of the matcher's full cosine
// similarity scan.
package lsh

import (
	"context"
	"crypto/md5" //nolint:gosec // non-cryptographic use: a locality bucket key, not a security boundary
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/preflight/governor/internal/cache"
	"github.com/preflight/governor/internal/governance"
)

const (
	numHashes         = 128
	prime             = (uint64(1) << 61) - 1
	hashSeed          = 42
	numBands          = 8
	rowsPerBand       = numHashes / numBands
	bandKeyPrefix     = "lsh:band"
	sigKeyPrefix      = "lsh:sig"
	templateKeyPrefix = "lsh:template"
)

type coeff struct{ a, b uint64 }

var hashCoeffs = computeHashCoeffs()

// computeHashCoeffs derives the coefficients from a math/rand source
// seeded with hashSeed (42). The values are not those of any other
// language's seed-42 generator; what matters is reproducibility across
// restarts, and the seeded sequence gives every process the same 128
// (a, b) pairs.
func computeHashCoeffs() []coeff {
	rng := rand.New(rand.NewSource(hashSeed))
	coeffs := make([]coeff, numHashes)
	for i := range coeffs {
		coeffs[i] = coeff{
			a: 1 + uint64(rng.Int63n(int64(prime-1))),
			b: uint64(rng.Int63n(int64(prime))),
		}
	}
	return coeffs
}

// Signature is a MinHash signature: numHashes minimum hash values.
type Signature [numHashes]uint64

func murmur32(data []byte) uint32 {
	var seedBuf [4]byte
	binary.LittleEndian.PutUint32(seedBuf[:], 0)
	h := md5.Sum(append(data, seedBuf[:]...)) //nolint:gosec
	return binary.LittleEndian.Uint32(h[:4])
}

// Shingles converts structural features into the set of integer tokens
// MinHash is computed over: bucketed numeric features, boolean
// features, and combination tokens that give the signature locality
// for closely related layouts.
func Shingles(f governance.StructuralFeatures) map[uint32]struct{} {
	s := make(map[uint32]struct{})
	add := func(tok string) { s[murmur32([]byte(tok))] = struct{}{} }

	elemBucket := f.ElementCount / 10
	add(fmt.Sprintf("elem:%d", elemBucket))
	add(fmt.Sprintf("tables:%d", f.TableCount))
	textBucket := f.TextBlockCount / 5
	add(fmt.Sprintf("text:%d", textBucket))
	add(fmt.Sprintf("images:%d", f.ImageCount))
	add(fmt.Sprintf("pages:%d", f.PageCount))
	densityBucket := int(f.TextDensity * 10)
	add(fmt.Sprintf("density:%d", densityBucket))
	complexityBucket := int(f.LayoutComplexity * 10)
	add(fmt.Sprintf("complexity:%d", complexityBucket))
	add(fmt.Sprintf("columns:%d", f.ColumnCount))
	add(fmt.Sprintf("header:%t", f.HasHeader))
	add(fmt.Sprintf("footer:%t", f.HasFooter))

	if f.TableCount > 0 {
		add("has_tables")
	}
	if f.ImageCount > 0 {
		add("has_images")
	}
	if f.ColumnCount > 1 {
		add("multi_column")
	}

	add(fmt.Sprintf("dc:%d:%d", densityBucket, complexityBucket))
	add(fmt.Sprintf("struct:%t:%t:%d", f.HasHeader, f.HasFooter, f.ColumnCount))

	return s
}

// ComputeSignature runs the MinHash algorithm over a shingle set: for
// each of the 128 universal hash functions h(x) = (a*x + b) mod p, the
// signature entry is the minimum h(x) across every shingle. An empty
// shingle set (never expected in practice) yields the all-prime
// signature, matching the degenerate case of the max possible hash.
func ComputeSignature(shingles map[uint32]struct{}) Signature {
	var sig Signature
	for i := range sig {
		sig[i] = prime
	}
	if len(shingles) == 0 {
		return sig
	}
	for i, c := range hashCoeffs {
		min := prime
		for shingle := range shingles {
			h := mulModPrime(c.a, uint64(shingle), prime)
			h = addModPrime(h, c.b, prime)
			if h < min {
				min = h
			}
		}
		sig[i] = min
	}
	return sig
}

// mulModPrime and addModPrime avoid overflow for a*x with a, x < 2^61
// by splitting the multiplication; Go's uint64 can't hold a*x directly
// when both operands approach 2^61.
func mulModPrime(a, x, p uint64) uint64 {
	var result uint64
	a %= p
	for x > 0 {
		if x&1 == 1 {
			result = addModPrime(result, a, p)
		}
		a = addModPrime(a, a, p)
		x >>= 1
	}
	return result
}

func addModPrime(a, b, p uint64) uint64 {
	a %= p
	b %= p
	if a >= p-b {
		return a - (p - b)
	}
	return a + b
}

// MinHashSignature is the convenience entry point combining shingling
// and signature computation.
func MinHashSignature(f governance.StructuralFeatures) Signature {
	return ComputeSignature(Shingles(f))
}

// EstimateJaccard approximates Jaccard similarity as the fraction of
// matching signature entries between two signatures of equal length.
func EstimateJaccard(a, b Signature) float64 {
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// Bands splits a signature into numBands contiguous row groups.
func Bands(sig Signature) [numBands][]uint64 {
	var bands [numBands][]uint64
	for i := 0; i < numBands; i++ {
		start := i * rowsPerBand
		bands[i] = sig[start : start+rowsPerBand]
	}
	return bands
}

func hashBand(band []uint64) string {
	buf := make([]byte, 8*len(band))
	for i, v := range band {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	sum := md5.Sum(buf) //nolint:gosec
	return hex.EncodeToString(sum[:])[:16]
}

func signatureToBytes(sig Signature) []byte {
	buf := make([]byte, 8*len(sig))
	for i, v := range sig {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func bytesToSignature(data []byte) Signature {
	var sig Signature
	for i := range sig {
		if (i+1)*8 > len(data) {
			break
		}
		sig[i] = binary.LittleEndian.Uint64(data[i*8 : (i+1)*8])
	}
	return sig
}

// Candidate is a template surfaced by Query, with its estimated
// Jaccard similarity to the query signature.
type Candidate struct {
	TemplateID          string
	EstimatedSimilarity float64
}

// Index is the Redis-backed LSH index. It never blocks evaluation on
// its own unavailability: Add/Remove/Query all return quietly (an
// error, or no candidates) so the matcher can fall back to a full scan.
type Index struct {
	cache *cache.Gateway
}

func New(c *cache.Gateway) *Index {
	return &Index{cache: c}
}

type templateMeta struct {
	TenantID string                         `json:"tenant_id"`
	Features governance.StructuralFeatures  `json:"features"`
}

// Add indexes templateID under tenantID's similarity buckets.
func (ix *Index) Add(ctx context.Context, templateID, tenantID string, features governance.StructuralFeatures) error {
	sig := MinHashSignature(features)
	bands := Bands(sig)

	pipe := ix.cache.Pipeline()
	for i, band := range bands {
		key := fmt.Sprintf("%s:%d:%s", bandKeyPrefix, i, hashBand(band))
		pipe.SAdd(ctx, key, templateID)
	}
	pipe.Set(ctx, fmt.Sprintf("%s:%s", sigKeyPrefix, templateID), signatureToBytes(sig), 0)

	meta, err := json.Marshal(templateMeta{TenantID: tenantID, Features: features})
	if err != nil {
		return fmt.Errorf("marshaling template metadata: %w", err)
	}
	pipe.Set(ctx, fmt.Sprintf("%s:%s", templateKeyPrefix, templateID), meta, 0)

	_, err = pipe.Exec(ctx)
	return err
}

// Remove drops templateID from every band bucket it was indexed under.
func (ix *Index) Remove(ctx context.Context, templateID string) error {
	sigBytes, err := ix.cache.Get(ctx, fmt.Sprintf("%s:%s", sigKeyPrefix, templateID))
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	sig := bytesToSignature([]byte(sigBytes))
	bands := Bands(sig)

	pipe := ix.cache.Pipeline()
	for i, band := range bands {
		key := fmt.Sprintf("%s:%d:%s", bandKeyPrefix, i, hashBand(band))
		pipe.SRem(ctx, key, templateID)
	}
	pipe.Del(ctx, fmt.Sprintf("%s:%s", sigKeyPrefix, templateID))
	pipe.Del(ctx, fmt.Sprintf("%s:%s", templateKeyPrefix, templateID))

	_, err = pipe.Exec(ctx)
	return err
}

// Query returns up to k candidates for features, restricted to
// tenantID, ordered by descending estimated similarity. Ties are
// broken by ascending template id so results are reproducible.
func (ix *Index) Query(ctx context.Context, features governance.StructuralFeatures, tenantID string, k int) ([]Candidate, error) {
	querySig := MinHashSignature(features)
	bands := Bands(querySig)

	pipe := ix.cache.Pipeline()
	cmds := make([]*redis.StringSliceCmd, numBands)
	for i, band := range bands {
		key := fmt.Sprintf("%s:%d:%s", bandKeyPrefix, i, hashBand(band))
		cmds[i] = pipe.SMembers(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, cmd := range cmds {
		for _, id := range cmd.Val() {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(seen))
	for id := range seen {
		metaRaw, err := ix.cache.Get(ctx, fmt.Sprintf("%s:%s", templateKeyPrefix, id))
		if err != nil {
			continue
		}
		var meta templateMeta
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			continue
		}
		if meta.TenantID != tenantID {
			continue
		}

		sigRaw, err := ix.cache.Get(ctx, fmt.Sprintf("%s:%s", sigKeyPrefix, id))
		if err != nil {
			continue
		}
		candSig := bytesToSignature([]byte(sigRaw))
		candidates = append(candidates, Candidate{
			TemplateID:          id,
			EstimatedSimilarity: EstimateJaccard(querySig, candSig),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].EstimatedSimilarity != candidates[j].EstimatedSimilarity {
			return candidates[i].EstimatedSimilarity > candidates[j].EstimatedSimilarity
		}
		return strings.Compare(candidates[i].TemplateID, candidates[j].TemplateID) < 0
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
