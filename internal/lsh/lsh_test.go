package lsh

import (
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func sampleFeatures() governance.StructuralFeatures {
	return governance.StructuralFeatures{
		ElementCount:     120,
		TableCount:       2,
		TextBlockCount:   40,
		ImageCount:       1,
		PageCount:        3,
		TextDensity:      0.42,
		LayoutComplexity: 0.31,
		ColumnCount:      2,
		HasHeader:        true,
		HasFooter:        true,
	}
}

func TestMinHashSignatureDeterministic(t *testing.T) {
	f := sampleFeatures()
	a := MinHashSignature(f)
	b := MinHashSignature(f)
	if a != b {
		t.Fatal("signature for identical features must be deterministic")
	}
}

func TestMinHashSignatureDiffersOnDifferentFeatures(t *testing.T) {
	a := MinHashSignature(sampleFeatures())
	f2 := sampleFeatures()
	f2.PageCount = 30
	f2.ColumnCount = 6
	b := MinHashSignature(f2)
	if a == b {
		t.Fatal("significantly different features should not collide on signature")
	}
}

func TestEstimateJaccardIdentical(t *testing.T) {
	sig := MinHashSignature(sampleFeatures())
	if got := EstimateJaccard(sig, sig); got != 1.0 {
		t.Errorf("EstimateJaccard(sig, sig) = %v, want 1.0", got)
	}
}

func TestBandsCoverWholeSignature(t *testing.T) {
	sig := MinHashSignature(sampleFeatures())
	bands := Bands(sig)
	total := 0
	for _, b := range bands {
		total += len(b)
	}
	if total != numHashes {
		t.Errorf("bands cover %d entries, want %d", total, numHashes)
	}
}

func TestHashBandStableAndLength(t *testing.T) {
	sig := MinHashSignature(sampleFeatures())
	bands := Bands(sig)
	h1 := hashBand(bands[0])
	h2 := hashBand(bands[0])
	if h1 != h2 {
		t.Fatal("hashBand must be deterministic for the same band")
	}
	if len(h1) != 16 {
		t.Errorf("hashBand length = %d, want 16", len(h1))
	}
}

func TestSignatureBytesRoundTrip(t *testing.T) {
	sig := MinHashSignature(sampleFeatures())
	got := bytesToSignature(signatureToBytes(sig))
	if got != sig {
		t.Fatal("signature did not survive a byte round trip")
	}
}

func TestShinglesIncludePresenceTokens(t *testing.T) {
	withTables := sampleFeatures()
	s := Shingles(withTables)
	withoutTables := sampleFeatures()
	withoutTables.TableCount = 0
	withoutTables.ColumnCount = 1
	s2 := Shingles(withoutTables)
	if len(s) == len(s2) {
		t.Error("expected differing shingle sets for differing table/column presence")
	}
}
