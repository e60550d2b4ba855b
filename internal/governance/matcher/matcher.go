// Package matcher is the template matcher (C8): exact fingerprint
// lookup first, then LSH-narrowed cosine similarity over a normalized
// 10-dimensional feature vector.
package matcher

import (
	"context"
	"math"

	"github.com/preflight/governor/internal/governance"
)

const (
	maxElements   = 1000.0
	maxTables     = 50.0
	maxTextBlocks = 200.0
	maxImages     = 100.0
	maxPages      = 500.0
	maxColumns    = 10.0

	// MatchThreshold is the minimum cosine similarity for a candidate to
	// be considered a match at all; below it the document is NEW.
	MatchThreshold = 0.50
)

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

// FeatureVector normalizes structural features against fixed caps into
// a 10-dimensional vector suitable for cosine comparison.
func FeatureVector(f governance.StructuralFeatures) [10]float64 {
	v := [10]float64{
		clamp01(float64(f.ElementCount) / maxElements),
		clamp01(float64(f.TableCount) / maxTables),
		clamp01(float64(f.TextBlockCount) / maxTextBlocks),
		clamp01(float64(f.ImageCount) / maxImages),
		clamp01(float64(f.PageCount) / maxPages),
		f.TextDensity,
		f.LayoutComplexity,
		clamp01(float64(f.ColumnCount) / maxColumns),
		0,
		0,
	}
	if f.HasHeader {
		v[8] = 1
	}
	if f.HasFooter {
		v[9] = 1
	}
	return v
}

// CosineSimilarity returns the cosine similarity of two equal-length
// vectors, or 0 if either is the zero vector.
func CosineSimilarity(a, b [10]float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// TemplateLookup is the persistence surface the matcher needs: exact
// fingerprint resolution and a full active-template scan for the
// fallback similarity pass when LSH has no candidate.
type TemplateLookup interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*governance.Template, error)
	ActiveTemplate(ctx context.Context, templateID string) (*governance.Template, error)
	ListActive(ctx context.Context) ([]*governance.Template, error)
}

// Match resolves features (and their precomputed fingerprint) to a
// template: an exact fingerprint hit returns similarity 1.0
// immediately; otherwise LSH-narrowed candidates (falling back to every
// active template) are scored by cosine similarity and the best match
// above MatchThreshold wins.
func Match(ctx context.Context, lookup TemplateLookup, fingerprint string, features governance.StructuralFeatures, candidateIDs []string) (*governance.Template, float64, error) {
	if exact, err := lookup.FindByFingerprint(ctx, fingerprint); err != nil {
		return nil, 0, err
	} else if exact != nil {
		return exact, 1.0, nil
	}

	var templates []*governance.Template
	if len(candidateIDs) > 0 {
		for _, id := range candidateIDs {
			t, err := lookup.ActiveTemplate(ctx, id)
			if err != nil {
				return nil, 0, err
			}
			if t != nil {
				templates = append(templates, t)
			}
		}
	}
	if len(templates) == 0 {
		all, err := lookup.ListActive(ctx)
		if err != nil {
			return nil, 0, err
		}
		templates = all
	}
	if len(templates) == 0 {
		return nil, 0, nil
	}

	inputVector := FeatureVector(features)

	var best *governance.Template
	bestSimilarity := 0.0
	for _, t := range templates {
		similarity := CosineSimilarity(inputVector, FeatureVector(t.StructuralFeatures))
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = t
		}
	}

	if bestSimilarity >= MatchThreshold {
		return best, bestSimilarity, nil
	}
	return nil, 0, nil
}
