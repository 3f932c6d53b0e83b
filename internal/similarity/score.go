package similarity

import (
	"strings"

	"prospect/internal/core"
)

// Weights distributes the structured score across profile fields. The
// weights sum to 1 so the score stays in [0,1].
type Weights struct {
	Industry      float64
	BusinessModel float64
	TargetMarket  float64
	KeyServices   float64
	TechStack     float64
}

// DefaultWeights matches the shipped configuration.
func DefaultWeights() Weights {
	return Weights{
		Industry:      0.35,
		BusinessModel: 0.15,
		TargetMarket:  0.15,
		KeyServices:   0.20,
		TechStack:     0.15,
	}
}

// techSynonyms folds common aliases before tech-stack comparison.
var techSynonyms = map[string]string{
	"golang":               "go",
	"postgres":             "postgresql",
	"k8s":                  "kubernetes",
	"js":                   "javascript",
	"ts":                   "typescript",
	"node":                 "nodejs",
	"node.js":              "nodejs",
	"react.js":             "react",
	"reactjs":              "react",
	"vue.js":               "vue",
	"vuejs":                "vue",
	"gcp":                  "google cloud",
	"amazon web services":  "aws",
	"ms azure":             "azure",
	"mongo":                "mongodb",
	"elastic":              "elasticsearch",
}

// StructuredScore compares two profiles field by field.
func StructuredScore(a, b *core.Company, w Weights) float64 {
	var score float64
	if a.Industry != "" && normalizeLabel(a.Industry) == normalizeLabel(b.Industry) {
		score += w.Industry
	}
	if a.BusinessModel != "" && a.BusinessModel == b.BusinessModel {
		score += w.BusinessModel
	}
	score += w.TargetMarket * tokenJaccard(a.TargetMarket, b.TargetMarket)
	score += w.KeyServices * setJaccard(a.KeyServices, b.KeyServices, nil)
	score += w.TechStack * setJaccard(a.TechStack, b.TechStack, techSynonyms)
	return clamp01(score)
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenJaccard compares two free-text fields as token sets.
func tokenJaccard(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if len(tok) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// setJaccard compares two label lists, folding synonyms when a table is
// provided.
func setJaccard(a, b []string, synonyms map[string]string) float64 {
	return jaccard(labelSet(a, synonyms), labelSet(b, synonyms))
}

func labelSet(items []string, synonyms map[string]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range items {
		label := normalizeLabel(item)
		if label == "" {
			continue
		}
		if canonical, ok := synonyms[label]; ok {
			label = canonical
		}
		set[label] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
