package aggregate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"prospect/internal/core"
)

// profilePayload mirrors the JSON object the extraction prompt demands.
// founding_year is typed loosely because models emit both numbers and
// strings for it.
type profilePayload struct {
	Description        string   `json:"description"`
	Industry           string   `json:"industry"`
	BusinessModel      string   `json:"business_model"`
	TargetMarket       string   `json:"target_market"`
	KeyServices        []string `json:"key_services"`
	TechStack          []string `json:"tech_stack"`
	Leadership         []struct {
		Name  string `json:"name"`
		Title string `json:"title"`
	} `json:"leadership"`
	Location           string `json:"location"`
	FoundingYear       any    `json:"founding_year"`
	EmployeeRange      string `json:"employee_range"`
	ValueProposition   string `json:"value_proposition"`
	CompanyStage       string `json:"company_stage"`
	TechSophistication string `json:"tech_sophistication"`
	GeographicScope    string `json:"geographic_scope"`
}

func extractionPrompt(name, corpus string) string {
	return fmt.Sprintf(`You are building a sales intelligence profile for the company %q from its website content below.

Extract a JSON object with exactly these fields:
{
  "description": "2-3 sentence sales-oriented description of what the company does",
  "industry": "free-text industry label",
  "business_model": "one of: B2B, B2C, SaaS, Marketplace, Services, Other",
  "target_market": "who the company sells to",
  "key_services": ["short service or product labels"],
  "tech_stack": ["technologies mentioned on the site"],
  "leadership": [{"name": "person", "title": "role"}],
  "location": "headquarters or primary location",
  "founding_year": 1999,
  "employee_range": "bucketed headcount like 51-200, empty if unknown",
  "value_proposition": "what the company claims to do better",
  "company_stage": "one of: startup, growth, mature, enterprise",
  "tech_sophistication": "one of: low, medium, high",
  "geographic_scope": "one of: local, regional, global"
}

Use empty strings, empty arrays, or 0 for anything the content does not support. Respond with JSON only.

WEBSITE CONTENT:
%s`, name, corpus)
}

func shardPrompt(name, chunk string) string {
	return fmt.Sprintf(`Condense the following website content from the company %q into a dense factual summary for a later profile extraction.

Keep every concrete fact: what the company does, customers, services, products, pricing signals, technologies, people and titles, locations, founding, headcount. Drop navigation, marketing filler, and repetition.

CONTENT:
%s`, name, chunk)
}

// applyPayload copies parsed fields onto the company, normalizing the
// enumerated ones.
func applyPayload(company *core.Company, p *profilePayload) {
	company.Description = strings.TrimSpace(p.Description)
	company.Industry = strings.TrimSpace(p.Industry)
	company.BusinessModel = normalizeBusinessModel(p.BusinessModel)
	company.TargetMarket = strings.TrimSpace(p.TargetMarket)
	company.KeyServices = cleanList(p.KeyServices)
	company.TechStack = cleanList(p.TechStack)
	company.Location = strings.TrimSpace(p.Location)
	company.FoundingYear = coerceYear(p.FoundingYear)
	company.EmployeeRange = strings.TrimSpace(p.EmployeeRange)
	company.ValueProposition = strings.TrimSpace(p.ValueProposition)
	company.Stage = normalizeStage(p.CompanyStage)
	company.TechLevel = normalizeTechLevel(p.TechSophistication)
	company.Scope = normalizeScope(p.GeographicScope)

	for _, l := range p.Leadership {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			continue
		}
		company.Leadership = append(company.Leadership, core.Leader{
			Name:  name,
			Title: strings.TrimSpace(l.Title),
		})
	}
}

// profileEmpty reports whether extraction produced nothing usable.
func profileEmpty(c *core.Company) bool {
	return c.Description == "" && c.Industry == "" && len(c.KeyServices) == 0 &&
		c.ValueProposition == "" && c.TargetMarket == ""
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// buildEmbeddingText renders the deterministic embedding input. The same
// profile always produces the same text, so unchanged re-research can skip
// the vector write.
func buildEmbeddingText(c *core.Company) string {
	parts := []string{
		"Company: " + c.Name,
		"Description: " + c.Description,
		"Industry: " + c.Industry,
		"Business model: " + string(c.BusinessModel),
		"Key services: " + strings.Join(c.KeyServices, ", "),
		"Tech stack: " + strings.Join(c.TechStack, ", "),
		"Value proposition: " + c.ValueProposition,
	}
	return normalizeEmbeddingText(strings.Join(parts, ". "))
}

func normalizeEmbeddingText(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > embeddingTextCap {
		s = s[:embeddingTextCap]
	}
	return s
}

func cleanList(items []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if !seen[key] {
			seen[key] = true
			out = append(out, item)
		}
	}
	return out
}

func coerceYear(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		digits := strings.TrimSpace(t)
		if n, err := strconv.Atoi(digits); err == nil {
			return n
		}
	}
	return 0
}

func normalizeBusinessModel(s string) core.BusinessModel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b2b":
		return core.ModelB2B
	case "b2c":
		return core.ModelB2C
	case "saas":
		return core.ModelSaaS
	case "marketplace":
		return core.ModelMarketplace
	case "services", "service":
		return core.ModelServices
	case "":
		return ""
	default:
		return core.ModelOther
	}
}

func normalizeStage(s string) core.CompanyStage {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "startup":
		return core.StageStartup
	case "growth":
		return core.StageGrowth
	case "mature":
		return core.StageMature
	case "enterprise":
		return core.StageEnterprise
	default:
		return ""
	}
}

func normalizeTechLevel(s string) core.TechSophistication {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return core.TechLow
	case "medium":
		return core.TechMedium
	case "high":
		return core.TechHigh
	default:
		return ""
	}
}

func normalizeScope(s string) core.GeographicScope {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return core.ScopeLocal
	case "regional":
		return core.ScopeRegional
	case "global", "international", "worldwide":
		return core.ScopeGlobal
	default:
		return ""
	}
}
