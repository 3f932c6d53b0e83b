package core

import "time"

// BusinessModel is the coarse revenue/customer model of a company.
type BusinessModel string

const (
	ModelB2B         BusinessModel = "B2B"
	ModelB2C         BusinessModel = "B2C"
	ModelSaaS        BusinessModel = "SaaS"
	ModelMarketplace BusinessModel = "Marketplace"
	ModelServices    BusinessModel = "Services"
	ModelOther       BusinessModel = "Other"
)

// CompanyStage buckets a company by maturity.
type CompanyStage string

const (
	StageStartup    CompanyStage = "startup"
	StageGrowth     CompanyStage = "growth"
	StageMature     CompanyStage = "mature"
	StageEnterprise CompanyStage = "enterprise"
)

// TechSophistication is a rough read of how technical the company is.
type TechSophistication string

const (
	TechLow    TechSophistication = "low"
	TechMedium TechSophistication = "medium"
	TechHigh   TechSophistication = "high"
)

// GeographicScope describes the market footprint of a company.
type GeographicScope string

const (
	ScopeLocal    GeographicScope = "local"
	ScopeRegional GeographicScope = "regional"
	ScopeGlobal   GeographicScope = "global"
)

// Leader is one entry in a company's leadership list.
type Leader struct {
	Name  string `json:"name"`  // Person's name as published
	Title string `json:"title"` // Role title (e.g., "CEO", "VP of Engineering")
}

// Company is the principal artifact produced by a research job.
type Company struct {
	ID      string `json:"id"`      // Unique identifier (UUID)
	Name    string `json:"name"`    // Canonical company name
	Website string `json:"website"` // Normalized website URL (scheme+host)

	Industry      string             `json:"industry"`       // Free-text industry label
	BusinessModel BusinessModel      `json:"business_model"` // One of the BusinessModel constants
	Stage         CompanyStage       `json:"stage"`          // Maturity bucket
	TechLevel     TechSophistication `json:"tech_level"`     // Technical sophistication
	Scope         GeographicScope    `json:"scope"`          // Geographic market scope

	Description      string   `json:"description"`       // Sales-oriented company description
	ValueProposition string   `json:"value_proposition"` // What the company claims to do better
	TargetMarket     string   `json:"target_market"`     // Who the company sells to
	KeyServices      []string `json:"key_services"`      // Unordered set of short service labels
	TechStack        []string `json:"tech_stack"`        // Unordered set of technologies mentioned
	Leadership       []Leader `json:"leadership"`        // Published leadership entries
	Location         string   `json:"location"`          // Headquarters or primary location
	FoundingYear     int      `json:"founding_year"`     // Year founded (0 if unknown)
	EmployeeRange    string   `json:"employee_range"`    // Bucketed headcount (e.g., "51-200")

	Embedding      []float64 `json:"embedding"`       // Dense vector of the embedding text
	EmbeddingText  string    `json:"embedding_text"`  // Verbatim input used to produce the vector
	EmbeddingModel string    `json:"embedding_model"` // Model identifier that produced the vector
	LowQuality     bool      `json:"low_quality"`     // Profile fields partial; embedding still valid

	ResearchedAt   time.Time                `json:"researched_at"`   // Completion time of the producing job
	SourceURLs     []string                 `json:"source_urls"`     // URLs actually fetched
	InputTokens    int                      `json:"input_tokens"`    // Total LLM input tokens spent
	OutputTokens   int                      `json:"output_tokens"`   // Total LLM output tokens spent
	EstimatedCost  float64                  `json:"estimated_cost"`  // USD estimate across all calls
	PhaseDurations map[string]time.Duration `json:"phase_durations"` // Wall time per pipeline phase
}

// JobState is a research job's position in its lifecycle.
type JobState string

const (
	StateQueued      JobState = "queued"
	StateDiscovering JobState = "discovering"
	StateSelecting   JobState = "selecting"
	StateFetching    JobState = "fetching"
	StateAggregating JobState = "aggregating"
	StateCompleted   JobState = "completed"
	StateFailed      JobState = "failed"
	StateCancelled   JobState = "cancelled"
)

// forwardTransitions is the allowed happy-path successor for each state.
// failed and cancelled are reachable from any non-terminal state.
var forwardTransitions = map[JobState]JobState{
	StateQueued:      StateDiscovering,
	StateDiscovering: StateSelecting,
	StateSelecting:   StateFetching,
	StateFetching:    StateAggregating,
	StateAggregating: StateCompleted,
}

// IsTerminal reports whether the state admits no further transitions.
func (s JobState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s JobState) CanTransition(next JobState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed || next == StateCancelled {
		return true
	}
	return forwardTransitions[s] == next
}

// PhaseMetrics accumulates spend and timing for one pipeline phase.
type PhaseMetrics struct {
	Phase        string        `json:"phase"`         // Phase name (job state string)
	StartedAt    time.Time     `json:"started_at"`    // Phase entry time
	EndedAt      time.Time     `json:"ended_at"`      // Phase exit time (zero while running)
	Duration     time.Duration `json:"duration"`      // EndedAt - StartedAt
	LLMCalls     int           `json:"llm_calls"`     // Completion + embedding calls made
	InputTokens  int           `json:"input_tokens"`  // LLM input tokens in this phase
	OutputTokens int           `json:"output_tokens"` // LLM output tokens in this phase
	CostUSD      float64       `json:"cost_usd"`      // Estimated spend in this phase
}

// ResearchJob is one execution of the pipeline for one company.
type ResearchJob struct {
	ID           string         `json:"id"`                      // Unique job identifier (UUID)
	CompanyID    string         `json:"company_id"`              // Target company id (set at creation)
	CompanyName  string         `json:"company_name"`            // Requested company name
	Website      string         `json:"website"`                 // Normalized website (may start empty)
	State        JobState       `json:"state"`                   // Current lifecycle state
	CreatedAt    time.Time      `json:"created_at"`              // Enqueue time
	StartedAt    time.Time      `json:"started_at"`              // First phase entry time
	CompletedAt  time.Time      `json:"completed_at"`            // Terminal transition time
	Phases       []PhaseMetrics `json:"phases"`                  // Per-phase metrics in order
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`    // Stable kind when State == failed
	ErrorMessage string         `json:"error_message,omitempty"` // User-phrased message when failed
}

// CandidateSource records how a page candidate was discovered.
type CandidateSource string

const (
	SourceSitemap   CandidateSource = "sitemap"
	SourceRobots    CandidateSource = "robots"
	SourceSeed      CandidateSource = "seed"
	SourceRecursive CandidateSource = "recursive"
)

// Priority orders discovery sources: sitemap > robots > seed > recursive.
func (s CandidateSource) Priority() int {
	switch s {
	case SourceSitemap:
		return 0
	case SourceRobots:
		return 1
	case SourceSeed:
		return 2
	default:
		return 3
	}
}

// PageCandidate is a URL discovered in phase 1 that may be fetched in phase 3.
type PageCandidate struct {
	URL          string          `json:"url"`           // Normalized absolute URL
	Source       CandidateSource `json:"source"`        // Where the URL came from
	Depth        int             `json:"depth"`         // Crawl depth (0 = homepage)
	DiscoveredAt time.Time       `json:"discovered_at"` // Discovery timestamp
}

// PageContent is the extracted text of one fetched page.
type PageContent struct {
	URL         string        `json:"url"`          // Fetched URL
	Title       string        `json:"title"`        // Extracted page title (may be empty)
	FetchedAt   time.Time     `json:"fetched_at"`   // Completion time of the fetch
	Status      int           `json:"status"`       // HTTP status code
	ContentType string        `json:"content_type"` // Response Content-Type header
	Text        string        `json:"text"`         // Main-content text, boilerplate removed
	ByteLen     int64         `json:"byte_len"`     // Bytes read from the body (post-cap)
	Duration    time.Duration `json:"duration"`     // Wall time of the fetch
}

// MethodScores holds the per-method similarity sub-scores.
type MethodScores struct {
	Structured float64 `json:"structured"` // Weighted field-overlap score
	Embedding  float64 `json:"embedding"`  // Cosine similarity, clamped to [0,1]
	LLMJudge   float64 `json:"llm_judge"`  // LLM-assessed similarity
}

// SimilarityEdge is a validated, persisted relation between two companies.
type SimilarityEdge struct {
	SourceID  string       `json:"source_id"`  // Company the edge is stored under
	TargetID  string       `json:"target_id"`  // Related company
	Score     float64      `json:"score"`      // Composite score (mean of method scores)
	Methods   MethodScores `json:"methods"`    // Per-method sub-scores
	Discovery string       `json:"discovery"`  // How the candidate surfaced (vector, llm, search)
	CreatedAt time.Time    `json:"created_at"` // Validation time
}

// VectorRecord is the unit stored in and returned by the vector index.
type VectorRecord struct {
	ID       string         `json:"id"`       // Company id
	Vector   []float64      `json:"vector"`   // Embedding of declared dimension
	Metadata map[string]any `json:"metadata"` // Flat scalar fields per the declared schema
}
