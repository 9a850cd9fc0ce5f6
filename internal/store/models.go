package store

import "time"

// ClaimStatus is the persisted verification status of a claim.
type ClaimStatus string

const (
	StatusSupported    ClaimStatus = "supported"
	StatusContradicted ClaimStatus = "contradicted"
	StatusUncertain    ClaimStatus = "uncertain"
	StatusMissing      ClaimStatus = "missing"
)

// Severity ranks how badly a claim or issue blocks acceptance.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Edge types emitted by the parser and the import-resolution pass.
const (
	EdgeImports         = "imports"
	EdgeImportsResolved = "imports-resolved"
	EdgeCalls           = "calls"
	EdgeInherits        = "inherits"
	EdgeMemberOf        = "member-of"
	EdgeImplements      = "implements"
	EdgeExports         = "exports"
)

// Summary levels. Each level's target id must reference an existing row
// of the matching table; AddSummary enforces this at write time.
const (
	LevelChunk   = "chunk"
	LevelFile    = "file"
	LevelModule  = "module"
	LevelPackage = "package"
)

// FileRecord is one ingested source file.
type FileRecord struct {
	ID     int64
	Path   string
	Hash   string
	Lang   string
	Size   int64
	MTime  time.Time
	Parsed bool
}

// ChunkRecord is a contiguous line range of one file, tagged with a
// structural kind. Line numbers are 1-indexed and inclusive.
type ChunkRecord struct {
	ID        int64
	FileID    int64
	StartLine int
	EndLine   int
	Kind      string
	Text      string
	Hash      string
	SymbolID  int64 // 0 = no owning symbol
}

// SymbolRecord is a named declaration with a line span.
type SymbolRecord struct {
	ID             int64
	FileID         int64
	Name           string
	Kind           string
	Signature      string
	StartLine      int
	EndLine        int
	Doc            string
	ParentSymbolID int64 // 0 = top level
}

// EdgeRecord is a directed, typed relation between two symbols.
// Uniqueness is enforced on (src, dst, type).
type EdgeRecord struct {
	SrcSymbolID int64
	DstSymbolID int64
	EdgeType    string
}

// SummaryRecord is generated text about one target at one level.
type SummaryRecord struct {
	ID         int64
	Level      string
	TargetID   int64
	Text       string
	Confidence float64
	CreatedAt  time.Time
}

// ClaimRecord is one extracted, independently verifiable assertion from
// a drafted report. Claims are regenerated every gating iteration.
type ClaimRecord struct {
	ID            int64
	ReportVersion int64
	Text          string
	CitationRefs  []string
	Status        ClaimStatus
	Severity      Severity
	Rationale     string
}

// ReportVersionRecord is the drafted markdown plus running scores,
// mutated in place across iterations of a run.
type ReportVersionRecord struct {
	ID            int64
	Content       string
	CreatedAt     time.Time
	CoverageScore float64
	CitationScore float64
	IssuesHigh    int
	IssuesMed     int
	IssuesLow     int
}

// IterationStatus is one row of the per-iteration audit trail.
type IterationStatus struct {
	ReportVersion    int64
	Iteration        int
	Coverage         float64
	SupportRate      float64
	CitationRate     float64
	IssuesHigh       int
	IssuesMed        int
	IssuesLow        int
	MissingCitations int
	CreatedAt        time.Time
}
