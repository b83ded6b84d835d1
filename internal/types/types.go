// Package types defines the core data model shared across the capture,
// classification, and retrieval pipeline: the memory record, its closed
// type enumeration, the collection routing table, and deterministic
// point identity.
package types

import (
	"strings"

	"github.com/google/uuid"
)

// Collection is one of the three vector-store namespaces.
type Collection string

const (
	CollectionCodePatterns Collection = "code-patterns"
	CollectionConventions  Collection = "conventions"
	CollectionDiscussions  Collection = "discussions"
)

// EmbeddingModel selects which embedding endpoint a record's content is
// routed to.
type EmbeddingModel string

const (
	ModelCode  EmbeddingModel = "code"
	ModelProse EmbeddingModel = "prose"
)

// EmbeddingStatus tracks whether a record carries a real vector yet.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// MemoryType is the closed enumeration of record kinds spanning all
// three collections. Unknown values fail validation before they ever
// reach the store (spec section 3, invariants).
type MemoryType string

const (
	// code-patterns
	TypeImplementation MemoryType = "implementation"
	TypeErrorFix       MemoryType = "error_fix"
	TypeRefactor       MemoryType = "refactor"
	TypeFilePattern    MemoryType = "file_pattern"
	TypeErrorPattern   MemoryType = "error_pattern"
	TypeCodeBlob       MemoryType = "code_blob"

	// conventions
	TypeGuideline    MemoryType = "guideline"
	TypeRule         MemoryType = "rule"
	TypeNaming       MemoryType = "naming_convention"
	TypeStructure    MemoryType = "structure_convention"
	TypePort         MemoryType = "port_convention"
	TypeAntiPattern  MemoryType = "anti_pattern"
	TypeBestPractice MemoryType = "best_practice"

	// discussions
	TypeSession       MemoryType = "session"
	TypeDecision      MemoryType = "decision"
	TypeBlocker       MemoryType = "blocker"
	TypePreference    MemoryType = "preference"
	TypeUserMessage   MemoryType = "user_message"
	TypeAgentResponse MemoryType = "agent_response"
	TypeAgentHandoff  MemoryType = "agent_handoff"
	TypeAgentMemory   MemoryType = "agent_memory"
	TypeAgentTask     MemoryType = "agent_task"
	TypeAgentInsight  MemoryType = "agent_insight"

	TypeGithubIssue    MemoryType = "github_issue"
	TypeGithubPR       MemoryType = "github_pr"
	TypeGithubCommit   MemoryType = "github_commit"
	TypeGithubCI       MemoryType = "github_ci"
	TypeGithubRelease  MemoryType = "github_release"
	TypeGithubCodeBlob MemoryType = "github_code_blob"
	TypeJiraIssue      MemoryType = "jira_issue"
	TypeJiraComment    MemoryType = "jira_comment"
)

// RoutingRule is the declarative mapping spec section 9 calls for: a
// single structure from (type) to (collection, embedding model,
// truncation policy, source authority), replacing runtime dynamic
// dispatch on type strings.
type RoutingRule struct {
	Collection      Collection
	Model           EmbeddingModel
	TruncationClass TruncationClass
	// SourceAuthority is 0.4 for descriptive human text, 1.0 for
	// machine-verifiable artifacts (diffs, CI output, code blobs).
	SourceAuthority float64
}

// TruncationClass selects which smart-truncation policy (spec 4.1 step
// 4) applies to a record's content.
type TruncationClass string

const (
	TruncateSentenceUserMessage   TruncationClass = "sentence_user_message"   // >2000 tokens
	TruncateSentenceAgentResponse TruncationClass = "sentence_agent_response" // >3000 tokens
	TruncateErrorContext          TruncationClass = "structured_error"        // head+tail over the whole content
	TruncateCeiling               TruncationClass = "ceiling_only"            // collection-wide 8192 ceiling
	TruncateNone                  TruncationClass = "none"
)

// RoutingTable is the single declarative structure mapping every
// MemoryType to its collection, embedding model, truncation policy, and
// source authority. This is the "tagged variant" replacement for
// runtime type-string dispatch called for in the design notes.
var RoutingTable = map[MemoryType]RoutingRule{
	TypeImplementation: {CollectionCodePatterns, ModelCode, TruncateNone, 1.0},
	TypeErrorFix:       {CollectionCodePatterns, ModelCode, TruncateErrorContext, 1.0},
	TypeRefactor:       {CollectionCodePatterns, ModelCode, TruncateNone, 1.0},
	TypeFilePattern:    {CollectionCodePatterns, ModelCode, TruncateNone, 1.0},
	TypeErrorPattern:   {CollectionCodePatterns, ModelCode, TruncateErrorContext, 1.0},
	TypeCodeBlob:       {CollectionCodePatterns, ModelCode, TruncateCeiling, 1.0},

	TypeGuideline:    {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypeRule:         {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypeNaming:       {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypeStructure:    {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypePort:         {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypeAntiPattern:  {CollectionConventions, ModelProse, TruncateCeiling, 0.4},
	TypeBestPractice: {CollectionConventions, ModelProse, TruncateCeiling, 0.4},

	TypeSession:       {CollectionDiscussions, ModelProse, TruncateCeiling, 0.4},
	TypeDecision:      {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeBlocker:       {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypePreference:    {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeUserMessage:   {CollectionDiscussions, ModelProse, TruncateSentenceUserMessage, 0.4},
	TypeAgentResponse: {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeAgentHandoff:  {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeAgentMemory:   {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeAgentTask:     {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},
	TypeAgentInsight:  {CollectionDiscussions, ModelProse, TruncateSentenceAgentResponse, 0.4},

	TypeGithubIssue:    {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeGithubPR:       {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeGithubCommit:   {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeGithubCI:       {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeGithubRelease:  {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeGithubCodeBlob: {CollectionDiscussions, ModelCode, TruncateCeiling, 1.0},
	TypeJiraIssue:      {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
	TypeJiraComment:    {CollectionDiscussions, ModelProse, TruncateCeiling, 1.0},
}

// Route looks up the routing rule for a type. ok is false for any type
// outside the closed enumeration.
func Route(t MemoryType) (RoutingRule, bool) {
	rule, ok := RoutingTable[t]
	return rule, ok
}

// IsGithubType reports whether t is one of the github_* connector types.
func IsGithubType(t MemoryType) bool {
	return strings.HasPrefix(string(t), "github_")
}

// IsJiraType reports whether t is one of the jira_* connector types.
func IsJiraType(t MemoryType) bool {
	return strings.HasPrefix(string(t), "jira_")
}

// Record is one vector-store point: the atomic unit of memory.
type Record struct {
	ID          uuid.UUID  `json:"id"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash"`
	GroupID     string     `json:"group_id"`
	Type        MemoryType `json:"type"`
	SourceHook  string     `json:"source_hook"`
	SessionID   string     `json:"session_id,omitempty"`

	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`

	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
	EmbeddingModel  string          `json:"embedding_model,omitempty"`
	Vector          []float32       `json:"-"`

	// Freshness fields, v2.0.6+.
	SourceAuthority float64  `json:"source_authority"`
	DecayScore      *float64 `json:"decay_score,omitempty"`
	FreshnessStatus string   `json:"freshness_status,omitempty"`
	IsCurrent       bool     `json:"is_current"`
	Version         int      `json:"version"`

	// Classification, written only by the classifier worker after
	// initial write (spec section 4.8: the classifier is the only
	// component allowed to mutate Type post-write).
	ClassificationConfidence float64 `json:"classification_confidence,omitempty"`
	ClassificationProvider   string  `json:"classification_provider,omitempty"`
	ClassificationReasoning  string  `json:"classification_reasoning,omitempty"`
	ClassifiedAt             string  `json:"classified_at,omitempty"`
	IsClassified             bool    `json:"is_classified,omitempty"`

	// Type-dependent optional fields.
	FilePath       string            `json:"file_path,omitempty"`
	FileReferences []string          `json:"file_references,omitempty"`
	Language       string            `json:"language,omitempty"`
	Framework      string            `json:"framework,omitempty"`
	Importance     float64           `json:"importance,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
	TurnNumber     int               `json:"turn_number,omitempty"`
	AgentID        string            `json:"agent_id,omitempty"`
	ConnectorIDs   map[string]string `json:"connector_ids,omitempty"`
}

// Collection resolves which namespace this record belongs to, given its
// Type. Callers should validate Type against RoutingTable first.
func (r *Record) Collection() Collection {
	if rule, ok := Route(r.Type); ok {
		return rule.Collection
	}
	return CollectionDiscussions
}

// PointID derives the deterministic point identifier: uuid5(namespace,
// content_hash). Because the id depends only on namespace and content
// hash, retries after ambiguous failures converge on the same point
// (spec section 3, point identity).
func PointID(namespace uuid.UUID, contentHash string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(contentHash))
}

// Namespace is the fixed UUID namespace used for all point-id
// derivation in this deployment. Changing it would change every
// existing point's id, so it is a constant, not configuration.
var Namespace = uuid.MustParse("2f6a2c0a-6e9f-4a9a-8f1b-7a4d9b6c9e11")
