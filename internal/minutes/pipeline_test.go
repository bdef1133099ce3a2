package minutes

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/auditor/internal/extract"
	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/rag/ragtest"
	"github.com/Yates-Labs/auditor/internal/telemetry"
)

const (
	summarizeMarker = "specializing in summarizing meeting minutes"
	matchMarker     = "Candidate documents:"
	judgeMarker     = "Choose exactly one verdict"

	docIT    = "ประกาศ เรื่อง การบริหารความเสี่ยงด้านเทคโนโลยีสารสนเทศ"
	docAudit = "ประกาศ ที่ สนส. 1/2565"
)

const longMinutes = "รายงานการประชุมคณะกรรมการ ครั้งที่ 1/2567 ที่ประชุม อนุมัติ งบประมาณ ด้าน ไอที และ ทบทวน แผน ฉุกเฉิน"

func testStore() *ragtest.Store {
	return &ragtest.Store{
		NamesFunc: func(ctx context.Context) ([]string, error) {
			return []string{docAudit, docIT}, nil
		},
		DocumentFunc: func(ctx context.Context, name string) (*rag.Document, error) {
			if name == docIT {
				return &rag.Document{Name: docIT, RelatedSections: []string{"มาตรา 41"}}, nil
			}
			return &rag.Document{Name: name}, nil
		},
		SearchFunc: func(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
			return []rag.Hit{
				{ID: "c1", Text: "ต้องทบทวนแผนรองรับเหตุการณ์ฉุกเฉินทุกปี", Score: 0.91},
				{ID: "c2", Text: "ต้องรายงานต่อคณะกรรมการ", Score: 0.72},
			}, nil
		},
	}
}

func newTestPipeline(t *testing.T, model llm.LLM, store *ragtest.Store, embedder *ragtest.Embedder, opts ...Option) *Pipeline {
	t.Helper()
	if embedder == nil {
		embedder = &ragtest.Embedder{}
	}
	retriever, err := rag.NewRetriever(embedder, store)
	require.NoError(t, err)
	p, err := NewPipeline(model, retriever, DefaultConfig(), opts...)
	require.NoError(t, err)
	return p
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(ctx context.Context, file extract.File) (string, error) {
	return f.text, f.err
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		text string
		want Verdict
	}{
		{"Verdict: no_conflict\nสอดคล้อง", VerdictNoConflict},
		{"Verdict: conflict ขัดกับมาตรา 41", VerdictConflict},
		{"verdict: INSUFFICIENT_INFO", VerdictInsufficientInfo},
		{"irrelevant", VerdictIrrelevant},
		{"conflictครับ", VerdictConflict},
		{"ไม่สามารถสรุปได้", VerdictUnknown},
		{"", VerdictUnknown},
		{"Verdict: No Conflict\nสอดคล้องกับประกาศ", VerdictNoConflict},
		{"**Verdict:** no-conflict", VerdictNoConflict},
		{"Verdict: Insufficient Info", VerdictInsufficientInfo},
		{"Verdict: insufficient information", VerdictInsufficientInfo},
		{"ไม่มีการขัดแย้ง (no conflict)", VerdictNoConflict},
		{"there is no conflict with the budget rules\nVerdict: irrelevant", VerdictIrrelevant},
		{"the conflict clause was reviewed\nVerdict: No Conflict", VerdictNoConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseVerdict(tt.text), tt.text)
	}
}

func TestResolveDocuments(t *testing.T) {
	candidates := []string{docAudit, " " + docIT + " "}

	assert.Equal(t, []string{" " + docIT + " "}, ResolveDocuments(docIT, candidates))
	assert.Equal(t, []string{docAudit, " " + docIT + " "},
		ResolveDocuments(docAudit+", "+docIT+"\n"+docAudit, candidates))
	assert.Empty(t, ResolveDocuments("Matched Document: "+docAudit, candidates), "echoed cue lines are dropped")
	assert.Empty(t, ResolveDocuments(NoMatch, candidates))
	assert.Equal(t, []string{docAudit}, ResolveDocuments(`"`+docAudit+`" (ตรงที่สุด)`, candidates))
	assert.Empty(t, ResolveDocuments("ประกาศอื่น", candidates))
}

func TestMatcher_ReadsNamesOnce(t *testing.T) {
	store := testStore()
	mock := llm.NewMockLLM(docIT)
	m := NewMatcher(mock, store, nil)

	subtopics := []Subtopic{{Name: "a", Content: "x"}, {Name: "b", Content: "y"}, {Name: "c", Content: "z"}}
	assignments, diags := m.Match(context.Background(), subtopics)

	assert.Empty(t, diags)
	assert.Equal(t, 1, store.NameListings)
	assert.Equal(t, 3, mock.Calls())
	require.Len(t, assignments, 3)
	for i, a := range assignments {
		assert.Equal(t, subtopics[i], a.Subtopic)
		assert.Equal(t, []string{docIT}, a.Documents)
	}
	assert.Contains(t, mock.LastPrompt(), "- "+docAudit+"\n- "+docIT)
}

func TestMatcher_FailureIsNoMatch(t *testing.T) {
	mock := (&llm.MockLLM{Response: docAudit}).OnError("Subtopic: b", errors.New("timeout"))
	m := NewMatcher(mock, testStore(), nil)

	assignments, diags := m.Match(context.Background(), []Subtopic{{Name: "a", Content: "x"}, {Name: "b", Content: "y"}})

	require.Len(t, assignments, 2)
	assert.True(t, assignments[0].Matched())
	assert.Equal(t, NoMatch, assignments[1].Raw)
	assert.False(t, assignments[1].Matched())
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "timeout")
}

func TestMatcher_NoDocuments(t *testing.T) {
	store := &ragtest.Store{NamesFunc: func(ctx context.Context) ([]string, error) {
		return nil, errors.New("neo4j down")
	}}
	mock := llm.NewMockLLM(docIT)

	assignments, diags := NewMatcher(mock, store, nil).Match(context.Background(), []Subtopic{{Name: "a"}})
	require.Len(t, assignments, 1)
	assert.Equal(t, NoMatch, assignments[0].Raw)
	assert.Equal(t, 0, mock.Calls())
	assert.Contains(t, diags[0], "neo4j down")
}

func TestDetector_OneFindingPerEligiblePair(t *testing.T) {
	store := testStore()
	mock := llm.NewMockLLM("Verdict: conflict\nขัดกับมาตรา 41")
	embedder := &ragtest.Embedder{}
	retriever, err := rag.NewRetriever(embedder, store)
	require.NoError(t, err)
	d := NewDetector(mock, retriever, 5, nil, nil)

	assignments := []Assignment{
		{Subtopic: Subtopic{Name: "a", Content: "x"}, Documents: []string{docAudit, docIT}},
		{Subtopic: Subtopic{Name: "empty", Content: "  "}, Documents: []string{docAudit}},
		{Subtopic: Subtopic{Name: "nomatch", Content: "y"}, Raw: NoMatch},
		{Subtopic: Subtopic{Name: "b", Content: "z"}, Documents: []string{docIT}},
	}
	findings := d.Detect(context.Background(), assignments)

	assert.Equal(t, []string{"a x", "b z"}, embedder.Texts, "one embedding per eligible subtopic")
	require.Len(t, findings, 3)
	assert.Equal(t, "a", findings[0].Subtopic.Name)
	assert.Equal(t, docAudit, findings[0].Document)
	assert.Equal(t, "a", findings[1].Subtopic.Name)
	assert.Equal(t, docIT, findings[1].Document)
	assert.Equal(t, "b", findings[2].Subtopic.Name)

	require.Len(t, store.Searches, 3)
	for i, doc := range []string{docAudit, docIT, docIT} {
		assert.Equal(t, rag.IndexChunk, store.Searches[i].Index)
		assert.Equal(t, 5, store.Searches[i].TopK)
		assert.Equal(t, doc, store.Searches[i].Document)
	}

	assert.Equal(t, VerdictConflict, findings[1].Verdict)
	assert.Equal(t, []string{"มาตรา 41"}, findings[1].RelatedSections)
	assert.Len(t, findings[1].Evidence, 2)
	assert.Contains(t, mock.LastPrompt(), "Related Sections: มาตรา 41")
	assert.Contains(t, mock.LastPrompt(), "ต้องทบทวนแผนรองรับเหตุการณ์ฉุกเฉินทุกปี")
}

func TestDetector_FailuresStayInline(t *testing.T) {
	store := testStore()
	embedder := &ragtest.Embedder{EmbedFunc: func(ctx context.Context, texts []string) ([]rag.EmbeddingRecord, error) {
		if strings.HasPrefix(texts[0], "a ") {
			return nil, errors.New("embedding quota")
		}
		return []rag.EmbeddingRecord{{Embedding: []float32{1, 0, 0}}}, nil
	}}
	retriever, err := rag.NewRetriever(embedder, store)
	require.NoError(t, err)
	mock := (&llm.MockLLM{Response: "ไม่มีคำตัดสิน"}).OnError("Subtopic: c", errors.New("model down"))
	d := NewDetector(mock, retriever, 5, nil, nil)

	findings := d.Detect(context.Background(), []Assignment{
		{Subtopic: Subtopic{Name: "a", Content: "x"}, Documents: []string{docIT}},
		{Subtopic: Subtopic{Name: "b", Content: "y"}, Documents: []string{docIT}},
		{Subtopic: Subtopic{Name: "c", Content: "z"}, Documents: []string{docIT}},
	})

	require.Len(t, findings, 3)
	assert.Contains(t, findings[0].Error, "embedding quota")
	assert.Equal(t, VerdictUnknown, findings[0].Verdict)
	assert.Empty(t, findings[1].Error)
	assert.Equal(t, "ไม่มีคำตัดสิน", findings[1].Judgment)
	assert.Equal(t, VerdictUnknown, findings[1].Verdict)
	assert.Contains(t, findings[2].Error, "model down")
	assert.Equal(t, 2, mock.Calls(), "no judgment without evidence")
}

func TestDetector_EmbeddingFailureMarksEveryDocument(t *testing.T) {
	store := testStore()
	embedder := &ragtest.Embedder{EmbedFunc: func(ctx context.Context, texts []string) ([]rag.EmbeddingRecord, error) {
		return nil, errors.New("embedding quota")
	}}
	retriever, err := rag.NewRetriever(embedder, store)
	require.NoError(t, err)
	mock := llm.NewMockLLM("Verdict: conflict")
	d := NewDetector(mock, retriever, 5, nil, nil)

	findings := d.Detect(context.Background(), []Assignment{
		{Subtopic: Subtopic{Name: "a", Content: "x"}, Documents: []string{docAudit, docIT}},
	})

	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Contains(t, f.Error, "embedding quota")
		assert.Equal(t, VerdictUnknown, f.Verdict)
	}
	assert.Equal(t, []string{"มาตรา 41"}, findings[1].RelatedSections)
	assert.Equal(t, 1, embedder.Calls())
	assert.Empty(t, store.Searches)
	assert.Equal(t, 0, mock.Calls())
}

func TestReport_PreservesOrderAndEmptyJudgments(t *testing.T) {
	r := Assemble([]Finding{
		{Subtopic: Subtopic{Name: "first", Content: "c1", Section: HeaderDecisions}, Document: docIT, Verdict: VerdictConflict, Judgment: "Verdict: conflict"},
		{Subtopic: Subtopic{Name: "second", Content: "c2", Section: HeaderTopics}, Document: " " + docAudit, Verdict: VerdictUnknown},
	}, []string{"warning"})

	md := r.ViolationsMarkdown()
	first := strings.Index(md, "### 1. first")
	second := strings.Index(md, "### 2. second")
	require.True(t, first >= 0 && second > first)
	assert.Contains(t, md, "- **Matched Document:** "+docAudit+"\n")
	assert.Equal(t, 2, strings.Count(md, "**Judgment:**"))

	ev := r.EvidenceMarkdown()
	assert.Contains(t, ev, "_No evidence retrieved._")
	assert.Contains(t, r.Markdown(), "## Diagnostics\n\n- warning")
	assert.Equal(t, map[Verdict]int{VerdictConflict: 1, VerdictUnknown: 1}, r.Counts())
}

func TestExport(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	out := Export("รายงาน", "  สรุปผล  ", Report{}, at)

	assert.True(t, strings.HasPrefix(out, "# รายงาน\n\n_Generated 2024-05-01T09:00:00Z_"))
	assert.Contains(t, out, "## Meeting Minutes Analysis\n\nสรุปผล\n\n## Compliance Violations Report")
}

func TestPipeline_TooShortHaltsBeforeMatching(t *testing.T) {
	store := testStore()
	mock := llm.NewMockLLM("unused")
	metrics := telemetry.New()
	p := newTestPipeline(t, mock, store, nil, WithMetrics(metrics))

	res, err := p.Run(context.Background(), fakeExtractor{text: "สั้นเกินไป มาก"}, extract.File{Name: "m.pdf"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, extract.ErrTooShort)
	assert.Equal(t, "The content appears too short or invalid for analysis.", err.Error())
	require.NotNil(t, res)
	assert.Equal(t, StatusValidationFailed, res.Status)
	assert.Equal(t, 0, mock.Calls())
	assert.Equal(t, 0, store.NameListings)
	assert.Empty(t, store.Searches)
	assert.Equal(t, []string{"The content appears too short or invalid for analysis."}, res.Diagnostics)
}

func TestPipeline_EmptyText(t *testing.T) {
	mock := llm.NewMockLLM("unused")
	p := newTestPipeline(t, mock, testStore(), nil)

	_, err := p.Run(context.Background(), fakeExtractor{err: extract.ErrEmptyText}, extract.File{Name: "m.pdf"})
	assert.ErrorIs(t, err, extract.ErrEmptyText)
	assert.Equal(t, "The uploaded file does not contain readable text.", err.Error())

	_, err = p.RunText(context.Background(), "   ")
	assert.ErrorIs(t, err, extract.ErrEmptyText)
	assert.Equal(t, 0, mock.Calls())
}

func TestPipeline_ExtractionFailure(t *testing.T) {
	p := newTestPipeline(t, llm.NewMockLLM("unused"), testStore(), nil)

	res, err := p.Run(context.Background(), fakeExtractor{err: extract.ErrExtractionFailed}, extract.File{Name: "m.pdf"})
	assert.ErrorIs(t, err, extract.ErrExtractionFailed)
	assert.Equal(t, StatusExtractionFailed, res.Status)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestPipeline_EndToEnd(t *testing.T) {
	store := testStore()
	summary := HeaderDecisions + "\n- งบประมาณไอที: อนุมัติงบ\n" +
		HeaderTopics + "\n- แผนฉุกเฉิน: ทบทวนแผน\nทุกปี\n- หัวข้อว่าง:\n" +
		HeaderActions + "\n- รายงาน: ส่งรายงาน"
	mock := (&llm.MockLLM{}).
		On(summarizeMarker, summary).
		On(judgeMarker, "Verdict: no_conflict\nสอดคล้อง").
		On("Subtopic: งบประมาณไอที\nContent: อนุมัติงบ\n\n"+matchMarker, docIT+", "+docAudit).
		On("Subtopic: แผนฉุกเฉิน", docIT).
		On("Subtopic: รายงาน\nContent: ส่งรายงาน\n\n"+matchMarker, NoMatch).
		On("Subtopic: หัวข้อว่าง", docIT)
	p := newTestPipeline(t, mock, store, nil)

	res, err := p.Run(context.Background(), fakeExtractor{text: longMinutes}, extract.File{Name: "m.pdf"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, summary, res.Analysis)
	require.Len(t, res.Subtopics, 4)
	assert.Equal(t, "ทบทวนแผน ทุกปี", res.Subtopics[1].Content)
	require.Len(t, res.Assignments, 4)
	assert.Equal(t, NoMatch, res.Assignments[3].Raw)

	// Eligible pairs: งบประมาณไอที x2, แผนฉุกเฉิน x1. The empty subtopic and
	// the unmatched one never reach the detector.
	findings := res.Report.Findings
	require.Len(t, findings, 3)
	assert.Equal(t, "งบประมาณไอที", findings[0].Subtopic.Name)
	assert.Equal(t, docIT, findings[0].Document)
	assert.Equal(t, docAudit, findings[1].Document)
	assert.Equal(t, "แผนฉุกเฉิน", findings[2].Subtopic.Name)
	for _, f := range findings {
		assert.Equal(t, VerdictNoConflict, f.Verdict)
	}

	assert.Equal(t, 1, store.NameListings)
	assert.Equal(t, 3, mock.CallsContaining(judgeMarker))
	assert.Equal(t, 4, mock.CallsContaining(matchMarker))

	export := res.Export(time.Now())
	assert.Contains(t, export, summary)
	assert.Contains(t, export, "### 3. แผนฉุกเฉิน")
}

func TestNewPipeline_Validation(t *testing.T) {
	retriever, err := rag.NewRetriever(&ragtest.Embedder{}, &ragtest.Store{})
	require.NoError(t, err)

	_, err = NewPipeline(nil, retriever, DefaultConfig())
	assert.Error(t, err)
	_, err = NewPipeline(llm.NewMockLLM(""), nil, DefaultConfig())
	assert.Error(t, err)
	_, err = NewPipeline(llm.NewMockLLM(""), retriever, Config{})
	assert.ErrorIs(t, err, rag.ErrInvalidTopK)
}
