package chatbot

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yates-Labs/auditor/internal/llm"
	"github.com/Yates-Labs/auditor/internal/rag"
	"github.com/Yates-Labs/auditor/internal/rag/ragtest"
)

const (
	classifyMarker = "Analyze the user query"
	answerMarker   = "Retrieved Information:"
	generalMarker  = "Respond formally and in Thai"
)

func newTestChatbot(t *testing.T, model llm.LLM, store *ragtest.Store, embedder *ragtest.Embedder) *Chatbot {
	t.Helper()
	if embedder == nil {
		embedder = &ragtest.Embedder{}
	}
	retriever, err := rag.NewRetriever(embedder, store)
	require.NoError(t, err)
	bot, err := New(model, retriever, DefaultConfig())
	require.NoError(t, err)
	return bot
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want Label
		ok   bool
	}{
		{"exact_section_query", LabelExactSection, true},
		{"  law_query\n", LabelLaw, true},
		{"'announcement_query'", LabelAnnouncement, true},
		{"`general_question`.", LabelGeneral, true},
		{"LAW_QUERY", LabelLaw, true},
		{"This is a law_query", LabelGeneral, false},
		{"", LabelGeneral, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseLabel(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLabel_String(t *testing.T) {
	assert.Equal(t, "exact_section_query", LabelExactSection.String())
	assert.Equal(t, "general_question", Label(42).String())

	text, err := LabelAnnouncement.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "announcement_query", string(text))
}

func TestClassifier_AlwaysKnownLabel(t *testing.T) {
	outputs := []string{"law_query", "announcement_query", "I think this is about laws", "", "exact_section_query"}
	for _, out := range outputs {
		c := NewClassifier(llm.NewMockLLM(out), nil)
		label := c.Classify(context.Background(), "คำถาม")
		_, known := labelNames[label]
		assert.True(t, known, "output %q", out)
	}

	c := NewClassifier(llm.NewMockLLM("something else"), nil)
	assert.Equal(t, LabelGeneral, c.Classify(context.Background(), "q"))

	c = NewClassifier(llm.NewMockLLMWithError(errors.New("quota exceeded")), nil)
	assert.Equal(t, LabelGeneral, c.Classify(context.Background(), "q"))
}

func TestClassifier_PromptContainsQuestion(t *testing.T) {
	mock := llm.NewMockLLM("law_query")
	c := NewClassifier(mock, nil)

	assert.Equal(t, LabelLaw, c.Classify(context.Background(), "กฏหมายว่าด้วยธุรกิจสถาบันการเงิน"))
	assert.Contains(t, mock.LastPrompt(), `User Query: "กฏหมายว่าด้วยธุรกิจสถาบันการเงิน"`)
}

func TestExtractSectionNumbers(t *testing.T) {
	assert.Equal(t, []string{"5", "98", "5"}, ExtractSectionNumbers("มาตรา 5 และมาตรา98 รวมถึง มาตรา  5"))
	assert.Empty(t, ExtractSectionNumbers("มาตรา ห้า"))
	assert.Equal(t, []string{"98"}, ExtractSectionNumbers("มาตรา ๙๘ ว่าอย่างไร"))
	assert.Equal(t, []string{"98"}, ExtractSectionNumbers("มาตรา\u00a098"))
	assert.Equal(t, []string{"41", "5"}, ExtractSectionNumbers("มาตรา๔๑ และ มาตรา\u2003๕"))
}

func TestSectionExtractor_ThaiDigitsLookUpASCII(t *testing.T) {
	store := &ragtest.Store{
		SectionsFunc: func(ctx context.Context, number string) ([]rag.Section, error) {
			return []rag.Section{{ID: "s98", Number: number, Text: "ห้ามมิให้สถาบันการเงิน"}}, nil
		},
	}

	lookup := NewSectionExtractor(store, nil).Lookup(context.Background(), "มาตรา ๙๘ ว่าอย่างไร")

	assert.Equal(t, []string{"98"}, store.SectionLookups)
	assert.Contains(t, lookup.Render(), "Section: ห้ามมิให้สถาบันการเงิน (ID: s98)")
}

func TestSectionExtractor_OneLookupPerOccurrence(t *testing.T) {
	store := &ragtest.Store{
		SectionsFunc: func(ctx context.Context, number string) ([]rag.Section, error) {
			if number == "5" {
				return []rag.Section{{ID: "s5", Number: "5", Text: "นิยาม"}}, nil
			}
			return []rag.Section{}, nil
		},
	}

	lookup := NewSectionExtractor(store, nil).Lookup(context.Background(), "เปรียบเทียบมาตรา 5 กับมาตรา 98 และมาตรา 5")

	assert.Equal(t, []string{"5", "98", "5"}, store.SectionLookups)
	require.Len(t, lookup.Outcomes, 3)
	assert.Equal(t, "5", lookup.Outcomes[2].Number)
	assert.Len(t, lookup.Outcomes[2].Sections, 1)

	rendered := lookup.Render()
	assert.True(t, strings.HasPrefix(rendered, "Retrieved Information for Sections:\n"))
	assert.Equal(t, 2, strings.Count(rendered, "Section: นิยาม (ID: s5)"))
	assert.Contains(t, rendered, "No exact match found for Section 98.")
}

func TestSectionExtractor_FailureDoesNotAbort(t *testing.T) {
	store := &ragtest.Store{
		SectionsFunc: func(ctx context.Context, number string) ([]rag.Section, error) {
			if number == "1" {
				return nil, errors.New("connection reset")
			}
			return []rag.Section{{ID: "s2", Number: number, Text: "ข้อความ"}}, nil
		},
	}

	lookup := NewSectionExtractor(store, nil).Lookup(context.Background(), "มาตรา 1 มาตรา 2")
	require.Len(t, lookup.Outcomes, 2)
	assert.Equal(t, "connection reset", lookup.Outcomes[0].Error)
	assert.Len(t, lookup.Outcomes[1].Sections, 1)
	assert.Contains(t, lookup.Render(), "Error looking up Section 1: connection reset")
}

func TestSectionLookup_RenderEmpty(t *testing.T) {
	assert.Equal(t, "No valid sections found in your query.", SectionLookup{}.Render())
}

func TestSynthesizer_EmptyRetrievalSkipsModel(t *testing.T) {
	mock := llm.NewMockLLM("should not be used")
	s := NewSynthesizer(mock)

	answer, err := s.Answer(context.Background(), "คำถาม", []rag.Hit{})
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInformation, answer)
	assert.Equal(t, 0, mock.Calls())

	answer, err = s.Answer(context.Background(), "คำถาม", nil)
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInformation, answer)
	assert.Equal(t, 0, mock.Calls())
}

func TestSynthesizer_Answer(t *testing.T) {
	mock := llm.NewMockLLM("  คำตอบ  \n")
	s := NewSynthesizer(mock)

	answer, err := s.Answer(context.Background(), "คำถาม", []rag.Hit{{Text: "ข้อหนึ่ง"}, {Text: "ข้อสอง"}})
	require.NoError(t, err)
	assert.Equal(t, "คำตอบ", answer)
	assert.Contains(t, mock.LastPrompt(), "ข้อหนึ่ง\n\nข้อสอง")
	assert.Contains(t, mock.LastPrompt(), "in Thai")
}

func TestRetrievedPanel(t *testing.T) {
	hits := []rag.Hit{{
		Text:  "ก",
		Score: 0.9,
		Links: rag.Links{
			Next:     &rag.Chunk{ID: "c2", Text: "ข"},
			Document: &rag.Document{Name: "ประกาศ", RelatedSections: []string{"มาตรา 5", "มาตรา 98"}},
			Law:      "พรบ.",
		},
	}}

	assert.Equal(t, "Chunk: ก, Next Chunk: ข, Document: ประกาศ, Sections: [มาตรา 5, มาตรา 98]", RetrievedPanel(LabelAnnouncement, hits))
	assert.Equal(t, "Section: ก, Law: พรบ., Score: 0.9000", RetrievedPanel(LabelLaw, hits))
	assert.Equal(t, "Chunk: ข2, Next Chunk: , Document: , Sections: ", RetrievedPanel(LabelAnnouncement, []rag.Hit{{Text: "ข2"}}))
}

func TestChatbot_ExactSectionNotFound(t *testing.T) {
	mock := (&llm.MockLLM{}).On(classifyMarker, "exact_section_query")
	store := &ragtest.Store{}
	bot := newTestChatbot(t, mock, store, nil)
	h := NewHistory()

	reply := bot.Turn(context.Background(), h, "มาตรา 98 ว่าด้วยเรื่องอะไร")

	assert.Equal(t, LabelExactSection, reply.Query.Label)
	assert.Equal(t, []string{"98"}, store.SectionLookups)
	assert.NotEmpty(t, reply.Message)
	assert.Contains(t, reply.Message, "No exact match found for Section 98.")
	assert.Equal(t, 1, mock.Calls(), "exact lookups are not synthesized")

	msgs := h.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, reply.Message, msgs[1].Content)
}

func TestChatbot_ExactLabelWithoutMarker(t *testing.T) {
	mock := (&llm.MockLLM{}).
		On(classifyMarker, "exact_section_query").
		On(generalMarker, "คำตอบทั่วไป")
	store := &ragtest.Store{}
	bot := newTestChatbot(t, mock, store, nil)

	reply := bot.Turn(context.Background(), NewHistory(), "ข้อ 98 คืออะไร")
	assert.Equal(t, "คำตอบทั่วไป", reply.Message)
	assert.Empty(t, store.SectionLookups)
}

func TestChatbot_Announcement(t *testing.T) {
	mock := (&llm.MockLLM{}).
		On(classifyMarker, "announcement_query").
		On(answerMarker, "ตามประกาศ ต้องมีคณะกรรมการตรวจสอบ")
	store := &ragtest.Store{
		SearchFunc: func(ctx context.Context, index rag.Index, vector []float32, topK int, opts *rag.SearchOptions) ([]rag.Hit, error) {
			return []rag.Hit{{ID: "c1", Text: "ต้องจัดให้มีคณะกรรมการตรวจสอบ", Score: 0.8}}, nil
		},
		LinksFunc: func(ctx context.Context, index rag.Index, id string) (rag.Links, error) {
			return rag.Links{Document: &rag.Document{Name: "สนส. 1/2565", RelatedSections: []string{"มาตรา 98"}}}, nil
		},
	}
	bot := newTestChatbot(t, mock, store, nil)

	reply := bot.Turn(context.Background(), NewHistory(), "ประกาศธนาคารแห่งประเทศไทยเรื่องคณะกรรมการตรวจสอบ")

	require.Len(t, store.Searches, 1)
	assert.Equal(t, rag.IndexChunk, store.Searches[0].Index)
	assert.Equal(t, 10, store.Searches[0].TopK)
	assert.Equal(t, "ตามประกาศ ต้องมีคณะกรรมการตรวจสอบ", reply.Message)
	assert.Contains(t, reply.Retrieved, "Document: สนส. 1/2565")
	assert.Contains(t, mock.LastPrompt(), "ต้องจัดให้มีคณะกรรมการตรวจสอบ")
}

func TestChatbot_LawNoResults(t *testing.T) {
	mock := (&llm.MockLLM{}).On(classifyMarker, "law_query")
	store := &ragtest.Store{}
	bot := newTestChatbot(t, mock, store, nil)

	reply := bot.Turn(context.Background(), NewHistory(), "กฏหมายเกี่ยวกับการกำกับดูแล")

	require.Len(t, store.Searches, 1)
	assert.Equal(t, rag.IndexSection, store.Searches[0].Index)
	assert.Equal(t, 5, store.Searches[0].TopK)
	assert.Equal(t, NoRelevantInformation, reply.Message)
	assert.Equal(t, 1, mock.Calls())
}

func TestChatbot_EmbeddingFailure(t *testing.T) {
	mock := (&llm.MockLLM{}).On(classifyMarker, "law_query")
	store := &ragtest.Store{}
	embedder := &ragtest.Embedder{
		EmbedFunc: func(ctx context.Context, texts []string) ([]rag.EmbeddingRecord, error) {
			return nil, errors.New("rate limited")
		},
	}
	bot := newTestChatbot(t, mock, store, embedder)
	h := NewHistory()

	reply := bot.Turn(context.Background(), h, "มาตรฐานกฏหมาย")

	assert.Empty(t, store.Searches)
	assert.True(t, strings.HasPrefix(reply.Message, "An error occurred while processing your query: "))
	assert.Contains(t, reply.Err, "rate limited")
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, reply.Message, last.Content)
}

func TestChatbot_SynthesisFailure(t *testing.T) {
	mock := (&llm.MockLLM{}).
		On(classifyMarker, "general_question").
		OnError(generalMarker, errors.New("model overloaded"))
	bot := newTestChatbot(t, mock, &ragtest.Store{}, nil)
	h := NewHistory()

	reply := bot.Turn(context.Background(), h, "สวัสดี")

	assert.Equal(t, "An error occurred while processing your query: model overloaded", reply.Message)
	assert.Equal(t, 2, h.Len())
}

func TestNew_Validation(t *testing.T) {
	retriever, err := rag.NewRetriever(&ragtest.Embedder{}, &ragtest.Store{})
	require.NoError(t, err)

	_, err = New(nil, retriever, DefaultConfig())
	assert.Error(t, err)
	_, err = New(llm.NewMockLLM(""), nil, DefaultConfig())
	assert.Error(t, err)
	_, err = New(llm.NewMockLLM(""), retriever, Config{})
	assert.ErrorIs(t, err, rag.ErrInvalidTopK)
}

func TestHistory_AppendOnly(t *testing.T) {
	h := NewHistory()
	h.Append(RoleUser, "a")
	snapshot := h.Messages()
	h.Append(RoleAssistant, "b")

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, h.Len())
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)

	_, ok = NewHistory().Last()
	assert.False(t, ok)
}

func TestMemoryHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryHistoryStore()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Append(ctx, "missing", Message{}), ErrSessionNotFound)

	id, err := s.Create(ctx)
	require.NoError(t, err)
	msgs, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, s.Append(ctx, id, Message{Role: RoleUser, Content: "a"}, Message{Role: RoleAssistant, Content: "b"}))
	msgs, err = s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[1].Content)
}

func TestRedisHistoryStore_Integration(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" || testing.Short() {
		t.Skip("REDIS_TEST_URL not set")
	}

	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	s := NewRedisHistoryStore(rdb, time.Minute)
	id, err := s.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, id, Message{Role: RoleUser, Content: "มาตรา 98"}))
	msgs, err := s.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "มาตรา 98", msgs[0].Content)

	_, err = s.Load(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
