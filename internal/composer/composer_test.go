package composer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/botforge/botcore/internal/catalog"
	"github.com/botforge/botcore/internal/directmatch"
	"github.com/botforge/botcore/internal/notify"
	"github.com/botforge/botcore/internal/provider"
	"github.com/botforge/botcore/internal/rag"
	"github.com/botforge/botcore/internal/store"
	"github.com/botforge/botcore/internal/vision"
)

// fakeGenerator counts invocations and records the last message slice.
type fakeGenerator struct {
	mu          sync.Mutex
	completes   int
	visionCalls int
	lastMsgs    []*schema.Message
	answer      string
	err         error
}

func (f *fakeGenerator) Complete(_ context.Context, msgs []*schema.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	f.lastMsgs = msgs
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) CompleteVision(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visionCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeDirect struct {
	result directmatch.Result
	err    error
}

func (f *fakeDirect) Match(context.Context, string, string) (directmatch.Result, error) {
	return f.result, f.err
}

type fakeRetriever struct {
	matches []rag.Match
	err     error
}

func (f *fakeRetriever) Retrieve(context.Context, string, string, int) ([]rag.Match, error) {
	return f.matches, f.err
}

type fakeImageMatcher struct {
	matches     []vision.ProductMatch
	description string
	err         error
}

func (f *fakeImageMatcher) MatchProduct(context.Context, string, []byte, string, int) ([]vision.ProductMatch, string, error) {
	return f.matches, f.description, f.err
}

type fakeProductSearch struct{ matches []catalog.Match }

func (f *fakeProductSearch) Search(context.Context, string, []float32, int) ([]catalog.Match, error) {
	return f.matches, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// recordingNotifier captures delivered payloads.
type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (r *recordingNotifier) Notify(_ context.Context, p notify.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func openConversations(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open conversations: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newComposer(t *testing.T, deps Deps, cfg *Config) *Composer {
	t.Helper()
	if deps.Direct == nil {
		deps.Direct = &fakeDirect{}
	}
	if deps.Retriever == nil {
		deps.Retriever = &fakeRetriever{}
	}
	if deps.Generator == nil {
		deps.Generator = &fakeGenerator{answer: "generated"}
	}
	if deps.Conversations == nil {
		deps.Conversations = openConversations(t)
	}
	c, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}
	return c
}

func Test_Composer_DirectHitSkipsGeneration(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{answer: "generated"}
	conv := openConversations(t)
	c := newComposer(t, Deps{
		Direct: &fakeDirect{result: directmatch.Result{
			Found: true, Answer: "9am-5pm", Confidence: 1, Source: "qa",
		}},
		Generator:     gen,
		Conversations: conv,
	}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1", Message: "What are your hours?",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.Answer != "9am-5pm" || !resp.Direct {
		t.Errorf("want direct answer, got %+v", resp)
	}
	if gen.completes != 0 || gen.visionCalls != 0 {
		t.Errorf("generator must not be invoked on a direct hit, got %d/%d calls", gen.completes, gen.visionCalls)
	}

	// The turn is persisted even on the cheap path.
	msgs, err := conv.Recent(context.Background(), "bot-a", "conv-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "9am-5pm" {
		t.Errorf("want persisted turn, got %v", msgs)
	}
}

func Test_Composer_MissRetrievesAndGeneratesOnce(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{answer: "we ship worldwide"}
	chunks := []rag.Match{
		{Content: "We ship worldwide.", Similarity: 0.9},
		{Content: "Shipping takes 5 days.", Similarity: 0.8},
		{Content: "Returns accepted for 30 days.", Similarity: 0.7},
	}
	c := newComposer(t, Deps{
		Retriever: &fakeRetriever{matches: chunks},
		Generator: gen,
	}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1", Message: "Tell me about delivery",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.Answer != "we ship worldwide" || resp.Direct {
		t.Errorf("want generated answer, got %+v", resp)
	}
	if gen.completes != 1 {
		t.Fatalf("want exactly one generation call, got %d", gen.completes)
	}

	system := gen.lastMsgs[0]
	if system.Role != schema.System {
		t.Fatalf("first message must be the system prompt, got %s", system.Role)
	}
	for _, ch := range chunks {
		if !strings.Contains(system.Content, ch.Content) {
			t.Errorf("system prompt missing chunk %q", ch.Content)
		}
	}
}

func Test_Composer_GenerationFailureReturnsApologyAndPersistsUser(t *testing.T) {
	t.Parallel()
	conv := openConversations(t)
	gen := &fakeGenerator{err: &provider.GenerationError{Backend: provider.BackendOpenAI, Err: errors.New("rate limited")}}
	c := newComposer(t, Deps{Generator: gen, Conversations: conv}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1", Message: "hello",
	})
	if err != nil {
		t.Fatalf("provider failure must not surface as an error: %v", err)
	}
	if resp.Answer != apology {
		t.Errorf("want apology, got %q", resp.Answer)
	}

	msgs, err := conv.Recent(context.Background(), "bot-a", "conv-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) == 0 || msgs[0].Content != "hello" {
		t.Errorf("user message must still be persisted, got %v", msgs)
	}
}

func Test_Composer_ImageSkipsDirectMatcher(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{answer: "looks like our red dress"}
	c := newComposer(t, Deps{
		// A direct matcher that would fire on any text. It must be skipped.
		Direct: &fakeDirect{result: directmatch.Result{Found: true, Answer: "wrong path", Source: "qa"}},
		ImageMatcher: &fakeImageMatcher{
			matches: []vision.ProductMatch{{
				Product:    catalog.Product{Name: "Red Dress", Price: "199", PageURL: "https://shop/p1"},
				Similarity: 0.91,
				Type:       vision.MatchExact,
			}},
			description: "a red evening dress",
		},
		Generator: gen,
	}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1",
		Message: "do you have this?", Image: []byte{0xFF, 0xD8}, ImageMIME: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.Answer != "looks like our red dress" {
		t.Errorf("want vision answer, got %q", resp.Answer)
	}
	if gen.visionCalls != 1 || gen.completes != 0 {
		t.Errorf("want one vision call and no text call, got %d/%d", gen.visionCalls, gen.completes)
	}
	if len(resp.Products) != 1 || resp.Products[0].MatchType != "exact" {
		t.Errorf("want exact product match in response, got %+v", resp.Products)
	}
}

func Test_Composer_KeywordTriggersProductSearch(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{answer: "we have jeans"}
	search := &fakeProductSearch{matches: []catalog.Match{
		{Product: catalog.Product{Name: "Blue Jeans", Price: "149"}, Similarity: 0.7},
	}}
	c := newComposer(t, Deps{
		Generator: gen,
		Products:  search,
		Embedder:  fakeEmbedder{},
	}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1", Message: "how much do your jeans cost",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].Name != "Blue Jeans" {
		t.Errorf("want product match, got %+v", resp.Products)
	}
	if !strings.Contains(gen.lastMsgs[0].Content, "Blue Jeans") {
		t.Error("system prompt must carry the product context")
	}
}

func Test_Composer_NoKeywordNoProductSearch(t *testing.T) {
	t.Parallel()
	search := &fakeProductSearch{matches: []catalog.Match{
		{Product: catalog.Product{Name: "Blue Jeans"}, Similarity: 0.7},
	}}
	c := newComposer(t, Deps{
		Generator: &fakeGenerator{answer: "hi"},
		Products:  search,
		Embedder:  fakeEmbedder{},
	}, nil)

	resp, err := c.Respond(context.Background(), &Request{
		TenantID: "bot-a", ConversationID: "conv-1", Message: "when are you open on fridays",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(resp.Products) != 0 {
		t.Errorf("no keyword means no product search, got %+v", resp.Products)
	}
}

func Test_Composer_FirstMessageFiresWebhook(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	c := newComposer(t, Deps{
		Generator: &fakeGenerator{answer: "hi"},
		Notifier:  notifier,
	}, nil)

	ctx := context.Background()
	if _, err := c.Respond(ctx, &Request{TenantID: "bot-a", ConversationID: "conv-1", Message: "hello"}); err != nil {
		t.Fatalf("first respond: %v", err)
	}
	// Delivery runs in a goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if notifier.count() != 1 {
		t.Fatalf("want 1 webhook after first message, got %d", notifier.count())
	}

	if _, err := c.Respond(ctx, &Request{TenantID: "bot-a", ConversationID: "conv-1", Message: "second"}); err != nil {
		t.Fatalf("second respond: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if notifier.count() != 1 {
		t.Errorf("webhook must fire only on the first message, got %d", notifier.count())
	}
}

func Test_Composer_ValidatesRequest(t *testing.T) {
	t.Parallel()
	c := newComposer(t, Deps{}, nil)

	if _, err := c.Respond(context.Background(), &Request{ConversationID: "c", Message: "m"}); err == nil {
		t.Error("want error for missing tenant")
	}
	if _, err := c.Respond(context.Background(), &Request{TenantID: "t", ConversationID: "c"}); err == nil {
		t.Error("want error for empty message and image")
	}
}
