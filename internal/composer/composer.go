// Package composer turns an incoming user message (plus optional image) into
// the bot's reply. It is the top of the dependency graph: the direct matcher
// runs first because it is free, retrieval and product matching build the
// generation context, and the external model is called last and only when
// needed. Persistence of the turn and the first-message webhook are terminal
// side effects that never block the returned answer.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/botforge/botcore/internal/budget"
	"github.com/botforge/botcore/internal/catalog"
	"github.com/botforge/botcore/internal/directmatch"
	"github.com/botforge/botcore/internal/logging"
	"github.com/botforge/botcore/internal/notify"
	"github.com/botforge/botcore/internal/provider"
	"github.com/botforge/botcore/internal/rag"
	"github.com/botforge/botcore/internal/store"
	"github.com/botforge/botcore/internal/vision"
)

// Defaults for the composition pipeline.
const (
	// DefaultTopK is how many retrieved chunks feed the context block.
	DefaultTopK = 5

	// DefaultHistoryLimit is how many prior turns are loaded before budget
	// trimming.
	DefaultHistoryLimit = 20

	// DefaultProductLimit is how many products a keyword or image search
	// contributes.
	DefaultProductLimit = 5

	// apology is returned when the generation provider fails. The real
	// error is logged server-side; the user sees nothing provider-specific.
	apology = "Sorry, I'm having trouble answering right now. Please try again in a moment."
)

// defaultSystemPrompt frames the model as the tenant's storefront assistant.
const defaultSystemPrompt = `You are a helpful customer support assistant for an online store. Answer using the provided store information and product matches when they are relevant. If the information needed is not available, say so honestly and briefly. Answer in the language the customer writes in.`

// Request is one incoming user turn.
type Request struct {
	// TenantID identifies the bot.
	TenantID string

	// ConversationID identifies the thread within the tenant.
	ConversationID string

	// Message is the user's text. May be empty when an image is sent alone.
	Message string

	// Image is the raw uploaded image, nil for text-only turns.
	Image []byte

	// ImageMIME is the image content type (default image/jpeg).
	ImageMIME string
}

// Product is a product reference included in a response.
type Product struct {
	Name       string  `json:"name"`
	Price      string  `json:"price,omitempty"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	PageURL    string  `json:"pageUrl,omitempty"`
	Similarity float32 `json:"similarity"`
	MatchType  string  `json:"matchType,omitempty"`
}

// Response is the composed reply.
type Response struct {
	// Answer is the assistant text returned to the user.
	Answer string

	// Direct is true when the answer came from the direct matcher and no
	// generation call was made.
	Direct bool

	// Products are the catalog matches that informed the answer, if any.
	Products []Product
}

// directMatcher is the direct-answer short circuit.
type directMatcher interface {
	Match(ctx context.Context, tenantID, question string) (directmatch.Result, error)
}

// retriever supplies ranked knowledge chunks.
type retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, topK int) ([]rag.Match, error)
}

// productMatcher matches an image against the catalog.
type productMatcher interface {
	MatchProduct(ctx context.Context, tenantID string, imageData []byte, mimeType string, limit int) ([]vision.ProductMatch, string, error)
}

// productSearcher answers text queries against the catalog.
type productSearcher interface {
	Search(ctx context.Context, tenantID string, query []float32, limit int) ([]catalog.Match, error)
}

// generator is the external completion provider.
type generator interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
	CompleteVision(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error)
}

// Config tunes the composer. The zero value is usable: defaults are applied
// by New.
type Config struct {
	// SystemPrompt overrides the default assistant persona.
	SystemPrompt string

	// TopK is the retrieval depth (default 5).
	TopK int

	// HistoryLimit caps how many prior messages are loaded (default 20).
	HistoryLimit int

	// MaxContextTokens bounds the assembled prompt (default
	// budget.DefaultMaxContextTokens).
	MaxContextTokens int

	// ProductKeywords trigger a catalog text search on a text-only turn.
	// Nil uses DefaultProductKeywords.
	ProductKeywords []string

	// ProductLimit caps product matches per turn (default 5).
	ProductLimit int
}

// DefaultProductKeywords are message words that suggest the user is asking
// about merchandise, in English and Hebrew.
func DefaultProductKeywords() []string {
	return []string{
		"buy", "price", "cost", "product", "order", "stock", "size",
		"dress", "shirt", "jeans", "shoes", "jacket", "coat", "bag",
		"לקנות", "מחיר", "מוצר", "הזמנה", "מלאי", "מידה",
		"שמלה", "חולצה", "גינס", "נעליים", "מעיל", "תיק",
	}
}

// Composer orchestrates one user turn. Safe for concurrent use; requests
// share no mutable state.
type Composer struct {
	direct        directMatcher
	retriever     retriever
	imageMatcher  productMatcher
	products      productSearcher
	embedder      rag.Embedder
	generator     generator
	conversations store.ConversationStore
	notifier      notify.Notifier

	systemPrompt    string
	topK            int
	historyLimit    int
	maxTokens       int
	productKeywords []string
	productLimit    int
}

// Deps are the collaborators a Composer requires. imageMatcher, products,
// and embedder may be nil when no catalog is configured; the corresponding
// steps are skipped.
type Deps struct {
	Direct        directMatcher
	Retriever     retriever
	ImageMatcher  productMatcher
	Products      productSearcher
	Embedder      rag.Embedder
	Generator     generator
	Conversations store.ConversationStore
	Notifier      notify.Notifier
}

// New constructs a Composer.
func New(deps Deps, cfg *Config) (*Composer, error) {
	if deps.Direct == nil {
		return nil, fmt.Errorf("composer: direct matcher must not be nil")
	}
	if deps.Retriever == nil {
		return nil, fmt.Errorf("composer: retriever must not be nil")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("composer: generator must not be nil")
	}
	if deps.Conversations == nil {
		return nil, fmt.Errorf("composer: conversation store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	keywords := cfg.ProductKeywords
	if keywords == nil {
		keywords = DefaultProductKeywords()
	}
	productLimit := cfg.ProductLimit
	if productLimit <= 0 {
		productLimit = DefaultProductLimit
	}
	return &Composer{
		direct:          deps.Direct,
		retriever:       deps.Retriever,
		imageMatcher:    deps.ImageMatcher,
		products:        deps.Products,
		embedder:        deps.Embedder,
		generator:       deps.Generator,
		conversations:   deps.Conversations,
		notifier:        notifier,
		systemPrompt:    systemPrompt,
		topK:            topK,
		historyLimit:    historyLimit,
		maxTokens:       maxTokens,
		productKeywords: keywords,
		productLimit:    productLimit,
	}, nil
}

// Respond handles one user turn end to end.
func (c *Composer) Respond(ctx context.Context, req *Request) (*Response, error) {
	if req.TenantID == "" || req.ConversationID == "" {
		return nil, fmt.Errorf("composer: tenant and conversation IDs are required")
	}
	if req.Message == "" && len(req.Image) == 0 {
		return nil, fmt.Errorf("composer: message or image is required")
	}

	// First-turn detection happens before the user message is persisted.
	count, err := c.conversations.Count(ctx, req.TenantID, req.ConversationID)
	if err != nil {
		logging.FromContext(ctx).Warn("composer: conversation count failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
		count = -1 // unknown; suppress the webhook rather than misfire it
	}

	var resp *Response
	if len(req.Image) > 0 {
		resp = c.respondWithImage(ctx, req)
	} else {
		resp = c.respondText(ctx, req)
	}

	c.persistTurn(ctx, req, resp)

	if count == 0 {
		c.fireConversationStarted(ctx, req)
	}
	return resp, nil
}

// respondText is the no-image branch: direct match first, then retrieval
// plus optional product search, then generation.
func (c *Composer) respondText(ctx context.Context, req *Request) *Response {
	log := logging.FromContext(ctx)

	direct, err := c.direct.Match(ctx, req.TenantID, req.Message)
	if err != nil {
		log.Warn("composer: direct match failed, falling through to generation",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
	}
	if direct.Found {
		log.Info("composer: direct answer",
			slog.String("tenant_id", req.TenantID),
			slog.String("source", direct.Source),
			slog.Float64("confidence", direct.Confidence),
		)
		return &Response{Answer: direct.Answer, Direct: true}
	}

	chunks, err := c.retriever.Retrieve(ctx, req.TenantID, req.Message, c.topK)
	if err != nil {
		log.Error("composer: retrieval failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
		return &Response{Answer: apology}
	}

	var products []Product
	if c.messageMentionsProducts(req.Message) {
		products = c.searchProductsByText(ctx, req.TenantID, req.Message)
	}

	system := c.buildSystemPrompt(chunks, products, "")
	msgs := c.assembleMessages(ctx, req, system)

	answer, err := c.generator.Complete(ctx, msgs)
	if err != nil {
		return c.generationFailure(ctx, req, err)
	}
	return &Response{Answer: answer, Products: products}
}

// respondWithImage is the image branch: the direct matcher is skipped
// unconditionally because text similarity says nothing about an image.
func (c *Composer) respondWithImage(ctx context.Context, req *Request) *Response {
	log := logging.FromContext(ctx)

	var products []Product
	var description string
	if c.imageMatcher != nil {
		matches, desc, err := c.imageMatcher.MatchProduct(ctx, req.TenantID, req.Image, req.ImageMIME, c.productLimit)
		if err != nil {
			log.Warn("composer: image matching failed, answering without product context",
				slog.String("tenant_id", req.TenantID),
				slog.String("error", err.Error()),
			)
		} else {
			description = desc
			for _, m := range matches {
				products = append(products, Product{
					Name:       m.Product.Name,
					Price:      m.Product.Price,
					ImageURL:   m.Product.ImageURL,
					PageURL:    m.Product.PageURL,
					Similarity: m.Similarity,
					MatchType:  string(m.Type),
				})
			}
		}
	}

	prompt := c.buildVisionPrompt(req.Message, products, description)
	answer, err := c.generator.CompleteVision(ctx, prompt, req.Image, req.ImageMIME)
	if err != nil {
		return c.generationFailure(ctx, req, err)
	}
	return &Response{Answer: answer, Products: products}
}

// generationFailure logs the provider error and substitutes the apology.
func (c *Composer) generationFailure(ctx context.Context, req *Request, err error) *Response {
	log := logging.FromContext(ctx)
	var genErr *provider.GenerationError
	if errors.As(err, &genErr) {
		log.Error("composer: generation provider failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("backend", string(genErr.Backend)),
			slog.String("error", genErr.Err.Error()),
		)
	} else {
		log.Error("composer: generation failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
	}
	return &Response{Answer: apology}
}

// messageMentionsProducts reports whether the message contains a catalog
// keyword.
func (c *Composer) messageMentionsProducts(message string) bool {
	normalized := directmatch.Normalize(message)
	if normalized == "" {
		return false
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		words[w] = struct{}{}
	}
	for _, kw := range c.productKeywords {
		if _, ok := words[strings.ToLower(kw)]; ok {
			return true
		}
	}
	return false
}

// searchProductsByText embeds the message and searches the catalog. Any
// failure degrades to no products.
func (c *Composer) searchProductsByText(ctx context.Context, tenantID, message string) []Product {
	if c.products == nil || c.embedder == nil {
		return nil
	}
	log := logging.FromContext(ctx)

	embeddings, err := c.embedder.Embed(ctx, []string{message})
	if err != nil || len(embeddings) == 0 {
		log.Warn("composer: product query embedding failed",
			slog.String("tenant_id", tenantID),
		)
		return nil
	}
	matches, err := c.products.Search(ctx, tenantID, embeddings[0], c.productLimit)
	if err != nil {
		log.Warn("composer: product search failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var products []Product
	for _, m := range matches {
		if m.Similarity < vision.Floor {
			continue
		}
		products = append(products, Product{
			Name:       m.Product.Name,
			Price:      m.Product.Price,
			ImageURL:   m.Product.ImageURL,
			PageURL:    m.Product.PageURL,
			Similarity: m.Similarity,
		})
	}
	return products
}

// buildSystemPrompt assembles the system message from the persona, the
// retrieved chunks, and any product matches.
func (c *Composer) buildSystemPrompt(chunks []rag.Match, products []Product, imageDescription string) string {
	var b strings.Builder
	b.WriteString(c.systemPrompt)

	if len(chunks) > 0 {
		b.WriteString("\n\nStore information:\n")
		for _, ch := range chunks {
			b.WriteString("- ")
			b.WriteString(ch.Content)
			b.WriteString("\n")
		}
	}
	if len(products) > 0 {
		b.WriteString("\nMatching products:\n")
		for _, p := range products {
			b.WriteString("- ")
			b.WriteString(p.Name)
			if p.Price != "" {
				b.WriteString(" (")
				b.WriteString(p.Price)
				b.WriteString(")")
			}
			if p.PageURL != "" {
				b.WriteString(" ")
				b.WriteString(p.PageURL)
			}
			b.WriteString("\n")
		}
	}
	if imageDescription != "" {
		b.WriteString("\nThe customer's image shows: ")
		b.WriteString(imageDescription)
		b.WriteString("\n")
	}
	return b.String()
}

// buildVisionPrompt flattens the persona, product context, and user text
// into one prompt for the vision completion call.
func (c *Composer) buildVisionPrompt(message string, products []Product, description string) string {
	var b strings.Builder
	b.WriteString(c.buildSystemPrompt(nil, products, description))
	b.WriteString("\nThe customer sent the attached image")
	if message != "" {
		b.WriteString(" and wrote: ")
		b.WriteString(message)
	}
	b.WriteString("\nHelp them find the product or answer their question.")
	return b.String()
}

// assembleMessages builds the final message slice: system prompt, trimmed
// history, current user message.
func (c *Composer) assembleMessages(ctx context.Context, req *Request, system string) []*schema.Message {
	fixed := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(req.Message),
	}

	history, err := c.conversations.Recent(ctx, req.TenantID, req.ConversationID, c.historyLimit)
	if err != nil {
		logging.FromContext(ctx).Warn("composer: history load failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
		history = nil
	}

	var turns []*schema.Message
	for _, m := range history {
		switch m.Role {
		case store.RoleAssistant:
			turns = append(turns, schema.AssistantMessage(m.Content, nil))
		default:
			turns = append(turns, schema.UserMessage(m.Content))
		}
	}
	turns = budget.TrimHistory(fixed, turns, c.maxTokens)

	msgs := make([]*schema.Message, 0, len(turns)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	msgs = append(msgs, turns...)
	msgs = append(msgs, schema.UserMessage(req.Message))
	return msgs
}

// persistTurn records the user and assistant messages. Failures are logged,
// never returned: the answer is already composed.
func (c *Composer) persistTurn(ctx context.Context, req *Request, resp *Response) {
	log := logging.FromContext(ctx)

	userText := req.Message
	if userText == "" {
		userText = "[image]"
	}
	if err := c.conversations.Append(ctx, req.TenantID, req.ConversationID, store.RoleUser, userText); err != nil {
		log.Error("composer: persist user message failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
	}
	if err := c.conversations.Append(ctx, req.TenantID, req.ConversationID, store.RoleAssistant, resp.Answer); err != nil {
		log.Error("composer: persist assistant message failed",
			slog.String("tenant_id", req.TenantID),
			slog.String("error", err.Error()),
		)
	}
}

// fireConversationStarted dispatches the webhook without blocking the
// response. The goroutine gets a detached context so an already-answered
// request being cancelled does not abort delivery.
func (c *Composer) fireConversationStarted(ctx context.Context, req *Request) {
	detached := context.WithoutCancel(ctx)
	go c.notifier.Notify(detached, notify.Payload{
		Event:          notify.EventConversationStarted,
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
	})
}
