package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Client wraps a ChatModel with the two call shapes the rest of the system
// needs: plain text completion and a vision call carrying one image.
// Failures come back as *GenerationError so callers can treat the provider
// as a black box.
type Client struct {
	model   model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
	backend Backend
}

// NewClient wraps the given ChatModel.
func NewClient(m model.ChatModel, backend Backend) (*Client, error) { //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream; migration tracked separately
	if m == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	return &Client{model: m, backend: backend}, nil
}

// Backend reports which backend this client speaks to.
func (c *Client) Backend() Backend { return c.backend }

// Complete sends the messages and returns the assistant's text.
func (c *Client) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", &GenerationError{Backend: c.backend, Err: err}
	}
	if resp == nil {
		return "", &GenerationError{Backend: c.backend, Err: fmt.Errorf("model returned nil response")}
	}
	return resp.Content, nil
}

// CompleteVision sends a prompt together with one inline image and returns
// the assistant's text. The image travels as a base64 data URL, which every
// supported vision backend accepts.
func (c *Client) CompleteVision(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("provider: image data must not be empty")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{
				Type: schema.ChatMessagePartTypeText,
				Text: prompt,
			},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      dataURL,
					MIMEType: mimeType,
				},
			},
		},
	}

	resp, err := c.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return "", &GenerationError{Backend: c.backend, Err: err}
	}
	if resp == nil {
		return "", &GenerationError{Backend: c.backend, Err: fmt.Errorf("model returned nil response")}
	}
	return resp.Content, nil
}
