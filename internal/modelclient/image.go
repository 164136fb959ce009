package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ImageResult is the successful outcome of an image generation call.
type ImageResult struct {
	// ImageURL is set when the upstream returned a hosted URL.
	ImageURL string
	// ImageBase64 is set when the upstream returned inline image data.
	ImageBase64 string
	LatencyMs   int64
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// imageExtractor tries to pull an ImageResult out of a raw response body. It
// returns ok=false, without an error, when the shape simply doesn't match —
// letting the caller move on to the next candidate.
type imageExtractor func(body []byte) (result *ImageResult, ok bool)

// imageExtractors lists known upstream response shapes, tried in order.
// Gateways are inconsistent about where they put generated images, so the
// first match wins rather than requiring one canonical schema.
var imageExtractors = []imageExtractor{
	extractOpenAIImagesShape,
	extractChatContentObjectShape,
	extractChatContentURLShape,
	extractChatContentBase64Shape,
	extractDirectURLShape,
	extractTopLevelImageFieldShape,
}

// extractOpenAIImagesShape matches {"data":[{"url" | "b64_json": "..."}]}.
func extractOpenAIImagesShape(body []byte) (*ImageResult, bool) {
	var parsed struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Data) == 0 {
		return nil, false
	}
	first := parsed.Data[0]
	if first.URL == "" && first.B64JSON == "" {
		return nil, false
	}
	return &ImageResult{ImageURL: first.URL, ImageBase64: first.B64JSON}, true
}

// extractChatContentObjectShape matches a chat-completions-style body where
// the message content is itself a structured object rather than a plain
// string: {"choices":[{"message":{"content":{"url" | "image": "..."}}}]}.
// chatResponse types Message.Content as a plain string, so this shape must
// be parsed independently with a json.RawMessage field to avoid an
// unmarshal error on the outer struct.
func extractChatContentObjectShape(body []byte) (*ImageResult, bool) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, false
	}

	var obj struct {
		URL   string `json:"url"`
		Image string `json:"image"`
	}
	if err := json.Unmarshal(parsed.Choices[0].Message.Content, &obj); err != nil {
		return nil, false
	}
	if obj.URL != "" {
		return &ImageResult{ImageURL: obj.URL}, true
	}
	if obj.Image != "" {
		if looksLikeURL(obj.Image) {
			return &ImageResult{ImageURL: obj.Image}, true
		}
		return &ImageResult{ImageBase64: obj.Image}, true
	}
	return nil, false
}

// extractChatContentURLShape matches a chat-completions-style body where the
// message content is itself the image URL:
// {"choices":[{"message":{"content":"https://..."}}]}.
func extractChatContentURLShape(body []byte) (*ImageResult, bool) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, false
	}
	content := parsed.Choices[0].Message.Content
	if !looksLikeURL(content) {
		return nil, false
	}
	return &ImageResult{ImageURL: content}, true
}

// extractChatContentBase64Shape matches a chat-completions-style body where
// the message content is a data URL:
// {"choices":[{"message":{"content":"data:image/png;base64,...."}}]}.
func extractChatContentBase64Shape(body []byte) (*ImageResult, bool) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, false
	}
	content := parsed.Choices[0].Message.Content
	const prefix = "data:image/"
	if !bytes.HasPrefix([]byte(content), []byte(prefix)) {
		return nil, false
	}
	idx := bytes.IndexByte([]byte(content), ',')
	if idx == -1 {
		return nil, false
	}
	return &ImageResult{ImageBase64: content[idx+1:]}, true
}

// extractDirectURLShape matches the flattest possible shape: {"url": "..."}.
func extractDirectURLShape(body []byte) (*ImageResult, bool) {
	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.URL == "" {
		return nil, false
	}
	return &ImageResult{ImageURL: parsed.URL}, true
}

// extractTopLevelImageFieldShape matches the flattest object-image shape:
// {"image": "https://..." | "data:image/png;base64,..."}.
func extractTopLevelImageFieldShape(body []byte) (*ImageResult, bool) {
	var parsed struct {
		Image string `json:"image"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Image == "" {
		return nil, false
	}
	if looksLikeURL(parsed.Image) {
		return &ImageResult{ImageURL: parsed.Image}, true
	}
	return &ImageResult{ImageBase64: parsed.Image}, true
}

func looksLikeURL(s string) bool {
	return bytes.HasPrefix([]byte(s), []byte("http://")) || bytes.HasPrefix([]byte(s), []byte("https://"))
}

// CallImageModel requests image generation from the gateway and parses the
// response with the ordered extractor chain.
func (c *Client) CallImageModel(ctx context.Context, modelID, prompt string, timeout time.Duration) (*ImageResult, error) {
	start := time.Now()

	payload, err := json.Marshal(imageRequest{Model: modelID, Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("modelclient: encode image request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("modelclient: build image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, &NetworkError{Reason: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Reason: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}

	for _, extract := range imageExtractors {
		if result, ok := extract(body); ok {
			result.LatencyMs = time.Since(start).Milliseconds()
			return result, nil
		}
	}

	return nil, ErrUnsupportedImageResponseFormat
}
