package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// OpenAICompatible talks to a local server exposing the OpenAI REST surface,
// such as LM Studio or llama.cpp's llama-server.
type OpenAICompatible struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	name       string
}

func NewOpenAICompatible(baseURL, model string, client *http.Client) *OpenAICompatible {
	return &OpenAICompatible{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		HTTPClient: client,
		name:       "openai",
	}
}

func (o *OpenAICompatible) Name() string { return o.name }

type openAIRequest struct {
	Model       string    `json:"model,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r openAIResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	c := r.Choices[0]
	switch {
	case c.Text != "":
		return c.Text
	case c.Message.Content != "":
		return c.Message.Content
	default:
		return c.Delta.Content
	}
}

// Ready checks the models list.
func (o *OpenAICompatible) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", o.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", o.name, resp.Status)
	}
	return nil
}

func (o *OpenAICompatible) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := o.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", o.name, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%s: %s", o.name, out.Error.Message)
	}
	return out.text(), nil
}

// Stream reads server-sent events until "data: [DONE]".
func (o *OpenAICompatible) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.post(ctx, req, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var chunk openAIResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				yield("", fmt.Errorf("decode %s stream: %w", o.name, err))
				return
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("%s: %s", o.name, chunk.Error.Message))
				return
			}
			if t := chunk.text(); t != "" {
				if !yield(t, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("read %s stream: %w", o.name, err))
		}
	}
}

func (o *OpenAICompatible) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload := openAIRequest{
		Model:       o.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	path := "/v1/completions"
	if req.Mode == ModeChat {
		path = "/v1/chat/completions"
		payload.Messages = req.Messages
	} else {
		payload.Prompt = req.Prompt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", o.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", o.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := o.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", o.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %s", o.name, resp.Status)
	}
	return resp, nil
}

func (o *OpenAICompatible) client() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}
