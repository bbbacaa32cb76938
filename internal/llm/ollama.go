package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// Ollama talks to a local Ollama instance (https://ollama.com/).
type Ollama struct {
	Host       string
	Model      string
	HTTPClient *http.Client
}

func NewOllama(host, model string, client *http.Client) *Ollama {
	return &Ollama{Host: strings.TrimRight(host, "/"), Model: model, HTTPClient: client}
}

func (o *Ollama) Name() string { return "ollama" }

type ollamaOptions struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Prompt   string        `json:"prompt,omitempty"`
	Raw      bool          `json:"raw,omitempty"`
	Messages []Message     `json:"messages,omitempty"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

// ollamaChunk covers both /api/generate and /api/chat bodies.
type ollamaChunk struct {
	Response string `json:"response"`
	Message  struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (c ollamaChunk) text() string {
	if c.Response != "" {
		return c.Response
	}
	return c.Message.Content
}

// Ready checks /api/tags and, when a model is configured, that it is pulled.
func (o *Ollama) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.Host+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client().Do(req)
	if err != nil {
		return fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %s", resp.Status)
	}

	var tags struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode ollama tags: %w", err)
	}
	if o.Model == "" {
		return nil
	}
	for _, m := range tags.Models {
		if m.Name == o.Model || m.Model == o.Model || strings.TrimSuffix(m.Name, ":latest") == o.Model {
			return nil
		}
	}
	return fmt.Errorf("%w: ollama model %q is not pulled", ErrModelNotFound, o.Model)
}

func (o *Ollama) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := o.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chunk ollamaChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	if chunk.Error != "" {
		return "", fmt.Errorf("ollama: %s", chunk.Error)
	}
	return chunk.text(), nil
}

// Stream reads the newline-delimited JSON chunks Ollama emits.
func (o *Ollama) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.post(ctx, req, true)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChunk
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", fmt.Errorf("decode ollama stream: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", fmt.Errorf("ollama: %s", chunk.Error))
				return
			}
			if t := chunk.text(); t != "" {
				if !yield(t, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}
}

func (o *Ollama) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	payload := ollamaRequest{
		Model:  o.Model,
		Stream: stream,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.Stop,
		},
	}
	path := "/api/generate"
	if req.Mode == ModeChat {
		path = "/api/chat"
		payload.Messages = req.Messages
	} else {
		payload.Prompt = req.Prompt
		payload.Raw = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned %s", resp.Status)
	}
	return resp, nil
}

func (o *Ollama) client() *http.Client {
	if o.HTTPClient == nil {
		return http.DefaultClient
	}
	return o.HTTPClient
}
