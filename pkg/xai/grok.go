package xai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client はxAI (Grok) のOpenAI互換REST APIへのリクエストを管理します。
// エンドポイントには実際のAPI、またはリクエストを転送するプロキシのURLを
// 設定できます。
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient は新しいxAIクライアントを作成します。
func NewClient(endpoint, apiKey, model string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// --- データ構造定義 ---

// ChatMessage チャットメッセージ
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest チャット補完リクエスト
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatCompletionResponse チャット補完レスポンス
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// streamChunk ストリーミングレスポンスの1チャンク（SSEのdata行）
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// --- メソッド定義 ---

// Complete はシステムプロンプトとユーザープロンプトから補完テキストを
// 一括で生成します（ブロッキング）。
func (c *Client) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}

	request := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
	}

	body, err := c.doRequest(ctx, request)
	if err != nil {
		return "", fmt.Errorf("xAI API 呼び出しに失敗: %w", err)
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("xAI からの応答が空です")
	}
	return response.Choices[0].Message.Content, nil
}

// StreamComplete はチャット補完をストリーミングで実行し、テキスト断片を
// 順序どおりに送出するチャネルを返します。ストリームは有限で、[DONE]
// 受信またはコンテキストのキャンセルでクローズされます。
func (c *Client) StreamComplete(ctx context.Context, systemPrompt string, messages []ChatMessage) (<-chan string, error) {
	allMessages := append([]ChatMessage{{Role: "system", Content: systemPrompt}}, messages...)

	request := ChatCompletionRequest{
		Model:    c.model,
		Messages: allMessages,
		Stream:   true,
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	url := strings.TrimSuffix(c.endpoint, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, parseAPIError(resp.StatusCode, body)
	}

	fragments := make(chan string)
	go func() {
		defer close(fragments)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // 不正なチャンクはスキップ
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			// 消費側がストリームを放棄した場合はコンテキスト経由で抜ける
			select {
			case fragments <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()

	return fragments, nil
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *Client) doRequest(ctx context.Context, request ChatCompletionRequest) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key が設定されていません")
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	url := strings.TrimSuffix(c.endpoint, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// parseAPIError エラーレスポンスを読み取り、可能なら構造化メッセージを返します。
func parseAPIError(statusCode int, body []byte) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf("xAI API エラー (status: %d): %s", statusCode, errorResp.Error.Message)
	}
	return fmt.Errorf("xAI API エラー (status: %d): %s", statusCode, string(body))
}
