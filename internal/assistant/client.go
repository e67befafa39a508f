package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"mathchat/internal/config"
)

// HistoryEntry — один ход диалога в окне контекста запроса.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest — тело запроса к сервису базы знаний. Параметры
// генерации — константы конфигурации, а не решения по месту вызова.
type completionRequest struct {
	Query             string         `json:"query"`
	KnowledgeBaseName string         `json:"knowledge_base_name"`
	TopK              int            `json:"top_k"`
	ScoreThreshold    float64        `json:"score_threshold"`
	History           []HistoryEntry `json:"history"`
	Stream            bool           `json:"stream"`
	ModelName         string         `json:"model_name"`
	Temperature       float64        `json:"temperature"`
}

// chunk — один SSE-кадр ответа: фрагмент накапливаемого текста.
type chunk struct {
	Answer string `json:"answer"`
}

// StatusError — не-успешный HTTP-статус апстрима.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

// Client — потоковый клиент сервиса базы знаний.
type Client struct {
	url            string
	kbName         string
	model          string
	topK           int
	scoreThreshold float64
	temperature    float64
	httpClient     *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		url:            cfg.KBURL,
		kbName:         cfg.KBName,
		model:          cfg.KBModel,
		topK:           cfg.KBTopK,
		scoreThreshold: cfg.KBScoreThreshold,
		temperature:    cfg.KBTemperature,
		httpClient:     &http.Client{},
	}
}

// Complete открывает потоковое соединение и склеивает фрагменты ответа в
// порядке прихода. Дедлайн передаётся через ctx; его истечение обрывает
// чтение и возвращает context.DeadlineExceeded.
func (c *Client) Complete(ctx context.Context, query string, history []HistoryEntry) (string, error) {
	if history == nil {
		history = []HistoryEntry{}
	}
	body, err := json.Marshal(completionRequest{
		Query:             query,
		KnowledgeBaseName: c.kbName,
		TopK:              c.topK,
		ScoreThreshold:    c.scoreThreshold,
		History:           history,
		Stream:            true,
		ModelName:         c.model,
		Temperature:       c.temperature,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build completion request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ch chunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ch); err != nil {
			return "", errors.Wrap(err, "decode stream chunk")
		}
		answer.WriteString(ch.Answer)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	return answer.String(), nil
}
