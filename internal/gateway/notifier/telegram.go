package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	telegramBaseURL  = "https://api.telegram.org"
	telegramAttempts = 3
)

// Telegram 把文本推送到指定的群或频道。消息以 Markdown 渲染，
// 发送失败按次数线性退避重试。
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	sleep    func(time.Duration)
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  telegramBaseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
		sleep:    time.Sleep,
	}
}

func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram 缺少 bot_token 或 chat_id")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= telegramAttempts; attempt++ {
		if lastErr = t.post(body); lastErr == nil {
			return nil
		}
		if attempt < telegramAttempts {
			t.sleep(time.Duration(attempt) * time.Second)
		}
	}
	return fmt.Errorf("telegram 推送失败（已重试 %d 次）: %w", telegramAttempts, lastErr)
}

func (t *Telegram) post(body []byte) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 排空响应体以复用连接。
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram 返回状态码 %d", resp.StatusCode)
	}
	return nil
}
