// Package notify posts sync summaries to a Google Chat webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"

	"github.com/chmdznr/oss-project-sync/pkg/models"
	"github.com/chmdznr/oss-project-sync/pkg/version"
)

const (
	cardTitle   = "msync Sync Report"
	cardImage   = "https://www.gstatic.com/images/branding/product/2x/drive_2020q4_48dp.png"
	testMessage = "🔔 Test notification from msync\nNếu bạn thấy tin nhắn này, kết nối đã thành công! 🚀"
)

var ErrNoWebhook = errors.New("webhook url is empty")

// Card is the legacy Google Chat card message.
type Card struct {
	Cards []CardBody `json:"cards"`
}

type CardBody struct {
	Header   CardHeader    `json:"header"`
	Sections []CardSection `json:"sections"`
}

type CardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type CardSection struct {
	Header  string   `json:"header,omitempty"`
	Widgets []Widget `json:"widgets"`
}

type Widget struct {
	KeyValue      *KeyValue      `json:"keyValue,omitempty"`
	TextParagraph *TextParagraph `json:"textParagraph,omitempty"`
}

type KeyValue struct {
	TopLabel    string `json:"topLabel"`
	Content     string `json:"content"`
	BottomLabel string `json:"bottomLabel,omitempty"`
}

type TextParagraph struct {
	Text string `json:"text"`
}

// Webhook sends messages to Google Chat incoming webhooks.
type Webhook struct {
	client *req.Client
	logger *slog.Logger
}

// NewWebhook creates a Webhook. A nil client gets a default one.
func NewWebhook(client *req.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = req.C().
			SetTimeout(15*time.Second).
			SetCommonRetryCount(2).
			SetCommonRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
			SetUserAgent("msync/" + version.Version).
			SetJsonMarshal(json.Marshal).
			SetJsonUnmarshal(json.Unmarshal)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{client: client, logger: logger}
}

// SummaryCard builds the run summary card.
func SummaryCard(runID string, sessions []models.SyncSession) Card {
	var success, failed, interrupted int
	var files int64
	var errorLines []string
	for _, s := range sessions {
		files += s.FilesCount
		switch s.Status {
		case models.StatusSuccess:
			success++
		case models.StatusError:
			failed++
			msg := s.ErrorMessage
			if msg == "" {
				msg = "Unknown error"
			}
			errorLines = append(errorLines, fmt.Sprintf("• %s: %s", s.ProjectName, msg))
		case models.StatusInterrupted:
			interrupted++
		}
	}

	emoji := "🟢"
	switch {
	case failed > 0:
		emoji = "🔴"
	case interrupted > 0:
		emoji = "🟡"
	}

	body := CardBody{
		Header: CardHeader{
			Title:    emoji + " " + cardTitle,
			Subtitle: runID,
			ImageURL: cardImage,
		},
		Sections: []CardSection{{
			Widgets: []Widget{
				{KeyValue: &KeyValue{
					TopLabel:    "Tổng dự án",
					Content:     fmt.Sprint(len(sessions)),
					BottomLabel: fmt.Sprintf("%d thành công | %d lỗi | %d ngắt", success, failed, interrupted),
				}},
				{KeyValue: &KeyValue{TopLabel: "Files đã sync", Content: fmt.Sprint(files)}},
			},
		}},
	}
	if len(errorLines) > 0 {
		body.Sections = append(body.Sections, CardSection{
			Header:  "⚠️ Chi tiết lỗi",
			Widgets: []Widget{{TextParagraph: &TextParagraph{Text: strings.Join(errorLines, "\n")}}},
		})
	}
	return Card{Cards: []CardBody{body}}
}

// SendSyncSummary posts the summary card of a run.
func (w *Webhook) SendSyncSummary(ctx context.Context, webhookURL, runID string, sessions []models.SyncSession) error {
	if err := w.post(ctx, webhookURL, SummaryCard(runID, sessions)); err != nil {
		return err
	}
	w.logger.Info("webhook sent", "runId", runID, "sessions", len(sessions))
	return nil
}

// SendText posts a plain text message.
func (w *Webhook) SendText(ctx context.Context, webhookURL, text string) error {
	return w.post(ctx, webhookURL, map[string]string{"text": text})
}

// Test sends a test message so users can check their webhook.
func (w *Webhook) Test(ctx context.Context, webhookURL string) error {
	if err := w.SendText(ctx, webhookURL, testMessage); err != nil {
		return fmt.Errorf("Gửi thất bại: %w", err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, webhookURL string, body any) error {
	if webhookURL == "" {
		return ErrNoWebhook
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
