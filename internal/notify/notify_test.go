package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/oss-project-sync/pkg/models"
)

func TestSummaryCard(t *testing.T) {
	sessions := []models.SyncSession{
		{ProjectName: "alpha", Status: models.StatusSuccess, FilesCount: 3},
		{ProjectName: "beta", Status: models.StatusError, ErrorMessage: "access denied"},
		{ProjectName: "gamma", Status: models.StatusInterrupted, FilesCount: 2},
		{ProjectName: "delta", Status: models.StatusError},
	}

	card := SummaryCard("260214-150000", sessions)
	require.Len(t, card.Cards, 1)
	body := card.Cards[0]
	assert.Equal(t, "🔴 msync Sync Report", body.Header.Title)
	assert.Equal(t, "260214-150000", body.Header.Subtitle)

	require.Len(t, body.Sections, 2)
	total := body.Sections[0].Widgets[0].KeyValue
	assert.Equal(t, "4", total.Content)
	assert.Equal(t, "1 thành công | 2 lỗi | 1 ngắt", total.BottomLabel)
	assert.Equal(t, "5", body.Sections[0].Widgets[1].KeyValue.Content)
	assert.Equal(t, "• beta: access denied\n• delta: Unknown error", body.Sections[1].Widgets[0].TextParagraph.Text)
}

func TestSummaryCardHealthy(t *testing.T) {
	card := SummaryCard("r", []models.SyncSession{{Status: models.StatusSuccess}})
	assert.Equal(t, "🟢 msync Sync Report", card.Cards[0].Header.Title)
	assert.Len(t, card.Cards[0].Sections, 1)

	card = SummaryCard("r", []models.SyncSession{{Status: models.StatusInterrupted}})
	assert.Equal(t, "🟡 msync Sync Report", card.Cards[0].Header.Title)
}

func TestSendSyncSummary(t *testing.T) {
	var got Card
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(nil, nil)
	err := w.SendSyncSummary(context.Background(), srv.URL, "run-1", []models.SyncSession{{ProjectName: "alpha", Status: models.StatusSuccess, FilesCount: 7}})
	require.NoError(t, err)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, "run-1", got.Cards[0].Header.Subtitle)
	assert.Equal(t, "7", got.Cards[0].Sections[0].Widgets[1].KeyValue.Content)
}

func TestSendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(req.C().SetCommonRetryCount(0), nil)
	err := w.SendText(context.Background(), srv.URL, "hello")
	assert.ErrorContains(t, err, "400")

	err = w.SendText(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrNoWebhook)

	err = w.Test(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "Gửi thất bại")
}
