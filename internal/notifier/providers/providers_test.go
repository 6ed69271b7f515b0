package providers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelrenew/panelrenew/internal/report"
)

func screenshot(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "03-error.png")
	require.NoError(t, os.WriteFile(p, []byte("\x89PNGdata"), 0644))
	return p
}

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 2525, "bot@example.com", "secret", "", "ops@example.com")
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
		gotAuth smtp.Auth
	)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	shot := screenshot(t)
	err := s.Send(context.Background(), &report.Report{
		Subject:    "panelrenew failed",
		PlainBody:  "plain body",
		HTMLBody:   "<p>html body</p>",
		Screenshot: shot,
	})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "bot@example.com", gotFrom, "from defaults to the smtp user")
	assert.Equal(t, []string{"ops@example.com"}, gotTo)

	msg, err := mail.ReadMessage(strings.NewReader(string(gotMsg)))
	require.NoError(t, err)
	assert.Equal(t, "panelrenew failed", msg.Header.Get("Subject"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	body, err := mr.NextPart()
	require.NoError(t, err)
	altType, altParams, err := mime.ParseMediaType(body.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", altType)

	alt := multipart.NewReader(body, altParams["boundary"])
	plain, err := alt.NextPart()
	require.NoError(t, err)
	data, _ := io.ReadAll(plain)
	assert.Equal(t, "plain body", string(data))
	html, err := alt.NextPart()
	require.NoError(t, err)
	data, _ = io.ReadAll(html)
	assert.Equal(t, "<p>html body</p>", string(data))

	attachment, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "03-error.png", attachment.FileName())
	assert.Equal(t, "image/png", attachment.Header.Get("Content-Type"))

	_, err = mr.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSMTPSender_MissingScreenshot(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 25, "", "", "bot@example.com", "ops@example.com")
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("must not send a half-built message")
		return nil
	}

	err := s.Send(context.Background(), &report.Report{Screenshot: filepath.Join(t.TempDir(), "gone.png")})
	assert.ErrorContains(t, err, "failed to build email")
}

// fakeBotAPI records the Bot API methods called against it.
type fakeBotAPI struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []string
	photos   []string
	captions []string
}

func (f *fakeBotAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		var result any = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 42}}

		f.mu.Lock()
		switch method {
		case "getMe":
			result = map[string]any{"id": 1, "is_bot": true, "first_name": "bot", "username": "panelrenew_bot"}
		case "sendMessage":
			r.ParseForm()
			f.messages = append(f.messages, r.PostForm.Get("text"))
			f.chatIDs = append(f.chatIDs, r.PostForm.Get("chat_id"))
		case "sendPhoto":
			r.ParseMultipartForm(1 << 20)
			if fh, ok := r.MultipartForm.File["photo"]; ok && len(fh) > 0 {
				f.photos = append(f.photos, fh[0].Filename)
			}
			f.captions = append(f.captions, r.FormValue("caption"))
		}
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	})
}

func newTelegram(t *testing.T) (*TelegramSender, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	tg, err := NewTelegramSender("123:abc", 42, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return tg, api
}

func TestTelegramSender_SendWithScreenshot(t *testing.T) {
	tg, api := newTelegram(t)

	err := tg.Send(context.Background(), &report.Report{
		Subject:    "panelrenew claimed",
		PlainBody:  "server time extended",
		Screenshot: screenshot(t),
	})
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"server time extended"}, api.messages)
	assert.Equal(t, []string{"42"}, api.chatIDs)
	assert.Equal(t, []string{"03-error.png"}, api.photos)
	assert.Equal(t, []string{"panelrenew claimed"}, api.captions)
}

func TestTelegramSender_TextOnly(t *testing.T) {
	tg, api := newTelegram(t)

	require.NoError(t, tg.Send(context.Background(), &report.Report{PlainBody: "no time available yet"}))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Len(t, api.messages, 1)
	assert.Empty(t, api.photos)
}

func TestTelegramSender_CancelledContext(t *testing.T) {
	tg, api := newTelegram(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tg.Send(ctx, &report.Report{PlainBody: "x"}), context.Canceled)
	assert.Empty(t, api.messages)
}

func TestAttachmentType(t *testing.T) {
	assert.Equal(t, "image/png", attachmentType("01-login.png"))
	assert.Equal(t, "image/jpeg", attachmentType("01-login.jpg"))
	assert.Equal(t, "application/octet-stream", attachmentType("evidence"))
}
