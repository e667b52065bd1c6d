package service

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"eventpass/internal/model"
	"eventpass/internal/repo"
	"eventpass/internal/ticket"
	"eventpass/internal/uploads"
)

// flakyRepo fails event writes on demand.
type flakyRepo struct {
	*repo.MemoryRepository
	writeErr error
}

func (r *flakyRepo) CreateEvent(ctx context.Context, e *model.Event) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.MemoryRepository.CreateEvent(ctx, e)
}

func (r *flakyRepo) UpdateEvent(ctx context.Context, e *model.Event) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	return r.MemoryRepository.UpdateEvent(ctx, e)
}

type eventsFixture struct {
	repo   *flakyRepo
	dir    string
	router *gin.Engine
}

func newEventsFixture(t *testing.T) *eventsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	dir := t.TempDir()
	images, err := uploads.NewLocalStore(dir, "/uploads")
	require.NoError(t, err)

	f := &eventsFixture{repo: &flakyRepo{MemoryRepository: repo.NewMemoryRepository()}, dir: dir}
	svc := NewService(f.repo, nil, nil, images, &log)

	f.router = gin.New()
	f.router.POST("/events", svc.CreateEvent)
	f.router.PUT("/events/:id", svc.UpdateEvent)
	return f
}

func (f *eventsFixture) send(t *testing.T, method, path string, fields map[string]string, image []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="image"; filename="cover.png"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *eventsFixture) stored(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var meetup = map[string]string{"name": "Go Meetup", "date": "2026-11-02", "time": "18:30", "venue": "Hall A"}

func coverPNG(t *testing.T, text string) []byte {
	t.Helper()
	img, err := ticket.RenderPNG(text)
	require.NoError(t, err)
	return img
}

func TestCreateEvent_StoreFailureRemovesImage(t *testing.T) {
	f := newEventsFixture(t)
	f.repo.writeErr = errors.New("connection reset")

	w := f.send(t, http.MethodPost, "/events", meetup, coverPNG(t, "cover"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, f.stored(t))
}

func TestCreateEvent_RejectsNonImageBytes(t *testing.T) {
	f := newEventsFixture(t)

	w := f.send(t, http.MethodPost, "/events", meetup, []byte("<html><script>alert(1)</script></html>"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "FIELD_BADFORMAT", gjson.Get(w.Body.String(), "error.code").String())
	assert.Empty(t, f.stored(t))
}

func TestUpdateEvent_ImageLifecycle(t *testing.T) {
	f := newEventsFixture(t)

	w := f.send(t, http.MethodPost, "/events", meetup, coverPNG(t, "first"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := gjson.Get(w.Body.String(), "data.id").String()
	first := f.stored(t)
	require.Len(t, first, 1)

	// a failed update keeps the old image and drops the new one
	f.repo.writeErr = errors.New("connection reset")
	w = f.send(t, http.MethodPut, "/events/"+id, map[string]string{"venue": "Hall B"}, coverPNG(t, "second"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, first, f.stored(t))

	// a successful replacement removes the old image
	f.repo.writeErr = nil
	w = f.send(t, http.MethodPut, "/events/"+id, map[string]string{"venue": "Hall B"}, coverPNG(t, "third"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	now := f.stored(t)
	require.Len(t, now, 1)
	assert.NotEqual(t, first[0], now[0])
	assert.Equal(t, "/uploads/"+now[0], gjson.Get(w.Body.String(), "data.image").String())
}
