package restclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"studygroup-chat/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", srv.Client(), zap.NewNop().Sugar())
}

func TestListGroupsSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/groups/my", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":42,"name":"Algebra","courseId":7,"memberCount":3}]`))
	})

	groups, err := c.ListGroups(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, models.ID("42"), groups[0].ID)
	require.Equal(t, "Algebra", groups[0].Name)
}

func TestGroupMembers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/groups/42/members", r.URL.Path)
		_, _ = w.Write([]byte(`[{"userId":1,"userName":"Al"},{"userId":"2","userName":"Bo"}]`))
	})

	members, err := c.GroupMembers(context.Background(), "tok", "42")
	require.NoError(t, err)
	require.Equal(t, []models.Member{{UserID: "1", UserName: "Al"}, {UserID: "2", UserName: "Bo"}}, members)
}

func TestHistoryIsNormalized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/g1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(`{"content":[{"id":5,"senderId":9,"content":"old","timestamp":"2024-01-01T09:00:00"}]}`))
	})

	msgs, err := c.History(context.Background(), "tok", "g1", 2, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.ID("5"), msgs[0].ID)
	require.Equal(t, models.ID("g1"), msgs[0].GroupID)
	require.False(t, msgs[0].Timestamp.IsZero())
}

func TestUploadFileIsMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/files/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "notes.txt", header.Filename)
		assert.Equal(t, "hello", string(data))
		_, _ = w.Write([]byte(`{"fileUrl":"https://cdn/notes.txt","fileType":"text/plain","size":5}`))
	})

	meta, err := c.UploadFile(context.Background(), "tok", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, models.FileMeta{Name: "notes.txt", URL: "https://cdn/notes.txt", FileType: "text/plain", Size: 5}, meta)
}

func TestStatusErrors(t *testing.T) {
	status := http.StatusUnauthorized
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	_, err := c.ListGroups(context.Background(), "bad")
	require.ErrorIs(t, err, ErrUnauthorized)

	status = http.StatusBadGateway
	_, err = c.History(context.Background(), "tok", "g1", 0, 20)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{`))
	})

	_, err := c.ListGroups(context.Background(), "tok")
	require.Error(t, err)
}
