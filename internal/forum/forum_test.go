package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/store"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	store      *store.MemoryStore
	repo       *MemoryRepository
	dispatcher *pipeline.Dispatcher
	engine     *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s, err := store.NewMemoryStore(1000, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exec := pipeline.NewExecutor(pipeline.WithStore(s))
	t.Cleanup(func() { _ = exec.Close(context.Background()) })

	repo := NewMemoryRepository()
	d := pipeline.NewDispatcher()
	require.NoError(t, Register(d, exec, NewService(repo, nil)))

	engine := gin.New()
	RegisterRoutes(engine, d)
	return &harness{store: s, repo: repo, dispatcher: d, engine: engine}
}

func (h *harness) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(util.ContextWithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegister_AllRequestTypes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	assert.Equal(t, []string{
		"forum.CreatePostCommand",
		"forum.DeletePostCommand",
		"forum.GetPostQuery",
		"forum.ListPostsQuery",
		"forum.UpdatePostCommand",
	}, h.dispatcher.RequestTypes())
}

func TestPosts_Lifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/posts", "alice", CreatePostCommand{Title: "Hello", Body: "first"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[Post](t, rec)
	assert.Equal(t, "alice", created.AuthorID)

	rec = h.do(t, http.MethodGet, "/api/posts/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello", decode[Post](t, rec).Title)

	_, err := h.store.Get(context.Background(), PostKey(created.ID))
	require.NoError(t, err, "query response is cached")

	rec = h.do(t, http.MethodPut, "/api/posts/"+created.ID, "alice", UpdatePostCommand{Title: "Hello again", Body: "edited"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err = h.store.Get(context.Background(), PostKey(created.ID))
	assert.ErrorIs(t, err, store.ErrNotFound, "update invalidates the post entry")

	rec = h.do(t, http.MethodGet, "/api/posts/"+created.ID, "", nil)
	assert.Equal(t, "Hello again", decode[Post](t, rec).Title)

	rec = h.do(t, http.MethodDelete, "/api/posts/"+created.ID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/posts/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPosts_ListInvalidatedByCreate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[Page](t, rec).Total)

	h.do(t, http.MethodPost, "/api/posts", "bob", CreatePostCommand{Title: "Second", Body: "b"})

	rec = h.do(t, http.MethodGet, "/api/posts", "", nil)
	page := decode[Page](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, DefaultPageSize, page.PageSize)
}

func TestPosts_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/posts", "alice", CreatePostCommand{Title: "Owned", Body: "x"})
	require.Equal(t, http.StatusCreated, rec.Code)
	owned := decode[Post](t, rec)

	tests := []struct {
		name     string
		method   string
		path     string
		userID   string
		body     any
		wantCode int
		wantErr  string
	}{
		{
			name:     "anonymous create",
			method:   http.MethodPost,
			path:     "/api/posts",
			body:     CreatePostCommand{Title: "Hello", Body: "x"},
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name:     "short title",
			method:   http.MethodPost,
			path:     "/api/posts",
			userID:   "alice",
			body:     CreatePostCommand{Title: "Hi", Body: "x"},
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name:     "blank title",
			method:   http.MethodPost,
			path:     "/api/posts",
			userID:   "alice",
			body:     CreatePostCommand{Title: "     ", Body: "x"},
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     "/api/posts/42",
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name:     "bad page",
			method:   http.MethodGet,
			path:     "/api/posts?page=x",
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name:     "page size too large",
			method:   http.MethodGet,
			path:     "/api/posts?pageSize=1000",
			wantCode: http.StatusBadRequest,
			wantErr:  "bad_request",
		},
		{
			name:     "not the author",
			method:   http.MethodDelete,
			path:     "/api/posts/" + owned.ID,
			userID:   "mallory",
			wantCode: http.StatusUnauthorized,
			wantErr:  "unauthorized",
		},
		{
			name:     "unknown post",
			method:   http.MethodGet,
			path:     "/api/posts/3f1c2b7e-8d2a-4b7e-9c1a-2f6d5e4a3b21",
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.userID, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[util.ErrorBody](t, rec).Error)
		})
	}
}

func TestMemoryRepository_ListPaging(t *testing.T) {
	t.Parallel()

	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, Post{Title: "t", AuthorID: "u"})
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Total)

	page, err = repo.List(ctx, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	page, err = repo.List(ctx, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}
