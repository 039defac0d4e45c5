package forum

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Post is a forum post.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Page is one page of posts, newest first.
type Page struct {
	Items    []Post `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Total    int    `json:"total"`
}

// Repository persists posts.
type Repository interface {
	Get(ctx context.Context, id string) (*Post, error)
	List(ctx context.Context, page, pageSize int) (*Page, error)
	Create(ctx context.Context, p Post) (*Post, error)
	Update(ctx context.Context, p Post) (*Post, error)
	Delete(ctx context.Context, id string) error
}

// MemoryRepository keeps posts in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	posts map[string]Post
	now   func() time.Time
	newID func() string
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		posts: make(map[string]Post),
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, util.NewNotFoundError("post", id)
	}
	return &p, nil
}

// List implements Repository.
func (r *MemoryRepository) List(_ context.Context, page, pageSize int) (*Page, error) {
	r.mu.RLock()
	all := make([]Post, 0, len(r.posts))
	for _, p := range r.posts {
		all = append(all, p)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := &Page{Items: []Post{}, Page: page, PageSize: pageSize, Total: len(all)}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return out, nil
	}
	end := min(start+pageSize, len(all))
	out.Items = append(out.Items, all[start:end]...)
	return out, nil
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, p Post) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	p.ID = r.newID()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.posts[p.ID] = p
	return &p, nil
}

// Update implements Repository. Only Title and Body change.
func (r *MemoryRepository) Update(_ context.Context, p Post) (*Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.posts[p.ID]
	if !ok {
		return nil, util.NewNotFoundError("post", p.ID)
	}
	cur.Title = p.Title
	cur.Body = p.Body
	cur.UpdatedAt = r.now().UTC()
	r.posts[cur.ID] = cur
	return &cur, nil
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return util.NewNotFoundError("post", id)
	}
	delete(r.posts, id)
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
