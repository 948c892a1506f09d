package handlertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/repository"
)

// ----- movies -----

type Movies struct {
	mu         sync.Mutex
	rows       map[uint64]model.Movie
	next       uint64
	LastFilter model.MovieFilter
}

func NewMovies() *Movies { return &Movies{rows: map[uint64]model.Movie{}} }

// Search honours the title search, the genre filter and paging.
func (s *Movies) Search(_ context.Context, f model.MovieFilter) ([]model.Movie, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastFilter = f
	var hits []model.Movie
	for _, id := range sortedIDs(s.rows) {
		m := s.rows[id]
		if f.Search != "" && !strings.Contains(strings.ToLower(m.Title), strings.ToLower(f.Search)) {
			continue
		}
		if f.Genre != "" && !contains(m.Genre, f.Genre) {
			continue
		}
		hits = append(hits, m)
	}
	total := int64(len(hits))
	from := min(f.Offset(), len(hits))
	to := min(from+f.Limit, len(hits))
	return append([]model.Movie{}, hits[from:to]...), total, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Movies) GetByID(_ context.Context, id uint64) (model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return model.Movie{}, repository.ErrNotFound
	}
	return m, nil
}

func (s *Movies) Exists(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *Movies) Create(_ context.Context, m *model.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.rows {
		if strings.EqualFold(o.Title, m.Title) {
			return repository.ErrDuplicate
		}
	}
	s.next++
	m.ID = s.next
	m.CreatedAt = time.Now().UTC()
	s.rows[m.ID] = *m
	return nil
}

func (s *Movies) Update(_ context.Context, id uint64, p model.MoviePatch) (model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return model.Movie{}, repository.ErrNotFound
	}
	if p.Title != nil {
		for oid, o := range s.rows {
			if oid != id && strings.EqualFold(o.Title, *p.Title) {
				return model.Movie{}, repository.ErrDuplicate
			}
		}
		m.Title = *p.Title
	}
	if p.Year != nil {
		m.Year = *p.Year
	}
	if p.Duration != nil {
		m.Duration = *p.Duration
	}
	if p.Genre != nil {
		m.Genre = p.Genre
	}
	if p.Director != nil {
		m.Director = *p.Director
	}
	if p.Cast != nil {
		m.Cast = p.Cast
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	s.rows[id] = m
	return m, nil
}

func (s *Movies) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// ----- genres -----

type Genres struct {
	mu     sync.Mutex
	rows   map[uint64]model.Genre
	next   uint64
	Movies *Movies // renames are written into these movies
}

func NewGenres(movies *Movies) *Genres {
	return &Genres{rows: map[uint64]model.Genre{}, Movies: movies}
}

func (s *Genres) countMovies(name string) int64 {
	if s.Movies == nil {
		return 0
	}
	s.Movies.mu.Lock()
	defer s.Movies.mu.Unlock()
	var n int64
	for _, m := range s.Movies.rows {
		if contains(m.Genre, name) {
			n++
		}
	}
	return n
}

func (s *Genres) rename(from, to string) {
	if s.Movies == nil {
		return
	}
	s.Movies.mu.Lock()
	defer s.Movies.mu.Unlock()
	for id, m := range s.Movies.rows {
		if g, ok := model.RenameGenre(m.Genre, from, to); ok {
			m.Genre = g
			s.Movies.rows[id] = m
		}
	}
}

func (s *Genres) List(_ context.Context, q *query.Query) ([]repository.Document, int64, error) {
	s.mu.Lock()
	ids := sortedIDs(s.rows)
	rows := make([]model.Genre, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, s.rows[id])
	}
	s.mu.Unlock()
	from, to := page(len(rows), q)
	out := make([]repository.Document, 0, to-from)
	for _, g := range rows[from:to] {
		out = append(out, repository.Document{
			"id": g.ID, "name": g.Name, "color": g.Color, "isActive": g.IsActive,
			"movieCount": s.countMovies(g.Name),
		})
	}
	return out, int64(len(rows)), nil
}

func (s *Genres) Active(_ context.Context) ([]model.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Genre
	for _, g := range s.rows {
		if g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Genres) GetByID(_ context.Context, id uint64) (model.Genre, error) {
	s.mu.Lock()
	g, ok := s.rows[id]
	s.mu.Unlock()
	if !ok {
		return model.Genre{}, repository.ErrNotFound
	}
	g.MovieCount = s.countMovies(g.Name)
	return g, nil
}

// taken reports whether another genre already uses name. Callers hold mu.
func (s *Genres) taken(name string, except uint64) bool {
	for id, g := range s.rows {
		if id != except && model.SameGenreName(g.Name, name) {
			return true
		}
	}
	return false
}

func (s *Genres) Create(_ context.Context, g *model.Genre) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken(g.Name, 0) {
		return repository.ErrDuplicate
	}
	if g.Color == "" {
		g.Color = model.DefaultGenreColor
	}
	s.next++
	g.ID = s.next
	s.rows[g.ID] = *g
	return nil
}

func (s *Genres) Update(_ context.Context, id uint64, p model.GenrePatch) (model.Genre, string, error) {
	s.mu.Lock()
	g, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return model.Genre{}, "", repository.ErrNotFound
	}
	old := g.Name
	if p.Name != nil {
		if s.taken(*p.Name, id) {
			s.mu.Unlock()
			return model.Genre{}, "", repository.ErrDuplicate
		}
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.Color != nil {
		g.Color = *p.Color
	}
	if p.IsActive != nil {
		g.IsActive = *p.IsActive
	}
	s.rows[id] = g
	s.mu.Unlock()

	if g.Name != old {
		s.rename(old, g.Name)
	}
	g.MovieCount = s.countMovies(g.Name)
	return g, old, nil
}

func (s *Genres) BulkUpdate(_ context.Context, items []model.GenreBulkItem) (repository.BulkResult, []repository.Rename, error) {
	var (
		res     repository.BulkResult
		renames []repository.Rename
	)
	s.mu.Lock()
	for _, it := range items {
		g, ok := s.rows[it.ID]
		if !ok {
			continue
		}
		if s.taken(it.Name, it.ID) {
			s.mu.Unlock()
			return repository.BulkResult{}, nil, repository.ErrDuplicate
		}
		res.Matched++
		next := model.Genre{ID: g.ID, Name: it.Name, Description: it.Description, Color: it.Color, IsActive: it.IsActive}
		if next.Color == "" {
			next.Color = g.Color
		}
		if next != (model.Genre{ID: g.ID, Name: g.Name, Description: g.Description, Color: g.Color, IsActive: g.IsActive}) {
			res.Modified++
		}
		if next.Name != g.Name {
			renames = append(renames, repository.Rename{From: g.Name, To: next.Name})
		}
		s.rows[it.ID] = next
	}
	s.mu.Unlock()
	for _, r := range renames {
		s.rename(r.From, r.To)
	}
	return res, renames, nil
}

func (s *Genres) Delete(_ context.Context, id uint64, check func(model.Genre, int64) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	g.MovieCount = s.countMovies(g.Name)
	if err := check(g, g.MovieCount); err != nil {
		return err
	}
	delete(s.rows, id)
	return nil
}

func (s *Genres) Stats(_ context.Context) ([]model.Genre, model.GenreSummary, error) {
	s.mu.Lock()
	rows := make([]model.Genre, 0, len(s.rows))
	for _, id := range sortedIDs(s.rows) {
		rows = append(rows, s.rows[id])
	}
	s.mu.Unlock()
	var sum model.GenreSummary
	for i := range rows {
		rows[i].MovieCount = s.countMovies(rows[i].Name)
		sum.Total++
		if rows[i].IsActive {
			sum.Active++
		} else {
			sum.Inactive++
		}
	}
	return rows, sum, nil
}

// ----- reviews -----

type Reviews struct {
	mu    sync.Mutex
	rows  map[uint64]model.Review
	next  uint64
	Users *Users // supplies the author name and photo
}

func NewReviews(users *Users) *Reviews {
	return &Reviews{rows: map[uint64]model.Review{}, Users: users}
}

func (s *Reviews) withAuthor(rv model.Review) model.Review {
	if s.Users != nil {
		if u, ok := s.Users.Raw(rv.UserID); ok {
			rv.User = &model.ReviewAuthor{Name: u.Name, Photo: u.Photo}
		}
	}
	return rv
}

func (s *Reviews) ListByMovie(_ context.Context, movieID uint64) ([]model.Review, error) {
	s.mu.Lock()
	ids := sortedIDs(s.rows)
	var out []model.Review
	for i := len(ids) - 1; i >= 0; i-- {
		if rv := s.rows[ids[i]]; rv.MovieID == movieID {
			out = append(out, rv)
		}
	}
	s.mu.Unlock()
	for i := range out {
		out[i] = s.withAuthor(out[i])
	}
	return out, nil
}

func (s *Reviews) List(_ context.Context, q *query.Query) ([]repository.Document, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := sortedIDs(s.rows)
	from, to := page(len(ids), q)
	out := make([]repository.Document, 0, to-from)
	for _, id := range ids[from:to] {
		rv := s.rows[id]
		out = append(out, repository.Document{"id": rv.ID, "rating": rv.Rating, "movie": rv.MovieID, "userId": rv.UserID})
	}
	return out, int64(len(ids)), nil
}

func (s *Reviews) GetByID(_ context.Context, id uint64) (model.Review, error) {
	s.mu.Lock()
	rv, ok := s.rows[id]
	s.mu.Unlock()
	if !ok {
		return model.Review{}, repository.ErrNotFound
	}
	return s.withAuthor(rv), nil
}

func (s *Reviews) Create(_ context.Context, rv *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.rows {
		if o.MovieID == rv.MovieID && o.UserID == rv.UserID {
			return repository.ErrDuplicate
		}
	}
	s.next++
	rv.ID = s.next
	rv.CreatedAt = time.Now().UTC()
	s.rows[rv.ID] = *rv
	return nil
}

func (s *Reviews) Update(_ context.Context, id uint64, p model.ReviewPatch) (model.Review, error) {
	s.mu.Lock()
	rv, ok := s.rows[id]
	if !ok {
		s.mu.Unlock()
		return model.Review{}, repository.ErrNotFound
	}
	if p.Review != nil {
		rv.Review = *p.Review
	}
	if p.Rating != nil {
		rv.Rating = *p.Rating
	}
	s.rows[id] = rv
	s.mu.Unlock()
	return s.withAuthor(rv), nil
}

func (s *Reviews) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}
