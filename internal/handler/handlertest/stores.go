// Package handlertest provides in-memory stores, a recording mailer and a
// recording event publisher for exercising the HTTP handlers without MySQL,
// SMTP or RabbitMQ. The stores reproduce the repository error contract
// (ErrNotFound, ErrDuplicate) but ignore filters and sorting.
package handlertest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/scydb-api/internal/mail"
	"github.com/iliyamo/scydb-api/internal/model"
	"github.com/iliyamo/scydb-api/internal/query"
	"github.com/iliyamo/scydb-api/internal/queue"
	"github.com/iliyamo/scydb-api/internal/repository"
)

// page applies the skip and limit of q to n rows.
func page(n int, q *query.Query) (int, int) {
	from, to := 0, n
	if q != nil {
		from = min(q.Skip, n)
		if q.Limit > 0 {
			to = min(from+q.Limit, n)
		}
	}
	return from, to
}

func sortedIDs[T any](m map[uint64]T) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ----- users -----

type Users struct {
	mu        sync.Mutex
	rows      map[uint64]model.User
	next      uint64
	LastQuery *query.Query
}

func NewUsers() *Users { return &Users{rows: map[uint64]model.User{}} }

// Put stores u as is, assigning an id when it has none, and returns it.
func (s *Users) Put(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.next++
		u.ID = s.next
	} else if u.ID > s.next {
		s.next = u.ID
	}
	if u.WatchLater == nil {
		u.WatchLater = []uint64{}
	}
	s.rows[u.ID] = u
	return u
}

// Raw returns the stored row, inactive ones included.
func (s *Users) Raw(id uint64) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	return u, ok
}

func (s *Users) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, o := range s.rows {
		if o.Email == u.Email {
			s.mu.Unlock()
			return repository.ErrDuplicate
		}
	}
	s.mu.Unlock()
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	if u.Role == "" {
		u.Role = model.RoleClient
	}
	u.Active = true
	u.CreatedAt = time.Now().UTC()
	*u = s.Put(*u)
	return nil
}

func (s *Users) find(match func(model.User) bool) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sortedIDs(s.rows) {
		if u := s.rows[id]; u.Active && match(u) {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (s *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	return s.find(func(u model.User) bool { return u.ID == id })
}

func (s *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.find(func(u model.User) bool { return u.Email == email })
}

func (s *Users) GetByVerificationToken(_ context.Context, hash string, now time.Time) (model.User, error) {
	return s.find(func(u model.User) bool {
		return hash != "" && u.VerificationTokenHash == hash &&
			u.VerificationExpiresAt != nil && u.VerificationExpiresAt.After(now)
	})
}

func (s *Users) GetByResetToken(_ context.Context, hash string, now time.Time) (model.User, error) {
	return s.find(func(u model.User) bool {
		return hash != "" && u.ResetTokenHash == hash && u.ResetExpiresAt != nil && u.ResetExpiresAt.After(now)
	})
}

func (s *Users) mutate(id uint64, fn func(*model.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(&u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	s.rows[id] = u
	return nil
}

func (s *Users) SetVerificationToken(_ context.Context, id uint64, hash string, exp *time.Time) error {
	return s.mutate(id, func(u *model.User) error {
		u.VerificationTokenHash, u.VerificationExpiresAt = hash, exp
		if hash == "" {
			u.VerificationExpiresAt = nil
		}
		return nil
	})
}

func (s *Users) MarkVerified(_ context.Context, id uint64) error {
	return s.mutate(id, func(u *model.User) error {
		u.EmailVerified = true
		u.VerificationTokenHash, u.VerificationExpiresAt = "", nil
		return nil
	})
}

func (s *Users) SetResetToken(_ context.Context, id uint64, hash string, exp *time.Time) error {
	return s.mutate(id, func(u *model.User) error {
		u.ResetTokenHash, u.ResetExpiresAt = hash, exp
		if hash == "" {
			u.ResetExpiresAt = nil
		}
		return nil
	})
}

func (s *Users) UpdatePassword(_ context.Context, id uint64, hash string, changedAt time.Time) error {
	return s.mutate(id, func(u *model.User) error {
		at := changedAt.UTC()
		u.PasswordHash, u.PasswordChangedAt = hash, &at
		u.ResetTokenHash, u.ResetExpiresAt = "", nil
		return nil
	})
}

func (s *Users) Update(_ context.Context, id uint64, p model.UserPatch) (model.User, error) {
	var email string
	if p.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*p.Email))
		if o, err := s.GetByEmail(context.Background(), email); err == nil && o.ID != id {
			return model.User{}, repository.ErrDuplicate
		}
	}
	err := s.mutate(id, func(u *model.User) error {
		if p.Name != nil {
			u.Name = *p.Name
		}
		if p.Email != nil {
			u.Email = email
		}
		if p.Photo != nil {
			u.Photo = *p.Photo
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	u, _ := s.Raw(id)
	return u, nil
}

func (s *Users) Deactivate(_ context.Context, id uint64) error {
	return s.mutate(id, func(u *model.User) error {
		u.Active = false
		return nil
	})
}

func (s *Users) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *Users) List(_ context.Context, q *query.Query) ([]repository.Document, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastQuery = q
	ids := sortedIDs(s.rows)
	from, to := page(len(ids), q)
	out := make([]repository.Document, 0, to-from)
	for _, id := range ids[from:to] {
		u := s.rows[id]
		out = append(out, repository.Document{"id": u.ID, "name": u.Name, "email": u.Email, "role": string(u.Role)})
	}
	return out, int64(len(ids)), nil
}

func (s *Users) Stats(_ context.Context) (model.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st model.UserStats
	byRole := map[model.RoleName]int64{}
	for _, u := range s.rows {
		st.Total++
		if u.Active {
			st.Active++
			byRole[u.Role]++
		} else {
			st.Inactive++
		}
		if u.EmailVerified {
			st.Verified++
		} else {
			st.Unverified++
		}
	}
	for r, n := range byRole {
		st.ByRole = append(st.ByRole, model.RoleCount{Role: r, Count: n})
	}
	sort.Slice(st.ByRole, func(i, j int) bool { return st.ByRole[i].Role < st.ByRole[j].Role })
	return st, nil
}

func (s *Users) AddToWatchlist(_ context.Context, userID, movieID uint64) ([]uint64, error) {
	var list []uint64
	err := s.mutate(userID, func(u *model.User) error {
		for _, id := range u.WatchLater {
			if id == movieID {
				list = u.WatchLater
				return nil
			}
		}
		u.WatchLater = append(u.WatchLater, movieID)
		list = u.WatchLater
		return nil
	})
	return list, err
}

func (s *Users) RemoveFromWatchlist(_ context.Context, userID, movieID uint64) ([]uint64, error) {
	var list []uint64
	err := s.mutate(userID, func(u *model.User) error {
		kept := []uint64{}
		for _, id := range u.WatchLater {
			if id != movieID {
				kept = append(kept, id)
			}
		}
		u.WatchLater = kept
		list = kept
		return nil
	})
	return list, err
}

// ----- roles -----

type Roles struct {
	mu    sync.Mutex
	rows  map[uint64]model.Role
	next  uint64
	Users *Users // consulted by CountHolders and Stats
}

// NewRoles returns a registry holding the three built-in roles with ids 1-3.
func NewRoles(users *Users) *Roles {
	s := &Roles{rows: map[uint64]model.Role{}, Users: users}
	for _, r := range []model.Role{
		{Name: model.RoleClient, Permissions: []model.Permission{model.PermRead}},
		{Name: model.RoleAdmin, Permissions: []model.Permission{model.PermRead, model.PermWrite, model.PermDelete}},
		{Name: model.RoleSuperAdmin, Permissions: []model.Permission{model.PermRead, model.PermWrite, model.PermDelete, model.PermAdmin}},
	} {
		_ = s.Create(context.Background(), &r)
	}
	return s
}

func (s *Roles) List(_ context.Context, q *query.Query) ([]repository.Document, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := sortedIDs(s.rows)
	from, to := page(len(ids), q)
	out := make([]repository.Document, 0, to-from)
	for _, id := range ids[from:to] {
		r := s.rows[id]
		out = append(out, repository.Document{"id": r.ID, "name": string(r.Name), "permissions": r.Permissions})
	}
	return out, int64(len(ids)), nil
}

func (s *Roles) GetByID(_ context.Context, id uint64) (model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *Roles) Exists(_ context.Context, name model.RoleName) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Roles) Names(_ context.Context) ([]model.RoleName, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.RoleName{}
	for _, id := range sortedIDs(s.rows) {
		out = append(out, s.rows[id].Name)
	}
	return out, nil
}

func (s *Roles) Create(ctx context.Context, r *model.Role) error {
	if ok, _ := s.Exists(ctx, r.Name); ok {
		return repository.ErrDuplicate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	r.ID = s.next
	s.rows[r.ID] = *r
	return nil
}

// Update renames holders along with the role, like the ON UPDATE CASCADE
// foreign key does.
func (s *Roles) Update(ctx context.Context, id uint64, p model.RolePatch) (model.Role, error) {
	s.mu.Lock()
	r, ok := s.rows[id]
	s.mu.Unlock()
	if !ok {
		return model.Role{}, repository.ErrNotFound
	}
	if p.Name != nil && *p.Name != r.Name {
		if exists, _ := s.Exists(ctx, *p.Name); exists {
			return model.Role{}, repository.ErrDuplicate
		}
		if s.Users != nil {
			s.Users.mu.Lock()
			for uid, u := range s.Users.rows {
				if u.Role == r.Name {
					u.Role = *p.Name
					s.Users.rows[uid] = u
				}
			}
			s.Users.mu.Unlock()
		}
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Permissions != nil {
		r.Permissions = p.Permissions
	}
	s.mu.Lock()
	s.rows[id] = r
	s.mu.Unlock()
	return r, nil
}

func (s *Roles) CountHolders(_ context.Context, name model.RoleName) (int64, error) {
	if s.Users == nil {
		return 0, nil
	}
	s.Users.mu.Lock()
	defer s.Users.mu.Unlock()
	var n int64
	for _, u := range s.Users.rows {
		if u.Role == name {
			n++
		}
	}
	return n, nil
}

func (s *Roles) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *Roles) Stats(ctx context.Context) ([]model.RoleStat, error) {
	s.mu.Lock()
	roles := make([]model.Role, 0, len(s.rows))
	for _, id := range sortedIDs(s.rows) {
		roles = append(roles, s.rows[id])
	}
	s.mu.Unlock()
	out := make([]model.RoleStat, 0, len(roles))
	for _, r := range roles {
		n, _ := s.CountHolders(ctx, r.Name)
		out = append(out, model.RoleStat{ID: r.ID, Name: r.Name, Description: r.Description,
			Permissions: r.Permissions, UserCount: n})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UserCount > out[j].UserCount })
	return out, nil
}

// ----- mail and events -----

// Mailer records every message. When Err is set Send fails with it.
type Mailer struct {
	mu   sync.Mutex
	Sent []mail.Message
	Err  error
}

func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Last returns the most recent message.
func (m *Mailer) Last() (mail.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return mail.Message{}, false
	}
	return m.Sent[len(m.Sent)-1], true
}

// Events records published activity events.
type Events struct {
	mu     sync.Mutex
	events []queue.ActivityEvent
}

func (e *Events) Publish(_ context.Context, ev queue.ActivityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

// OfType returns the recorded events of type t in publish order.
func (e *Events) OfType(t queue.EventType) []queue.ActivityEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []queue.ActivityEvent
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
