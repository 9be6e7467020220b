package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/user"
)

// MemoryStore is a threadsafe in-memory Store. Transactions are serialized and
// run against a private copy of the data that replaces the live copy on commit.
// Nothing survives a restart, so it is meant for tests and local development.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type memState struct {
	users        map[string]*user.User
	records      map[int64]*leaderboard.Record
	nextRecordID int64
}

func newMemState() *memState {
	return &memState{
		users:        make(map[string]*user.User),
		records:      make(map[int64]*leaderboard.Record),
		nextRecordID: 1,
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:        make(map[string]*user.User, len(s.users)),
		records:      make(map[int64]*leaderboard.Record, len(s.records)),
		nextRecordID: s.nextRecordID,
	}
	for id, u := range s.users {
		c.users[id] = u.Clone()
	}
	for id, r := range s.records {
		rc := *r
		c.records[id] = &rc
	}
	return c
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memQueries{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// live hands out queries over the committed state; the caller must invoke done.
func (s *MemoryStore) live() (q *memQueries, done func()) {
	s.mu.Lock()
	return &memQueries{st: s.state}, s.mu.Unlock
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *user.User) error {
	q, done := s.live()
	defer done()
	return q.CreateUser(ctx, u)
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	q, done := s.live()
	defer done()
	return q.GetUserByID(ctx, id)
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	q, done := s.live()
	defer done()
	return q.GetUserByUsername(ctx, username)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	q, done := s.live()
	defer done()
	return q.GetUserByEmail(ctx, email)
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]*user.User, error) {
	q, done := s.live()
	defer done()
	return q.ListUsers(ctx)
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	q, done := s.live()
	defer done()
	return q.DeleteUser(ctx, id)
}

func (s *MemoryStore) SetVerified(ctx context.Context, id string) error {
	q, done := s.live()
	defer done()
	return q.SetVerified(ctx, id)
}

func (s *MemoryStore) SetVerificationCode(ctx context.Context, id string, code *string) error {
	q, done := s.live()
	defer done()
	return q.SetVerificationCode(ctx, id, code)
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	q, done := s.live()
	defer done()
	return q.UpdatePassword(ctx, id, passwordHash)
}

func (s *MemoryStore) SetTwoFactorSecret(ctx context.Context, id string, secret *string) error {
	q, done := s.live()
	defer done()
	return q.SetTwoFactorSecret(ctx, id, secret)
}

func (s *MemoryStore) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	q, done := s.live()
	defer done()
	return q.SetTwoFactorEnabled(ctx, id, enabled)
}

func (s *MemoryStore) AddCoins(ctx context.Context, id string, amount int) (int, error) {
	q, done := s.live()
	defer done()
	return q.AddCoins(ctx, id, amount)
}

func (s *MemoryStore) SpendCoins(ctx context.Context, id string, amount int) (int, error) {
	q, done := s.live()
	defer done()
	return q.SpendCoins(ctx, id, amount)
}

func (s *MemoryStore) AddOwnedItem(ctx context.Context, id string, itemID string) error {
	q, done := s.live()
	defer done()
	return q.AddOwnedItem(ctx, id, itemID)
}

func (s *MemoryStore) LockDifficulty(ctx context.Context, d leaderboard.Difficulty) error {
	return nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, userID string, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	q, done := s.live()
	defer done()
	return q.GetRecord(ctx, userID, d)
}

func (s *MemoryStore) InsertRecord(ctx context.Context, r *leaderboard.Record) error {
	q, done := s.live()
	defer done()
	return q.InsertRecord(ctx, r)
}

func (s *MemoryStore) UpdateRecord(ctx context.Context, id int64, milliseconds int, at time.Time) error {
	q, done := s.live()
	defer done()
	return q.UpdateRecord(ctx, id, milliseconds, at)
}

func (s *MemoryStore) TopRecords(ctx context.Context, d leaderboard.Difficulty, limit int, excludeUserID string) ([]*leaderboard.Record, error) {
	q, done := s.live()
	defer done()
	return q.TopRecords(ctx, d, limit, excludeUserID)
}

func (s *MemoryStore) CountRecords(ctx context.Context, d leaderboard.Difficulty) (int, error) {
	q, done := s.live()
	defer done()
	return q.CountRecords(ctx, d)
}

func (s *MemoryStore) DeleteWorstRecord(ctx context.Context, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	q, done := s.live()
	defer done()
	return q.DeleteWorstRecord(ctx, d)
}

func (s *MemoryStore) ListUserRecords(ctx context.Context, userID string) ([]*leaderboard.Record, error) {
	q, done := s.live()
	defer done()
	return q.ListUserRecords(ctx, userID)
}

// memQueries operates on a memState whose lock is held by the caller.
type memQueries struct {
	st *memState
}

func (q *memQueries) CreateUser(ctx context.Context, u *user.User) error {
	for _, existing := range q.st.users {
		if existing.ID == u.ID || existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	stored := u.Clone()
	if stored.OwnedItems == nil {
		stored.OwnedItems = []string{}
	}
	q.st.users[u.ID] = stored
	return nil
}

func (q *memQueries) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	u, ok := q.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (q *memQueries) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	for _, u := range q.st.users {
		if u.Username == username {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQueries) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range q.st.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQueries) ListUsers(ctx context.Context) ([]*user.User, error) {
	users := make([]*user.User, 0, len(q.st.users))
	for _, u := range q.st.users {
		users = append(users, u.Clone())
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (q *memQueries) DeleteUser(ctx context.Context, id string) error {
	if _, ok := q.st.users[id]; !ok {
		return ErrNotFound
	}
	delete(q.st.users, id)
	for rid, r := range q.st.records {
		if r.UserID == id {
			delete(q.st.records, rid)
		}
	}
	return nil
}

// mutate applies fn to the stored user with the given id.
func (q *memQueries) mutate(id string, fn func(u *user.User) error) error {
	u, ok := q.st.users[id]
	if !ok {
		return ErrNotFound
	}
	return fn(u)
}

func (q *memQueries) SetVerified(ctx context.Context, id string) error {
	return q.mutate(id, func(u *user.User) error {
		u.IsVerified = true
		u.VerificationCode = nil
		return nil
	})
}

func (q *memQueries) SetVerificationCode(ctx context.Context, id string, code *string) error {
	return q.mutate(id, func(u *user.User) error {
		if code == nil {
			u.VerificationCode = nil
			return nil
		}
		c := *code
		u.VerificationCode = &c
		return nil
	})
}

func (q *memQueries) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return q.mutate(id, func(u *user.User) error {
		u.PasswordHash = passwordHash
		return nil
	})
}

func (q *memQueries) SetTwoFactorSecret(ctx context.Context, id string, secret *string) error {
	return q.mutate(id, func(u *user.User) error {
		if secret == nil {
			u.Secret2FA = nil
			return nil
		}
		s := *secret
		u.Secret2FA = &s
		return nil
	})
}

func (q *memQueries) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return q.mutate(id, func(u *user.User) error {
		u.Enabled2FA = enabled
		return nil
	})
}

func (q *memQueries) AddCoins(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := q.mutate(id, func(u *user.User) error {
		u.Coins += amount
		balance = u.Coins
		return nil
	})
	return balance, err
}

func (q *memQueries) SpendCoins(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := q.mutate(id, func(u *user.User) error {
		if u.Coins < amount {
			return ErrInsufficientFunds
		}
		u.Coins -= amount
		balance = u.Coins
		return nil
	})
	return balance, err
}

func (q *memQueries) AddOwnedItem(ctx context.Context, id string, itemID string) error {
	return q.mutate(id, func(u *user.User) error {
		if u.Owns(itemID) {
			return ErrDuplicate
		}
		u.OwnedItems = append(u.OwnedItems, itemID)
		return nil
	})
}

func (q *memQueries) LockDifficulty(ctx context.Context, d leaderboard.Difficulty) error {
	return nil
}

func (q *memQueries) GetRecord(ctx context.Context, userID string, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	for _, r := range q.st.records {
		if r.UserID == userID && r.Difficulty == d {
			rc := *r
			return &rc, nil
		}
	}
	return nil, ErrNotFound
}

func (q *memQueries) InsertRecord(ctx context.Context, r *leaderboard.Record) error {
	if _, ok := q.st.users[r.UserID]; !ok {
		return ErrNotFound
	}
	if _, err := q.GetRecord(ctx, r.UserID, r.Difficulty); err == nil {
		return ErrDuplicate
	}
	r.ID = q.st.nextRecordID
	q.st.nextRecordID++
	stored := *r
	q.st.records[r.ID] = &stored
	return nil
}

func (q *memQueries) UpdateRecord(ctx context.Context, id int64, milliseconds int, at time.Time) error {
	r, ok := q.st.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Milliseconds = milliseconds
	r.CreatedAt = at
	return nil
}

// ranked returns copies of the difficulty's records in leaderboard order.
func (q *memQueries) ranked(d leaderboard.Difficulty) []*leaderboard.Record {
	var out []*leaderboard.Record
	for _, r := range q.st.records {
		if r.Difficulty == d {
			rc := *r
			out = append(out, &rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return leaderboard.Less(out[i], out[j]) })
	return out
}

func (q *memQueries) TopRecords(ctx context.Context, d leaderboard.Difficulty, limit int, excludeUserID string) ([]*leaderboard.Record, error) {
	out := []*leaderboard.Record{}
	for _, r := range q.ranked(d) {
		if len(out) >= limit {
			break
		}
		if excludeUserID != "" && r.UserID == excludeUserID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (q *memQueries) CountRecords(ctx context.Context, d leaderboard.Difficulty) (int, error) {
	return len(q.ranked(d)), nil
}

func (q *memQueries) DeleteWorstRecord(ctx context.Context, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	all := q.ranked(d)
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	worst := all[len(all)-1]
	delete(q.st.records, worst.ID)
	return worst, nil
}

func (q *memQueries) ListUserRecords(ctx context.Context, userID string) ([]*leaderboard.Record, error) {
	order := map[leaderboard.Difficulty]int{}
	for i, d := range leaderboard.Difficulties {
		order[d] = i
	}
	out := []*leaderboard.Record{}
	for _, r := range q.st.records {
		if r.UserID == userID {
			rc := *r
			out = append(out, &rc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Difficulty] < order[out[j].Difficulty] })
	return out, nil
}
