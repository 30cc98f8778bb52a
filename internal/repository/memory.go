package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/stonks-backend/internal/models"
)

// MemoryStore keeps everything in process memory. It backs STORE=memory
// and the handler tests. A per-user mutex stands in for the row lock.
type MemoryStore struct {
	mu        sync.RWMutex
	nextUser  int64
	nextTx    int64
	users     map[int64]*models.User
	byName    map[string]int64
	txns      map[int64][]models.Transaction
	watchlist map[int64]map[string]time.Time

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*models.User),
		byName:    make(map[string]int64),
		txns:      make(map[int64][]models.Transaction),
		watchlist: make(map[int64]map[string]time.Time),
		locks:     make(map[int64]*sync.Mutex),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Kind() string { return "memory" }

func (s *MemoryStore) CreateUser(ctx context.Context, username string, cash int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[username]; ok {
		return nil, ErrUsernameTaken
	}
	s.nextUser++
	u := &models.User{ID: s.nextUser, Username: username, Cash: cash, CreatedAt: s.now()}
	s.users[u.ID] = u
	s.byName[username] = u.ID
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	id, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *MemoryStore) userLock(id int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// WithUser buffers writes and applies them only when fn returns nil.
func (s *MemoryStore) WithUser(ctx context.Context, userID int64, fn func(UserTx) error) error {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	cash, err := s.Cash(ctx, userID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	utx := &memUserTx{store: s, userID: userID, cash: cash}
	if err := fn(utx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID].Cash = utx.cash
	for _, t := range utx.pending {
		s.nextTx++
		t.ID = s.nextTx
		s.txns[userID] = append(s.txns[userID], *t)
	}
	return nil
}

func (s *MemoryStore) Cash(ctx context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.Cash, nil
}

func (s *MemoryStore) SumShares(ctx context.Context, userID int64, symbol string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.txns[userID] {
		if t.Symbol == symbol {
			n += t.Shares
		}
	}
	return n, nil
}

func (s *MemoryStore) Holdings(ctx context.Context, userID int64) ([]models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdingsLocked(userID), nil
}

// Snapshot reads under one read lock; commits write cash and the log under
// the write lock together.
func (s *MemoryStore) Snapshot(ctx context.Context, userID int64) (int64, []models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil, ErrUserNotFound
	}
	return u.Cash, s.holdingsLocked(userID), nil
}

func (s *MemoryStore) holdingsLocked(userID int64) []models.Holding {
	sums := make(map[string]int64)
	for _, t := range s.txns[userID] {
		sums[t.Symbol] += t.Shares
	}

	var out []models.Holding
	for sym, n := range sums {
		if n > 0 {
			out = append(out, models.Holding{Symbol: sym, Shares: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *MemoryStore) Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	log := s.txns[userID]
	out := make([]models.Transaction, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
	}
	s.mu.RUnlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddWatch(ctx context.Context, userID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watchlist[userID]
	if !ok {
		w = make(map[string]time.Time)
		s.watchlist[userID] = w
	}
	if _, ok := w[symbol]; !ok {
		w[symbol] = s.now()
	}
	return nil
}

func (s *MemoryStore) RemoveWatch(ctx context.Context, userID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchlist[userID], symbol)
	return nil
}

func (s *MemoryStore) WatchedSymbols(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.watchlist[userID]))
	for sym := range s.watchlist[userID] {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

type memUserTx struct {
	store   *MemoryStore
	userID  int64
	cash    int64
	pending []*models.Transaction
}

func (u *memUserTx) Cash(ctx context.Context) (int64, error) { return u.cash, nil }

func (u *memUserTx) SetCash(ctx context.Context, cents int64) error {
	if cents < 0 {
		return errNegativeCash
	}
	u.cash = cents
	return nil
}

func (u *memUserTx) SumShares(ctx context.Context, symbol string) (int64, error) {
	n, err := u.store.SumShares(ctx, u.userID, symbol)
	if err != nil {
		return 0, err
	}
	for _, t := range u.pending {
		if t.Symbol == symbol {
			n += t.Shares
		}
	}
	return n, nil
}

func (u *memUserTx) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if t.TradeID == uuid.Nil {
		t.TradeID = uuid.New()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = u.store.now()
	}
	t.UserID = u.userID
	u.pending = append(u.pending, t)
	return nil
}
