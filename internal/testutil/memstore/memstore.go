// Package memstore provides in-memory stand-ins for the Postgres repository and
// the Redis rental cache, used by service and handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inferchain/inferchain/internal/model"
	"github.com/inferchain/inferchain/internal/repository"
)

// Store is an in-memory stand-in for the Postgres repository. It returns
// the repository's sentinel errors so services behave as they do in production.
type Store struct {
	mu          sync.Mutex
	users       map[string]*model.User
	models      map[string]*model.Model
	rentals     map[string]*model.Rental
	settlements map[string]*model.Settlement

	// TokenCollisions makes the next n CreateRental calls fail with ErrTokenExists.
	TokenCollisions int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]*model.User),
		models:      make(map[string]*model.Model),
		rentals:     make(map[string]*model.Rental),
		settlements: make(map[string]*model.Settlement),
	}
}

func copyUser(u *model.User) *model.User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}

func (s *Store) findUser(match func(*model.User) bool) *model.User {
	for _, u := range s.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func byWallet(wallet string) func(*model.User) bool {
	return func(u *model.User) bool { return u.Wallet != nil && *u.Wallet == wallet }
}

func byEmail(email string) func(*model.User) bool {
	return func(u *model.User) bool { return u.Email != nil && *u.Email == email }
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Wallet != nil && s.findUser(byWallet(*user.Wallet)) != nil {
		return repository.ErrWalletExists
	}
	if user.Email != nil && s.findUser(byEmail(*user.Email)) != nil {
		return repository.ErrEmailExists
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByWallet(_ context.Context, wallet string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.findUser(byWallet(wallet)); u != nil {
		return copyUser(u), nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.findUser(byEmail(email)); u != nil {
		return copyUser(u), nil
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) UpsertWalletUser(_ context.Context, user *model.User) (*model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.findUser(byWallet(*user.Wallet)); existing != nil {
		existing.Roles = model.MergeRoles(existing.Roles, user.Roles)
		sort.Strings(existing.Roles)
		existing.UpdatedAt = user.CreatedAt
		return copyUser(existing), false, nil
	}
	u := copyUser(user)
	sort.Strings(u.Roles)
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return copyUser(u), true, nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	var existing *model.User
	var err error
	switch {
	case user.Wallet != nil:
		existing, err = s.GetUserByWallet(ctx, *user.Wallet)
	case user.Email != nil:
		existing, err = s.GetUserByEmail(ctx, *user.Email)
	default:
		return nil, false, repository.ErrUserNotFound
	}
	if err == nil {
		return existing, false, nil
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, false, err
	}
	return copyUser(user), true, nil
}

func copyModel(m *model.Model) *model.Model {
	cp := *m
	if m.ChainModelID != nil {
		id := *m.ChainModelID
		cp.ChainModelID = &id
	}
	return &cp
}

func (s *Store) CreateModel(_ context.Context, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ChainModelID != nil {
		for _, existing := range s.models {
			if existing.ChainModelID != nil && *existing.ChainModelID == *m.ChainModelID {
				return repository.ErrChainModelExists
			}
		}
	}
	s.models[m.ID] = copyModel(m)
	return nil
}

func (s *Store) GetModelByID(_ context.Context, id string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return nil, repository.ErrModelNotFound
	}
	return copyModel(m), nil
}

func (s *Store) GetModelByChainID(_ context.Context, chainID string) (*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.models {
		if m.ChainModelID != nil && *m.ChainModelID == chainID {
			return copyModel(m), nil
		}
	}
	return nil, repository.ErrModelNotFound
}

func (s *Store) ListModels(_ context.Context, filter model.ModelFilter) ([]*model.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(filter.Search)
	out := []*model.Model{}
	for _, m := range s.models {
		if !m.Active {
			continue
		}
		if filter.Owner != "" && m.OwnerWallet != filter.Owner {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Description), search) {
			continue
		}
		out = append(out, copyModel(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateModelPrice(_ context.Context, id, priceWei string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return repository.ErrModelNotFound
	}
	m.PricePerMinute = priceWei
	return nil
}

func (s *Store) DeactivateModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok || !m.Active {
		return repository.ErrModelNotFound
	}
	m.Active = false
	return nil
}

func (s *Store) CreateRental(_ context.Context, rental *model.Rental) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TokenCollisions > 0 {
		s.TokenCollisions--
		return repository.ErrTokenExists
	}
	for _, r := range s.rentals {
		if r.TokenHash == rental.TokenHash {
			return repository.ErrTokenExists
		}
	}
	cp := *rental
	s.rentals[rental.ID] = &cp
	return nil
}

func (s *Store) GetRentalByTokenHash(_ context.Context, tokenHash string) (*model.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rentals {
		if r.TokenHash == tokenHash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrRentalNotFound
}

func (s *Store) ListRentalsByCustomerID(_ context.Context, customerID string) ([]*model.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*model.Rental{}
	for _, r := range s.rentals {
		if r.CustomerID == customerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeactivateRental(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rentals[id]
	if !ok {
		return repository.ErrRentalNotFound
	}
	r.Active = false
	return nil
}

// Rentals returns a snapshot of every stored rental.
func (s *Store) Rentals() []*model.Rental {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Rental, 0, len(s.rentals))
	for _, r := range s.rentals {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (s *Store) ClaimSettlement(_ context.Context, st *model.Settlement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settlements[st.RequestID]; ok {
		return false, nil
	}
	cp := *st
	cp.Status = model.SettlementPending
	cp.AttemptCount = 0
	cp.UpdatedAt = st.CreatedAt
	s.settlements[st.RequestID] = &cp
	return true, nil
}

func (s *Store) AttachSettlementRental(_ context.Context, requestID, rentalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settlements[requestID]; ok {
		st.RentalID = &rentalID
	}
	return nil
}

func (s *Store) GetSettlement(_ context.Context, requestID string) (*model.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[requestID]
	if !ok {
		return nil, repository.ErrSettlementNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Store) LeaseDueSettlements(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*model.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := []*model.Settlement{}
	for _, st := range s.settlements {
		if (st.Status == model.SettlementPending || st.Status == model.SettlementFailed) && !st.NextRetryAt.After(now) {
			due = append(due, st)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*model.Settlement, 0, len(due))
	for _, st := range due {
		st.NextRetryAt = now.Add(lease)
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) MarkSettlementSettled(_ context.Context, requestID, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[requestID]
	if !ok {
		return repository.ErrSettlementNotFound
	}
	now := time.Now()
	st.Status = model.SettlementSettled
	st.AttemptCount++
	st.LastError = nil
	if txHash != "" {
		st.TxHash = &txHash
	}
	st.SettledAt = &now
	return nil
}

func (s *Store) MarkSettlementFailure(_ context.Context, requestID, errMsg string, nextRetryAt time.Time, exhausted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[requestID]
	if !ok {
		return nil
	}
	st.Status = model.SettlementFailed
	if exhausted {
		st.Status = model.SettlementExhausted
	}
	st.AttemptCount++
	st.LastError = &errMsg
	st.NextRetryAt = nextRetryAt
	return nil
}

func (s *Store) CountOutstandingSettlements(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, st := range s.settlements {
		if st.Status == model.SettlementPending || st.Status == model.SettlementFailed {
			n++
		}
	}
	return n, nil
}

// Cache is an in-memory RentalCache honoring the rental TTL rules.
type Cache struct {
	mu      sync.Mutex
	rentals map[string]*model.CachedRental
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{rentals: make(map[string]*model.CachedRental)}
}

func (c *Cache) GetRental(_ context.Context, digest string) (*model.CachedRental, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rentals[digest]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (c *Cache) SetRental(_ context.Context, digest string, rental *model.CachedRental) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !rental.Active {
		return nil
	}
	cp := *rental
	c.rentals[digest] = &cp
	return nil
}

func (c *Cache) DeleteRental(_ context.Context, digest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rentals, digest)
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rentals)
}
