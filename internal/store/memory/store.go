// Package memory implements store.Store with in-memory documents. It is used
// by tests and by --store-type memory; data is lost on restart.
//
// Documents carry version counters. InTx runs the unit of work against an
// optimistic snapshot, buffering writes, then validates at commit time that
// nothing it read (including reads that found nothing) changed underneath
// it. A losing transaction is retried with backoff until the attempt budget
// runs out, matching the behavior of the serializable Postgres backend.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

// maxTxAttempts bounds the optimistic retry loop before ErrContention.
const maxTxAttempts = 8

// errConflict marks a commit-time validation failure. It never escapes InTx.
var errConflict = errors.New("memory: snapshot invalidated by concurrent commit")

// Store implements store.Store using in-memory maps.
type Store struct {
	mu sync.RWMutex

	orgs     map[string]*models.Org
	orgVers  map[string]uint64
	users    map[string]*models.User
	userVers map[string]uint64

	regs      map[uuid.UUID]*models.Registration
	regsByOrg map[string][]uuid.UUID
	// regListVers versions the per-org registration collection so list
	// reads can be validated at commit time.
	regListVers map[string]uint64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		orgs:        make(map[string]*models.Org),
		orgVers:     make(map[string]uint64),
		users:       make(map[string]*models.User),
		userVers:    make(map[string]uint64),
		regs:        make(map[uuid.UUID]*models.Registration),
		regsByOrg:   make(map[string][]uuid.UUID),
		regListVers: make(map[string]uint64),
	}
}

var _ store.Store = (*Store)(nil)

// InTx executes fn against an optimistic snapshot with bounded retry.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, st store.Stores) error) error {
	op := func() (struct{}, error) {
		t := s.begin()

		if err := fn(ctx, t); err != nil {
			// Domain errors abort without retry.
			return struct{}{}, backoff.Permanent(err)
		}

		if err := s.commit(t); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTxAttempts),
	)
	if err != nil {
		if errors.Is(err, errConflict) {
			return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, store.ErrContention)
		}
		return err
	}
	return nil
}

// Orgs returns an auto-committing view; each call runs in its own
// transaction.
func (s *Store) Orgs() store.OrgStore { return autoOrgs{s} }

// Users returns an auto-committing view.
func (s *Store) Users() store.UserStore { return autoUsers{s} }

// Registrations returns an auto-committing view.
func (s *Store) Registrations() store.RegistrationStore { return autoRegs{s} }

// begin captures a new transaction view over the store.
func (s *Store) begin() *tx {
	return &tx{
		s:            s,
		readOrgs:     make(map[string]uint64),
		readUsers:    make(map[string]uint64),
		readRegLists: make(map[string]uint64),
		putOrgs:      make(map[string]*models.Org),
		putUsers:     make(map[string]*models.User),
	}
}

// commit validates the transaction's read set and applies its buffered
// writes. Returns errConflict when any read was invalidated.
func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, ver := range t.readOrgs {
		if s.orgVers[name] != ver {
			return errConflict
		}
	}
	for id, ver := range t.readUsers {
		if s.userVers[id] != ver {
			return errConflict
		}
	}
	for name, ver := range t.readRegLists {
		if s.regListVers[name] != ver {
			return errConflict
		}
	}

	now := time.Now()
	for name, org := range t.putOrgs {
		clone := cloneOrg(org)
		clone.UpdatedAt = now
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		s.orgs[name] = clone
		s.orgVers[name]++
	}
	for id, user := range t.putUsers {
		clone := cloneUser(user)
		clone.UpdatedAt = now
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		s.users[id] = clone
		s.userVers[id]++
	}
	for _, reg := range t.newRegs {
		clone := cloneReg(reg)
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		s.regs[clone.RegistrationID] = clone
		s.regsByOrg[clone.OrgName] = append(s.regsByOrg[clone.OrgName], clone.RegistrationID)
		s.regListVers[clone.OrgName]++
	}

	return nil
}

// auto-committing wrappers: one transaction per call.

type autoOrgs struct{ s *Store }

func (a autoOrgs) Get(ctx context.Context, name string) (*models.Org, error) {
	var org *models.Org
	err := a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		org, err = st.Orgs().Get(ctx, name)
		return err
	})
	return org, err
}

func (a autoOrgs) Create(ctx context.Context, org *models.Org) error {
	return a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		return st.Orgs().Create(ctx, org)
	})
}

func (a autoOrgs) AddPending(ctx context.Context, name, userID string) error {
	return a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		return st.Orgs().AddPending(ctx, name, userID)
	})
}

func (a autoOrgs) PromotePending(ctx context.Context, name, userID string) error {
	return a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		return st.Orgs().PromotePending(ctx, name, userID)
	})
}

type autoUsers struct{ s *Store }

func (a autoUsers) Get(ctx context.Context, userID string) (*models.User, error) {
	var user *models.User
	err := a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		user, err = st.Users().Get(ctx, userID)
		return err
	})
	return user, err
}

func (a autoUsers) Put(ctx context.Context, user *models.User) error {
	return a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		return st.Users().Put(ctx, user)
	})
}

type autoRegs struct{ s *Store }

func (a autoRegs) Create(ctx context.Context, reg *models.Registration) error {
	return a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		return st.Registrations().Create(ctx, reg)
	})
}

func (a autoRegs) ListByOrg(ctx context.Context, orgName string) ([]*models.Registration, error) {
	var regs []*models.Registration
	err := a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		regs, err = st.Registrations().ListByOrg(ctx, orgName)
		return err
	})
	return regs, err
}

func (a autoRegs) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var reg *models.Registration
	err := a.s.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		var err error
		reg, err = st.Registrations().Get(ctx, id)
		return err
	})
	return reg, err
}
