package memory

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgclaim/internal/models"
	"github.com/wolfeidau/orgclaim/internal/store"
)

// tx is one attempt of a unit of work. Reads record the version they
// observed (0 for a read that found nothing); writes are buffered until
// commit.
type tx struct {
	s *Store

	readOrgs     map[string]uint64
	readUsers    map[string]uint64
	readRegLists map[string]uint64

	putOrgs  map[string]*models.Org
	putUsers map[string]*models.User
	newRegs  []*models.Registration
}

var _ store.Stores = (*tx)(nil)

func (t *tx) Orgs() store.OrgStore                   { return txOrgs{t} }
func (t *tx) Users() store.UserStore                 { return txUsers{t} }
func (t *tx) Registrations() store.RegistrationStore { return txRegs{t} }

// readOrg returns the org as seen by this transaction, recording the read.
// Returns nil when the org does not exist; the negative read is recorded
// too, so a concurrent claim invalidates this snapshot.
func (t *tx) readOrg(name string) *models.Org {
	if org, ok := t.putOrgs[name]; ok {
		return cloneOrg(org)
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if _, seen := t.readOrgs[name]; !seen {
		t.readOrgs[name] = t.s.orgVers[name]
	}
	org, ok := t.s.orgs[name]
	if !ok {
		return nil
	}
	return cloneOrg(org)
}

func (t *tx) readUser(userID string) *models.User {
	if user, ok := t.putUsers[userID]; ok {
		return cloneUser(user)
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if _, seen := t.readUsers[userID]; !seen {
		t.readUsers[userID] = t.s.userVers[userID]
	}
	user, ok := t.s.users[userID]
	if !ok {
		return nil
	}
	return cloneUser(user)
}

type txOrgs struct{ t *tx }

func (o txOrgs) Get(ctx context.Context, name string) (*models.Org, error) {
	org := o.t.readOrg(name)
	if org == nil {
		return nil, store.ErrOrgNotFound
	}
	return org, nil
}

func (o txOrgs) Create(ctx context.Context, org *models.Org) error {
	if err := org.Validate(); err != nil {
		return err
	}
	if existing := o.t.readOrg(org.Name); existing != nil {
		return store.ErrOrgAlreadyClaimed
	}
	o.t.putOrgs[org.Name] = cloneOrg(org)
	return nil
}

func (o txOrgs) AddPending(ctx context.Context, name, userID string) error {
	org := o.t.readOrg(name)
	if org == nil {
		return store.ErrOrgNotFound
	}
	// Already pending, accepted or admin: nothing to add. The sets stay
	// disjoint and the invite is idempotent.
	if org.IsPending(userID) || org.IsAccepted(userID) || org.IsAdmin(userID) {
		return nil
	}
	org.Pending = append(org.Pending, userID)
	o.t.putOrgs[name] = org
	return nil
}

func (o txOrgs) PromotePending(ctx context.Context, name, userID string) error {
	org := o.t.readOrg(name)
	if org == nil {
		return store.ErrOrgNotFound
	}
	if !org.IsPending(userID) {
		return store.ErrNotPending
	}
	org.Pending = slices.DeleteFunc(org.Pending, func(id string) bool { return id == userID })
	org.Accepted = append(org.Accepted, userID)
	o.t.putOrgs[name] = org
	return nil
}

type txUsers struct{ t *tx }

func (u txUsers) Get(ctx context.Context, userID string) (*models.User, error) {
	user := u.t.readUser(userID)
	if user == nil {
		return nil, store.ErrUserNotFound
	}
	user.AdminOf, user.PendingOf, user.MemberOf = u.t.membershipViews(userID)
	return user, nil
}

func (u txUsers) Put(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	clone := cloneUser(user)
	if existing := u.t.readUser(user.UserID); existing != nil {
		clone.CreatedAt = existing.CreatedAt
	}
	// Membership views are derived, never stored.
	clone.AdminOf, clone.PendingOf, clone.MemberOf = nil, nil, nil
	u.t.putUsers[user.UserID] = clone
	return nil
}

// membershipViews derives the user's org sets by scanning org documents.
// This is a point-in-time view; it is not part of the transaction's
// validated read set.
func (t *tx) membershipViews(userID string) (adminOf, pendingOf, memberOf []string) {
	t.s.mu.RLock()
	names := slices.Sorted(maps.Keys(t.s.orgs))
	orgs := make([]*models.Org, 0, len(names))
	for _, name := range names {
		if _, buffered := t.putOrgs[name]; buffered {
			continue
		}
		orgs = append(orgs, t.s.orgs[name])
	}
	t.s.mu.RUnlock()

	for name := range t.putOrgs {
		orgs = append(orgs, t.putOrgs[name])
	}

	for _, org := range orgs {
		switch {
		case org.IsAdmin(userID):
			adminOf = append(adminOf, org.Name)
		case org.IsPending(userID):
			pendingOf = append(pendingOf, org.Name)
		case org.IsAccepted(userID):
			memberOf = append(memberOf, org.Name)
		}
	}
	slices.Sort(adminOf)
	slices.Sort(pendingOf)
	slices.Sort(memberOf)
	return adminOf, pendingOf, memberOf
}

type txRegs struct{ t *tx }

func (r txRegs) Create(ctx context.Context, reg *models.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if reg.RegistrationID == uuid.Nil {
		return errors.New("registration id is required")
	}
	if org := r.t.readOrg(reg.OrgName); org == nil {
		return store.ErrUnknownOrg
	}
	r.t.newRegs = append(r.t.newRegs, cloneReg(reg))
	return nil
}

func (r txRegs) ListByOrg(ctx context.Context, orgName string) ([]*models.Registration, error) {
	r.t.s.mu.RLock()
	if _, seen := r.t.readRegLists[orgName]; !seen {
		r.t.readRegLists[orgName] = r.t.s.regListVers[orgName]
	}
	ids := slices.Clone(r.t.s.regsByOrg[orgName])
	regs := make([]*models.Registration, 0, len(ids))
	for _, id := range ids {
		regs = append(regs, cloneReg(r.t.s.regs[id]))
	}
	r.t.s.mu.RUnlock()

	for _, reg := range r.t.newRegs {
		if reg.OrgName == orgName {
			regs = append(regs, cloneReg(reg))
		}
	}
	return regs, nil
}

func (r txRegs) Get(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	for _, reg := range r.t.newRegs {
		if reg.RegistrationID == id {
			return cloneReg(reg), nil
		}
	}

	r.t.s.mu.RLock()
	defer r.t.s.mu.RUnlock()

	reg, ok := r.t.s.regs[id]
	if !ok {
		return nil, store.ErrRegistrationNotFound
	}
	return cloneReg(reg), nil
}

func cloneOrg(org *models.Org) *models.Org {
	clone := *org
	clone.Admins = slices.Clone(org.Admins)
	clone.Pending = slices.Clone(org.Pending)
	clone.Accepted = slices.Clone(org.Accepted)
	return &clone
}

func cloneUser(user *models.User) *models.User {
	clone := *user
	clone.AdminOf = slices.Clone(user.AdminOf)
	clone.PendingOf = slices.Clone(user.PendingOf)
	clone.MemberOf = slices.Clone(user.MemberOf)
	return &clone
}

func cloneReg(reg *models.Registration) *models.Registration {
	clone := *reg
	clone.Fields = maps.Clone(reg.Fields)
	return &clone
}
