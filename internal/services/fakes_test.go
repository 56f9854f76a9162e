package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yoockh/launchkit/internal/billing"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/identity/gotrue"
	"github.com/yoockh/launchkit/internal/logger"
	"github.com/yoockh/launchkit/internal/models"
	mongorepo "github.com/yoockh/launchkit/internal/repositories/mongo"
	pgrepo "github.com/yoockh/launchkit/internal/repositories/postgres"
	"github.com/yoockh/launchkit/internal/utils"
)

var quiet = logger.Discard()

// ==========================================
// Repositories
// ==========================================

type fakeProfiles struct {
	mu      sync.Mutex
	rows    map[string]*models.Profile
	err     error
	lastF   pgrepo.ProfileFilter
}

func newFakeProfiles(ps ...models.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]*models.Profile{}}
	for i := range ps {
		p := ps[i]
		f.rows[p.ID] = &p
	}
	return f
}

func (f *fakeProfiles) get(id string) *models.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p := f.get(id); p != nil {
		return p, nil
	}
	return nil, utils.ErrNotFound
}

func (f *fakeProfiles) GetByStripeCustomer(_ context.Context, customerID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (f *fakeProfiles) Insert(_ context.Context, p *models.Profile) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[p.ID]; !ok {
		cp := *p
		f.rows[p.ID] = &cp
	}
	return nil
}

func (f *fakeProfiles) UpdateColumns(_ context.Context, id string, cols map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	for k, v := range cols {
		switch k {
		case "name":
			s := v.(string)
			p.Name = &s
		case "language":
			p.Language = v.(string)
		case "is_admin":
			p.IsAdmin = v.(bool)
		case "stripe_customer_id":
			s := v.(string)
			p.StripeCustomerID = &s
		case "subscription_status":
			p.SubscriptionStatus = v.(string)
		}
	}
	return nil
}

func (f *fakeProfiles) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return utils.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeProfiles) List(_ context.Context, flt pgrepo.ProfileFilter) ([]models.Profile, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastF = flt
	var out []models.Profile
	for _, p := range f.rows {
		if flt.Admin != nil && p.IsAdmin != *flt.Admin {
			continue
		}
		if flt.Search != "" && !strings.Contains(strings.ToLower(p.Email), strings.ToLower(flt.Search)) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if flt.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[flt.Offset:]
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, total, nil
}

func (f *fakeProfiles) All(ctx context.Context) ([]models.Profile, error) {
	out, _, err := f.List(ctx, pgrepo.ProfileFilter{})
	return out, err
}

func (f *fakeProfiles) Count(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.rows)), nil
}

func (f *fakeProfiles) CountCreatedSince(_ context.Context, since time.Time) (int64, error) {
	return f.countSince(since, func(p *models.Profile) time.Time { return p.CreatedAt })
}

func (f *fakeProfiles) CountUpdatedSince(_ context.Context, since time.Time) (int64, error) {
	return f.countSince(since, func(p *models.Profile) time.Time { return p.UpdatedAt })
}

func (f *fakeProfiles) countSince(since time.Time, at func(*models.Profile) time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.rows {
		if !at(p).Before(since) {
			n++
		}
	}
	return n, nil
}

type fakeWhitelist struct{ emails map[string]bool }

func (f *fakeWhitelist) IsListed(_ context.Context, email string) (bool, error) {
	return f.emails[strings.ToLower(email)], nil
}

func (f *fakeWhitelist) Add(_ context.Context, email string) error {
	f.emails[strings.ToLower(email)] = true
	return nil
}

type fakeActivityRepo struct {
	mu   sync.Mutex
	rows []models.Activity
	err  error
}

func (f *fakeActivityRepo) Insert(_ context.Context, a *models.Activity) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeActivityRepo) Recent(_ context.Context, flt mongorepo.ActivityFilter) ([]models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Activity(nil), f.rows...)
	if int64(len(out)) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeActivityRepo) kinds() []models.ActivityKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ActivityKind
	for _, a := range f.rows {
		out = append(out, a.Kind)
	}
	return out
}

type fakeEvents struct {
	mu   sync.Mutex
	rows map[string]*models.BillingEvent
}

func newFakeEvents() *fakeEvents { return &fakeEvents{rows: map[string]*models.BillingEvent{}} }

func (f *fakeEvents) Record(_ context.Context, ev *models.BillingEvent) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[ev.ID]; ok {
		return false, nil
	}
	cp := *ev
	f.rows[ev.ID] = &cp
	return true, nil
}

func (f *fakeEvents) MarkProcessed(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	if !ok {
		return utils.ErrNotFound
	}
	ev.ProcessedAt = &at
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id string) (*models.BillingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeEvents) ListUnprocessed(_ context.Context, limit int) ([]models.BillingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.BillingEvent
	for _, ev := range f.rows {
		if ev.ProcessedAt == nil && len(out) < limit {
			out = append(out, *ev)
		}
	}
	return out, nil
}

// ==========================================
// Provider and gateway
// ==========================================

type fakeIdentity struct {
	mu       sync.Mutex
	users    []identity.User
	password string
	down     bool
	logouts  int
	recovers []string
	deleted  []string
	created  []gotrue.AdminUserParams
}

func (f *fakeIdentity) Token(_ context.Context, email, password string) (*identity.Session, error) {
	if f.down {
		return nil, errors.New("dial tcp: connection refused")
	}
	for _, u := range f.users {
		if u.Email == email && password == f.password {
			return &identity.Session{AccessToken: "tok-" + u.ID, User: u}, nil
		}
	}
	return nil, &identity.AuthError{Op: "sign_in", Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}
}

func (f *fakeIdentity) Signup(_ context.Context, email, _, _ string, _ map[string]any) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return nil, &identity.AuthError{Op: "sign_up", Status: 422, Message: "User already registered"}
		}
	}
	u := identity.User{ID: "new-" + email, Email: email, CreatedAt: time.Now()}
	f.users = append(f.users, u)
	return &identity.Session{User: u}, nil
}

func (f *fakeIdentity) Recover(_ context.Context, email, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers = append(f.recovers, email)
	return errors.New("rate limited")
}

func (f *fakeIdentity) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return errors.New("session already revoked")
}

func (f *fakeIdentity) AdminGetUser(_ context.Context, id string) (*identity.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (f *fakeIdentity) AdminDeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.users {
		if u.ID == id {
			f.users = append(f.users[:i], f.users[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return identity.ErrNotFound
}

func (f *fakeIdentity) AdminCreateUser(_ context.Context, p gotrue.AdminUserParams) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, p)
	u := identity.User{ID: "admin-id", Email: p.Email, UserMetadata: p.UserMetadata}
	f.users = append(f.users, u)
	return &u, nil
}

func (f *fakeIdentity) AdminListUsers(_ context.Context, page, perPage int) ([]identity.User, error) {
	start := (page - 1) * perPage
	if start >= len(f.users) {
		return nil, nil
	}
	end := start + perPage
	if end > len(f.users) {
		end = len(f.users)
	}
	return f.users[start:end], nil
}

type fakeGateway struct {
	customers int
	lastCheck billing.CheckoutParams
	lastPort  string
	sub       *models.Subscription
	subErr    error
}

func (g *fakeGateway) CreateCustomer(context.Context, string, string) (string, error) {
	g.customers++
	return "cus_new", nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p billing.CheckoutParams) (string, error) {
	g.lastCheck = p
	return "https://checkout.example/" + p.PriceID, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	g.lastPort = returnURL
	return "https://portal.example/" + customerID, nil
}

func (g *fakeGateway) ActiveSubscription(context.Context, string) (*models.Subscription, error) {
	return g.sub, g.subErr
}

// ParseWebhook accepts the literal signature "valid".
func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*billing.Event, error) {
	if signature != "valid" {
		return nil, billing.ErrInvalidSignature
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &billing.Event{ID: env.ID, Type: env.Type}, nil
}

type fakeQueue struct {
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}
