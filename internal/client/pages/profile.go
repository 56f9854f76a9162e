package pages

import (
	"context"
	"strings"

	"github.com/yoockh/launchkit/internal/client/apiclient"
	"github.com/yoockh/launchkit/internal/client/authstore"
	"github.com/yoockh/launchkit/internal/models"
)

type Profile struct {
	api     API
	session Session
	queries *apiclient.QueryCache
}

func NewProfile(api API, session Session, queries *apiclient.QueryCache) *Profile {
	return &Profile{api: api, session: session, queries: queries}
}

// Load fetches the caller's profile; it needs a logged-in user.
func (p *Profile) Load(ctx context.Context) (*models.User, error) {
	st := p.session.State()
	if st.User == nil {
		return nil, authstore.ErrNoSession
	}
	return apiclient.Query(ctx, p.queries, keyProfile+st.User.ID, p.api.Me)
}

// Save validates and writes the form, then drops cached profile reads.
func (p *Profile) Save(ctx context.Context, f ProfileForm) (*models.User, error) {
	f.Name = strings.TrimSpace(f.Name)
	if err := Validate(f); err != nil {
		return nil, err
	}
	name, lang := f.Name, f.Language
	u, err := p.api.UpdateMe(ctx, models.ProfileUpdate{Name: &name, Language: &lang})
	if err != nil {
		return nil, err
	}
	p.queries.Invalidate(keyProfile)
	return u, nil
}

// DeleteAccount removes the account at the backend and signs out locally.
func (p *Profile) DeleteAccount(ctx context.Context) error {
	if err := p.api.DeleteMe(ctx); err != nil {
		return err
	}
	p.queries.Invalidate("")
	return p.session.Logout(ctx)
}
