package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yoockh/launchkit/internal/client/authstore"
	"github.com/yoockh/launchkit/internal/client/guard"
)

var errAdminRequired = errors.New("admin access required")

// adminSettleTimeout bounds the wait for the profile flag before an admin-only
// route is judged on the metadata and email fallback.
const adminSettleTimeout = 3 * time.Second

// enter applies the route guard for path the way the web client would before
// rendering that page.
func (a *app) enter(ctx context.Context, path string) (*authstore.Store, error) {
	st, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	if r, ok := guard.Lookup(path); ok && r.Access == guard.AdminOnly {
		if err := st.WaitAdminSettled(ctx, adminSettleTimeout); err != nil {
			return nil, err
		}
	}
	// Initialize has resolved the initial query, so Wait never comes back here.
	d := guard.Resolve(path, st.State())
	switch {
	case d.Action == guard.Allow:
		return st, nil
	case d.Action == guard.Redirect && d.To == guard.LoginPath:
		return nil, errNotSignedIn
	case d.Action == guard.Redirect:
		return nil, errAdminRequired
	default:
		return nil, fmt.Errorf("cannot open %s: %s", path, d.Action)
	}
}
