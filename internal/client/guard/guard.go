// Package guard decides what a navigation to a client route should do given
// the current auth state. Guards never change state themselves.
package guard

import (
	"strings"

	"github.com/yoockh/launchkit/internal/client/authstore"
)

type Action int

const (
	Allow Action = iota
	Wait         // auth still resolving: show a neutral indicator, do not navigate
	Redirect
	NotFound
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Decision struct {
	Action Action
	To     string // redirect target, set only for Redirect
}

const (
	LoginPath   = "/login"
	LandingPath = "/dashboard"
)

// Protected admits signed-in users once the initial session query resolved.
func Protected(st authstore.State) Decision {
	switch {
	case st.IsLoading:
		return Decision{Action: Wait}
	case st.User != nil:
		return Decision{Action: Allow}
	default:
		return Decision{Action: Redirect, To: LoginPath}
	}
}

// Admin admits administrators. It does not look at IsLoading and is meant to
// run after Protected.
func Admin(st authstore.State) Decision {
	if st.IsAdmin {
		return Decision{Action: Allow}
	}
	return Decision{Action: Redirect, To: LandingPath}
}

type Access int

const (
	Public Access = iota
	Authenticated
	AdminOnly
)

type Route struct {
	Path   string
	Access Access
}

var Routes = []Route{
	{Path: "/", Access: Public},
	{Path: "/login", Access: Public},
	{Path: "/signup", Access: Public},
	{Path: "/forgot-password", Access: Public},
	{Path: "/privacy", Access: Public},
	{Path: "/terms", Access: Public},
	{Path: "/dashboard", Access: Authenticated},
	{Path: "/profile", Access: Authenticated},
	{Path: "/billing", Access: Authenticated},
	{Path: "/admin", Access: AdminOnly},
}

func Lookup(path string) (Route, bool) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path = strings.TrimRight(path, "/"); path == "" {
		path = "/"
	}
	for _, r := range Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve applies the guards of path's route in order.
func Resolve(path string, st authstore.State) Decision {
	r, ok := Lookup(path)
	if !ok {
		return Decision{Action: NotFound}
	}
	if r.Access == Public {
		return Decision{Action: Allow}
	}
	if d := Protected(st); d.Action != Allow {
		return d
	}
	if r.Access == AdminOnly {
		return Admin(st)
	}
	return Decision{Action: Allow}
}
