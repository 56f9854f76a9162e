// Package gotrue talks to a Supabase project: the GoTrue auth endpoints and
// the PostgREST "profiles" table.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
)

// API is a stateless client. It never stores tokens; callers pass the
// bearer they want to act as.
type API struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*API)

func WithHTTPClient(c *http.Client) Option {
	return func(a *API) { a.http = c }
}

// NewAPI builds a client for baseURL (the project URL). apiKey is the anon
// key for user flows or the service key for admin calls.
func NewAPI(baseURL, apiKey string, opts ...Option) *API {
	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type apiErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
}

func (a *API) do(ctx context.Context, op, method, path string, query url.Values, bearer string, hdr http.Header, body, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gotrue %s: encode body: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("gotrue %s: %w", op, err)
	}
	req.Header.Set("apikey", a.apiKey)
	if bearer == "" {
		bearer = a.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("gotrue %s: %w", op, err)
	}
	defer resp.Body.Close()

	const maxBytes = 1 << 20
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return fmt.Errorf("gotrue %s: read body: %w", op, err)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable {
		// PostgREST answers 406 when a single-object select matched no row.
		return fmt.Errorf("gotrue %s: %w", op, identity.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return decodeError(op, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gotrue %s: decode response: %w", op, err)
	}
	return nil
}

func decodeError(op string, status int, raw []byte) error {
	var eb apiErrorBody
	_ = json.Unmarshal(raw, &eb)

	ae := &identity.AuthError{Op: op, Status: status}
	switch {
	case eb.ErrorCode != "":
		ae.Code = eb.ErrorCode
	case eb.Error != "":
		ae.Code = eb.Error
	default:
		if s, ok := eb.Code.(string); ok {
			ae.Code = s
		}
	}
	for _, m := range []string{eb.ErrorDescription, eb.Msg, eb.Message, eb.Error} {
		if m != "" {
			ae.Message = m
			break
		}
	}
	if ae.Message == "" {
		ae.Message = http.StatusText(status)
	}
	return ae
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}

// Token performs the password grant.
func (a *API) Token(ctx context.Context, email, password string) (*identity.Session, error) {
	var s identity.Session
	err := a.do(ctx, "sign_in", http.MethodPost, "/auth/v1/token",
		url.Values{"grant_type": {"password"}}, "", nil,
		map[string]string{"email": email, "password": password}, &s)
	if err != nil {
		return nil, err
	}
	return normalizeSession(&s, time.Now()), nil
}

// Refresh exchanges a refresh token for a new session.
func (a *API) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	var s identity.Session
	err := a.do(ctx, "refresh", http.MethodPost, "/auth/v1/token",
		url.Values{"grant_type": {"refresh_token"}}, "", nil,
		map[string]string{"refresh_token": refreshToken}, &s)
	if err != nil {
		return nil, err
	}
	return normalizeSession(&s, time.Now()), nil
}

// Signup creates an account. When the project requires email confirmation
// the returned session has no access token.
func (a *API) Signup(ctx context.Context, email, password, redirectTo string, data map[string]any) (*identity.Session, error) {
	body := map[string]any{"email": email, "password": password}
	if len(data) > 0 {
		body["data"] = data
	}

	var raw json.RawMessage
	if err := a.do(ctx, "sign_up", http.MethodPost, "/auth/v1/signup", redirectQuery(redirectTo), "", nil, body, &raw); err != nil {
		return nil, err
	}

	var probe struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.Unmarshal(raw, &probe)
	if probe.AccessToken != "" {
		var s identity.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("gotrue sign_up: decode session: %w", err)
		}
		return normalizeSession(&s, time.Now()), nil
	}

	var u identity.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("gotrue sign_up: decode user: %w", err)
	}
	if u.ID == "" {
		return nil, &identity.AuthError{Op: "sign_up", Status: http.StatusBadRequest, Message: "Failed to create account"}
	}
	return &identity.Session{User: u}, nil
}

// Recover sends a password reset email.
func (a *API) Recover(ctx context.Context, email, redirectTo string) error {
	return a.do(ctx, "reset_password", http.MethodPost, "/auth/v1/recover", redirectQuery(redirectTo), "", nil,
		map[string]string{"email": email}, nil)
}

// Logout revokes the refresh tokens of the session behind accessToken.
func (a *API) Logout(ctx context.Context, accessToken string) error {
	return a.do(ctx, "sign_out", http.MethodPost, "/auth/v1/logout", nil, accessToken, nil, nil, nil)
}

// GetUser resolves an access token to its user.
func (a *API) GetUser(ctx context.Context, accessToken string) (*identity.User, error) {
	var u identity.User
	if err := a.do(ctx, "get_user", http.MethodGet, "/auth/v1/user", nil, accessToken, nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthorizeURL is the hosted consent page for an OAuth provider.
func (a *API) AuthorizeURL(provider, redirectTo string) string {
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return a.baseURL + "/auth/v1/authorize?" + q.Encode()
}

func (a *API) AdminGetUser(ctx context.Context, userID string) (*identity.User, error) {
	var u identity.User
	if err := a.do(ctx, "admin_get_user", http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, "", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (a *API) AdminDeleteUser(ctx context.Context, userID string) error {
	return a.do(ctx, "admin_delete_user", http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, "", nil, nil, nil)
}

func (a *API) AdminListUsers(ctx context.Context, page, perPage int) ([]identity.User, error) {
	q := url.Values{"page": {strconv.Itoa(page)}, "per_page": {strconv.Itoa(perPage)}}
	var out struct {
		Users []identity.User `json:"users"`
	}
	if err := a.do(ctx, "admin_list_users", http.MethodGet, "/auth/v1/admin/users", q, "", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

type AdminUserParams struct {
	Email        string         `json:"email"`
	Password     string         `json:"password,omitempty"`
	EmailConfirm bool           `json:"email_confirm"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

func (a *API) AdminCreateUser(ctx context.Context, p AdminUserParams) (*identity.User, error) {
	var u identity.User
	if err := a.do(ctx, "admin_create_user", http.MethodPost, "/auth/v1/admin/users", nil, "", nil, p, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetProfile reads one row of the profiles relation as bearer.
func (a *API) GetProfile(ctx context.Context, bearer, userID string) (*models.Profile, error) {
	q := url.Values{"id": {"eq." + userID}, "select": {"*"}}
	hdr := http.Header{"Accept": {"application/vnd.pgrst.object+json"}}

	var p models.Profile
	if err := a.do(ctx, "get_profile", http.MethodGet, "/rest/v1/profiles", q, bearer, hdr, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile patches the caller's profile row.
func (a *API) UpdateProfile(ctx context.Context, bearer, userID string, upd models.ProfileUpdate) error {
	if upd.Empty() {
		return nil
	}
	q := url.Values{"id": {"eq." + userID}}
	hdr := http.Header{"Prefer": {"return=minimal"}}
	return a.do(ctx, "update_profile", http.MethodPatch, "/rest/v1/profiles", q, bearer, hdr, upd.Columns(), nil)
}

func normalizeSession(s *identity.Session, now time.Time) *identity.Session {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
	return s
}

// IsNotFound reports whether err means the user or row does not exist.
func IsNotFound(err error) bool { return errors.Is(err, identity.ErrNotFound) }
