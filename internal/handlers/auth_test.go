package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crucial707/memberportal/internal/auth"
	"github.com/crucial707/memberportal/internal/middleware"
	"github.com/crucial707/memberportal/internal/render"
	"github.com/crucial707/memberportal/internal/repo"
	"github.com/crucial707/memberportal/internal/session"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "portal_session"

var userColumns = []string{"id", "username", "email", "password_hash", "created_at"}

// spyHasher records calls and never does real bcrypt work.
type spyHasher struct {
	hashed   []string
	compared int
	match    bool
}

func (s *spyHasher) Hash(password string) (string, error) {
	s.hashed = append(s.hashed, password)
	return "hashed:" + password, nil
}

func (s *spyHasher) Compare(hash, password string) error {
	s.compared++
	if s.match {
		return nil
	}
	return auth.ErrMismatch
}

type failingBackend struct{ err error }

func (f failingBackend) Load(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingBackend) Save(context.Context, string, []byte, time.Duration) error {
	return f.err
}
func (f failingBackend) Delete(context.Context, string) error { return f.err }

func newRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.New()
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	return r
}

func newStore(backend session.Backend) *session.Store {
	return session.NewStore(backend, []byte("cookie-secret"), []byte("store-secret"), session.CookieOptions(false))
}

func newAuthHandler(t *testing.T, hasher auth.Hasher, backend session.Backend) (*AuthHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &AuthHandler{
		Users:      repo.NewUserRepo(db),
		Hasher:     hasher,
		Sessions:   newStore(backend),
		CookieName: cookieName,
		SessionTTL: session.DefaultTTL,
		Renderer:   newRenderer(t),
	}, mock
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestAuthHandler_SignupSubmit(t *testing.T) {
	hasher := &spyHasher{}
	backend := session.NewMemoryBackend()
	h, mock := newAuthHandler(t, hasher, backend)

	mock.ExpectQuery(`SELECT id, username, email, password_hash, created_at`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("bob1", "b@x.com", "hashed:pw123").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "hashed:pw123", time.Now()))

	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob1"}, "email": {"b@x.com"}, "password": {"pw123"},
	}))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/members" {
		t.Fatalf("got %d %q, want 302 /members", rr.Code, rr.Header().Get("Location"))
	}
	c := sessionCookie(rr)
	if c == nil || c.MaxAge != 3600 {
		t.Fatalf("session cookie: %+v", c)
	}
	if backend.Len() != 1 {
		t.Errorf("sessions stored: got %d, want 1", backend.Len())
	}

	// The stored session is authenticated as bob1.
	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(c)
	sess, err := h.Sessions.Get(req, cookieName)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	rec := session.RecordFrom(sess)
	if !rec.Authenticated || rec.Username != "bob1" {
		t.Errorf("session record: %+v", rec)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAuthHandler_SignupSubmit_DuplicateEmail(t *testing.T) {
	hasher := &spyHasher{}
	h, mock := newAuthHandler(t, hasher, session.NewMemoryBackend())

	mock.ExpectQuery(`SELECT id, username, email, password_hash, created_at`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "x", time.Now()))

	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob2"}, "email": {"b@x.com"}, "password": {"pw"},
	}))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), MsgEmailTaken) {
		t.Fatalf("got %d\n%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `href="/signup"`) {
		t.Errorf("missing retry link:\n%s", rr.Body.String())
	}
	if len(hasher.hashed) != 0 {
		t.Errorf("password hashed for a duplicate signup")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAuthHandler_SignupSubmit_UniqueViolation(t *testing.T) {
	h, mock := newAuthHandler(t, &spyHasher{}, session.NewMemoryBackend())

	mock.ExpectQuery(`SELECT id, username, email, password_hash, created_at`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob1"}, "email": {"b@x.com"}, "password": {"pw123"},
	}))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), MsgEmailTaken) {
		t.Fatalf("got %d\n%s", rr.Code, rr.Body.String())
	}
	if sessionCookie(rr) != nil {
		t.Error("session established after a failed insert")
	}
}

func TestAuthHandler_SignupSubmit_Invalid(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"missing", url.Values{"password": {"pw"}}, "Name, Email are required."},
		{"missing one", url.Values{"name": {"bob1"}, "email": {"b@x.com"}}, "Password is required."},
		{"bad name", url.Values{"name": {"bob 1"}, "email": {"b@x.com"}, "password": {"pw"}}, "Invalid name/email/password combination."},
		{"bad email", url.Values{"name": {"bob1"}, "email": {"nope"}, "password": {"pw"}}, "Invalid name/email/password combination."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, mock := newAuthHandler(t, &spyHasher{}, session.NewMemoryBackend())
			rr := httptest.NewRecorder()
			h.SignupSubmit(rr, postForm("/signupSubmit", tc.form))

			if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), tc.want) {
				t.Fatalf("got %d, want body containing %q:\n%s", rr.Code, tc.want, rr.Body.String())
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("store touched: %v", err)
			}
		})
	}
}

func TestAuthHandler_SignupSubmit_StoreFailure(t *testing.T) {
	h, mock := newAuthHandler(t, &spyHasher{}, session.NewMemoryBackend())
	mock.ExpectQuery(`SELECT id, username`).WillReturnError(errors.New("connection refused"))

	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob1"}, "email": {"b@x.com"}, "password": {"pw123"},
	}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Error("internal error leaked to the client")
	}
}

func TestAuthHandler_SignupSubmit_SessionFailure(t *testing.T) {
	h, mock := newAuthHandler(t, &spyHasher{}, failingBackend{err: errors.New("redis down")})
	mock.ExpectQuery(`SELECT id, username`).WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "h", time.Now()))

	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob1"}, "email": {"b@x.com"}, "password": {"pw123"},
	}))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", rr.Code)
	}
}

func TestAuthHandler_LoginSubmit(t *testing.T) {
	hasher := &spyHasher{match: true}
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	h, mock := newAuthHandler(t, hasher, session.NewMemoryBackend())
	h.Now = func() time.Time { return now }

	mock.ExpectQuery(`SELECT id, username, email, password_hash, created_at`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "hashed:pw123", now))

	rr := httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"b@x.com"}, "password": {"pw123"}}))

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/members" {
		t.Fatalf("got %d %q, want 302 /members", rr.Code, rr.Header().Get("Location"))
	}
	if hasher.compared != 1 {
		t.Errorf("compare calls: got %d, want 1", hasher.compared)
	}

	c := sessionCookie(rr)
	if c == nil || c.MaxAge != 3600 {
		t.Fatalf("session cookie: %+v", c)
	}
	req := httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(c)
	sess, err := h.Sessions.Get(req, cookieName)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	rec := session.RecordFrom(sess)
	if !rec.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt: got %v, want %v", rec.ExpiresAt, now.Add(time.Hour))
	}
}

func TestAuthHandler_LoginSubmit_NotRegistered(t *testing.T) {
	tests := map[string]*sqlmock.Rows{
		"no match": sqlmock.NewRows(userColumns),
		"two matches": sqlmock.NewRows(userColumns).
			AddRow(1, "bob1", "b@x.com", "h1", time.Now()).
			AddRow(2, "bob2", "b@x.com", "h2", time.Now()),
	}
	for name, rows := range tests {
		t.Run(name, func(t *testing.T) {
			hasher := &spyHasher{match: true}
			h, mock := newAuthHandler(t, hasher, session.NewMemoryBackend())
			mock.ExpectQuery(`SELECT id, username`).WithArgs("b@x.com").WillReturnRows(rows)

			rr := httptest.NewRecorder()
			h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"b@x.com"}, "password": {"pw123"}}))

			if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), MsgNotRegistered) {
				t.Fatalf("got %d\n%s", rr.Code, rr.Body.String())
			}
			if hasher.compared != 0 {
				t.Errorf("password compared %d times for an unregistered email", hasher.compared)
			}
			if sessionCookie(rr) != nil {
				t.Error("session established")
			}
		})
	}
}

func TestAuthHandler_LoginSubmit_WrongPassword(t *testing.T) {
	hasher := &spyHasher{match: false}
	backend := session.NewMemoryBackend()
	h, mock := newAuthHandler(t, hasher, backend)
	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "h", time.Now()))

	rr := httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"b@x.com"}, "password": {"nope"}}))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), MsgWrongPassword) {
		t.Fatalf("got %d\n%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Set-Cookie") != "" {
		t.Errorf("cookie written: %s", rr.Header().Get("Set-Cookie"))
	}
	if backend.Len() != 0 {
		t.Errorf("sessions stored: %d", backend.Len())
	}
}

func TestAuthHandler_LoginSubmit_Invalid(t *testing.T) {
	h, _ := newAuthHandler(t, &spyHasher{}, session.NewMemoryBackend())

	rr := httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"b@x.com"}}))
	if !strings.Contains(rr.Body.String(), "Password is required.") || !strings.Contains(rr.Body.String(), `href="/login"`) {
		t.Errorf("unexpected body:\n%s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"nope"}, "password": {"pw"}}))
	if !strings.Contains(rr.Body.String(), "Invalid email/password combination.") {
		t.Errorf("unexpected body:\n%s", rr.Body.String())
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	backend := session.NewMemoryBackend()
	h, mock := newAuthHandler(t, &spyHasher{match: true}, backend)
	mock.ExpectQuery(`SELECT id, username`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, "bob1", "b@x.com", "h", time.Now()))

	rr := httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"b@x.com"}, "password": {"pw123"}}))
	c := sessionCookie(rr)
	if c == nil {
		t.Fatal("login did not set a cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(c)
	rr = httptest.NewRecorder()
	h.Logout(rr, req)

	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/" {
		t.Fatalf("got %d %q, want 302 /", rr.Code, rr.Header().Get("Location"))
	}
	if backend.Len() != 0 {
		t.Errorf("session not deleted: %d left", backend.Len())
	}
	if expired := sessionCookie(rr); expired == nil || expired.MaxAge >= 0 {
		t.Errorf("cookie not expired: %+v", expired)
	}
}

func TestAuthHandler_SignupSubmit_MultibytePasswordTooLong(t *testing.T) {
	h, mock := newAuthHandler(t, auth.NewBcryptHasher(bcrypt.MinCost), session.NewMemoryBackend())
	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("b@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	// 20 runes pass validation but are 80 bytes, over bcrypt's 72 byte input limit.
	password := strings.Repeat("\U0001F600", 20)
	rr := httptest.NewRecorder()
	h.SignupSubmit(rr, postForm("/signupSubmit", url.Values{
		"name": {"bob1"}, "email": {"b@x.com"}, "password": {password},
	}))

	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Invalid name/email/password combination.") {
		t.Fatalf("got %d\n%s", rr.Code, rr.Body.String())
	}
	if sessionCookie(rr) != nil {
		t.Error("session established")
	}
	// No INSERT was expected.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAuthHandler_OversizedChunkedBody(t *testing.T) {
	h, mock := newAuthHandler(t, &spyHasher{match: true}, session.NewMemoryBackend())
	routes := map[string]http.HandlerFunc{
		"/signupSubmit": h.SignupSubmit,
		"/loginSubmit":  h.LoginSubmit,
	}
	for path, fn := range routes {
		body := url.Values{"name": {"bob1"}, "email": {"b@x.com"}, "password": {strings.Repeat("p", 64)}}.Encode()
		req := postForm(path, nil)
		req.Body = io.NopCloser(strings.NewReader(body))
		// Unknown length, as with a chunked upload.
		req.ContentLength = -1

		rr := httptest.NewRecorder()
		middleware.MaxBytes(32)(fn).ServeHTTP(rr, req)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%s: status got %d, want 413\n%s", path, rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), "required") {
			t.Errorf("%s: oversized body read as an empty form", path)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store touched: %v", err)
	}
}

func TestAuthHandler_LoginSubmit_ReplacesExistingSession(t *testing.T) {
	backend := session.NewMemoryBackend()
	h, mock := newAuthHandler(t, &spyHasher{match: true}, backend)
	for _, name := range []string{"attacker", "victim"} {
		mock.ExpectQuery(`SELECT id, username`).
			WillReturnRows(sqlmock.NewRows(userColumns).AddRow(1, name, name+"@x.com", "h", time.Now()))
	}

	rr := httptest.NewRecorder()
	h.LoginSubmit(rr, postForm("/loginSubmit", url.Values{"email": {"attacker@x.com"}, "password": {"pw"}}))
	planted := sessionCookie(rr)
	if planted == nil {
		t.Fatal("first login set no cookie")
	}

	// The victim's browser carries the planted cookie when logging in.
	req := postForm("/loginSubmit", url.Values{"email": {"victim@x.com"}, "password": {"pw"}})
	req.AddCookie(planted)
	rr = httptest.NewRecorder()
	h.LoginSubmit(rr, req)

	fresh := sessionCookie(rr)
	if fresh == nil {
		t.Fatal("second login set no cookie")
	}
	if fresh.Value == planted.Value {
		t.Fatal("login kept the session id the browser sent")
	}
	if backend.Len() != 1 {
		t.Errorf("sessions stored: got %d, want 1", backend.Len())
	}

	// The planted cookie must not see the victim's session.
	req = httptest.NewRequest(http.MethodGet, "/members", nil)
	req.AddCookie(planted)
	sess, err := h.Sessions.Get(req, cookieName)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if rec := session.RecordFrom(sess); rec.Authenticated {
		t.Errorf("planted cookie resolves to %+v", rec)
	}
}
