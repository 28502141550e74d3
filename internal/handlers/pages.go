package handlers

import (
	"io"
	"math/rand"
	"net/http"
	"path"
	"time"

	"github.com/crucial707/memberportal/internal/middleware"
	"github.com/crucial707/memberportal/internal/render"
	"github.com/crucial707/memberportal/internal/session"
	"github.com/gorilla/sessions"
)

// MemberImages is the number of /image<N>.gif pictures the members page picks from.
const MemberImages = 3

// ==========================
// Page Handler
// ==========================
type PageHandler struct {
	Sessions   sessions.Store
	CookieName string
	Renderer   *render.Renderer
	// PickImage returns an index in [0, MemberImages). Defaults to a uniform pick.
	PickImage func() int
	// PublicDir is served for GET and HEAD requests no route matched.
	PublicDir string
	Now       func() time.Time
}

// ==========================
// Home
// ==========================
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Sessions.Get(r, h.CookieName)
	if err != nil {
		internalError(w, r, h.Renderer, "home: load session", err)
		return
	}

	data := render.HomeData{}
	if rec := session.RecordFrom(sess); rec.Active(h.now()) {
		data.Authenticated = true
		data.Username = rec.Username
	}
	h.Renderer.Render(w, http.StatusOK, render.PageHome, data)
}

func (h *PageHandler) Signup(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, http.StatusOK, render.PageSignup, nil)
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, http.StatusOK, render.PageLogin, nil)
}

// ==========================
// Members (behind RequireSession)
// ==========================
func (h *PageHandler) Members(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.Renderer.Render(w, http.StatusOK, render.PageMembers, render.MembersData{
		Username: rec.Username,
		Image:    h.pickImage(),
	})
}

// ==========================
// Static files / 404
// ==========================

// NotFound serves a file from PublicDir when one matches the path, and the
// plain 404 page otherwise.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	if h.PublicDir != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		if h.serveStatic(w, r) {
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, MsgPageNotFound)
}

func (h *PageHandler) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	// http.Dir rejects paths escaping the root.
	f, err := http.Dir(h.PublicDir).Open(path.Clean("/" + r.URL.Path))
	if err != nil {
		return false
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || st.IsDir() {
		return false
	}
	http.ServeContent(w, r, st.Name(), st.ModTime(), f)
	return true
}

func (h *PageHandler) pickImage() int {
	if h.PickImage != nil {
		if n := h.PickImage(); n >= 0 && n < MemberImages {
			return n
		}
	}
	return rand.Intn(MemberImages)
}

func (h *PageHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
