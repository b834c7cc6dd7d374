package http

import (
	"io/fs"
	"net/http"

	"techpaint/internal/ws"
)

type page struct {
	file    string
	guarded bool
}

var pages = map[string]page{
	"/":             {file: "index.html"},
	"/login":        {file: "login.html"},
	"/register":     {file: "register.html"},
	"/register2":    {file: "register2.html"},
	"/dashboard":    {file: "dashboard.html", guarded: true},
	"/chat":         {file: "chat.html", guarded: true},
	"/chat/menu":    {file: "chat_menu.html", guarded: true},
	"/chat/rooms":   {file: "chat_rooms.html", guarded: true},
	"/chat/private": {file: "chat_private.html", guarded: true},
	"/projects":     {file: "projects.html", guarded: true},
}

// TokenValidator reports whether a session token is live.
type TokenValidator interface {
	GetUserID(token string) (string, error)
}

// NewPageHandler serves the embedded pages. Guarded pages redirect to
// /login unless the token cookie holds a live session.
func NewPageHandler(auth TokenValidator, assets fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		if p.guarded {
			if _, err := auth.GetUserID(ws.TokenFromRequest(r)); err != nil {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
		}

		data, err := fs.ReadFile(assets, p.file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}
