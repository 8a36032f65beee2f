package server

import (
	"net/http"
	"path"

	"github.com/spf13/afero"
)

const noFrontend = "bankpull API is running. Frontend not found.\n"

// handleStatic serves the web UI. Unknown paths get index.html so that
// client side routes survive a reload.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.static == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(noFrontend))
		return
	}
	name := path.Clean("/" + r.URL.Path)
	if info, err := s.static.Stat(name); err != nil || info.IsDir() {
		if ok, _ := afero.Exists(s.static, "/index.html"); !ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(noFrontend))
			return
		}
		if name != "/" {
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/"
			r = r2
		}
	}
	http.FileServer(afero.NewHttpFs(s.static).Dir("/")).ServeHTTP(w, r)
}
