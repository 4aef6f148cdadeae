package server

import (
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() {
	logEveryRequest := false
	router := httprouter.New()

	// The editor is a single user tool, so there is no authentication
	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	handle("GET", "/api/ping", s.httpPing)

	handle("GET", "/api/files", s.httpListFiles)
	handle("GET", "/api/file/:name", s.httpGetFile)
	handle("POST", "/api/save-json", s.httpSaveJSON)

	handle("POST", "/api/frames/:key/vectorize", s.httpVectorizeFrame)
	handle("POST", "/api/frames/:key/rasterize", s.httpRasterizeFrame)
	handle("POST", "/api/meta/rebuild", s.httpRebuildMeta)
	handle("GET", "/api/history", s.httpHistory)
	handle("GET", "/api/sequence/run", s.httpSequenceRun)

	s.httpRouter = router
}
