// Package api exposes a Session over HTTP.
//
// Routes:
//
//	POST   /api/upload                 load a SEG-Y file (or the first one in a zip)
//	GET    /api/cube-info              summary of the active cube
//	GET    /api/slice/{axis}/{index}   one slice document
//	GET    /api/cubes                  every known cube, newest first
//	GET    /api/cube/{id}              one cube's metadata
//	DELETE /api/cube/{id}              remove a cube's stored objects
//	GET    /api/health                 service status
//
// Failures are written as {"error", "kind", "code"} JSON with the status from
// errors.HTTPStatus.
package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/xtxerr/seiscube/internal/config"
	"github.com/xtxerr/seiscube/internal/logging"
	"github.com/xtxerr/seiscube/internal/session"
)

// Server serves the HTTP API for one session.
type Server struct {
	session *session.Session
	cfg     config.ServerConfig
	logger  *slog.Logger

	requestID atomic.Uint64
}

// New creates a server.
func New(s *session.Session, cfg config.ServerConfig) *Server {
	return &Server{
		session: s,
		cfg:     cfg,
		logger:  logging.Component("api"),
	}
}

// ServeMux returns the route table without middleware.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.upload)
	mux.HandleFunc("GET /api/cube-info", s.cubeInfo)
	mux.HandleFunc("GET /api/slice/{axis}/{index}", s.slice)
	mux.HandleFunc("GET /api/cubes", s.listCubes)
	mux.HandleFunc("GET /api/cube/{id}", s.getCube)
	mux.HandleFunc("DELETE /api/cube/{id}", s.deleteCube)
	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("/", s.notFound)
	return mux
}

// Handler returns the route table wrapped in the logging and CORS
// middleware.
func (s *Server) Handler() http.Handler {
	return s.LoggingMiddleware(s.CORSMiddleware(s.ServeMux()))
}

// maxUploadBytes is the request body limit for uploads.
func (s *Server) maxUploadBytes() int64 {
	mb := s.cfg.MaxUploadMB
	if mb <= 0 {
		mb = 500
	}
	return int64(mb) << 20
}
