package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/session"
	"github.com/xtxerr/seiscube/internal/volume"
)

// CubesResponse is the body of GET /api/cubes.
type CubesResponse struct {
	Cubes []payload.Metadata `json:"cubes"`
	Count int                `json:"count"`
	Error string             `json:"error,omitempty"`
}

// DeleteResponse is the body of DELETE /api/cube/{id}.
type DeleteResponse struct {
	Message string `json:"message"`
	session.DeleteResult
}

func (s *Server) cubeInfo(w http.ResponseWriter, r *http.Request) {
	info, ok := s.session.CubeInfo()
	if !ok {
		WriteError(w, errors.ErrNoCube)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

func (s *Server) slice(w http.ResponseWriter, r *http.Request) {
	axis, err := volume.ParseAxis(r.PathValue("axis"))
	if err != nil {
		WriteError(w, err)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		WriteError(w, errors.NewValidation("index", "not an integer"))
		return
	}

	e, err := s.session.GetSlice(r.Context(), axis, index)
	if err != nil {
		WriteError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Add("Vary", "Accept-Encoding")
	body := e.JSON
	if acceptsGzip(r) && len(e.Gzip) > 0 {
		h.Set("Content-Encoding", "gzip")
		body = e.Gzip
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

func (s *Server) listCubes(w http.ResponseWriter, r *http.Request) {
	cubes, err := s.session.ListCubes(r.Context())
	if err != nil {
		// Listing degrades to an empty result.
		WriteJSON(w, http.StatusOK, CubesResponse{
			Cubes: []payload.Metadata{},
			Error: err.Error(),
		})
		return
	}
	if cubes == nil {
		cubes = []payload.Metadata{}
	}
	WriteJSON(w, http.StatusOK, CubesResponse{Cubes: cubes, Count: len(cubes)})
}

func (s *Server) getCube(w http.ResponseWriter, r *http.Request) {
	m, err := s.session.GetCube(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (s *Server) deleteCube(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, DeleteResponse{
		Message:      "Cube deleted successfully",
		DeleteResult: res,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.session.Health())
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeCode(w, errors.CodeNotFound, "Endpoint not found")
}
