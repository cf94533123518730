package api

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/payload"
	"github.com/xtxerr/seiscube/internal/session"
	"github.com/xtxerr/seiscube/internal/validation"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// UploadResponse is the body of POST /api/upload.
type UploadResponse struct {
	Message        string           `json:"message"`
	Files          []string         `json:"files"`
	Ignored        []string         `json:"ignored,omitempty"`
	CubeInfo       payload.CubeInfo `json:"cube_info"`
	CubeID         string           `json:"cube_id"`
	StoreConnected bool             `json:"store_connected"`
	Build          BuildSummary     `json:"build"`
}

// BuildSummary reports how the traces of an upload were placed.
type BuildSummary struct {
	Traces     int     `json:"traces"`
	Placed     int     `json:"placed"`
	Skipped    int     `json:"skipped"`
	Synthetic  int     `json:"synthetic"`
	Duplicates int     `json:"duplicates"`
	NonFinite  int     `json:"non_finite"`
	Seconds    float64 `json:"seconds"`
}

func isSEGY(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".segy", ".sgy":
		return true
	}
	return false
}

func isZip(name string) bool {
	return strings.EqualFold(path.Ext(name), ".zip")
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeCode(w, errors.CodeTooLarge, "File too large")
			return
		}
		WriteError(w, errors.NewValidation("upload", err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		WriteError(w, errors.NewValidation("upload", "no files provided"))
		return
	}

	// Unusable parts are skipped; the first file that loads wins.
	var (
		names   []string
		ignored []string
		res     *session.LoadResult
		loadErr error
	)
	for _, fh := range headers {
		name, err := validation.UploadName(fh.Filename)
		switch {
		case err != nil:
			s.logger.Warn("skipping upload part", "file", fh.Filename, "error", err)
			ignored = append(ignored, fh.Filename)
			continue
		case !isSEGY(name) && !isZip(name):
			s.logger.Warn("skipping unsupported file", "file", name)
			ignored = append(ignored, name)
			continue
		case fh.Size == 0:
			s.logger.Warn("skipping empty file", "file", name)
			ignored = append(ignored, name)
			continue
		}
		names = append(names, name)
		if res != nil {
			continue
		}

		res, err = s.loadUpload(r, fh, name)
		if err != nil {
			s.logger.Warn("upload not loadable", "file", name, "error", err)
			loadErr = err
		}
	}
	if res == nil {
		if loadErr != nil {
			WriteError(w, loadErr)
			return
		}
		WriteError(w, errors.NewValidation("upload", "no SEG-Y file found"))
		return
	}

	s.session.StartWarm()

	rep := res.Report
	WriteJSON(w, http.StatusOK, UploadResponse{
		Message:        "Files uploaded and processed successfully",
		Files:          names,
		Ignored:        ignored,
		CubeInfo:       res.Info,
		CubeID:         res.CubeID,
		StoreConnected: s.session.Health().Store == "connected",
		Build: BuildSummary{
			Traces:     rep.Traces,
			Placed:     rep.Placed,
			Skipped:    rep.Skipped,
			Synthetic:  rep.Synthetic,
			Duplicates: rep.Duplicates,
			NonFinite:  rep.NonFinite,
			Seconds:    rep.Elapsed.Seconds(),
		},
	})
}

// loadUpload loads one uploaded file. A zip without a SEG-Y member yields a
// nil result.
func (s *Server) loadUpload(r *http.Request, fh *multipart.FileHeader, name string) (*session.LoadResult, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.NewValidation("upload", err.Error())
	}
	defer f.Close()

	if isSEGY(name) {
		return s.session.LoadReader(r.Context(), name, f, fh.Size)
	}

	member, data, err := firstSEGYMember(f, fh.Size, s.maxUploadBytes())
	if err != nil || member == "" {
		return nil, err
	}
	s.logger.Info("loading zip member", "archive", name, "member", member)
	return s.session.LoadBytes(r.Context(), member, data)
}

// firstSEGYMember returns the name and contents of the first .segy or .sgy
// file in a zip archive, or "" when there is none. Members larger than limit
// are rejected.
func firstSEGYMember(r io.ReaderAt, size, limit int64) (string, []byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", nil, errors.NewFormat("unreadable zip archive", err)
	}
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !isSEGY(zf.Name) {
			continue
		}
		if zf.UncompressedSize64 > uint64(limit) {
			return "", nil, fmt.Errorf("zip member %s: %w", zf.Name, errors.ErrTooLarge)
		}
		rc, err := zf.Open()
		if err != nil {
			return "", nil, errors.NewFormat("unreadable zip member "+zf.Name, err)
		}
		var buf bytes.Buffer
		buf.Grow(int(zf.UncompressedSize64))
		_, err = io.Copy(&buf, io.LimitReader(rc, limit))
		rc.Close()
		if err != nil {
			return "", nil, errors.NewFormat("unreadable zip member "+zf.Name, err)
		}
		return path.Base(zf.Name), buf.Bytes(), nil
	}
	return "", nil, nil
}
