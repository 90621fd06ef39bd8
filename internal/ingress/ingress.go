// Package ingress is the optional 3D-gen HTTP entrypoint for TaskType
// THREE_D_GENERATION: a multipart submission endpoint accepting generated
// asset files plus a task_data JSON blob describing the TaskSynapse they
// belong to, validated and handed to the ORM.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/orm"
	"github.com/dojonet/subnet/internal/store"
)

// MaxUploadBytes bounds the multipart form parsed per request (64MB, large
// enough for a handful of 3D-gen asset files).
const MaxUploadBytes = 64 << 20

// Server mounts the 3D-gen ingress route behind CORS.
type Server struct {
	ORM    *orm.ORM
	Mapper func(domain.TaskSynapse) (*store.ValidatorTaskRow, error)
}

// Handler builds the http.Handler: POST /api/threed_gen/ accepting a
// multipart form with a "files" field (one or more assets) and a
// "task_data" field (JSON-encoded domain.TaskSynapse).
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.POST("/api/threed_gen/", s.submit)
	return cors.AllowAll().Handler(router)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to parse multipart form: " + err.Error()})
		return
	}

	raw := r.FormValue("task_data")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_data field is required"})
		return
	}
	var synapse domain.TaskSynapse
	if err := json.Unmarshal([]byte(raw), &synapse); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_data is not valid JSON: " + err.Error()})
		return
	}
	if synapse.TaskType != domain.TaskTypeThreeDGen {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_type must be THREE_D_GENERATION"})
		return
	}
	if len(synapse.CompletionResponses) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "completion_responses must not be empty"})
		return
	}

	filenames, err := attachFiles(&synapse, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	row, err := s.Mapper(synapse)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	saved, err := s.ORM.SaveTaskWithoutMiners(context.Background(), row)
	if err != nil || saved == nil {
		log.Error("ingress: SaveTask failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to persist task"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"task_id": saved.ID, "files": filenames})
}

// attachFiles reads every "files" multipart entry and records its name and
// byte size into the first completion's Completion payload under "files",
// mirroring the original endpoint's Filenames response.
func attachFiles(synapse *domain.TaskSynapse, r *http.Request) ([]string, error) {
	form := r.MultipartForm
	if form == nil || len(form.File["files"]) == 0 {
		return nil, errNoFiles
	}
	var names []string
	var entries []map[string]any
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		names = append(names, fh.Filename)
		entries = append(entries, map[string]any{
			"filename": fh.Filename,
			"size":     len(content),
		})
	}
	if synapse.CompletionResponses[0].Completion == nil {
		synapse.CompletionResponses[0].Completion = map[string]any{}
	}
	synapse.CompletionResponses[0].Completion["files"] = entries
	return names, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var errNoFiles = jsonErr("files field is required")

type jsonErr string

func (e jsonErr) Error() string { return string(e) }
