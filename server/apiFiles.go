package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

const maxJSONBytes = 50 * 1024 * 1024

type fileJSON struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// jsonFilename validates a file name from the editor, and adds the .json extension if it is missing
func jsonFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		www.PanicBadRequestf("Invalid file name '%v'", name)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}

func (s *Server) httpListFiles(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	names, err := s.Store.Annotations.List("", ".json")
	www.Check(err)
	files := []fileJSON{}
	for _, name := range names {
		f, err := s.Store.Annotations.ReadFile(name)
		if err != nil {
			// Deleted since we listed it
			continue
		}
		f.Reader.Close()
		files = append(files, fileJSON{
			Name:         name,
			Size:         f.Size,
			LastModified: f.ModifiedAt,
		})
	}
	www.SendJSON(w, map[string]any{"files": files})
}

func (s *Server) httpGetFile(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	name := jsonFilename(params.ByName("name"))
	f, err := s.Store.Annotations.ReadFile(name)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	www.Check(err)
	defer f.Reader.Close()
	w.Header().Set("Content-Type", "application/json")
	io.Copy(w, f.Reader)
}

// httpSaveJSON stores an annotation (or the meta file) from the editor.
// The content is normalized on the way in, so later conversions see the same
// thing that the editor saw.
func (s *Server) httpSaveJSON(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	req := struct {
		FileName string          `json:"fileName"`
		JSONData json.RawMessage `json:"jsonData"`
	}{}
	www.ReadJSON(w, r, &req, maxJSONBytes)
	if req.FileName == "" || len(req.JSONData) == 0 || string(req.JSONData) == "null" {
		www.PanicBadRequestf("File name and JSON data are required")
	}
	name := jsonFilename(req.FileName)
	key := annotation.KeyFromFilename(name)

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if name == framestore.MetaFilename {
		meta, err := annotation.ParseMetaFile(req.JSONData)
		if err != nil {
			www.PanicBadRequestf("Invalid meta file: %v", err)
		}
		www.Check(s.Store.WriteMeta(meta))
	} else {
		ann, err := annotation.Parse(req.JSONData)
		if err != nil {
			www.PanicBadRequestf("%v", err)
		}
		www.Check(s.Store.WriteAnnotation(key, ann))
	}
	s.Log.Infof("Saved %v", name)
	s.journal(&Conversion{FrameKey: key, Kind: ConversionSave})
	www.SendJSON(w, map[string]string{
		"message":  "JSON data saved successfully.",
		"fileName": name,
	})
}
