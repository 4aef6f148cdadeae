package server

import (
	"errors"
	"net/http"

	"github.com/cyclopcam/masksync/pkg/annotation"
	"github.com/cyclopcam/masksync/pkg/framestore"
	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/sequence"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func frameKeyParam(params httprouter.Params) string {
	key := params.ByName("key")
	if _, ok := annotation.ParseFrameIndex(key); !ok {
		www.PanicBadRequestf("Invalid frame key '%v'", key)
	}
	return key
}

// Converts the mask of a frame into an annotation. Identities come from the
// annotation of the previous frame, or from meta.json if meta=1.
func (s *Server) httpVectorizeFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	key := frameKeyParam(params)
	options := sequence.Options{}
	if www.QueryValue(r, "meta") == "1" {
		meta, err := s.Store.ReadMeta()
		www.Check(err)
		options.Meta = meta
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.newRunner(options).ConvertFrame(key)
	if err != nil {
		s.journal(&Conversion{FrameKey: key, Kind: ConversionVectorize, Status: string(sequence.FrameFailed), Detail: err.Error()})
		if errors.Is(err, framestore.ErrInputNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		www.Check(err)
	}
	s.journalFrame("", ConversionVectorize, *res)

	ann, err := s.Store.ReadAnnotation(key)
	www.Check(err)
	www.SendJSON(w, map[string]any{
		"result":     res,
		"annotation": ann,
	})
}

// Converts the annotation of a frame into a mask. The mask takes the size of
// the frame's image, unless width and height are given.
func (s *Server) httpRasterizeFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	key := frameKeyParam(params)
	mode := palette.ModeColor
	if m := www.QueryValue(r, "mode"); m != "" {
		var err error
		mode, err = palette.ParseMode(m)
		if err != nil {
			www.PanicBadRequestf("%v", err)
		}
	}
	size := sequence.MaskSize{
		Width:  www.QueryInt(r, "width"),
		Height: www.QueryInt(r, "height"),
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := s.newRunner(sequence.Options{}).RasterizeFrame(key, mode, size); err != nil {
		s.journal(&Conversion{FrameKey: key, Kind: ConversionRasterize, Status: string(sequence.FrameFailed), Detail: err.Error()})
		if errors.Is(err, framestore.ErrInputNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		www.Check(err)
	}
	s.journal(&Conversion{FrameKey: key, Kind: ConversionRasterize, Status: string(sequence.FrameConverted)})
	www.SendOK(w)
}

func (s *Server) httpRebuildMeta(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	meta, err := s.Store.BuildMeta()
	www.Check(err)
	www.Check(s.Store.WriteMeta(meta))
	s.journal(&Conversion{FrameKey: framestore.MetaFilename, Kind: ConversionMeta, Detail: "rebuilt"})
	www.SendJSON(w, map[string]int{"frames": len(meta)})
}
