package server

import (
	"context"
	"net/http"

	"github.com/cyclopcam/masksync/pkg/palette"
	"github.com/cyclopcam/masksync/pkg/sequence"
	"github.com/cyclopcam/www"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// sequenceMessage is sent over the websocket. A run produces one message per
// frame, and then a final message with the report.
type sequenceMessage struct {
	Frame  *sequence.FrameResult `json:"frame,omitempty"`
	Report *sequence.Report      `json:"report,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// httpSequenceRun converts every frame of the sequence, streaming progress over a websocket.
// Query parameters:
//
//	direction: "vectorize" (default) or "rasterize"
//	meta:      "1" to take identities from meta.json instead of the previous frame
//	mode:      mask mode when rasterizing (color or scalar)
//
// Closing the websocket cancels the run. Frames that were already written stay written.
func (s *Server) httpSequenceRun(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	direction := www.QueryValue(r, "direction")
	if direction == "" {
		direction = "vectorize"
	}
	if direction != "vectorize" && direction != "rasterize" {
		www.PanicBadRequestf("Invalid direction '%v'", direction)
	}
	mode := palette.ModeColor
	if m := www.QueryValue(r, "mode"); m != "" {
		var err error
		if mode, err = palette.ParseMode(m); err != nil {
			www.PanicBadRequestf("%v", err)
		}
	}
	options := sequence.Options{RunID: uuid.NewString()}
	if www.QueryValue(r, "meta") == "1" {
		meta, err := s.Store.ReadMeta()
		www.Check(err)
		options.Meta = meta
	}

	if !s.writeLock.TryLock() {
		http.Error(w, "Another conversion is in progress", http.StatusConflict)
		return
	}
	defer s.writeLock.Unlock()

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpSequenceRun websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// We don't expect anything from the client, but we need to read in order to notice when it goes away
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	kind := ConversionVectorize
	if direction == "rasterize" {
		kind = ConversionRasterize
	}
	runner := s.newRunner(options)
	runner.OnFrame = func(res sequence.FrameResult) {
		s.journalFrame(options.RunID, kind, res)
		if err := c.WriteJSON(sequenceMessage{Frame: &res}); err != nil {
			s.Log.Warnf("Sequence run %v lost its client: %v", options.RunID, err)
			cancel()
		}
	}

	var report *sequence.Report
	if kind == ConversionRasterize {
		report, err = runner.Rasterize(ctx, mode, sequence.MaskSize{})
	} else {
		report, err = runner.Run(ctx)
	}
	final := sequenceMessage{Report: report}
	if err != nil {
		s.Log.Warnf("Sequence run %v stopped: %v", options.RunID, err)
		final.Error = err.Error()
	}
	if err := c.WriteJSON(final); err != nil {
		return
	}
	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
