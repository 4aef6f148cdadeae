package server

import (
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/masksync/pkg/sequence"
)

type ConversionKind string

const (
	ConversionVectorize ConversionKind = "vectorize" // mask -> annotation
	ConversionRasterize ConversionKind = "rasterize" // annotation -> mask
	ConversionSave      ConversionKind = "save"      // annotation saved by the editor
	ConversionMeta      ConversionKind = "meta"      // meta.json rebuilt
)

// Conversion is one journal entry.
// Entries of a sequence run share a RunID. Single frame operations have an empty RunID.
type Conversion struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	RunID     string         `json:"runId"`
	FrameKey  string         `json:"frameKey"`
	Kind      ConversionKind `json:"kind"`
	Status    string         `json:"status"`
	Detail    string         `json:"detail"`
	Carried   int            `json:"carried"`
	Minted    int            `json:"minted"`
	CreatedAt dbh.IntTime    `json:"createdAt"`
}

func (Conversion) TableName() string {
	return "conversion"
}

// journal records an entry. Failing to journal never fails the operation itself.
func (s *Server) journal(c *Conversion) {
	c.CreatedAt = dbh.MakeIntTime(time.Now())
	if c.Status == "" {
		c.Status = "ok"
	}
	if err := s.DB.Create(c).Error; err != nil {
		s.Log.Warnf("Failed to journal %v of %v: %v", c.Kind, c.FrameKey, err)
	}
}

func (s *Server) journalFrame(runID string, kind ConversionKind, res sequence.FrameResult) {
	s.journal(&Conversion{
		RunID:    runID,
		FrameKey: res.Key,
		Kind:     kind,
		Status:   string(res.Status),
		Detail:   res.Error,
		Carried:  res.Carried,
		Minted:   res.Minted,
	})
}

// history returns the most recent entries, newest first
func (s *Server) history(limit int, frameKey string) ([]Conversion, error) {
	q := s.DB.Order("id DESC").Limit(limit)
	if frameKey != "" {
		q = q.Where("frame_key = ?", frameKey)
	}
	entries := []Conversion{}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
