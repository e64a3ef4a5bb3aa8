package server

import (
	"fmt"
	"math"
	"sort"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/record"
	"github.com/haskel/bore/internal/space"
)

// Record kinds reported by GET /v1/record.
const (
	kindSingle = "single_fidelity"
	kindMulti  = "multi_fidelity"
)

// RecordView is the JSON form of a generator's record. Losses that are not
// finite are reported as null.
type RecordView struct {
	Kind         string            `json:"kind"`
	Size         int               `json:"size"`
	Best         *ObservationView  `json:"best,omitempty"`
	Observations []ObservationView `json:"observations"`
	Rungs        []RungView        `json:"rungs,omitempty"`
}

type ObservationView struct {
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
	Loss   *float64     `json:"loss"`
}

type RungView struct {
	Rung      int      `json:"rung"`
	Budget    float64  `json:"budget"`
	Size      int      `json:"size"`
	Threshold *float64 `json:"threshold"`
	MeanLoss  *float64 `json:"mean_loss"`
	BestLoss  *float64 `json:"best_loss"`
}

func newRecordView(gen Generator) (RecordView, error) {
	var (
		view RecordView
		obs  []record.Observation
		best record.Observation
		ok   bool
	)

	switch g := gen.(type) {
	case *generator.RatioEstimator:
		view.Kind = kindSingle
		obs = g.Record().Observations()
		best, ok = g.Record().Best()
	case *generator.SequenceGenerator:
		view.Kind = kindMulti
		rec := g.Record()
		obs = rec.Observations()
		best, ok = rec.Best()
		for _, rs := range rec.Summary() {
			view.Rungs = append(view.Rungs, RungView{
				Rung:      rs.Rung,
				Budget:    rs.Budget,
				Size:      rs.Size,
				Threshold: finitePtr(rs.Threshold),
				MeanLoss:  finitePtr(rs.MeanLoss),
				BestLoss:  finitePtr(rs.BestLoss),
			})
		}
	default:
		return RecordView{}, fmt.Errorf("unsupported generator %T", gen)
	}

	sp := gen.Space()
	view.Size = len(obs)
	view.Observations = make([]ObservationView, 0, len(obs))
	for _, o := range obs {
		v, err := observationView(sp, o)
		if err != nil {
			return RecordView{}, err
		}
		view.Observations = append(view.Observations, v)
	}

	if ok {
		v, err := observationView(sp, best)
		if err != nil {
			return RecordView{}, err
		}
		view.Best = &v
	}

	return view, nil
}

func observationView(sp *space.Space, o record.Observation) (ObservationView, error) {
	cfg, err := sp.Decode(o.X)
	if err != nil {
		return ObservationView{}, fmt.Errorf("failed to decode observation: %w", err)
	}
	return ObservationView{Config: cfg, Budget: o.B, Loss: finitePtr(o.Y)}, nil
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// recordSize returns the number of recorded observations. Caller holds mu.
func (s *Server) recordSize() int {
	switch g := s.gen.(type) {
	case *generator.RatioEstimator:
		return g.Record().Size()
	case *generator.SequenceGenerator:
		return g.Record().Size()
	}
	return s.observed
}

func sortPending(jobs []PendingJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].Issued.Equal(jobs[j].Issued) {
			return jobs[i].Issued.Before(jobs[j].Issued)
		}
		return jobs[i].JobID < jobs[j].JobID
	})
}
