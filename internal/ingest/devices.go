// Package ingest applies northbound pushes to persisted state: device
// telemetry batches and authoritative route lists.
package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"colorum/internal/geo"
	"colorum/internal/gpx"
	"colorum/internal/metrics"
	"colorum/internal/model"
	"colorum/internal/store"
)

// Outcome classifies the result of processing one device record.
type Outcome string

const (
	// OutcomeEvaluated: record persisted and proximity verdict recomputed.
	OutcomeEvaluated Outcome = "evaluated"
	// OutcomeSkipped: record persisted but no usable path; the stored
	// distance/colorum values were left untouched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed: record could not be persisted.
	OutcomeFailed Outcome = "failed"
)

// RecordResult is the per-record entry of a batch report.
type RecordResult struct {
	DeviceID string  `json:"gps_device_id"`
	Outcome  Outcome `json:"outcome"`
	Distance float64 `json:"distance_to_route,omitempty"`
	Colorum  bool    `json:"is_colorum,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// BatchReport summarizes one device batch. Per-record failures are recorded
// here instead of aborting the batch.
type BatchReport struct {
	BatchID   string         `json:"batch_id"`
	Processed int            `json:"processed"`
	Evaluated int            `json:"evaluated"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []RecordResult `json:"results"`
}

// AlertPublisher receives devices that newly flipped into colorum state.
type AlertPublisher interface {
	PublishColorumAlert(device model.Device)
}

// DeviceProcessor upserts device telemetry and derives the colorum verdict
// against the device's current route.
type DeviceProcessor struct {
	store   store.Store
	paths   *gpx.Loader
	maxDist float64
	alerts  AlertPublisher
	logger  zerolog.Logger
}

// NewDeviceProcessor builds a processor. maxDistanceM is the colorum
// tolerance in meters. alerts may be nil.
func NewDeviceProcessor(s store.Store, paths *gpx.Loader, maxDistanceM float64, alerts AlertPublisher, logger zerolog.Logger) *DeviceProcessor {
	return &DeviceProcessor{
		store:   s,
		paths:   paths,
		maxDist: maxDistanceM,
		alerts:  alerts,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// ProcessBatch applies every report in order. The route reference is updated
// first, then the verdict is computed against whichever route is current at
// evaluation time. When no path can be loaded the previous distance/colorum
// values are deliberately left in place, not reset.
func (p *DeviceProcessor) ProcessBatch(ctx context.Context, reports []model.DeviceReport) BatchReport {
	rep := BatchReport{BatchID: uuid.New().String(), Results: make([]RecordResult, 0, len(reports))}
	for _, r := range reports {
		res := p.processOne(ctx, r)
		rep.Processed++
		switch res.Outcome {
		case OutcomeEvaluated:
			rep.Evaluated++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeFailed:
			rep.Failed++
		}
		metrics.DeviceReports.WithLabelValues(string(res.Outcome)).Inc()
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (p *DeviceProcessor) processOne(ctx context.Context, r model.DeviceReport) RecordResult {
	res := RecordResult{DeviceID: r.DeviceID}
	prev, err := p.store.UpsertDevice(ctx, r)
	if err != nil {
		p.logger.Error().Err(err).Str("device", r.DeviceID).Msg("device upsert failed")
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	path, err := p.paths.Load(ctx, r.AssociatedRoute)
	if err != nil {
		// Missing route/file is not an error; a bad file is logged. Either
		// way the stored verdict stays as it was.
		res.Outcome = OutcomeSkipped
		var pe *gpx.ParseError
		switch {
		case errors.As(err, &pe):
			p.logger.Error().Err(err).Str("device", r.DeviceID).Str("route", r.AssociatedRoute).Msg("route path unparseable")
			res.Reason = "path parse error"
		case errors.Is(err, store.ErrNotFound):
			res.Reason = "no path on record"
		default:
			p.logger.Error().Err(err).Str("device", r.DeviceID).Str("route", r.AssociatedRoute).Msg("route path load failed")
			res.Reason = err.Error()
		}
		res.Distance = prev.DistanceToRoute
		res.Colorum = prev.Colorum
		return res
	}

	dist, within, err := geo.Evaluate(r.Location(), path, p.maxDist)
	if err != nil {
		// Degenerate path: cannot evaluate, same stale-value policy.
		p.logger.Warn().Str("device", r.DeviceID).Str("route", r.AssociatedRoute).Msg("route path degenerate, keeping previous verdict")
		res.Outcome = OutcomeSkipped
		res.Reason = "degenerate path"
		res.Distance = prev.DistanceToRoute
		res.Colorum = prev.Colorum
		return res
	}

	colorum := !within
	if err := p.store.SetDeviceVerdict(ctx, r.DeviceID, dist, colorum); err != nil {
		p.logger.Error().Err(err).Str("device", r.DeviceID).Msg("verdict persist failed")
		res.Outcome = OutcomeFailed
		res.Reason = err.Error()
		return res
	}
	res.Outcome = OutcomeEvaluated
	res.Distance = dist
	res.Colorum = colorum
	if colorum && !prev.Colorum {
		metrics.ColorumFlagged.Inc()
		p.logger.Info().Str("device", r.DeviceID).Str("route", r.AssociatedRoute).Float64("distance_m", dist).Msg("device flagged colorum")
		if p.alerts != nil {
			d := prev
			d.DistanceToRoute = dist
			d.Colorum = true
			p.alerts.PublishColorumAlert(d)
		}
	}
	return res
}
