package pages

import (
	"context"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

var pipelineMoves = map[store.PipelineStatus][]store.PipelineStatus{
	store.PipelineQueued:     {store.PipelineProcessing},
	store.PipelineProcessing: {store.PipelineReady, store.PipelineFailed},
	store.PipelineFailed:     {store.PipelineQueued},
	store.PipelineReady:      {store.PipelineQueued},
}

// CanMovePipeline reports whether from -> to is an allowed pipeline move
func CanMovePipeline(from, to store.PipelineStatus) bool {
	for _, next := range pipelineMoves[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetPipelineStatus records the extraction pipeline's progress on a
// document. It does not touch lock_version.
func (s *Service) SetPipelineStatus(ctx context.Context, sc scope.Scope, id string, to store.PipelineStatus) (*store.ProcessingDocument, error) {
	if _, ok := pipelineMoves[to]; !ok {
		return nil, apperrors.Validation("unknown pipeline status %q", to)
	}
	doc, err := s.load(ctx, s.store, sc, id)
	if err != nil {
		return nil, err
	}
	if doc.PipelineStatus == to {
		return doc, nil
	}
	if !CanMovePipeline(doc.PipelineStatus, to) {
		return nil, apperrors.InvalidState("document %s cannot move from %s to %s", doc.ID, doc.PipelineStatus, to).
			WithDetail("pipeline_status", doc.PipelineStatus)
	}

	ok, err := s.store.TransitionPipeline(ctx, doc.ID, doc.PipelineStatus, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("document %s pipeline status changed concurrently", doc.ID)
	}

	s.record(ctx, sc, audit.PipelineChanged, doc.ID, map[string]interface{}{
		"from": doc.PipelineStatus,
		"to":   to,
	})
	s.logger.Debug("Pipeline status changed",
		zap.String("document_id", doc.ID),
		zap.String("from", string(doc.PipelineStatus)),
		zap.String("to", string(to)))

	return s.load(ctx, s.store, sc, doc.ID)
}
