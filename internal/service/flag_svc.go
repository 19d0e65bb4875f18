package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mikadit/modqueue/internal/model"
)

// SignalFlagCreated fires once per accepted flag, after the insert commits.
const SignalFlagCreated = "flag_created"

// FlagRecorder persists an incoming flag against its target's case.
type FlagRecorder interface {
	RecordFlag(ctx context.Context, f model.Flag) (*model.ReviewCase, error)
}

// FlagService is the intake path for new flags.
type FlagService struct {
	cases   FlagRecorder
	signals SignalEmitter
	cache   *CacheService
	log     zerolog.Logger
}

func NewFlagService(cases FlagRecorder, signals SignalEmitter, cache *CacheService, log zerolog.Logger) *FlagService {
	return &FlagService{cases: cases, signals: signals, cache: cache, log: log}
}

// Submit records one flag. The target's pending case absorbs it, or a new
// case opens; resolved cases never reopen.
func (s *FlagService) Submit(ctx context.Context, f model.Flag) (*model.ReviewCase, error) {
	if !model.ValidFlagType(f.Type) {
		return nil, fmt.Errorf("%w: flag type %q", model.ErrInvalidAction, f.Type)
	}
	if f.TargetType == "" {
		f.TargetType = "post"
	}
	if f.Weight <= 0 {
		f.Weight = 1
	}

	c, err := s.cases.RecordFlag(ctx, f)
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Int64("case_id", c.ID).
		Int64("target_id", f.TargetID).
		Str("type", string(f.Type)).
		Float64("score", c.Score).
		Msg("flag recorded")

	if s.signals != nil {
		s.signals.Emit(ctx, SignalFlagCreated, map[string]any{
			"caseId":   c.ID,
			"targetId": f.TargetID,
			"type":     f.Type,
			"score":    c.Score,
		})
	}
	if s.cache != nil {
		s.cache.InvalidateReports(ctx)
	}

	return c, nil
}
