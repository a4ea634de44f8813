package interview

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/types"
)

// FollowUpAPI requests the post-assessment analyses.
type FollowUpAPI interface {
	PerformanceGaps(ctx context.Context, req types.PerformanceGapsRequest) (*types.PerformanceGaps, error)
	SkillRecommendations(ctx context.Context, req types.SkillRecommendationsRequest) (*types.SkillRecommendations, error)
}

// FollowUps requests performance gaps and skill recommendations in parallel.
// A failed request leaves its result nil; only cancellation is an error.
func FollowUps(ctx context.Context, api FollowUpAPI, scores types.PerformanceScores, skills, feedback []string, logger *zap.Logger) (*types.PerformanceGaps, *types.SkillRecommendations, error) {
	logger = logging.OrNop(logger)
	var (
		gaps *types.PerformanceGaps
		recs *types.SkillRecommendations
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := api.PerformanceGaps(gctx, types.PerformanceGapsRequest{Scores: scores, Feedback: feedback})
		if err != nil {
			logger.Warn("performance gap analysis failed", zap.Error(err))
			return gctx.Err()
		}
		gaps = res
		return nil
	})
	g.Go(func() error {
		res, err := api.SkillRecommendations(gctx, types.SkillRecommendationsRequest{Skills: skills, Scores: scores})
		if err != nil {
			logger.Warn("skill recommendations failed", zap.Error(err))
			return gctx.Err()
		}
		recs = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return gaps, recs, nil
}
