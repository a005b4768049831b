package app

import (
	"context"
	"log"

	"placement-prep-service/internal/domain"
	"placement-prep-service/internal/leaderboard"
)

// SnapshotCache keeps the last computed standings in shared storage so a
// fresh instance can serve them before its first recompute.
type SnapshotCache interface {
	Put(ctx context.Context, entries []domain.RankedEntry) error
	Get(ctx context.Context) ([]domain.RankedEntry, bool, error)
}

// WithSnapshotCache attaches an optional standings snapshot cache. Call it
// during wiring, before the service starts handling requests.
func (s *Service) WithSnapshotCache(cache SnapshotCache) *Service {
	s.snapshots = cache
	return s
}

// Leaderboard recomputes the full standings from current data. Concurrent
// callers share one computation via singleflight; the pass itself is
// read-only and never blocks submission writes.
func (s *Service) Leaderboard(ctx context.Context) ([]domain.RankedEntry, error) {
	result, err, _ := s.sf.Do("leaderboard", func() (interface{}, error) {
		snap, visible, err := s.leaderboardSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		entries := s.ranking.Compute(snap, visible)
		if s.snapshots != nil {
			if err := s.snapshots.Put(ctx, entries); err != nil {
				log.Printf("leaderboard snapshot write failed: %v", err)
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RankedEntry), nil
}

// CachedLeaderboard serves the shared snapshot when one exists and falls
// back to a full recompute. Reads on the hot path go through here.
func (s *Service) CachedLeaderboard(ctx context.Context) ([]domain.RankedEntry, error) {
	if s.snapshots != nil {
		entries, ok, err := s.snapshots.Get(ctx)
		if err != nil {
			log.Printf("leaderboard snapshot read failed: %v", err)
		} else if ok {
			return entries, nil
		}
	}
	return s.Leaderboard(ctx)
}

func (s *Service) leaderboardSnapshot(ctx context.Context) (leaderboard.Snapshot, leaderboard.VisibilityFunc, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, nil, err
	}
	staff, err := s.store.ListStaff(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, nil, err
	}
	exams, err := s.store.ListExams(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, nil, err
	}
	questions, err := s.store.ListAllQuestions(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, nil, err
	}
	submissions, err := s.store.ListAllSubmissions(ctx)
	if err != nil {
		return leaderboard.Snapshot{}, nil, err
	}

	snap := leaderboard.Snapshot{
		Students:    students,
		Submissions: submissions,
		Questions:   questions,
		Exams:       exams,
	}
	return snap, s.visibilityFunc(staff), nil
}

// SubscribeLeaderboard returns a channel fed with standings after each
// finalized submission. The caller must invoke cancel to avoid leaks.
func (s *Service) SubscribeLeaderboard() (<-chan []domain.RankedEntry, func()) {
	return s.hub.Subscribe()
}
