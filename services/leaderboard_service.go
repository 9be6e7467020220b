package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"minesweeperAPI/internal/cache"
	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/repository"
)

type LeaderboardService struct {
	repo    repository.Store
	economy *EconomyService
	cache   cache.TopCache
	logger  *zap.Logger
	now     func() time.Time
}

func NewLeaderboardService(repo repository.Store, economy *EconomyService, topCache cache.TopCache, logger *zap.Logger) *LeaderboardService {
	if topCache == nil {
		topCache = cache.Nop{}
	}
	return &LeaderboardService{
		repo:    repo,
		economy: economy,
		cache:   topCache,
		logger:  logger,
		now:     time.Now,
	}
}

// SubmitRecord applies a finished run to the user's personal best and the
// difficulty's top list. The whole decision runs under the difficulty lock, so
// two concurrent submissions never compete for the same place.
func (s *LeaderboardService) SubmitRecord(ctx context.Context, userID string, d leaderboard.Difficulty, milliseconds int) (*leaderboard.SubmitResult, error) {
	if milliseconds <= 0 {
		return nil, fmt.Errorf("%w: milliseconds must be positive", ErrInvalidSubmission)
	}
	if milliseconds > leaderboard.MaxMilliseconds {
		return nil, fmt.Errorf("%w: milliseconds must not exceed %d", ErrInvalidSubmission, leaderboard.MaxMilliseconds)
	}
	if !d.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidSubmission, d)
	}

	res := &leaderboard.SubmitResult{}
	var evicted *leaderboard.Record

	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		if err := q.LockDifficulty(ctx, d); err != nil {
			return err
		}

		u, err := q.GetUserByID(ctx, userID)
		if err != nil {
			return translateRepoErr(err)
		}
		if !u.IsVerified {
			return ErrNotVerified
		}

		now := s.now().UTC()
		rec, err := q.GetRecord(ctx, userID, d)
		improved := false
		switch {
		case err == nil:
			if milliseconds >= rec.Milliseconds {
				res.Outcome = leaderboard.NotImproved
				res.Record = rec
				res.Balance = u.Coins
				return nil
			}
			if err := q.UpdateRecord(ctx, rec.ID, milliseconds, now); err != nil {
				return err
			}
			rec.Milliseconds = milliseconds
			rec.CreatedAt = now
			improved = true
		case errors.Is(err, repository.ErrNotFound):
			rec = &leaderboard.Record{
				UserID:       u.ID,
				Username:     u.Username,
				Difficulty:   d,
				Milliseconds: milliseconds,
				CreatedAt:    now,
			}
			if err := q.InsertRecord(ctx, rec); err != nil {
				return err
			}
		default:
			return err
		}

		balance, err := s.economy.Grant(ctx, q, u.ID, leaderboard.FlatReward, "record")
		if err != nil {
			return err
		}
		res.CoinsAwarded = leaderboard.FlatReward

		competitors, err := q.TopRecords(ctx, d, leaderboard.TopSize, u.ID)
		if err != nil {
			return err
		}
		admitted := len(competitors) < leaderboard.TopSize ||
			milliseconds < competitors[leaderboard.TopSize-1].Milliseconds

		switch {
		case admitted:
			balance, err = s.economy.Grant(ctx, q, u.ID, leaderboard.TopReward, "top_ten")
			if err != nil {
				return err
			}
			res.CoinsAwarded += leaderboard.TopReward
			res.Outcome = leaderboard.AdmittedTopTen

			count, err := q.CountRecords(ctx, d)
			if err != nil {
				return err
			}
			if count > leaderboard.TopSize {
				if evicted, err = q.DeleteWorstRecord(ctx, d); err != nil {
					return err
				}
			}
		case improved:
			res.Outcome = leaderboard.ImprovedNotTopTen
		default:
			res.Outcome = leaderboard.NewNotTopTen
		}

		res.Record = rec
		res.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Message = res.Outcome.Message()

	recordSubmissions.WithLabelValues(d.String(), string(res.Outcome)).Inc()
	if res.Outcome != leaderboard.NotImproved {
		if err := s.cache.Invalidate(ctx, d); err != nil {
			s.logger.Warn("failed to invalidate top list", zap.String("difficulty", d.String()), zap.Error(err))
		}
	}
	if evicted != nil {
		recordEvictions.WithLabelValues(d.String()).Inc()
		s.logger.Info("record evicted",
			zap.String("difficulty", d.String()),
			zap.Int64("record_id", evicted.ID),
			zap.String("user_id", evicted.UserID),
			zap.Int("milliseconds", evicted.Milliseconds),
		)
	}

	s.logger.Info("record submitted",
		zap.String("user_id", userID),
		zap.String("difficulty", d.String()),
		zap.Int("milliseconds", milliseconds),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("coins_awarded", res.CoinsAwarded),
	)
	return res, nil
}

// GetTop returns up to limit best records of d. Limits within the retained
// size are served from the cache when possible.
func (s *LeaderboardService) GetTop(ctx context.Context, d leaderboard.Difficulty, limit int) ([]*leaderboard.Record, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidSubmission, d)
	}
	if limit <= 0 {
		return []*leaderboard.Record{}, nil
	}
	if limit > leaderboard.TopSize {
		return s.repo.TopRecords(ctx, d, limit, "")
	}

	records, gen, ok, err := s.cache.GetTop(ctx, d)
	if err != nil {
		s.logger.Warn("top list cache read failed", zap.String("difficulty", d.String()), zap.Error(err))
	}
	if !ok {
		records, err = s.repo.TopRecords(ctx, d, leaderboard.TopSize, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load top list: %w", err)
		}
		if err := s.cache.SetTop(ctx, d, gen, records); err != nil {
			s.logger.Warn("top list cache write failed", zap.String("difficulty", d.String()), zap.Error(err))
		}
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetAllTop returns the retained top list of every difficulty.
func (s *LeaderboardService) GetAllTop(ctx context.Context) (map[leaderboard.Difficulty][]*leaderboard.Record, error) {
	out := make(map[leaderboard.Difficulty][]*leaderboard.Record, len(leaderboard.Difficulties))
	for _, d := range leaderboard.Difficulties {
		records, err := s.GetTop(ctx, d, leaderboard.TopSize)
		if err != nil {
			return nil, err
		}
		out[d] = records
	}
	return out, nil
}

func (s *LeaderboardService) GetPersonal(ctx context.Context, userID string) ([]leaderboard.PersonalRecord, error) {
	records, err := s.repo.ListUserRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load personal records: %w", err)
	}
	out := make([]leaderboard.PersonalRecord, 0, len(records))
	for _, r := range records {
		out = append(out, leaderboard.PersonalRecord{Difficulty: r.Difficulty, Milliseconds: r.Milliseconds})
	}
	return out, nil
}
