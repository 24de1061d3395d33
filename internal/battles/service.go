// Package battles owns the battle lifecycle: challenge, acceptance, voting,
// completion with winner determination, and the expiration sweep.
package battles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vidclash/backend/internal/effects"
	"github.com/vidclash/backend/internal/logging"
	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

// GameCategories is the 4-category union served by the "Game Battles" feed.
var GameCategories = []string{"gaming", "esports", "speedrun", "arcade"}

var (
	// ErrNotPending is returned when accepting or declining a battle that is
	// no longer awaiting a response.
	ErrNotPending = errors.New("battle is not awaiting a response")
	// ErrNotChallenged is returned when someone other than the challenged
	// player tries to respond.
	ErrNotChallenged = errors.New("only the challenged player may respond")
	// ErrNotActive is returned for vote or completion attempts on battles
	// outside the active window.
	ErrNotActive = errors.New("battle is not active")
	// ErrInvalidPlayer is returned for votes addressed to neither player.
	ErrInvalidPlayer = errors.New("vote must target player 1 or player 2")
)

// Dispatcher sends a user-facing notification for a domain event. Callers
// invoke it at most once per logical event; it performs no deduplication.
type Dispatcher interface {
	Notify(ctx context.Context, recipientID, senderID, ntype string, data map[string]any) (string, error)
}

// Config controls battle timing and sweep bounds.
type Config struct {
	// Duration is the active window before a battle is force-completed.
	Duration time.Duration
	// SweepBatchSize bounds how many battles one sweep pass inspects.
	SweepBatchSize int
	// FeedLimit bounds feed query results.
	FeedLimit int
}

// Service implements the battle state machine on top of the document store.
// All collaborators are injected at construction.
type Service struct {
	store    store.Store
	notifier Dispatcher
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the battle service.
func NewService(st store.Store, notifier Dispatcher, cfg Config, logger *slog.Logger) *Service {
	if cfg.Duration <= 0 {
		cfg.Duration = 24 * time.Hour
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 50
	}
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, notifier: notifier, cfg: cfg, logger: logger, now: time.Now}
}

// WithNowFunc overrides the clock. Useful for tests.
func (s *Service) WithNowFunc(now func() time.Time) *Service {
	s.now = now
	return s
}

// Challenge creates a pending battle between the challenger and opponent and
// notifies the opponent.
func (s *Service) Challenge(ctx context.Context, challengerID, challengerVideoID, opponentID, opponentVideoID, category string) (models.Battle, error) {
	switch {
	case challengerID == "" || opponentID == "":
		return models.Battle{}, errors.New("challenge: both player ids are required")
	case challengerVideoID == "" || opponentVideoID == "":
		return models.Battle{}, errors.New("challenge: both video ids are required")
	case challengerID == opponentID:
		return models.Battle{}, errors.New("challenge: players must differ")
	}

	battle := models.Battle{
		ID:        uuid.NewString(),
		Player1:   models.BattlePlayer{UserID: challengerID, VideoID: challengerVideoID},
		Player2:   models.BattlePlayer{UserID: opponentID, VideoID: opponentVideoID},
		Category:  category,
		Status:    models.BattleStatusPending,
		CreatedAt: s.now().UTC(),
	}

	data, err := store.Encode(battle)
	if err != nil {
		return models.Battle{}, fmt.Errorf("challenge: %w", err)
	}
	if _, err := s.store.Create(ctx, store.CollectionBattles, battle.ID, data); err != nil {
		return models.Battle{}, fmt.Errorf("challenge: %w", err)
	}

	_ = effects.Run(ctx, s.logger, effects.Effect{
		Name: "notify challenge",
		Run: func(ctx context.Context) error {
			_, err := s.notifier.Notify(ctx, opponentID, challengerID, models.NotificationBattleRequest, map[string]any{
				"battleId": battle.ID,
			})
			return err
		},
	})

	return battle, nil
}

// Get fetches a battle by id.
func (s *Service) Get(ctx context.Context, battleID string) (models.Battle, error) {
	doc, err := s.store.Get(ctx, store.CollectionBattles, battleID)
	if err != nil {
		return models.Battle{}, err
	}
	var battle models.Battle
	if err := doc.Decode(&battle); err != nil {
		return models.Battle{}, err
	}
	return battle, nil
}

// Accept moves a pending battle to active. Only the challenged player may
// accept, and only while the battle is pending.
func (s *Service) Accept(ctx context.Context, battleID, userID string) (models.Battle, error) {
	return s.respond(ctx, battleID, userID, models.BattleStatusActive, models.NotificationBattleAccepted)
}

// Decline moves a pending battle to rejected. Only the challenged player may
// decline, and only while the battle is pending.
func (s *Service) Decline(ctx context.Context, battleID, userID string) (models.Battle, error) {
	return s.respond(ctx, battleID, userID, models.BattleStatusRejected, models.NotificationBattleRejected)
}

func (s *Service) respond(ctx context.Context, battleID, userID, status, ntype string) (models.Battle, error) {
	battle, err := s.Get(ctx, battleID)
	if err != nil {
		return models.Battle{}, err
	}
	if battle.Status != models.BattleStatusPending {
		return battle, ErrNotPending
	}
	if battle.Player2.UserID != userID {
		return battle, ErrNotChallenged
	}

	if err := s.store.Update(ctx, store.CollectionBattles, battleID, map[string]any{"status": status}); err != nil {
		return battle, fmt.Errorf("respond to battle %s: %w", battleID, err)
	}
	battle.Status = status

	_ = effects.Run(ctx, s.logger, effects.Effect{
		Name: "notify response",
		Run: func(ctx context.Context) error {
			_, err := s.notifier.Notify(ctx, battle.Player1.UserID, userID, ntype, map[string]any{
				"battleId": battleID,
			})
			return err
		},
	})

	return battle, nil
}

// CastVote applies one vote to the given player (1 or 2) of an active battle.
// The player's tally and the battle total move in a single atomic write, so
// totalVotes always equals the players' sum.
func (s *Service) CastVote(ctx context.Context, battleID, voterID string, player int) (models.Battle, error) {
	if player != 1 && player != 2 {
		return models.Battle{}, ErrInvalidPlayer
	}

	battle, err := s.Get(ctx, battleID)
	if err != nil {
		return models.Battle{}, err
	}
	if battle.Status != models.BattleStatusActive {
		return battle, ErrNotActive
	}

	field := "player1.votes"
	voted := &battle.Player1
	if player == 2 {
		field = "player2.votes"
		voted = &battle.Player2
	}

	if err := s.store.Increment(ctx, store.CollectionBattles, battleID, map[string]int64{
		field:        1,
		"totalVotes": 1,
	}); err != nil {
		return battle, fmt.Errorf("cast vote on battle %s: %w", battleID, err)
	}
	voted.Votes++
	battle.TotalVotes++

	_ = effects.Run(ctx, s.logger, effects.Effect{
		Name: "notify vote",
		Run: func(ctx context.Context) error {
			_, err := s.notifier.Notify(ctx, voted.UserID, voterID, models.NotificationVote, map[string]any{
				"battleId": battleID,
			})
			return err
		},
	})

	return battle, nil
}

// DetermineWinner returns the user id of the player with more votes, or ""
// on a tie.
func DetermineWinner(b models.Battle) string {
	switch {
	case b.Player1.Votes > b.Player2.Votes:
		return b.Player1.UserID
	case b.Player2.Votes > b.Player1.Votes:
		return b.Player2.UserID
	default:
		return ""
	}
}

// Complete settles an active battle: the winner is determined exactly once at
// this transition and never recomputed. Re-invoking completion on a terminal
// battle returns it unchanged. Side effects after the status write are each
// best-effort and independent.
func (s *Service) Complete(ctx context.Context, battleID string) (models.Battle, error) {
	ctx, span := logging.StartSpan(ctx, "battle.complete")
	defer span.End()

	battle, err := s.Get(ctx, battleID)
	if err != nil {
		return models.Battle{}, err
	}
	if battle.Terminal() {
		return battle, nil
	}
	if battle.Status != models.BattleStatusActive {
		return battle, ErrNotActive
	}

	winnerID := DetermineWinner(battle)
	completedAt := s.now().UTC()

	patch := map[string]any{
		"status":      models.BattleStatusCompleted,
		"winnerId":    winnerID,
		"completedAt": completedAt,
	}
	if err := s.store.Update(ctx, store.CollectionBattles, battleID, patch); err != nil {
		return battle, fmt.Errorf("complete battle %s: %w", battleID, err)
	}
	battle.Status = models.BattleStatusCompleted
	battle.WinnerID = winnerID
	battle.CompletedAt = &completedAt

	_ = effects.Run(ctx, s.logger,
		effects.Effect{Name: "player1 stats", Run: s.bumpStats(battle.Player1.UserID, winnerID)},
		effects.Effect{Name: "player2 stats", Run: s.bumpStats(battle.Player2.UserID, winnerID)},
		effects.Effect{Name: "notify player1", Run: s.notifyResult(battle, battle.Player1, battle.Player2, models.NotificationBattleDone)},
		effects.Effect{Name: "notify player2", Run: s.notifyResult(battle, battle.Player2, battle.Player1, models.NotificationBattleDone)},
	)

	return battle, nil
}

// Expire is the operator settlement path: it marks an active battle expired
// without forcing a winner. Terminal battles are returned unchanged.
func (s *Service) Expire(ctx context.Context, battleID string) (models.Battle, error) {
	battle, err := s.Get(ctx, battleID)
	if err != nil {
		return models.Battle{}, err
	}
	if battle.Terminal() {
		return battle, nil
	}
	if battle.Status != models.BattleStatusActive {
		return battle, ErrNotActive
	}

	expiredAt := s.now().UTC()
	patch := map[string]any{
		"status":    models.BattleStatusExpired,
		"expiredAt": expiredAt,
	}
	if err := s.store.Update(ctx, store.CollectionBattles, battleID, patch); err != nil {
		return battle, fmt.Errorf("expire battle %s: %w", battleID, err)
	}
	battle.Status = models.BattleStatusExpired
	battle.ExpiredAt = &expiredAt

	_ = effects.Run(ctx, s.logger,
		effects.Effect{Name: "player1 stats", Run: s.bumpStats(battle.Player1.UserID, "")},
		effects.Effect{Name: "player2 stats", Run: s.bumpStats(battle.Player2.UserID, "")},
		effects.Effect{Name: "notify player1", Run: s.notifyResult(battle, battle.Player1, battle.Player2, models.NotificationBattleExpired)},
		effects.Effect{Name: "notify player2", Run: s.notifyResult(battle, battle.Player2, battle.Player1, models.NotificationBattleExpired)},
	)

	return battle, nil
}

func (s *Service) bumpStats(userID, winnerID string) func(context.Context) error {
	return func(ctx context.Context) error {
		deltas := map[string]int64{"totalBattles": 1}
		if userID == winnerID && winnerID != "" {
			deltas["battlesWon"] = 1
		}
		return s.store.Increment(ctx, store.CollectionUsers, userID, deltas)
	}
}

func (s *Service) notifyResult(battle models.Battle, recipient, opponent models.BattlePlayer, ntype string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.notifier.Notify(ctx, recipient.UserID, opponent.UserID, ntype, map[string]any{
			"battleId": battle.ID,
			"winnerId": battle.WinnerID,
			"won":      battle.WinnerID == recipient.UserID,
			"tie":      battle.WinnerID == "",
		})
		return err
	}
}

// Sweep completes active battles whose window has elapsed. It inspects at
// most SweepBatchSize battles, oldest first; anything not reached this pass
// is picked up by the next. It returns the number of battles completed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	ctx, span := logging.StartSpan(ctx, "battle.sweep")
	defer span.End()

	q := store.Query{
		Filters: []store.Filter{{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive}},
		OrderBy: &store.Order{Field: "createdAt"},
		Limit:   s.cfg.SweepBatchSize,
	}
	docs, err := s.store.Query(ctx, store.CollectionBattles, q)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	now := s.now().UTC()
	completed := 0
	for _, doc := range docs {
		var battle models.Battle
		if err := doc.Decode(&battle); err != nil {
			s.logger.Error("sweep: skip malformed battle", "battleId", doc.ID, "error", err)
			continue
		}
		if battle.CreatedAt.Add(s.cfg.Duration).After(now) {
			continue
		}
		if _, err := s.Complete(ctx, battle.ID); err != nil {
			s.logger.Error("sweep: complete battle", "battleId", battle.ID, "error", err)
			continue
		}
		completed++
	}
	return completed, nil
}
