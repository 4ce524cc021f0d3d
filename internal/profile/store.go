package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-arena/internal/obslog"
	"go.uber.org/zap"
)

// Profile is a player's stored skill and record, keyed by user id. Ratings
// bound to connections at handshake come from here; the completion bridge
// writes outcomes back.
type Profile struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	Games     int       `json:"games"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	rdb           *redis.Client
	defaultRating int
}

func NewStore(redisURL string, defaultRating int) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for profile store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if defaultRating <= 0 {
		defaultRating = 1000
	}
	return &Store{rdb: rdb, defaultRating: defaultRating}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func profileKey(userID string) string { return "arena:profile:" + strings.TrimSpace(userID) }

func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	raw, err := s.rdb.Get(ctx, profileKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure returns the profile for a user, creating it with the default
// rating on first sight. The stored username follows the latest binding.
func (s *Store) Ensure(ctx context.Context, userID, username string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &Profile{UserID: userID, Rating: s.defaultRating}
	}
	if strings.TrimSpace(username) != "" {
		p.Username = strings.TrimSpace(username)
	}
	p.UpdatedAt = time.Now()
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyOutcome adjusts the rating and the W/L/D counters after a finished
// match. outcome is "win", "loss", or "draw". Concurrent updates to the
// same profile are serialized with an optimistic WATCH transaction.
func (s *Store) ApplyOutcome(ctx context.Context, userID string, ratingDelta int, outcome string) error {
	key := profileKey(userID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var p Profile
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			p = Profile{UserID: strings.TrimSpace(userID), Rating: s.defaultRating}
		case err != nil:
			return err
		default:
			if jerr := json.Unmarshal(raw, &p); jerr != nil {
				return jerr
			}
		}

		p.Rating += ratingDelta
		p.Games++
		switch strings.ToLower(strings.TrimSpace(outcome)) {
		case "win":
			p.Wins++
		case "loss":
			p.Losses++
		default:
			p.Draws++
		}
		p.UpdatedAt = time.Now()

		newRaw, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, 0)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if err != nil {
		return err
	}
	obslog.L().Info("profile_outcome",
		zap.String("user_id", userID),
		zap.Int("rating_delta", ratingDelta),
		zap.String("outcome", outcome),
	)
	return nil
}

func (s *Store) save(ctx context.Context, p *Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, profileKey(p.UserID), raw, 0).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
