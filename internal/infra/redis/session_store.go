package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizplay-service/internal/domain"
)

// SessionStore is a Redis implementation of app.SessionStore.
// Layout (every key expires after ttl):
//   - session:{id}          hash  quiz_id, created_at, ended_at, current_question_index
//   - session:{id}:players  set   normalized player names, for duplicate checks
//   - session:{id}:scores   list  score IDs in join order
//   - score:{id}            hash  session_id, player_name, score, created_at
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

// advanceIndex raises current_question_index, never lowering it.
var advanceIndex = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local cur = tonumber(redis.call('HGET', KEYS[1], 'current_question_index') or '0')
local nxt = tonumber(ARGV[1])
if nxt > cur then
  redis.call('HSET', KEYS[1], 'current_question_index', nxt)
  return nxt
end
return cur
`)

func (s *SessionStore) CreateSession(ctx context.Context, quizID string) (domain.GameSession, error) {
	session := domain.GameSession{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		CreatedAt: s.now().UTC(),
	}
	key := s.sessionKey(session.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"quiz_id", session.QuizID,
			"created_at", formatTime(session.CreatedAt),
			"current_question_index", 0,
		)
		s.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return domain.GameSession{}, domain.NewStorageError("create session", err)
	}
	return session, nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.GameSession, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return domain.GameSession{}, domain.NewStorageError("get session", err)
	}
	if len(fields) == 0 {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return parseSession(sessionID, fields), nil
}

func (s *SessionStore) SetQuestionIndex(ctx context.Context, sessionID string, index int) (domain.GameSession, error) {
	res, err := advanceIndex.Run(ctx, s.client, []string{s.sessionKey(sessionID)}, index).Int()
	if err != nil {
		return domain.GameSession{}, domain.NewStorageError("set question index", err)
	}
	if res < 0 {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return s.GetSession(ctx, sessionID)
}

func (s *SessionStore) EndSession(ctx context.Context, sessionID string, at time.Time) (domain.GameSession, error) {
	key := s.sessionKey(sessionID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return domain.GameSession{}, domain.NewStorageError("end session", err)
	}
	if exists == 0 {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err := s.client.HSetNX(ctx, key, "ended_at", formatTime(at.UTC())).Err(); err != nil {
		return domain.GameSession{}, domain.NewStorageError("end session", err)
	}
	return s.GetSession(ctx, sessionID)
}

func (s *SessionStore) JoinSession(ctx context.Context, sessionID, playerName string) (domain.PlayerScore, error) {
	exists, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("join session", err)
	}
	if exists == 0 {
		return domain.PlayerScore{}, domain.ErrSessionNotFound
	}

	added, err := s.client.SAdd(ctx, s.playersKey(sessionID), normalizeName(playerName)).Result()
	if err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("join session", err)
	}
	if added == 0 {
		return domain.PlayerScore{}, domain.ErrDuplicatePlayer
	}

	player := domain.PlayerScore{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		PlayerName: playerName,
		CreatedAt:  s.now().UTC(),
	}
	scoreKey := s.scoreKey(player.ID)
	listKey := s.scoresKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, scoreKey,
			"session_id", sessionID,
			"player_name", playerName,
			"score", 0,
			"created_at", formatTime(player.CreatedAt),
		)
		pipe.RPush(ctx, listKey, player.ID)
		s.expire(ctx, pipe, scoreKey, listKey, s.playersKey(sessionID))
		return nil
	})
	if err != nil {
		// Release the name so a retry is not reported as a duplicate.
		if rerr := s.client.SRem(context.WithoutCancel(ctx), s.playersKey(sessionID), normalizeName(playerName)).Err(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return domain.PlayerScore{}, domain.NewStorageError("join session", err)
	}
	return player, nil
}

func (s *SessionStore) UpdateScore(ctx context.Context, scoreID string, score int) (domain.PlayerScore, error) {
	key := s.scoreKey(scoreID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("update score", err)
	}
	if exists == 0 {
		return domain.PlayerScore{}, domain.ErrPlayerNotFound
	}
	if err := s.client.HSet(ctx, key, "score", score).Err(); err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("update score", err)
	}
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PlayerScore{}, domain.NewStorageError("update score", err)
	}
	return parseScore(scoreID, fields), nil
}

func (s *SessionStore) ListScores(ctx context.Context, sessionID string) ([]domain.PlayerScore, error) {
	ids, err := s.client.LRange(ctx, s.scoresKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStorageError("list scores", err)
	}
	if len(ids) == 0 {
		return []domain.PlayerScore{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.scoreKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, domain.NewStorageError("list scores", err)
	}

	scores := make([]domain.PlayerScore, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		scores = append(scores, parseScore(ids[i], fields))
	}
	// Join order breaks ties.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores, nil
}

func (s *SessionStore) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (s *SessionStore) playersKey(sessionID string) string {
	return "session:" + sessionID + ":players"
}

func (s *SessionStore) scoresKey(sessionID string) string {
	return "session:" + sessionID + ":scores"
}

func (s *SessionStore) scoreKey(scoreID string) string {
	return "score:" + scoreID
}

func parseSession(id string, fields map[string]string) domain.GameSession {
	session := domain.GameSession{
		ID:        id,
		QuizID:    fields["quiz_id"],
		CreatedAt: parseTime(fields["created_at"]),
	}
	session.CurrentQuestionIndex, _ = strconv.Atoi(fields["current_question_index"])
	if raw, ok := fields["ended_at"]; ok && raw != "" {
		ended := parseTime(raw)
		session.EndedAt = &ended
	}
	return session
}

func parseScore(id string, fields map[string]string) domain.PlayerScore {
	score, _ := strconv.Atoi(fields["score"])
	return domain.PlayerScore{
		ID:         id,
		SessionID:  fields["session_id"],
		PlayerName: fields["player_name"],
		Score:      score,
		CreatedAt:  parseTime(fields["created_at"]),
	}
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, raw)
	return t
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
