// Package redis is the remote key/value StoryData backend.
//
// Each aggregate is a JSON record under its own key and membership relations are
// Redis sets. Conflicts on create are detected atomically with SETNX and SADD,
// but UpdateSession and UpdateParticipant are plain get, compute, set sequences
// with no lock across keys: two writers updating the same session concurrently
// can lose one of the updates. Records that vanish mid-update are not
// resurrected because writes back use SET XX.
//
// With a TTL configured, every write to a session refreshes the expiry of all
// of its keys in one MULTI block.
package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// Options configures key layout and expiry.
type Options struct {
	// Namespace defaults to DefaultNamespace.
	Namespace string
	// TTL is applied to every key written; zero means keys never expire.
	TTL time.Duration
}

// Store implements repository.StoryData on a Redis client.
type Store struct {
	client    goredis.Cmdable
	namespace string
	ttl       time.Duration
	log       logger.Logger
}

var _ repository.StoryData = (*Store)(nil)

func New(client goredis.Cmdable, opts Options, log logger.Logger) *Store {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return &Store{
		client:    client,
		namespace: ns,
		ttl:       opts.TTL,
		log:       log.With("component", "redis", "namespace", ns),
	}
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Backend(err, "redis ping")
	}
	return nil
}

// get decodes the record at key into dest. It reports false when the key is absent.
func (s *Store) get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Backend(err, "redis get "+key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, errors.Wrap(err, errors.ErrDataIntegrity, "corrupt record at "+key)
	}
	return true, nil
}

// setNX writes a new record and reports false if the key already existed.
func (s *Store) setNX(ctx context.Context, key string, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, errors.Backend(err, "encode "+key)
	}
	ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return false, errors.Backend(err, "redis setnx "+key)
	}
	return ok, nil
}

// setXX overwrites an existing record and reports false if the key was gone.
func (s *Store) setXX(ctx context.Context, key string, value any) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, errors.Backend(err, "encode "+key)
	}
	ok, err := s.client.SetXX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return false, errors.Backend(err, "redis setxx "+key)
	}
	return ok, nil
}

// sadd adds member and reports whether it was new.
func (s *Store) sadd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, errors.Backend(err, "redis sadd "+key)
	}
	return n == 1, nil
}

// touchSession gives every key of a session the same fresh expiry, so the
// session record, its relation sets and its participant records expire together.
func (s *Store) touchSession(ctx context.Context, sessionID string) error {
	if s.ttl <= 0 {
		return nil
	}
	members, err := s.client.SMembers(ctx, s.setKey(relParticipantUID, sessionID)).Result()
	if err != nil {
		return errors.Backend(err, "redis smembers "+sessionID)
	}

	keys := []string{
		s.tableKey(tableSession, sessionID),
		s.setKey(relParticipantUID, sessionID),
		s.setKey(relAdmin, sessionID),
	}
	for _, userID := range members {
		keys = append(keys, s.participantKey(sessionID, userID))
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, key := range keys {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Backend(err, "redis expire session "+sessionID)
	}
	return nil
}

// srem removes member and reports whether it was present.
func (s *Store) srem(ctx context.Context, key, member string) (bool, error) {
	n, err := s.client.SRem(ctx, key, member).Result()
	if err != nil {
		return false, errors.Backend(err, "redis srem "+key)
	}
	return n == 1, nil
}

// smembers returns the set sorted, since Redis gives no order.
func (s *Store) smembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Backend(err, "redis smembers "+key)
	}
	slices.Sort(members)
	return members, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.BasicUser, error) {
	var user models.BasicUser
	found, err := s.get(ctx, s.tableKey(tableUser, userID), &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (s *Store) AddUser(ctx context.Context, user models.BasicUser) error {
	ok, err := s.setNX(ctx, s.tableKey(tableUser, user.UserID), user)
	if err != nil {
		return err
	}
	if !ok {
		return repository.UserExists(user.UserID)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	found, err := s.get(ctx, s.tableKey(tableSession, sessionID), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (s *Store) AddSession(ctx context.Context, session models.Session) error {
	ok, err := s.setNX(ctx, s.tableKey(tableSession, session.SessionID), session)
	if err != nil {
		return err
	}
	if !ok {
		return repository.SessionExists(session.SessionID)
	}
	return nil
}

// DelSession deletes the session record, then its participant records and relation sets.
func (s *Store) DelSession(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.tableKey(tableSession, sessionID)).Result()
	if err != nil {
		return errors.Backend(err, "redis del session")
	}
	if n == 0 {
		return repository.SessionNotFound(sessionID)
	}

	members, err := s.smembers(ctx, s.setKey(relParticipantUID, sessionID))
	if err != nil {
		return err
	}
	keys := []string{
		s.setKey(relParticipantUID, sessionID),
		s.setKey(relAdmin, sessionID),
	}
	for _, userID := range members {
		keys = append(keys, s.participantKey(sessionID, userID))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Backend(err, "redis del session members")
	}

	s.log.Debug("session deleted", "session_id", sessionID, "participants", len(members))
	return nil
}

// UpdateSession reads the session and its participants, applies plan and writes
// the participants back followed by the session. A failure part way through
// leaves earlier writes in place and is returned to the caller.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, plan repository.SessionPlan) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return repository.SessionNotFound(sessionID)
	}

	participants, err := s.GetParticipants(ctx, sessionID)
	if err != nil {
		return err
	}

	updated, updatedParticipants, err := repository.ApplySessionPlan(*session, participants, plan)
	if err != nil {
		return err
	}

	for _, p := range updatedParticipants {
		ok, err := s.setXX(ctx, s.participantKey(p.SessionID, p.UserID), p)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("participant left during session update", "session_id", sessionID, "user_id", p.UserID)
		}
	}

	ok, err := s.setXX(ctx, s.tableKey(tableSession, sessionID), updated)
	if err != nil {
		return err
	}
	if !ok {
		return repository.SessionNotFound(sessionID)
	}
	return s.touchSession(ctx, sessionID)
}

// GetParticipants returns the session's participants ordered by user id.
// A membership entry without a participant record is a data integrity error.
func (s *Store) GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	members, err := s.smembers(ctx, s.setKey(relParticipantUID, sessionID))
	if err != nil {
		return nil, err
	}
	participants := make([]models.Participant, 0, len(members))
	if len(members) == 0 {
		return participants, nil
	}

	keys := make([]string, len(members))
	for i, userID := range members {
		keys[i] = s.participantKey(sessionID, userID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Backend(err, "redis mget participants")
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			return nil, errors.DataIntegrityf("user %s is listed in session %s but has no participant record", members[i], sessionID)
		}
		var p models.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, errors.Wrap(err, errors.ErrDataIntegrity, "corrupt record at "+keys[i])
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// AddParticipant claims the record key first so an existing participant is
// never overwritten. The claim is released if the membership can not be recorded.
func (s *Store) AddParticipant(ctx context.Context, participant models.Participant) error {
	key := s.participantKey(participant.SessionID, participant.UserID)
	ok, err := s.setNX(ctx, key, participant)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ParticipantExists(participant.SessionID, participant.UserID)
	}
	if _, err := s.sadd(ctx, s.setKey(relParticipantUID, participant.SessionID), participant.UserID); err != nil {
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			s.log.Error("failed to release participant record", "key", key, "error", delErr)
		}
		return err
	}
	return s.touchSession(ctx, participant.SessionID)
}

func (s *Store) DelParticipant(ctx context.Context, sessionID, userID string) error {
	removed, err := s.srem(ctx, s.setKey(relParticipantUID, sessionID), userID)
	if err != nil {
		return err
	}
	if !removed {
		return repository.ParticipantNotFound(sessionID, userID)
	}
	if err := s.client.Del(ctx, s.participantKey(sessionID, userID)).Err(); err != nil {
		return errors.Backend(err, "redis del participant")
	}
	return nil
}

func (s *Store) UpdateParticipant(ctx context.Context, sessionID, userID string, plan repository.ParticipantPlan) error {
	key := s.participantKey(sessionID, userID)

	var participant models.Participant
	found, err := s.get(ctx, key, &participant)
	if err != nil {
		return err
	}
	if !found {
		return repository.ParticipantNotFound(sessionID, userID)
	}

	updated, err := repository.ApplyParticipantPlan(participant, plan)
	if err != nil {
		return err
	}

	ok, err := s.setXX(ctx, key, updated)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ParticipantNotFound(sessionID, userID)
	}
	return s.touchSession(ctx, sessionID)
}

func (s *Store) GetAdmins(ctx context.Context, sessionID string) ([]string, error) {
	return s.smembers(ctx, s.setKey(relAdmin, sessionID))
}

func (s *Store) AddAdmin(ctx context.Context, sessionID, userID string) error {
	added, err := s.sadd(ctx, s.setKey(relAdmin, sessionID), userID)
	if err != nil {
		return err
	}
	if !added {
		return repository.AdminExists(sessionID, userID)
	}
	return s.touchSession(ctx, sessionID)
}

func (s *Store) DelAdmin(ctx context.Context, sessionID, userID string) error {
	removed, err := s.srem(ctx, s.setKey(relAdmin, sessionID), userID)
	if err != nil {
		return err
	}
	if !removed {
		return repository.AdminNotFound(sessionID, userID)
	}
	return nil
}

// IsAdmin asks Redis directly instead of listing the whole admin set.
func (s *Store) IsAdmin(ctx context.Context, sessionID, userID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.setKey(relAdmin, sessionID), userID).Result()
	if err != nil {
		return false, errors.Backend(err, "redis sismember")
	}
	return ok, nil
}
