package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/CrispyPorkGang/boxpacks/internal/cart/cache"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/domain"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/repository"
	"github.com/CrispyPorkGang/boxpacks/internal/cart/store"
)

var defaultSnapshot, _ = store.Encode(domain.NewCartState())

// Session is one browser cart: its store plus the notices waiting for the client.
type Session struct {
	ID      string
	Store   *store.Store
	Notices *store.NoticeBuffer

	lastSeen time.Time
}

// CartService keeps live sessions in memory and loads the rest through
// redis, then mongo.
type CartService struct {
	repo  repository.CartRepository
	cache cache.SnapshotCache
	log   *zap.Logger
	sfg   singleflight.Group // Prevents cache stampede

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewCartService(repo repository.CartRepository, cache cache.SnapshotCache, log *zap.Logger) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:     repo,
		cache:    cache,
		log:      log,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *CartService) Session(ctx context.Context, sessionID string) (*Session, error) {
	if sess := s.lookup(sessionID); sess != nil {
		return sess, nil
	}

	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		if sess := s.lookup(sessionID); sess != nil {
			return sess, nil
		}

		raw, err := s.loadSnapshot(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		notices := &store.NoticeBuffer{}
		sess := &Session{
			ID:      sessionID,
			Notices: notices,
			Store: store.New(
				&sessionPersister{svc: s, sessionID: sessionID},
				notices,
				s.log.With(zap.String("session_id", sessionID)),
			),
		}
		sess.Store.Hydrate(raw)

		s.mu.Lock()
		defer s.mu.Unlock()
		sess.lastSeen = s.now()
		s.sessions[sessionID] = sess
		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

func (s *CartService) lookup(sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.lastSeen = s.now()
	return sess
}

// loadSnapshot returns nil bytes for a session that was never saved.
func (s *CartService) loadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	raw, err := s.cache.Get(ctx, sessionID)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("cache get error", zap.String("session_id", sessionID), zap.Error(err))
	}

	raw, err = s.repo.GetSnapshot(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Warmed before the session exists, so no persist can race this write.
	setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if errSet := s.cache.Set(setCtx, sessionID, raw); errSet != nil {
		s.log.Warn("cache set error", zap.String("session_id", sessionID), zap.Error(errSet))
	}

	return raw, nil
}

// EvictIdle drops sessions not touched for maxIdle. Their state is already
// persisted and reloads on the next request.
func (s *CartService) EvictIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *CartService) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.EvictIdle(maxIdle); n > 0 {
				s.log.Debug("evicted idle cart sessions", zap.Int("count", n))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *CartService) invalidateCache(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.log.Warn("cache invalidate error", zap.String("session_id", sessionID), zap.Error(err))
	}
}

type sessionPersister struct {
	svc       *CartService
	sessionID string
}

// Persist stores the snapshot. A cart back at its defaults has nothing worth
// keeping, so its document is deleted instead.
func (p *sessionPersister) Persist(ctx context.Context, snapshot []byte) error {
	if bytes.Equal(snapshot, defaultSnapshot) {
		err := p.svc.repo.DeleteCart(ctx, p.sessionID)
		if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
			p.svc.log.Error("repo delete cart error", zap.String("session_id", p.sessionID), zap.Error(err))
			return err
		}
		p.svc.invalidateCache(p.sessionID)
		return nil
	}

	if err := p.svc.repo.SaveSnapshot(ctx, p.sessionID, snapshot); err != nil {
		p.svc.log.Error("repo save snapshot error", zap.String("session_id", p.sessionID), zap.Error(err))
		return err
	}
	p.svc.invalidateCache(p.sessionID)
	return nil
}
