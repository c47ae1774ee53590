package interactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/apperrors"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/hub"
	"github.com/velora-app/velora/internal/repository"
)

// visitDedupWindow suppresses repeat visit rows and notifications from the
// same visitor within this span.
const visitDedupWindow = 5 * time.Minute

// Service implements the like/unlike/block/visit/report state machine.
// Every state transition runs in a single transaction; notification rows are
// written inside it, realtime pushes happen after commit and are never
// allowed to fail the operation.
type Service struct {
	appCtx       *app.AppContext
	profiles     *repository.ProfileRepository
	users        *repository.UserRepository
	interactions *repository.InteractionRepository
	connections  *repository.ConnectionRepository
	notifs       *repository.NotificationRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:       appCtx,
		profiles:     repository.NewProfileRepository(appCtx.DB),
		users:        repository.NewUserRepository(appCtx.DB),
		interactions: repository.NewInteractionRepository(appCtx.DB),
		connections:  repository.NewConnectionRepository(appCtx.DB),
		notifs:       repository.NewNotificationRepository(appCtx.DB),
	}
}

// LikeResult is the outcome of a like operation.
type LikeResult struct {
	IsMatch bool
}

// Like records liker → liked. On a mutual like it creates or reactivates
// the connection and notifies both parties. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, likerUserID, likedProfileID uint64) (*LikeResult, error) {
	liker, err := s.profiles.GetByUserID(ctx, likerUserID)
	if err != nil {
		return nil, apperrors.NotFound("profile not found")
	}
	liked, err := s.profiles.GetByID(ctx, likedProfileID)
	if err != nil {
		return nil, apperrors.NotFound("profile to like not found")
	}
	if liker.ID == liked.ID {
		return nil, apperrors.Precondition("cannot like your own profile")
	}

	blocked, err := s.interactions.IsBlockedEither(ctx, liker.ID, liked.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if blocked {
		return nil, apperrors.Blocked("interaction not allowed")
	}

	var (
		isMatch  bool
		inserted bool
		pending  []pendingPush
	)

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		ir := s.interactions.WithTx(tx)
		cr := s.connections.WithTx(tx)
		nr := s.notifs.WithTx(tx)

		created, err := ir.CreateLike(ctx, liker.ID, liked.ID)
		if err != nil {
			return err
		}
		if !created {
			// already liked: idempotent, no new notifications
			return nil
		}
		inserted = true

		likerUser, likedUser, err := s.pairUsers(ctx, liker.UserID, liked.UserID)
		if err != nil {
			return err
		}

		likeNotif := &db.Notification{
			UserID:   liked.UserID,
			SenderID: &liker.UserID,
			Type:     db.NotifLike,
			Content:  fmt.Sprintf("%s liked your profile!", likerUser.FirstName),
		}
		if err := nr.Create(ctx, likeNotif); err != nil {
			return err
		}
		pending = append(pending, pushFor(likeNotif))

		mutual, err := ir.HasLike(ctx, liked.ID, liker.ID)
		if err != nil {
			return err
		}
		isMatch = mutual

		if mutual {
			existedBefore := hasPriorConnection(ctx, cr, liker.UserID, liked.UserID)

			_, activated, err := cr.EnsureActive(ctx, liker.UserID, liked.UserID)
			if err != nil {
				return err
			}
			if activated {
				wording := "You matched with %s! You can now start chatting."
				if existedBefore {
					wording = "You matched with %s again!"
				}
				forLiker := &db.Notification{
					UserID:   liker.UserID,
					SenderID: &liked.UserID,
					Type:     db.NotifMatch,
					Content:  fmt.Sprintf(wording, likedUser.FirstName),
				}
				forLiked := &db.Notification{
					UserID:   liked.UserID,
					SenderID: &liker.UserID,
					Type:     db.NotifMatch,
					Content:  fmt.Sprintf(wording, likerUser.FirstName),
				}
				if err := nr.Create(ctx, forLiker); err != nil {
					return err
				}
				if err := nr.Create(ctx, forLiked); err != nil {
					return err
				}
				pending = append(pending,
					pushFor(forLiker), pushFor(forLiked),
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if inserted {
		s.appCtx.RedisCache.BumpLikeCount(ctx, liked.ID, 1)
		s.recomputeFame(ctx, liked.ID)
	}
	s.dispatch(pending)

	return &LikeResult{IsMatch: isMatch}, nil
}

// Unlike removes liker → liked. If the pair was mutual, the connection is
// deactivated and both parties get an unmatch notification; the unliked
// party always gets an unlike notification.
func (s *Service) Unlike(ctx context.Context, likerUserID, likedProfileID uint64) error {
	liker, err := s.profiles.GetByUserID(ctx, likerUserID)
	if err != nil {
		return apperrors.NotFound("profile not found")
	}
	liked, err := s.profiles.GetByID(ctx, likedProfileID)
	if err != nil {
		return apperrors.NotFound("profile to unlike not found")
	}

	var pending []pendingPush

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		ir := s.interactions.WithTx(tx)
		cr := s.connections.WithTx(tx)
		nr := s.notifs.WithTx(tx)

		wasMutual, err := ir.HasLike(ctx, liked.ID, liker.ID)
		if err != nil {
			return err
		}

		deleted, err := ir.DeleteLike(ctx, liker.ID, liked.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperrors.NotFound("like not found")
		}

		likerUser, likedUser, err := s.pairUsers(ctx, liker.UserID, liked.UserID)
		if err != nil {
			return err
		}

		n := &db.Notification{
			UserID:   liked.UserID,
			SenderID: &liker.UserID,
			Type:     db.NotifUnlike,
			Content:  fmt.Sprintf("%s removed their like.", likerUser.FirstName),
		}
		if err := nr.Create(ctx, n); err != nil {
			return err
		}
		pending = append(pending, pushFor(n))

		if wasMutual {
			if err := cr.Deactivate(ctx, liker.UserID, liked.UserID); err != nil {
				return err
			}
			forLiked := &db.Notification{
				UserID:   liked.UserID,
				SenderID: &liker.UserID,
				Type:     db.NotifUnmatch,
				Content:  fmt.Sprintf("%s is no longer matched with you.", likerUser.FirstName),
			}
			forLiker := &db.Notification{
				UserID:   liker.UserID,
				SenderID: &liked.UserID,
				Type:     db.NotifUnmatch,
				Content:  fmt.Sprintf("%s is no longer matched with you.", likedUser.FirstName),
			}
			if err := nr.Create(ctx, forLiked); err != nil {
				return err
			}
			if err := nr.Create(ctx, forLiker); err != nil {
				return err
			}
			pending = append(pending, pushFor(forLiked), pushFor(forLiker))
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.Internal(err)
	}

	s.appCtx.RedisCache.BumpLikeCount(ctx, liked.ID, -1)
	s.recomputeFame(ctx, liked.ID)
	s.dispatch(pending)

	return nil
}

// Block records blocker → blocked and silently tears down the relationship:
// likes in both directions are deleted and any connection is deactivated.
// No notification is emitted; block is a unilateral action.
func (s *Service) Block(ctx context.Context, blockerUserID, blockedProfileID uint64) error {
	blocker, err := s.profiles.GetByUserID(ctx, blockerUserID)
	if err != nil {
		return apperrors.NotFound("profile not found")
	}
	blocked, err := s.profiles.GetByID(ctx, blockedProfileID)
	if err != nil {
		return apperrors.NotFound("profile to block not found")
	}
	if blocker.ID == blocked.ID {
		return apperrors.Precondition("cannot block your own profile")
	}

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		ir := s.interactions.WithTx(tx)
		cr := s.connections.WithTx(tx)

		created, err := ir.CreateBlock(ctx, blocker.ID, blocked.ID)
		if err != nil {
			return err
		}
		if !created {
			// already blocked: idempotent
			return nil
		}

		if err := ir.DeleteLikesBetween(ctx, blocker.ID, blocked.ID); err != nil {
			return err
		}
		return cr.Deactivate(ctx, blocker.UserID, blocked.UserID)
	})
	if err != nil {
		return apperrors.Internal(err)
	}

	// like rows may have vanished in both directions
	s.appCtx.RedisCache.InvalidateLikeCount(ctx, blocker.ID)
	s.appCtx.RedisCache.InvalidateLikeCount(ctx, blocked.ID)
	s.recomputeFame(ctx, blocker.ID)
	s.recomputeFame(ctx, blocked.ID)

	return nil
}

// Unblock removes blocker → blocked.
func (s *Service) Unblock(ctx context.Context, blockerUserID, blockedProfileID uint64) error {
	blocker, err := s.profiles.GetByUserID(ctx, blockerUserID)
	if err != nil {
		return apperrors.NotFound("profile not found")
	}

	deleted, err := s.interactions.DeleteBlock(ctx, blocker.ID, blockedProfileID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !deleted {
		return apperrors.NotFound("block not found")
	}
	return nil
}

// Visit records a profile view, deduplicated within visitDedupWindow.
// A suppressed duplicate is not an error.
func (s *Service) Visit(ctx context.Context, visitorUserID, visitedProfileID uint64) error {
	visitor, err := s.profiles.GetByUserID(ctx, visitorUserID)
	if err != nil {
		return apperrors.NotFound("profile not found")
	}
	visited, err := s.profiles.GetByID(ctx, visitedProfileID)
	if err != nil {
		return apperrors.NotFound("profile to visit not found")
	}
	if visitor.ID == visited.ID {
		return apperrors.Precondition("cannot visit your own profile")
	}

	blocked, err := s.interactions.IsBlockedEither(ctx, visitor.ID, visited.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if blocked {
		return apperrors.Blocked("interaction not allowed")
	}

	recent, err := s.interactions.HasVisitSince(ctx, visitor.ID, visited.ID, time.Now().UTC().Add(-visitDedupWindow))
	if err != nil {
		return apperrors.Internal(err)
	}
	if recent {
		return nil
	}

	var pending []pendingPush

	err = s.appCtx.DB.Transaction(func(tx *gorm.DB) error {
		ir := s.interactions.WithTx(tx)
		nr := s.notifs.WithTx(tx)

		if err := ir.CreateVisit(ctx, visitor.ID, visited.ID); err != nil {
			return err
		}

		visitorUser, err := s.users.GetByID(ctx, visitor.UserID)
		if err != nil {
			return err
		}
		n := &db.Notification{
			UserID:   visited.UserID,
			SenderID: &visitor.UserID,
			Type:     db.NotifVisit,
			Content:  fmt.Sprintf("%s visited your profile!", visitorUser.FirstName),
		}
		if err := nr.Create(ctx, n); err != nil {
			return err
		}
		pending = append(pending, pushFor(n))
		return nil
	})
	if err != nil {
		return apperrors.Internal(err)
	}

	s.recomputeFame(ctx, visited.ID)
	s.dispatch(pending)

	return nil
}

// Report files a moderation report. It has no effect on likes or blocks and
// emits no notification.
func (s *Service) Report(ctx context.Context, reporterUserID, reportedProfileID uint64, reason, description string) error {
	if reason == "" {
		return apperrors.Validation("reason is required")
	}
	reporter, err := s.profiles.GetByUserID(ctx, reporterUserID)
	if err != nil {
		return apperrors.NotFound("profile not found")
	}
	reported, err := s.profiles.GetByID(ctx, reportedProfileID)
	if err != nil {
		return apperrors.NotFound("profile to report not found")
	}
	if reporter.ID == reported.ID {
		return apperrors.Precondition("cannot report your own profile")
	}

	_, err = s.interactions.CreateReport(ctx, reporter.ID, reported.ID, reason, description)
	if err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// FeedEntry is one row of the "liked you" / "visited you" feeds.
type FeedEntry struct {
	Profile    db.Profile
	OccurredAt time.Time
}

// LikeCount returns how many likes the user's profile has received,
// cache-first with a database fallback that repopulates the cache.
func (s *Service) LikeCount(ctx context.Context, userID uint64) (int64, error) {
	me, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return 0, apperrors.NotFound("profile not found")
	}

	if count, found, err := s.appCtx.RedisCache.GetLikeCount(ctx, me.ID); err == nil && found {
		return count, nil
	}

	count, err := s.interactions.CountLikesReceived(ctx, me.ID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	if err := s.appCtx.RedisCache.SetLikeCount(ctx, me.ID, count); err != nil {
		s.appCtx.Logger.Warn("like count cache write failed", "profile_id", me.ID, "err", err)
	}
	return count, nil
}

// LikesReceived returns who liked the current user, newest first, with a
// cursor token for the next page.
func (s *Service) LikesReceived(ctx context.Context, userID uint64, token *string, limit int) ([]FeedEntry, *string, error) {
	me, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, nil, apperrors.NotFound("profile not found")
	}

	likes, next, err := s.interactions.LikesReceived(ctx, me.ID, token, limit)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	ids := make([]uint64, 0, len(likes))
	at := make(map[uint64]time.Time, len(likes))
	for _, l := range likes {
		ids = append(ids, l.LikerID)
		at[l.LikerID] = l.CreatedAt
	}
	entries, err := s.feedEntries(ctx, ids, at)
	if err != nil {
		return nil, nil, err
	}
	return entries, next, nil
}

// VisitCount returns how many visits the user's profile has received.
func (s *Service) VisitCount(ctx context.Context, userID uint64) (int64, error) {
	me, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return 0, apperrors.NotFound("profile not found")
	}
	count, err := s.interactions.CountVisitsReceived(ctx, me.ID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return count, nil
}

// VisitsReceived returns who visited the current user, newest first.
func (s *Service) VisitsReceived(ctx context.Context, userID uint64, token *string, limit int) ([]FeedEntry, *string, error) {
	me, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, nil, apperrors.NotFound("profile not found")
	}

	visits, next, err := s.interactions.VisitsReceived(ctx, me.ID, token, limit)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}

	ids := make([]uint64, 0, len(visits))
	at := make(map[uint64]time.Time, len(visits))
	for _, v := range visits {
		ids = append(ids, v.VisitorID)
		at[v.VisitorID] = v.CreatedAt
	}
	entries, err := s.feedEntries(ctx, ids, at)
	if err != nil {
		return nil, nil, err
	}
	return entries, next, nil
}

// Match is one active connection with the peer's profile attached.
type Match struct {
	Connection db.Connection
	Profile    db.Profile
}

// Matches lists the user's active connections with peer profiles, most
// recently touched first.
func (s *Service) Matches(ctx context.Context, userID uint64, limit, offset int) ([]Match, error) {
	conns, err := s.connections.ListActive(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	matches := make([]Match, 0, len(conns))
	for _, conn := range conns {
		peerUserID := conn.UserAID
		if peerUserID == userID {
			peerUserID = conn.UserBID
		}
		peer, err := s.profiles.GetByUserID(ctx, peerUserID)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Connection: conn, Profile: *peer})
	}
	return matches, nil
}

// --- helpers ---

// hasPriorConnection reports whether a connection row already exists for the
// pair, which turns a fresh match into a rematch.
func hasPriorConnection(ctx context.Context, cr *repository.ConnectionRepository, u1, u2 uint64) bool {
	_, err := cr.GetByUsers(ctx, u1, u2)
	return err == nil
}

type pendingPush struct {
	userID uint64
	event  hub.Event
}

func pushFor(n *db.Notification) pendingPush {
	var sender uint64
	if n.SenderID != nil {
		sender = *n.SenderID
	}
	return pendingPush{
		userID: n.UserID,
		event:  hub.NewNotificationEvent(n.Type, sender, n.Content),
	}
}

// dispatch pushes events to any open channels; delivery is best-effort.
func (s *Service) dispatch(pushes []pendingPush) {
	for _, p := range pushes {
		if !s.appCtx.Hub.SendIfPresent(p.userID, p.event) {
			s.appCtx.Logger.Debug("realtime push skipped", "user_id", p.userID, "event", p.event.Type)
		}
	}
}

// recomputeFame refreshes the derived rating; failures are logged, never
// surfaced to the caller.
func (s *Service) recomputeFame(ctx context.Context, profileID uint64) {
	if _, err := s.profiles.RecomputeFame(ctx, profileID); err != nil {
		s.appCtx.Logger.Warn("fame rating recompute failed", "profile_id", profileID, "err", err)
	}
}

func (s *Service) pairUsers(ctx context.Context, u1, u2 uint64) (*db.User, *db.User, error) {
	first, err := s.users.GetByID(ctx, u1)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.users.GetByID(ctx, u2)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (s *Service) feedEntries(ctx context.Context, ids []uint64, at map[uint64]time.Time) ([]FeedEntry, error) {
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	byID := make(map[uint64]db.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	entries := make([]FeedEntry, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		entries = append(entries, FeedEntry{Profile: p, OccurredAt: at[id]})
	}
	return entries, nil
}
