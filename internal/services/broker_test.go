package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/nutrichat-backend/internal/domain"
	"github.com/tbourn/nutrichat-backend/internal/events"
	"github.com/tbourn/nutrichat-backend/internal/repo"
)

func TestBroker_CreateAcceptSeedsFirstMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Nora", true, "sports")

	req, err := f.broker.Create(ctx, "u1", "n1", "question about protein")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, req.Status)
	require.NotNil(t, req.RequestedNutritionistID)
	assert.Equal(t, "n1", *req.RequestedNutritionistID)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), req.ExpiresAt)

	reqNotes := f.notificationsOf(t, "n1", domain.RoleNutritionist, domain.NotifySessionRequest)
	require.Len(t, reqNotes, 1)
	assert.Equal(t, req.ID, *reqNotes[0].RelatedEntityID)

	f.clock.Advance(time.Minute)
	sess, err := f.broker.Accept(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, sess.Status)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "n1", sess.NutritionistID)
	require.NotNil(t, sess.RequestID)
	assert.Equal(t, req.ID, *sess.RequestID)

	msgs, err := f.ledger.List(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleUser, msgs[0].Sender)
	assert.Equal(t, "u1", msgs[0].SenderID)
	assert.Equal(t, "question about protein", msgs[0].Content)
	assert.True(t, msgs[0].Timestamp.Equal(req.CreatedAt))

	accepted := f.notificationsOf(t, "u1", domain.RoleUser, domain.NotifySessionAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, sess.ID, *accepted[0].RelatedEntityID)
	// the seeded message reaches the nutritionist like any other
	assert.Len(t, f.notificationsOf(t, "n1", domain.RoleNutritionist, domain.NotifyNewMessage), 1)

	got, err := f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestActive, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, domain.ResolutionAccepted, *got.Resolution)

	assert.Equal(t, []events.Type{events.SessionRequested, events.MessageAppended, events.RequestAccepted}, f.pub.types())
}

func TestBroker_AcceptWithoutQueryHasNoMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Nora", true)

	sess := f.startSession(t, "u1", "n1", "   ")
	msgs, err := f.ledger.List(ctx, sess.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBroker_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Nora", true)
	f.ledger.MaxMessageRunes = 5

	_, err := f.broker.Create(ctx, "  ", "n1", "")
	assert.ErrorIs(t, err, ErrUserIDRequired)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.broker.Create(ctx, "u1", "ghost", "")
	assert.ErrorIs(t, err, ErrNutritionistNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.broker.Create(ctx, "u1", "n1", "too long query")
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestBroker_CreatePicksWhenUntargeted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true, "diabetes")
	f.onboard(t, "n2", "Bert", true, "sports", "protein")
	f.onboard(t, "n3", "Carl", false, "protein")

	req, err := f.broker.Create(ctx, "u1", "", "protein for sports")
	require.NoError(t, err)
	require.NotNil(t, req.RequestedNutritionistID)
	assert.Equal(t, "n2", *req.RequestedNutritionistID)
}

func TestBroker_CreateNoneAvailable(t *testing.T) {
	f := newFixture(t)
	f.onboard(t, "n1", "Anna", false)

	_, err := f.broker.Create(context.Background(), "u1", "", "hi")
	assert.ErrorIs(t, err, ErrNoNutritionistAvailable)

	var n int64
	require.NoError(t, f.db.Model(&domain.SessionRequest{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBroker_OnePendingRequestPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	f.onboard(t, "n2", "Bert", true)

	_, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)
	_, err = f.broker.Create(ctx, "u1", "n2", "")
	assert.ErrorIs(t, err, ErrPendingRequestExists)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a stale pending request does not block a new one
	f.clock.Advance(16 * time.Minute)
	_, err = f.broker.Create(ctx, "u1", "n2", "")
	require.NoError(t, err)
}

// With S1 active a second request can be made, but accepting it must not open
// a second session; the request stays pending.
func TestBroker_AcceptRefusedWhileUserHasActiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	f.onboard(t, "n2", "Bert", true)

	s1 := f.startSession(t, "u1", "n1", "first")

	r2, err := f.broker.Create(ctx, "u1", "n2", "second")
	require.NoError(t, err)
	_, err = f.broker.Accept(ctx, r2.ID, "n2")
	assert.ErrorIs(t, err, ErrUserHasActiveSession)

	assert.EqualValues(t, 1, f.activeSessionsOf(t, "u1"))
	active, err := f.sessions.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, active.ID)

	got, err := f.broker.Get(ctx, r2.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, got.Status)

	// once S1 ends the same request can be accepted
	_, err = f.sessions.End(ctx, s1.ID, domain.RoleUser, "u1")
	require.NoError(t, err)
	s2, err := f.broker.Accept(ctx, r2.ID, "n2")
	require.NoError(t, err)
	assert.Equal(t, "n2", s2.NutritionistID)
}

func TestBroker_ConcurrentAcceptSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	req, err := f.broker.Create(ctx, "u1", "n1", "hello")
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []*domain.ChatSession
		errs     []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			s, err := f.broker.Accept(ctx, req.ID, "n1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			sessions = append(sessions, s)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, sessions, 1)
	require.Len(t, errs, workers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRequestNotPending)
	}
	assert.EqualValues(t, 1, f.activeSessionsOf(t, "u1"))
	msgs, err := f.ledger.List(ctx, sessions[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, f.notificationsOf(t, "u1", domain.RoleUser, domain.NotifySessionAccepted), 1)
}

func TestBroker_AcceptRacingReject(t *testing.T) {
	for round := 0; round < 5; round++ {
		f := newFixture(t)
		ctx := context.Background()
		f.onboard(t, "n1", "Anna", true)
		req, err := f.broker.Create(ctx, "u1", "n1", "hello")
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			sess      *domain.ChatSession
			acceptErr error
			rejected  bool
			rejectErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			sess, acceptErr = f.broker.Accept(ctx, req.ID, "n1")
		}()
		go func() {
			defer wg.Done()
			<-start
			rejected, rejectErr = f.broker.Reject(ctx, req.ID, "n1")
		}()
		close(start)
		wg.Wait()

		require.NoError(t, rejectErr)
		accepted := acceptErr == nil
		require.NotEqual(t, accepted, rejected, "round %d: exactly one of accept/reject must win", round)
		if !accepted {
			assert.ErrorIs(t, acceptErr, ErrRequestNotPending)
		}

		got, err := f.broker.Get(ctx, req.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Resolution)
		if accepted {
			require.NotNil(t, sess)
			assert.Equal(t, domain.RequestActive, got.Status)
			assert.Equal(t, domain.ResolutionAccepted, *got.Resolution)
			assert.EqualValues(t, 1, f.activeSessionsOf(t, "u1"))
		} else {
			assert.Equal(t, domain.RequestEnded, got.Status)
			assert.Equal(t, domain.ResolutionRejected, *got.Resolution)
			assert.EqualValues(t, 0, f.activeSessionsOf(t, "u1"))
		}
	}
}

func TestBroker_RejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	req, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)

	ok, err := f.broker.Reject(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.broker.Reject(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.broker.Accept(ctx, req.ID, "n1")
	assert.ErrorIs(t, err, ErrRequestNotPending)

	got, err := f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestEnded, got.Status)
	assert.Equal(t, domain.ResolutionRejected, *got.Resolution)
	assert.Equal(t, "n1", *got.ResolvedBy)

	assert.Len(t, f.notificationsOf(t, "u1", domain.RoleUser, domain.NotifySessionRejected), 1)
}

func TestBroker_OnlyTargetMayResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	f.onboard(t, "n2", "Bert", true)
	req, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)

	_, err = f.broker.Accept(ctx, req.ID, "n2")
	assert.ErrorIs(t, err, ErrNotRequestTarget)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.broker.Reject(ctx, req.ID, "n2")
	assert.ErrorIs(t, err, ErrNotRequestTarget)

	_, err = f.broker.Accept(ctx, "missing", "n1")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestBroker_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	req, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)

	_, err = f.broker.Cancel(ctx, req.ID, "u2")
	assert.ErrorIs(t, err, ErrNotRequestOwner)

	ok, err := f.broker.Cancel(ctx, req.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.broker.Cancel(ctx, req.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionCancelled, *got.Resolution)

	pending, err := f.broker.ListPendingForNutritionist(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBroker_ExpiryIsLazyAndSwept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	req, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)

	pending, err := f.broker.ListPendingForNutritionist(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	f.clock.Advance(15 * time.Minute)

	got, err := f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestEnded, got.Status)
	assert.Equal(t, domain.ResolutionExpired, *got.Resolution)

	list, err := f.broker.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RequestEnded, list[0].Status)

	pending, err = f.broker.ListPendingForNutritionist(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = f.broker.Accept(ctx, req.ID, "n1")
	assert.ErrorIs(t, err, ErrRequestNotPending)
	ok, err := f.broker.Reject(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.broker.ExpireStale(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := repo.GetRequest(ctx, f.db, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestEnded, stored.Status)
	assert.Equal(t, repo.SystemActor, *stored.ResolvedBy)

	n, err = f.broker.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBroker_NotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)
	notifier := &failingNotifier{}
	f.broker.Notifier = notifier
	f.ledger.Notifier = notifier
	f.pub.err = errBroker

	req, err := f.broker.Create(ctx, "u1", "n1", "hi")
	require.NoError(t, err)
	sess, err := f.broker.Accept(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, sess.Status)
	assert.Equal(t, 3, notifier.calls)
}

func TestBroker_TerminalRequestsNeverChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.onboard(t, "n1", "Anna", true)

	req, err := f.broker.Create(ctx, "u1", "n1", "")
	require.NoError(t, err)
	sess, err := f.broker.Accept(ctx, req.ID, "n1")
	require.NoError(t, err)

	ok, err := f.broker.Reject(ctx, req.ID, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.broker.Cancel(ctx, req.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	f.clock.Advance(time.Hour)
	_, err = f.broker.ExpireStale(ctx)
	require.NoError(t, err)

	got, err := f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestActive, got.Status)
	assert.Equal(t, domain.ResolutionAccepted, *got.Resolution)

	_, err = f.sessions.End(ctx, sess.ID, domain.RoleNutritionist, "n1")
	require.NoError(t, err)
	got, err = f.broker.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestActive, got.Status)
}
