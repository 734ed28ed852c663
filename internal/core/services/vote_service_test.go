package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type voteFixture struct {
	votes   ports.VoteService
	tally   ports.TallyService
	world   *world
	cache   *memTallyCache
	hints   *hintRecorder
	contest *domain.Contest
	nominee *domain.Nominee
	voter   domain.Caller
}

func newVoteFixture(t *testing.T) *voteFixture {
	t.Helper()
	w := newWorld()
	cache := newMemTallyCache()
	hints := &hintRecorder{}
	now := time.Now()
	contest := w.addContest(timePtr(now.Add(-time.Hour)), timePtr(now.Add(time.Hour)))
	nominee := w.addNominee(contest.ID)
	voter := w.addVoter(domain.RoleBasic, 1)

	return &voteFixture{
		votes:   NewVoteService(contestRepo{w}, voteRepo{w}, cache, hints, NewOriginHasher([]byte("salt")), zerolog.Nop(), nil),
		tally:   NewTallyService(contestRepo{w}, tallyStore{w}, cache, zerolog.Nop()),
		world:   w,
		cache:   cache,
		hints:   hints,
		contest: contest,
		nominee: nominee,
		voter:   domain.Caller{ID: voter.ID, Role: voter.Role},
	}
}

func (f *voteFixture) input() ports.VoteInput {
	return ports.VoteInput{
		Voter:     f.voter,
		ContestID: f.contest.ID,
		NomineeID: f.nominee.ID,
		Biometric: domain.BiometricVerified,
		Origin:    "203.0.113.5",
	}
}

func TestSubmitVoteHappyPath(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()

	// 1. First vote is recorded
	vote, err := f.votes.SubmitVote(ctx, f.input())
	require.NoError(t, err)
	assert.True(t, vote.BiometricVerified)
	assert.NotEqual(t, "203.0.113.5", vote.OriginHash)
	assert.NotEmpty(t, vote.OriginHash)

	// 2. Tally reflects it
	tally, err := f.tally.GetTally(ctx, f.contest.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.TallyEntry{{NomineeID: f.nominee.ID, Count: 1}}, tally)

	// 3. Second vote is rejected
	_, err = f.votes.SubmitVote(ctx, f.input())
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	assert.Equal(t, 1, f.world.voteCount())

	// 4. The voter can see their vote
	summary, err := f.votes.CheckVoted(ctx, f.voter.ID, f.contest.ID)
	require.NoError(t, err)
	assert.True(t, summary.Voted)
	assert.Equal(t, f.nominee.ID, *summary.NomineeID)
}

func TestSubmitVoteIncrementsSeededCache(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()

	_, err := f.tally.GetTally(ctx, f.contest.ID)
	require.NoError(t, err)
	require.True(t, f.cache.seeded(f.contest.ID))

	_, err = f.votes.SubmitVote(ctx, f.input())
	require.NoError(t, err)

	snap, found, err := f.cache.Get(ctx, f.contest.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), snap.Counts[f.nominee.ID])
	assert.Equal(t, 0, f.hints.count())
}

func TestSubmitVoteRace(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.votes.SubmitVote(ctx, f.input())
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyVoted)
	}
	assert.Equal(t, 1, ok)

	tally, err := f.tally.GetTally(ctx, f.contest.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.TallyEntry{{NomineeID: f.nominee.ID, Count: 1}}, tally)
}

func TestSubmitVoteWindowClosed(t *testing.T) {
	f := newVoteFixture(t)
	closed := f.world.addContest(timePtr(time.Now().Add(-time.Hour)), timePtr(time.Now().Add(-time.Second)))
	nominee := f.world.addNominee(closed.ID)

	in := f.input()
	in.ContestID, in.NomineeID = closed.ID, nominee.ID

	_, err := f.votes.SubmitVote(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrWindowClosed)
	assert.Equal(t, 0, f.world.voteCount())
	assert.Zero(t, f.cache.version(closed.ID))
}

func TestSubmitVoteCheckOrder(t *testing.T) {
	f := newVoteFixture(t)
	closed := f.world.addContest(nil, timePtr(time.Now().Add(-time.Minute)))
	other := f.world.addContest(nil, nil)
	foreign := f.world.addNominee(other.ID)
	pending := f.world.addNominee(f.contest.ID)
	pending.Approval = domain.NomineePending

	tests := []struct {
		name   string
		modify func(in *ports.VoteInput)
		want   *domain.Error
	}{
		{
			name:   "unknown role",
			modify: func(in *ports.VoteInput) { in.Voter.Role = "guest"; in.ContestID = closed.ID },
			want:   domain.ErrForbidden,
		},
		{
			name:   "biometric missing before window",
			modify: func(in *ports.VoteInput) { in.Biometric = domain.BiometricMissing; in.ContestID = closed.ID },
			want:   domain.ErrBiometricRequired,
		},
		{
			name:   "authenticator not registered",
			modify: func(in *ports.VoteInput) { in.Biometric = domain.BiometricSetupRequired },
			want:   domain.ErrBiometricSetupRequired,
		},
		{
			name:   "unknown contest",
			modify: func(in *ports.VoteInput) { in.ContestID = uuid.New() },
			want:   domain.ErrWindowClosed,
		},
		{
			name:   "window closed before target check",
			modify: func(in *ports.VoteInput) { in.ContestID = closed.ID; in.NomineeID = uuid.New() },
			want:   domain.ErrWindowClosed,
		},
		{
			name:   "unknown nominee",
			modify: func(in *ports.VoteInput) { in.NomineeID = uuid.New() },
			want:   domain.ErrBadTarget,
		},
		{
			name:   "nominee of another contest",
			modify: func(in *ports.VoteInput) { in.NomineeID = foreign.ID },
			want:   domain.ErrBadTarget,
		},
		{
			name:   "nominee not approved",
			modify: func(in *ports.VoteInput) { in.NomineeID = pending.ID },
			want:   domain.ErrBadTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input()
			tt.modify(&in)
			_, err := f.votes.SubmitVote(context.Background(), in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.world.voteCount())
}

func TestSubmitVoteBiometricSkipped(t *testing.T) {
	f := newVoteFixture(t)
	in := f.input()
	in.Biometric = domain.BiometricSkipped

	vote, err := f.votes.SubmitVote(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, vote.BiometricVerified)
}

func TestSubmitVoteSurvivesCacheFailure(t *testing.T) {
	f := newVoteFixture(t)
	ctx := context.Background()

	// 1. Seed the cache, then make increments fail
	_, err := f.tally.GetTally(ctx, f.contest.ID)
	require.NoError(t, err)
	f.cache.incrErr = errors.New("i/o timeout")

	// 2. The vote still lands and a repair is requested
	_, err = f.votes.SubmitVote(ctx, f.input())
	require.NoError(t, err)
	assert.Equal(t, 1, f.world.voteCount())
	assert.Equal(t, 1, f.hints.count())

	snap, found, err := f.cache.Get(ctx, f.contest.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, snap.Stale)

	// 3. Readers skip the stale cache
	tally, err := f.tally.GetTally(ctx, f.contest.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.TallyEntry{{NomineeID: f.nominee.ID, Count: 1}}, tally)
}

func TestSubmitVoteCacheDown(t *testing.T) {
	f := newVoteFixture(t)
	f.cache.setErr(domain.ErrCacheUnavailable)

	_, err := f.votes.SubmitVote(context.Background(), f.input())
	require.NoError(t, err)
	assert.Equal(t, 1, f.hints.count())
}

func TestCheckVotedNone(t *testing.T) {
	f := newVoteFixture(t)

	summary, err := f.votes.CheckVoted(context.Background(), f.voter.ID, f.contest.ID)
	require.NoError(t, err)
	assert.False(t, summary.Voted)
	assert.Nil(t, summary.VoteID)
}
