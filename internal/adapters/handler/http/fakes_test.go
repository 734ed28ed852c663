package http

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

type fakeSessions struct {
	tokens map[string]*domain.AccessPayload
}

func (f *fakeSessions) MintPair(context.Context, *domain.Voter) (*domain.TokenPair, error) {
	return nil, domain.ErrInternal
}

func (f *fakeSessions) VerifyAccess(_ context.Context, token string) (*domain.AccessPayload, error) {
	if p, ok := f.tokens[token]; ok {
		return p, nil
	}
	return nil, domain.ErrInvalidToken
}

func (f *fakeSessions) VerifyRefresh(context.Context, string) (*domain.RefreshPayload, error) {
	return nil, domain.ErrInvalidToken
}

func (f *fakeSessions) RefreshSubject(string) (uuid.UUID, error) {
	return uuid.Nil, domain.ErrInvalidToken
}

func (f *fakeSessions) Rotate(context.Context, string, *domain.Voter, domain.RotationContext) (*domain.TokenPair, error) {
	return nil, domain.ErrInvalidToken
}

func (f *fakeSessions) RevokeFamily(context.Context, string, string) error { return nil }

func (f *fakeSessions) RevokeIndividual(context.Context, string, time.Duration, string) error {
	return nil
}

type fakeAuth struct {
	session   *domain.Session
	pair      *domain.TokenPair
	err       error
	origin    string
	rotated   string
	revoked   []string
	revokeErr error
}

func (f *fakeAuth) ExchangeCode(_ context.Context, _ string, origin string) (*domain.Session, error) {
	f.origin = origin
	return f.session, f.err
}

func (f *fakeAuth) Rotate(_ context.Context, token string, rc domain.RotationContext) (*domain.TokenPair, error) {
	f.rotated = token
	f.origin = rc.Origin
	return f.pair, f.err
}

func (f *fakeAuth) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.revokeErr
}

type fakeVotes struct {
	mu        sync.Mutex
	inputs    []ports.VoteInput
	err       error
	panicOnce bool
}

func (f *fakeVotes) SubmitVote(_ context.Context, input ports.VoteInput) (*domain.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.panicOnce {
		f.panicOnce = false
		panic("vote store exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Vote{
		ID:        uuid.New(),
		VoterID:   input.Voter.ID,
		ContestID: input.ContestID,
		NomineeID: input.NomineeID,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeVotes) CheckVoted(context.Context, uuid.UUID, uuid.UUID) (*domain.VoteSummary, error) {
	return &domain.VoteSummary{Voted: false}, nil
}

func (f *fakeVotes) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeGate struct {
	result    domain.BiometricResult
	assertion string
}

func (f *fakeGate) Check(_ context.Context, _ uuid.UUID, assertion string) (domain.BiometricResult, error) {
	f.assertion = assertion
	return f.result, nil
}

type fakeTally struct {
	entries []domain.TallyEntry
	results []domain.ContestResult
	err     error
}

func (f *fakeTally) GetTally(context.Context, uuid.UUID) ([]domain.TallyEntry, error) {
	return f.entries, f.err
}

func (f *fakeTally) ListResults(context.Context) ([]domain.ContestResult, error) {
	return f.results, f.err
}

func (f *fakeTally) ClearTallyCache(context.Context, uuid.UUID) error { return nil }

type fakeBias struct {
	input       ports.ApplyBiasInput
	deactivated uuid.UUID
}

func (f *fakeBias) ApplyBias(_ context.Context, input ports.ApplyBiasInput) (*domain.Bias, error) {
	f.input = input
	return &domain.Bias{ID: uuid.New(), ContestID: input.ContestID, NomineeID: input.NomineeID, Amount: input.Amount}, nil
}

func (f *fakeBias) DeactivateBias(_ context.Context, _ domain.Caller, biasID uuid.UUID, _ string) error {
	f.deactivated = biasID
	return nil
}

type fakeUsers struct {
	voter *domain.Voter
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.Voter, error) {
	if f.voter == nil || f.voter.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.voter, nil
}

func (f *fakeUsers) UpdateRole(_ context.Context, _ domain.Caller, voterID uuid.UUID, role domain.Role) (*domain.Voter, error) {
	return &domain.Voter{ID: voterID, Role: role}, nil
}

type fakeMedia struct{}

func (fakeMedia) NomineeMediaURL(context.Context, uuid.UUID, uuid.UUID) (*domain.MediaURL, error) {
	return &domain.MediaURL{URL: "https://media.example.com/n1.jpg", ExpiresAt: time.Now().Add(time.Minute)}, nil
}

type memIdempotency struct {
	mu      sync.Mutex
	records map[string]*domain.RecordedResponse
	ttls    map[string]time.Duration
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{records: make(map[string]*domain.RecordedResponse), ttls: make(map[string]time.Duration)}
}

func (m *memIdempotency) Reserve(_ context.Context, scope string, ttl time.Duration) (*domain.RecordedResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[scope]; ok {
		return rec, false, nil
	}
	m.records[scope] = &domain.RecordedResponse{Pending: true}
	m.ttls[scope] = ttl
	return nil, true, nil
}

func (m *memIdempotency) Complete(_ context.Context, scope string, resp *domain.RecordedResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[scope] = resp
	m.ttls[scope] = ttl
	return nil
}

func (m *memIdempotency) Release(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, scope)
	delete(m.ttls, scope)
	return nil
}

func (m *memIdempotency) state(scope string) (*domain.RecordedResponse, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[scope]
	return rec, m.ttls[scope], ok
}

type reserveSpy struct {
	*memIdempotency
	reserveTTL time.Duration
}

func (s *reserveSpy) Reserve(ctx context.Context, scope string, ttl time.Duration) (*domain.RecordedResponse, bool, error) {
	s.reserveTTL = ttl
	return s.memIdempotency.Reserve(ctx, scope, ttl)
}

var (
	_ ports.SessionService   = (*fakeSessions)(nil)
	_ ports.AuthService      = (*fakeAuth)(nil)
	_ ports.VoteService      = (*fakeVotes)(nil)
	_ ports.BiometricGate    = (*fakeGate)(nil)
	_ ports.TallyService     = (*fakeTally)(nil)
	_ ports.BiasService      = (*fakeBias)(nil)
	_ ports.UserService      = (*fakeUsers)(nil)
	_ ports.MediaService     = fakeMedia{}
	_ ports.IdempotencyStore = (*memIdempotency)(nil)
)
