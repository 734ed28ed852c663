package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/awardpoll/internal/core/domain"
	"github.com/vncsmyrnk/awardpoll/internal/core/ports"
)

var errStoreDown = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// world is an in-memory durable store shared by the repository fakes.
type world struct {
	mu             sync.Mutex
	voters         map[uuid.UUID]*domain.Voter
	authenticators map[uuid.UUID]int
	contests       map[uuid.UUID]*domain.Contest
	nominees       map[uuid.UUID]*domain.Nominee
	votes          []*domain.Vote
	biases         map[uuid.UUID]*domain.Bias
	audit          []*domain.AuditEntry
	fail           error
	loads          int
}

func newWorld() *world {
	return &world{
		voters:         map[uuid.UUID]*domain.Voter{},
		authenticators: map[uuid.UUID]int{},
		contests:       map[uuid.UUID]*domain.Contest{},
		nominees:       map[uuid.UUID]*domain.Nominee{},
		biases:         map[uuid.UUID]*domain.Bias{},
	}
}

func (w *world) addVoter(role domain.Role, authenticators int) *domain.Voter {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := &domain.Voter{ID: uuid.New(), Subject: uuid.NewString(), Email: "v@example.com", Name: "Voter", Role: role, CreatedAt: time.Now()}
	w.voters[v.ID] = v
	w.authenticators[v.ID] = authenticators
	return v
}

func (w *world) addContest(start, end *time.Time) *domain.Contest {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := &domain.Contest{ID: uuid.New(), Name: "Best Picture", Status: domain.ContestActive, VotingStart: start, VotingEnd: end}
	w.contests[c.ID] = c
	return c
}

func (w *world) addNominee(contestID uuid.UUID) *domain.Nominee {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := &domain.Nominee{ID: uuid.New(), ContestID: contestID, Name: "Nominee", Approval: domain.NomineeApproved, Status: domain.NomineeActive}
	w.nominees[n.ID] = n
	return n
}

func (w *world) voteCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.votes)
}

func (w *world) auditActions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var actions []string
	for _, e := range w.audit {
		actions = append(actions, e.Action)
	}
	return actions
}

func (w *world) loadCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loads
}

type voterRepo struct{ *world }

func (r voterRepo) GetBySubject(_ context.Context, subject string) (*domain.Voter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, v := range r.voters {
		if v.Subject == subject {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r voterRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Voter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	v, ok := r.voters[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r voterRepo) Create(_ context.Context, voter *domain.Voter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, v := range r.voters {
		if v.Subject == voter.Subject {
			return domain.ErrDuplicateEntry
		}
	}
	cp := *voter
	r.voters[voter.ID] = &cp
	return nil
}

func (r voterRepo) UpdateRole(_ context.Context, id uuid.UUID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	v, ok := r.voters[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Role = role
	return nil
}

func (r voterRepo) CountAuthenticators(_ context.Context, voterID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return 0, r.fail
	}
	return r.authenticators[voterID], nil
}

type contestRepo struct{ *world }

func (r contestRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	c, ok := r.contests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r contestRepo) ListActive(_ context.Context) ([]*domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	var out []*domain.Contest
	for _, c := range r.contests {
		if c.Status == domain.ContestActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r contestRepo) GetNominee(_ context.Context, id uuid.UUID) (*domain.Nominee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	n, ok := r.nominees[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

type voteRepo struct{ *world }

func (r voteRepo) Insert(_ context.Context, vote *domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, v := range r.votes {
		if v.VoterID == vote.VoterID && v.ContestID == vote.ContestID {
			return domain.ErrAlreadyVoted
		}
	}
	n, ok := r.nominees[vote.NomineeID]
	if !ok || n.ContestID != vote.ContestID {
		return domain.ErrBadTarget
	}
	cp := *vote
	r.votes = append(r.votes, &cp)
	return nil
}

func (r voteRepo) HasVoted(_ context.Context, voterID, contestID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return false, r.fail
	}
	for _, v := range r.votes {
		if v.VoterID == voterID && v.ContestID == contestID {
			return true, nil
		}
	}
	return false, nil
}

func (r voteRepo) GetByVoterAndContest(_ context.Context, voterID, contestID uuid.UUID) (*domain.Vote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	for _, v := range r.votes {
		if v.VoterID == voterID && v.ContestID == contestID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type biasRepo struct{ *world }

func (r biasRepo) UpsertActive(_ context.Context, bias *domain.Bias) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, b := range r.biases {
		if b.ContestID == bias.ContestID && b.NomineeID == bias.NomineeID && b.Active() {
			b.Amount = bias.Amount
			b.Reason = bias.Reason
			b.AppliedBy = bias.AppliedBy
			b.UpdatedAt = bias.UpdatedAt
			*bias = *b
			return nil
		}
	}
	cp := *bias
	r.biases[bias.ID] = &cp
	return nil
}

func (r biasRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Bias, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	b, ok := r.biases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r biasRepo) Deactivate(_ context.Context, id, by uuid.UUID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return false, r.fail
	}
	b, ok := r.biases[id]
	if !ok || !b.Active() {
		return false, nil
	}
	b.Status = domain.BiasInactive
	b.DeactivatedAt = &at
	b.DeactivatedBy = &by
	b.DeactivationReason = reason
	return true, nil
}

type auditRepo struct{ *world }

func (r auditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.audit = append(r.audit, entry)
	return nil
}

type tallyStore struct{ *world }

func (r tallyStore) LoadTally(_ context.Context, contestID uuid.UUID) (*domain.StoredTally, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.fail != nil {
		return nil, r.fail
	}
	c, ok := r.contests[contestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	t := &domain.StoredTally{Contest: c, Counts: map[uuid.UUID]int64{}, Bias: map[uuid.UUID]int64{}}
	for _, n := range r.nominees {
		if n.EligibleIn(contestID) {
			t.Counts[n.ID] = 0
		}
	}
	for _, v := range r.votes {
		if v.ContestID == contestID {
			t.Counts[v.NomineeID]++
		}
	}
	for _, b := range r.biases {
		if b.ContestID == contestID && b.Active() {
			t.Bias[b.NomineeID] = b.Amount
		}
	}
	return t, nil
}

// memTallyCache follows the versioning rules of the redis tally cache.
type memTallyCache struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*memTallyEntry
	versions map[uuid.UUID]int64
	err      error
	incrErr  error
	degraded bool
	gets     int
}

type memTallyEntry struct {
	counts map[uuid.UUID]int64
	bias   map[uuid.UUID]int64
	stale  bool
}

func newMemTallyCache() *memTallyCache {
	return &memTallyCache{entries: map[uuid.UUID]*memTallyEntry{}, versions: map[uuid.UUID]int64{}}
}

func (c *memTallyCache) Get(_ context.Context, contestID uuid.UUID) (domain.TallySnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return domain.TallySnapshot{}, false, c.err
	}
	e, ok := c.entries[contestID]
	if !ok {
		return domain.TallySnapshot{}, false, nil
	}
	snap := domain.TallySnapshot{Counts: map[uuid.UUID]int64{}, Bias: map[uuid.UUID]int64{}, Stale: e.stale}
	for k, v := range e.counts {
		snap.Counts[k] = v
	}
	for k, v := range e.bias {
		snap.Bias[k] = v
	}
	return snap, true, nil
}

func (c *memTallyCache) Version(_ context.Context, contestID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.versions[contestID], nil
}

func (c *memTallyCache) Increment(_ context.Context, contestID, nomineeID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.incrErr != nil {
		return false, c.incrErr
	}
	c.versions[contestID]++
	e, ok := c.entries[contestID]
	if !ok {
		return false, nil
	}
	e.counts[nomineeID]++
	return true, nil
}

func (c *memTallyCache) Replace(_ context.Context, contestID uuid.UUID, snap domain.TallySnapshot, version int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.versions[contestID] != version {
		return false, nil
	}
	e := &memTallyEntry{counts: map[uuid.UUID]int64{}, bias: map[uuid.UUID]int64{}}
	for k, v := range snap.Counts {
		e.counts[k] = v
	}
	for k, v := range snap.Bias {
		e.bias[k] = v
	}
	c.entries[contestID] = e
	return true, nil
}

func (c *memTallyCache) MarkStale(_ context.Context, contestID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.versions[contestID]++
	if e, ok := c.entries[contestID]; ok {
		e.stale = true
	}
	return nil
}

func (c *memTallyCache) Invalidate(_ context.Context, contestID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.versions[contestID]++
	delete(c.entries, contestID)
	return nil
}

func (c *memTallyCache) Ping(context.Context) error { return c.err }

func (c *memTallyCache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// setCount corrupts one cached counter to simulate a missed write.
func (c *memTallyCache) setCount(contestID, nomineeID uuid.UUID, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[contestID].counts[nomineeID] = n
}

func (c *memTallyCache) seeded(contestID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[contestID]
	return ok
}

func (c *memTallyCache) version(contestID uuid.UUID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[contestID]
}

func (c *memTallyCache) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// hookedStore calls before ahead of each durable read so tests can
// interleave cache writes with it.
type hookedStore struct {
	tallyStore
	before    func()
	lastKnown bool
}

func (s hookedStore) LoadTally(ctx context.Context, contestID uuid.UUID) (*domain.StoredTally, error) {
	if s.before != nil {
		s.before()
	}
	t, err := s.tallyStore.LoadTally(ctx, contestID)
	if err != nil {
		return nil, err
	}
	t.LastKnown = s.lastKnown
	return t, nil
}

type hintRecorder struct {
	mu    sync.Mutex
	hints []uuid.UUID
}

func (h *hintRecorder) Hint(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hints = append(h.hints, id)
}

func (h *hintRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hints)
}

// memCredentialStore mirrors the redis credential store semantics. Errors
// can be injected per operation: "get", "set", "setnx", "delete", "incr".
type memCredentialStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	fail map[string]error
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{data: map[string]string{}, ttls: map[string]time.Duration{}, fail: map[string]error{}}
}

func (s *memCredentialStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *memCredentialStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *memCredentialStore) ttl(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

func (s *memCredentialStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["setnx"]; err != nil {
		return false, err
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *memCredentialStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["set"]; err != nil {
		return err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memCredentialStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["get"]; err != nil {
		return "", false, err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memCredentialStore) Delete(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["delete"]; err != nil {
		return 0, err
	}
	if _, ok := s.data[key]; !ok {
		return 0, nil
	}
	delete(s.data, key)
	delete(s.ttls, key)
	return 1, nil
}

func (s *memCredentialStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail["incr"]; err != nil {
		return 0, err
	}
	n, _ := strconv.ParseInt(s.data[key], 10, 64)
	n++
	if n == 1 {
		s.ttls[key] = ttl
	}
	s.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *memCredentialStore) Ping(context.Context) error { return s.fail["get"] }

type fakeTokenVerifier struct {
	identities map[string]*domain.Identity
	err        error
}

func (f *fakeTokenVerifier) Verify(_ context.Context, token, _ string) (*domain.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.identities[token]
	if !ok {
		return nil, errors.New("idtoken: invalid token")
	}
	return id, nil
}

type fakeAuthenticator struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeAuthenticator) VerifyAssertion(context.Context, uuid.UUID, string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeMediaStore struct {
	err  error
	keys []string
}

func (f *fakeMediaStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://media.example.com/" + key + "?X-Amz-Expires=" + strconv.Itoa(int(ttl.Seconds())), nil
}

var (
	_ ports.VoterRepository       = voterRepo{}
	_ ports.ContestRepository     = contestRepo{}
	_ ports.VoteRepository        = voteRepo{}
	_ ports.BiasRepository        = biasRepo{}
	_ ports.AuditRepository       = auditRepo{}
	_ ports.TallyStore            = tallyStore{}
	_ ports.TallyCache            = (*memTallyCache)(nil)
	_ ports.CredentialStore       = (*memCredentialStore)(nil)
	_ ports.TokenVerifier         = (*fakeTokenVerifier)(nil)
	_ ports.AuthenticatorVerifier = (*fakeAuthenticator)(nil)
	_ ports.MediaStore            = (*fakeMediaStore)(nil)
)

func timePtr(t time.Time) *time.Time { return &t }
