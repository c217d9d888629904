package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyjudge/apiserver/internal/judge"
	"github.com/dailyjudge/apiserver/internal/storage"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
	"go.uber.org/zap"
)

type memProblems struct {
	mu       sync.Mutex
	problems map[int]types.Problem
}

func newMemProblems(problems ...types.Problem) *memProblems {
	repo := &memProblems{problems: map[int]types.Problem{}}
	for _, p := range problems {
		repo.problems[p.ID] = p
	}
	return repo
}

func (r *memProblems) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, 0, len(r.problems))
	for id := range r.problems {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := []types.Problem{}
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		out = append(out, r.problems[ids[i]])
	}
	return out, len(ids), nil
}

func (r *memProblems) Get(ctx context.Context, id int) (types.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	return p, nil
}

func (r *memProblems) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	problem.ID = len(r.problems) + 1
	r.problems[problem.ID] = problem
	return problem, nil
}

func (r *memProblems) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.problems[problem.ID]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	problem.Stats = existing.Stats
	r.problems[problem.ID] = problem
	return problem, nil
}

func (r *memProblems) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.problems[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.problems, id)
	return nil
}

func (r *memProblems) UpdateStats(ctx context.Context, id int, fn func(stats *types.ProblemStats) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(&p.Stats); err != nil {
		return err
	}
	r.problems[id] = p
	return nil
}

func (r *memProblems) ListIDsByDifficulty(ctx context.Context, difficulty types.Difficulty, exclude []int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skip := map[int]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var ids []int
	for id, p := range r.problems {
		if skip[id] || (difficulty != "" && p.Difficulty != difficulty) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *memProblems) stats(id int) types.ProblemStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.problems[id].Stats
}

type memSubmissions struct {
	mu          sync.Mutex
	nextID      int64
	submissions map[int64]types.Submission
	// afterGetDraft runs, unlocked, after GetDraft found a draft.
	afterGetDraft func()
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{submissions: map[int64]types.Submission{}}
}

func (r *memSubmissions) Get(ctx context.Context, id int64) (types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return types.Submission{}, store.ErrNotFound
	}
	return s, nil
}

func (r *memSubmissions) GetDraft(ctx context.Context, userID, problemID int) (types.Submission, error) {
	draft, err := r.findDraft(userID, problemID)
	if err == nil && r.afterGetDraft != nil {
		r.afterGetDraft()
	}
	return draft, err
}

func (r *memSubmissions) findDraft(userID, problemID int) (types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.UserID == userID && s.ProblemID == problemID && s.Verdict == types.VerdictDraft {
			return s, nil
		}
	}
	return types.Submission{}, store.ErrNotFound
}

func (r *memSubmissions) SaveDraftCode(ctx context.Context, id int64, code string, language types.Language) (types.Submission, error) {
	return r.rewriteDraft(id, code, language, types.SubmissionKindSubmit, types.VerdictDraft)
}

func (r *memSubmissions) PromoteDraft(ctx context.Context, id int64, code string, language types.Language, kind types.SubmissionKind) (types.Submission, error) {
	return r.rewriteDraft(id, code, language, kind, types.VerdictPending)
}

func (r *memSubmissions) rewriteDraft(id int64, code string, language types.Language, kind types.SubmissionKind, verdict types.Verdict) (types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.submissions[id]
	if !ok || existing.Verdict != types.VerdictDraft {
		return types.Submission{}, store.ErrNotFound
	}
	existing.Code = code
	existing.Language = language
	existing.Kind = kind
	existing.Verdict = verdict
	existing.UpdatedAt = time.Now()
	r.submissions[id] = existing
	return existing, nil
}

func (r *memSubmissions) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	submission.ID = r.nextID
	submission.CreatedAt = time.Now()
	submission.UpdatedAt = submission.CreatedAt
	r.submissions[submission.ID] = submission
	return submission, nil
}

func (r *memSubmissions) Update(ctx context.Context, submission types.Submission) (types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.submissions[submission.ID]
	if !ok {
		return types.Submission{}, store.ErrNotFound
	}
	if existing.Verdict != types.VerdictPending {
		return types.Submission{}, store.ErrImmutable
	}
	submission.CreatedAt = existing.CreatedAt
	submission.UpdatedAt = time.Now()
	r.submissions[submission.ID] = submission
	return submission, nil
}

func (r *memSubmissions) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.submissions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.submissions, id)
	return nil
}

func (r *memSubmissions) sorted(keep func(types.Submission) bool) []types.Submission {
	out := []types.Submission{}
	for _, s := range r.submissions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *memSubmissions) ListByUserProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(func(s types.Submission) bool {
		return s.UserID == userID && s.ProblemID == problemID && s.Verdict != types.VerdictDraft
	}), nil
}

func (r *memSubmissions) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.Submission, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(func(s types.Submission) bool {
		return s.UserID == userID && s.Verdict != types.VerdictDraft
	})
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (r *memSubmissions) AcceptedProblemIDs(ctx context.Context, userID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[int]bool{}
	ids := []int{}
	for _, s := range r.submissions {
		if s.UserID == userID && s.Accepted && !seen[s.ProblemID] {
			seen[s.ProblemID] = true
			ids = append(ids, s.ProblemID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *memSubmissions) earlierAccepted(userID, problemID int, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.UserID == userID && s.ProblemID == problemID && s.Accepted && s.ID < id {
			return true
		}
	}
	return false
}

func (r *memSubmissions) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submissions)
}

// memUsers serialises ApplyVerdict per repository, standing in for the row lock.
type memUsers struct {
	mu          sync.Mutex
	users       map[int]types.User
	solved      map[[2]int]int64
	submissions *memSubmissions
}

func newMemUsers(submissions *memSubmissions, users ...types.User) *memUsers {
	repo := &memUsers{users: map[int]types.User{}, solved: map[[2]int]int64{}, submissions: submissions}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memUsers) GetByID(ctx context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *memUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = len(r.users) + 1
	r.users[user.ID] = user
	return user, nil
}

func (r *memUsers) Update(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUsers) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *memUsers) ApplyVerdict(
	ctx context.Context,
	userID, problemID int,
	submissionID int64,
	accepted bool,
	fn func(stats *types.UserStats, firstAcceptance bool) error,
) (types.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return types.UserStats{}, store.ErrNotFound
	}
	first := false
	key := [2]int{userID, problemID}
	if accepted {
		if _, done := r.solved[key]; !done && !r.submissions.earlierAccepted(userID, problemID, submissionID) {
			r.solved[key] = submissionID
			first = true
		}
	}
	stats := u.Stats
	if err := fn(&stats, first); err != nil {
		return types.UserStats{}, err
	}
	u.Stats = stats
	r.users[userID] = u
	return stats, nil
}

func (r *memUsers) TopByRankPoints(ctx context.Context, n int) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Stats.RankPoints != users[j].Stats.RankPoints {
			return users[i].Stats.RankPoints > users[j].Stats.RankPoints
		}
		return users[i].ID < users[j].ID
	})
	if len(users) > n {
		users = users[:n]
	}
	return users, nil
}

func (r *memUsers) stats(id int) types.UserStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].Stats
}

// memChallenges applies Update atomically under one lock, like a single
// document update.
type memChallenges struct {
	mu         sync.Mutex
	nextID     int
	challenges map[time.Time]types.DailyChallenge
}

func newMemChallenges(challenges ...types.DailyChallenge) *memChallenges {
	repo := &memChallenges{challenges: map[time.Time]types.DailyChallenge{}}
	for _, c := range challenges {
		repo.nextID++
		c.ID = repo.nextID
		c.Date = types.StartOfDayUTC(c.Date)
		repo.challenges[c.Date] = c
	}
	return repo
}

func (r *memChallenges) GetByDate(ctx context.Context, date time.Time) (types.DailyChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[types.StartOfDayUTC(date)]
	if !ok {
		return types.DailyChallenge{}, store.ErrNotFound
	}
	return cloneChallenge(c), nil
}

func (r *memChallenges) Create(ctx context.Context, challenge types.DailyChallenge) (types.DailyChallenge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := types.StartOfDayUTC(challenge.Date)
	if existing, ok := r.challenges[day]; ok {
		return cloneChallenge(existing), false, nil
	}
	r.nextID++
	challenge.ID = r.nextID
	challenge.Date = day
	challenge.Version = 1
	r.challenges[day] = cloneChallenge(challenge)
	return challenge, true, nil
}

func (r *memChallenges) Update(
	ctx context.Context,
	date time.Time,
	fn func(challenge *types.DailyChallenge) (bool, error),
) (types.DailyChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := types.StartOfDayUTC(date)
	c, ok := r.challenges[day]
	if !ok {
		return types.DailyChallenge{}, store.ErrNotFound
	}
	c = cloneChallenge(c)
	changed, err := fn(&c)
	if err != nil {
		return types.DailyChallenge{}, err
	}
	if changed {
		c.Version++
		r.challenges[day] = cloneChallenge(c)
	}
	return c, nil
}

func (r *memChallenges) RecentProblemIDs(ctx context.Context, since time.Time) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := []int{}
	for day, c := range r.challenges {
		if !day.Before(types.StartOfDayUTC(since)) {
			ids = append(ids, c.ProblemID)
		}
	}
	return ids, nil
}

func (r *memChallenges) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for day, c := range r.challenges {
		if c.IsActive && !now.Before(c.ExpiresAt) {
			c.IsActive = false
			r.challenges[day] = c
			n++
		}
	}
	return n, nil
}

func (r *memChallenges) get(date time.Time) types.DailyChallenge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneChallenge(r.challenges[types.StartOfDayUTC(date)])
}

func cloneChallenge(c types.DailyChallenge) types.DailyChallenge {
	c.Completions = append([]types.ChallengeCompletion(nil), c.Completions...)
	c.Leaderboard = append([]types.LeaderboardEntry(nil), c.Leaderboard...)
	return c
}

// fakeJudge returns results in order, repeating the last one.
type fakeJudge struct {
	mu         sync.Mutex
	results    []judge.Result
	submitErr  error
	awaitErr   error
	submitted  []judge.Submission
	submits    int32
	nextResult int
}

func acceptedResult() judge.Result {
	return judge.Result{
		Status:   judge.Status{ID: judge.StatusAccepted, Description: "Accepted"},
		Stdout:   "3\n",
		TimeMs:   12,
		MemoryKb: 3120,
		Accepted: true,
	}
}

func resultWithStatus(id int) judge.Result {
	return judge.Result{Status: judge.Status{ID: id, Description: judge.Describe(id)}}
}

func (j *fakeJudge) Submit(ctx context.Context, sub judge.Submission) (string, error) {
	atomic.AddInt32(&j.submits, 1)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.submitErr != nil {
		return "", j.submitErr
	}
	j.submitted = append(j.submitted, sub)
	return "tok", nil
}

func (j *fakeJudge) Await(ctx context.Context, token string) (judge.Result, error) {
	if err := ctx.Err(); err != nil {
		return judge.Result{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.awaitErr != nil {
		return judge.Result{}, j.awaitErr
	}
	if len(j.results) == 0 {
		return acceptedResult(), nil
	}
	result := j.results[j.nextResult]
	if j.nextResult < len(j.results)-1 {
		j.nextResult++
	}
	return result, nil
}

func (j *fakeJudge) Execute(ctx context.Context, sub judge.Submission) (string, judge.Result, error) {
	token, err := j.Submit(ctx, sub)
	if err != nil {
		return "", judge.Result{}, err
	}
	result, err := j.Await(ctx, token)
	return token, result, err
}

func (j *fakeJudge) submitCount() int {
	return int(atomic.LoadInt32(&j.submits))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SubmissionEvaluatedEvent
	err    error
}

func (p *recordingPublisher) PublishEvaluated(ctx context.Context, event SubmissionEvaluatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingCache struct {
	mu     sync.Mutex
	points map[int]int
	err    error
}

func (c *recordingCache) Update(ctx context.Context, userID, points int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.points == nil {
		c.points = map[int]int{}
	}
	c.points[userID] = points
	return nil
}

func (c *recordingCache) Remove(ctx context.Context, userID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.points, userID)
	return nil
}

func (c *recordingCache) Replace(ctx context.Context, points map[int]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.points = make(map[int]int, len(points))
	for userID, p := range points {
		c.points[userID] = p
	}
	return nil
}

type recordingObjects struct {
	mu      sync.Mutex
	objects map[string]storage.Object
}

func (o *recordingObjects) Put(ctx context.Context, obj storage.Object) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.objects == nil {
		o.objects = map[string]storage.Object{}
	}
	o.objects[obj.Key] = obj
	return nil
}

// fixture wires an EvaluationService to in-memory collaborators.
type fixture struct {
	problems    *memProblems
	submissions *memSubmissions
	users       *memUsers
	challenges  *memChallenges
	judge       *fakeJudge
	events      *recordingPublisher
	cache       *recordingCache
	daily       *DailyChallengeService
	evaluation  *EvaluationService
	now         time.Time
}

var (
	easyProblem  = types.Problem{ID: 1, Title: "Sum", Difficulty: types.DifficultyEasy, SampleInput: "1 2", SampleOutput: "3"}
	hardProblem  = types.Problem{ID: 2, Title: "Flow", Difficulty: types.DifficultyHard, SampleInput: "x", SampleOutput: "y"}
	learner      = types.User{ID: 10, Username: "ada", Role: types.RoleUser}
	otherLearner = types.User{ID: 11, Username: "linus", Role: types.RoleUser}
	admin        = types.User{ID: 20, Username: "root", Role: types.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	f := &fixture{
		problems:    newMemProblems(easyProblem, hardProblem),
		submissions: newMemSubmissions(),
		judge:       &fakeJudge{},
		events:      &recordingPublisher{},
		cache:       &recordingCache{},
		now:         now,
	}
	f.users = newMemUsers(f.submissions, learner, otherLearner, admin)
	f.challenges = newMemChallenges(types.DailyChallenge{
		Date:       now,
		ProblemID:  easyProblem.ID,
		Difficulty: easyProblem.Difficulty,
		IsActive:   true,
		ExpiresAt:  types.StartOfDayUTC(now).Add(24 * time.Hour),
	})

	logger := zap.NewNop()
	userStats := NewUserStatsService(f.users, f.problems, f.cache, logger)
	userStats.now = func() time.Time { return f.now }
	f.daily = NewDailyChallengeService(f.challenges, f.problems, logger)
	f.daily.now = func() time.Time { return f.now }

	f.evaluation = NewEvaluationService(EvaluationDeps{
		Problems:     f.problems,
		Users:        f.users,
		Submissions:  f.submissions,
		Judge:        f.judge,
		UserStats:    userStats,
		ProblemStats: NewProblemStatsService(f.problems, logger),
		Challenges:   f.daily,
		Events:       f.events,
		Logger:       logger,
	})
	return f
}

func (f *fixture) request(user types.User, problem types.Problem) EvaluationRequest {
	return EvaluationRequest{
		UserID:    user.ID,
		ProblemID: problem.ID,
		Code:      "print(sum(map(int, input().split())))",
		Language:  types.LanguagePython,
	}
}
