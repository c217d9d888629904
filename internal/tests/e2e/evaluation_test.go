//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID int `json:"id"`
	} `json:"user"`
}

type problemResponse struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type submissionResponse struct {
	ID             int64  `json:"id"`
	Verdict        string `json:"verdict"`
	Accepted       bool   `json:"accepted"`
	DisplayVerdict string `json:"display_verdict"`
}

type meResponse struct {
	ID    int `json:"id"`
	Stats struct {
		SolvedProblemsCount      int `json:"solved_problems_count"`
		TotalSubmissionsCount    int `json:"total_submissions_count"`
		AcceptedSubmissionsCount int `json:"accepted_submissions_count"`
		EasyProblemsSolved       int `json:"easy_problems_solved"`
		CurrentStreak            int `json:"current_streak"`
	} `json:"stats"`
}

type challengeResponse struct {
	Problem struct {
		ID int `json:"id"`
	} `json:"problem"`
	Challenge struct {
		TotalCompletions int `json:"total_completions"`
		Leaderboard      []struct {
			UserID int `json:"user_id"`
			Rank   int `json:"rank"`
		} `json:"leaderboard"`
	} `json:"challenge"`
}

type todayResponse struct {
	Problem struct {
		ID int `json:"id"`
	} `json:"problem"`
	Completed bool `json:"completed"`
	Rank      int  `json:"rank"`
}

func TestEvaluationLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	admin := register(t, fmt.Sprintf("admin_%d", suffix))
	learner := register(t, fmt.Sprintf("learner_%d", suffix))
	promoteToAdmin(t, admin.User.ID)

	var problem problemResponse
	doJSON(t, http.MethodPost, "/problems", admin.Token, map[string]any{
		"title":         "Sum of Two",
		"description":   "Print a+b.",
		"difficulty":    "Easy",
		"sample_input":  "1 2\n",
		"sample_output": "3\n",
		"time_limit":    1000,
		"memory_limit":  256 << 10,
		"tags":          []string{"math"},
	}, http.StatusCreated, &problem)
	if problem.ID == 0 {
		t.Fatalf("expected problem id to be set")
	}

	var today todayResponse
	doJSON(t, http.MethodGet, "/daily-challenge/today", learner.Token, nil, http.StatusOK, &today)
	if today.Problem.ID != problem.ID {
		t.Fatalf("expected the only problem to be featured, got %d", today.Problem.ID)
	}
	if today.Completed {
		t.Fatalf("expected challenge to be open for the learner")
	}

	var wrong submissionResponse
	submit(t, learner.Token, problem.ID, "print(4)", &wrong)
	if wrong.Verdict != "Wrong Answer" || wrong.Accepted {
		t.Fatalf("unexpected verdict %q", wrong.Verdict)
	}

	var first submissionResponse
	submit(t, learner.Token, problem.ID, "# correct\nprint(sum(map(int, input().split())))", &first)
	if first.Verdict != "Accepted" || !first.Accepted {
		t.Fatalf("unexpected verdict %q", first.Verdict)
	}

	var again submissionResponse
	submit(t, learner.Token, problem.ID, "# correct again\nprint(3)", &again)
	if again.Verdict != "Accepted" {
		t.Fatalf("unexpected verdict %q", again.Verdict)
	}

	var me meResponse
	doJSON(t, http.MethodGet, "/auth/me", learner.Token, nil, http.StatusOK, &me)
	if me.Stats.SolvedProblemsCount != 1 || me.Stats.EasyProblemsSolved != 1 {
		t.Fatalf("expected one solved problem, got %+v", me.Stats)
	}
	if me.Stats.TotalSubmissionsCount != 3 || me.Stats.AcceptedSubmissionsCount != 2 {
		t.Fatalf("unexpected submission counters %+v", me.Stats)
	}
	if me.Stats.CurrentStreak != 1 {
		t.Fatalf("expected a one day streak, got %d", me.Stats.CurrentStreak)
	}

	doJSON(t, http.MethodGet, "/daily-challenge/today", learner.Token, nil, http.StatusOK, &today)
	if !today.Completed || today.Rank != 1 {
		t.Fatalf("expected rank 1 completion, got %+v", today)
	}

	var accepted struct {
		ProblemIDs []int `json:"problem_ids"`
	}
	doJSON(t, http.MethodGet, "/submissions/accepted", learner.Token, nil, http.StatusOK, &accepted)
	if len(accepted.ProblemIDs) != 1 || accepted.ProblemIDs[0] != problem.ID {
		t.Fatalf("unexpected accepted problems %v", accepted.ProblemIDs)
	}

	var history struct {
		Items []submissionResponse `json:"items"`
		Total int                  `json:"total"`
	}
	doJSON(t, http.MethodGet, "/submissions/history", learner.Token, nil, http.StatusOK, &history)
	if history.Total != 3 || history.Items[0].ID != again.ID {
		t.Fatalf("unexpected history total=%d", history.Total)
	}

	// Another user cannot read the learner's submission.
	doJSON(t, http.MethodGet, fmt.Sprintf("/submissions/%d", first.ID), register(t, fmt.Sprintf("peer_%d", suffix)).Token, nil, http.StatusNotFound, nil)

	var testRun submissionResponse
	submit(t, admin.Token, problem.ID, "# correct\nprint(3)", &testRun)
	if testRun.DisplayVerdict != "Test - Accepted" || testRun.ID != 0 {
		t.Fatalf("expected an unpersisted test run, got %+v", testRun)
	}

	var board struct {
		Items []struct {
			UserID int `json:"user_id"`
		} `json:"items"`
	}
	doJSON(t, http.MethodGet, "/leaderboard?limit=50", "", nil, http.StatusOK, &board)
	found := false
	for _, item := range board.Items {
		found = found || item.UserID == learner.User.ID
	}
	if !found {
		t.Fatalf("expected learner on the leaderboard")
	}
}

func TestConcurrentAcceptancesCreditOneSolve(t *testing.T) {
	const submits = 8
	suffix := time.Now().UnixNano()
	admin := register(t, fmt.Sprintf("cadmin_%d", suffix))
	promoteToAdmin(t, admin.User.ID)
	learner := register(t, fmt.Sprintf("racer_%d", suffix))

	var problem problemResponse
	doJSON(t, http.MethodPost, "/problems", admin.Token, map[string]any{
		"title":         fmt.Sprintf("Race %d", suffix),
		"description":   "Print a+b.",
		"difficulty":    "Medium",
		"sample_input":  "1 2\n",
		"sample_output": "3\n",
		"time_limit":    1000,
		"memory_limit":  256 << 10,
	}, http.StatusCreated, &problem)

	errs := make(chan error, submits)
	var wg sync.WaitGroup
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out submissionResponse
			err := requestJSON(http.MethodPost, "/submissions", learner.Token, map[string]any{
				"problem_id": problem.ID,
				"code":       fmt.Sprintf("# correct %d\nprint(3)", i),
				"language":   "python",
			}, http.StatusOK, &out)
			if err == nil && out.Verdict != "Accepted" {
				err = fmt.Errorf("submission %d verdict %q", out.ID, out.Verdict)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	var me meResponse
	doJSON(t, http.MethodGet, "/auth/me", learner.Token, nil, http.StatusOK, &me)
	if me.Stats.SolvedProblemsCount != 1 {
		t.Fatalf("expected exactly one solve credited, got %d", me.Stats.SolvedProblemsCount)
	}
	if me.Stats.AcceptedSubmissionsCount != submits || me.Stats.TotalSubmissionsCount != submits {
		t.Fatalf("unexpected submission counters %+v", me.Stats)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := openDB(ctx)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	var ledger int
	err = conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_solved_problems WHERE user_id = $1 AND problem_id = $2",
		learner.User.ID, problem.ID,
	).Scan(&ledger)
	if err != nil {
		t.Fatalf("count ledger rows: %v", err)
	}
	if ledger != 1 {
		t.Fatalf("expected one ledger row, got %d", ledger)
	}
}

func TestConcurrentChallengeCompletionsRankDensely(t *testing.T) {
	const solvers = 8
	suffix := time.Now().UnixNano()

	users := make([]authResponse, solvers)
	for i := range users {
		users[i] = register(t, fmt.Sprintf("daily_%d_%d", suffix, i))
	}

	var before challengeResponse
	doJSON(t, http.MethodGet, "/daily-challenge/today", users[0].Token, nil, http.StatusOK, &before)

	errs := make(chan error, solvers)
	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			var out submissionResponse
			errs <- requestJSON(http.MethodPost, "/submissions", token, map[string]any{
				"problem_id": before.Problem.ID,
				"code":       "# correct\nprint(3)",
				"language":   "python",
			}, http.StatusOK, &out)
		}(user.Token)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	var after challengeResponse
	doJSON(t, http.MethodGet, "/daily-challenge/today", users[0].Token, nil, http.StatusOK, &after)
	base := before.Challenge.TotalCompletions
	if after.Challenge.TotalCompletions != base+solvers {
		t.Fatalf("expected %d completions, got %d", base+solvers, after.Challenge.TotalCompletions)
	}
	if len(after.Challenge.Leaderboard) != base+solvers {
		t.Fatalf("expected %d leaderboard rows, got %d", base+solvers, len(after.Challenge.Leaderboard))
	}

	ranks := make(map[int]int, solvers)
	for i, entry := range after.Challenge.Leaderboard {
		if entry.Rank != i+1 {
			t.Fatalf("leaderboard row %d has rank %d", i, entry.Rank)
		}
		ranks[entry.UserID] = entry.Rank
	}
	for _, user := range users {
		rank, ok := ranks[user.User.ID]
		if !ok || rank <= base {
			t.Fatalf("user %d missing or ranked %d ahead of earlier completions", user.User.ID, rank)
		}
	}
}

func register(t *testing.T, username string) authResponse {
	t.Helper()
	var resp authResponse
	doJSON(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"name":     "E2E " + username,
		"password": "testpass123!",
	}, http.StatusCreated, &resp)
	if resp.Token == "" {
		t.Fatalf("missing token in register response")
	}
	return resp
}

func submit(t *testing.T, token string, problemID int, code string, out *submissionResponse) {
	t.Helper()
	doJSON(t, http.MethodPost, "/submissions", token, map[string]any{
		"problem_id": problemID,
		"code":       code,
		"language":   "python",
	}, http.StatusOK, out)
}

func promoteToAdmin(t *testing.T, userID int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := openDB(ctx)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "UPDATE users SET role = 'admin', updated_at = NOW() WHERE id = $1", userID); err != nil {
		t.Fatalf("promote user: %v", err)
	}
}

func doJSON(t *testing.T, method, path, token string, body any, wantStatus int, out any) {
	t.Helper()
	if err := requestJSON(method, path, token, body, wantStatus, out); err != nil {
		t.Fatal(err)
	}
}

// requestJSON is doJSON without a *testing.T, for use from goroutines.
func requestJSON(method, path, token string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
