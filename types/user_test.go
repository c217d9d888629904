package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestRecordActivityConsecutiveDays(t *testing.T) {
	var stats UserStats

	stats.RecordActivity(day(2026, time.March, 1, 9))
	stats.RecordActivity(day(2026, time.March, 2, 23))
	stats.RecordActivity(day(2026, time.March, 3, 0))

	assert.Equal(t, 3, stats.CurrentStreak)
	assert.Equal(t, 3, stats.LongestStreak)
}

func TestRecordActivityGapResetsStreak(t *testing.T) {
	var stats UserStats

	stats.RecordActivity(day(2026, time.March, 1, 9))
	stats.RecordActivity(day(2026, time.March, 2, 9))
	stats.RecordActivity(day(2026, time.March, 5, 9))

	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)
}

func TestRecordActivitySameDayIsNoop(t *testing.T) {
	var stats UserStats

	stats.RecordActivity(day(2026, time.March, 1, 1))
	stats.RecordActivity(day(2026, time.March, 2, 1))
	stats.RecordActivity(day(2026, time.March, 2, 22))

	assert.Equal(t, 2, stats.CurrentStreak)
	require.NotNil(t, stats.LastSubmissionDate)
	assert.Equal(t, day(2026, time.March, 2, 22), *stats.LastSubmissionDate)
	require.NotNil(t, stats.LastActiveDate)
}

func TestRecordActivityUsesUTCCalendarDays(t *testing.T) {
	var stats UserStats
	zone := time.FixedZone("UTC+10", 10*60*60)

	// 23:30 UTC on March 1, then 00:30 UTC on March 2 expressed in UTC+10.
	stats.RecordActivity(day(2026, time.March, 1, 23).Add(30 * time.Minute))
	stats.RecordActivity(time.Date(2026, time.March, 2, 10, 30, 0, 0, zone))

	assert.Equal(t, 2, stats.CurrentStreak)
}

func TestCreditFirstSolveRecomputesRankPoints(t *testing.T) {
	var stats UserStats

	stats.CreditFirstSolve(DifficultyEasy)
	stats.CreditFirstSolve(DifficultyMedium)
	stats.CreditFirstSolve(DifficultyHard)
	stats.CreditFirstSolve(DifficultyEasy)

	assert.Equal(t, 4, stats.SolvedProblemsCount)
	assert.Equal(t, 2, stats.EasyProblemsSolved)
	assert.Equal(t, 1, stats.MediumProblemsSolved)
	assert.Equal(t, 1, stats.HardProblemsSolved)
	assert.Equal(t, 2*10+25+50, stats.RankPoints)
}

func TestIsPrivileged(t *testing.T) {
	assert.True(t, User{Role: RoleAdmin}.IsPrivileged())
	assert.True(t, User{Role: "Super-Admin"}.IsPrivileged())
	assert.False(t, User{Role: RoleUser}.IsPrivileged())
	assert.False(t, User{}.IsPrivileged())
}
