package detect

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseops/subaudit/internal/model"
)

func rec(id, problem, code string) model.SubmissionRecord {
	return model.SubmissionRecord{
		ID:         id,
		Username:   "u-" + id,
		Problem:    problem,
		Language:   "python",
		SourceCode: code,
	}
}

func TestDetect_LineNumberArtifactsGroupTogether(t *testing.T) {
	records := []model.SubmissionRecord{
		rec("1", "A", "1: print(x)\n"),
		rec("2", "A", "print(x)"),
		rec("3", "A", "print(y)"),
	}

	res := Detect(records)

	require.Len(t, res.Groups["A"], 1)
	g := res.Groups["A"][0]
	assert.Equal(t, "A", g.Problem)
	assert.Equal(t, []string{"1", "2"}, g.MemberIDs)
	assert.Equal(t, 3, res.TotalByProblem["A"])
	assert.Equal(t, 2, res.DuplicateSubmissions("A"))
}

func TestDetect_GroupsSplitByProblem(t *testing.T) {
	// Same code under different problems never shares a group.
	records := []model.SubmissionRecord{
		rec("1", "A", "print(x)"),
		rec("2", "A", "print(x)"),
		rec("3", "B", "print(x)"),
		rec("4", "B", "print(x)"),
	}

	res := Detect(records)

	assert.Equal(t, []string{"A", "B"}, res.Problems())
	require.Len(t, res.Groups["A"], 1)
	require.Len(t, res.Groups["B"], 1)
	assert.Equal(t, []string{"1", "2"}, res.Groups["A"][0].MemberIDs)
	assert.Equal(t, []string{"3", "4"}, res.Groups["B"][0].MemberIDs)
}

func TestDetect_MinimumGroupSize(t *testing.T) {
	records := []model.SubmissionRecord{
		rec("1", "A", "unique one"),
		rec("2", "A", "unique two"),
		rec("3", "B", "solo"),
	}

	res := Detect(records)

	assert.Empty(t, res.Groups)
	assert.Equal(t, 0, res.GroupCount())
	assert.Equal(t, 2, res.TotalByProblem["A"])
	assert.Equal(t, 1, res.TotalByProblem["B"])
}

func TestDetect_OrderingDeterministic(t *testing.T) {
	base := []model.SubmissionRecord{
		// size-3 cluster
		rec("1", "A", "x = 1"),
		rec("2", "A", "x = 1"),
		rec("3", "A", "x = 1"),
		// two size-2 clusters, order fixed by digest
		rec("4", "A", "y = 2"),
		rec("5", "A", "y = 2"),
		rec("6", "A", "z = 3"),
		rec("7", "A", "z = 3"),
		rec("8", "B", "w = 4"),
		rec("9", "B", "w = 4"),
	}

	first := Detect(base)
	require.Len(t, first.Groups["A"], 3)
	assert.Equal(t, 3, first.Groups["A"][0].Size())
	assert.Less(t, first.Groups["A"][1].Digest, first.Groups["A"][2].Digest)

	// Shuffled input yields identical output.
	for i := 0; i < 5; i++ {
		shuffled := make([]model.SubmissionRecord, len(base))
		copy(shuffled, base)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, first.Groups, Detect(shuffled).Groups)
	}
}

func TestDetect_EmptyInput(t *testing.T) {
	res := Detect(nil)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.TotalByProblem)
	assert.Empty(t, res.Problems())
}

func TestDetect_EmptyCodeStillGroups(t *testing.T) {
	records := []model.SubmissionRecord{
		rec("1", "A", "\n\n  \n"),
		rec("2", "A", ""),
		rec("3", "A", "real code"),
	}

	res := Detect(records)

	require.Len(t, res.Groups["A"], 1)
	assert.Equal(t, []string{"1", "2"}, res.Groups["A"][0].MemberIDs)
}

func TestDetect_MalformedRecordsIgnored(t *testing.T) {
	records := []model.SubmissionRecord{
		rec("1", "A", "x"),
		rec("2", "A", "x"),
		{ID: "", Problem: "A", SourceCode: "x"}, // missing id and username
		{ID: "4", Username: "u", SourceCode: "x"}, // missing problem
	}

	res := Detect(records)

	require.Len(t, res.Groups["A"], 1)
	assert.Equal(t, []string{"1", "2"}, res.Groups["A"][0].MemberIDs)
	assert.Equal(t, 2, res.TotalByProblem["A"])
}
