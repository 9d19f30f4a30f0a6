package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allStatuses = []MeasureTaskStatus{
	MeasureTaskStatusPendingApproval,
	MeasureTaskStatusPending,
	MeasureTaskStatusDispatching,
	MeasureTaskStatusPendingVisit,
	MeasureTaskStatusPendingConfirm,
	MeasureTaskStatusCompleted,
	MeasureTaskStatusCancelled,
}

var allEvents = []MeasureEvent{
	EventDispatch, EventAccept, EventCheckIn, EventSubmit, EventApprove,
	EventReviewReject, EventOpReject, EventSplit, EventNewVersion,
	EventFeeApproved, EventFeeRejected,
}

func TestTransition_HappyPath(t *testing.T) {
	s := MeasureTaskStatusPending
	for _, step := range []struct {
		event MeasureEvent
		want  MeasureTaskStatus
	}{
		{EventDispatch, MeasureTaskStatusDispatching},
		{EventAccept, MeasureTaskStatusPendingVisit},
		{EventCheckIn, MeasureTaskStatusPendingVisit},
		{EventSubmit, MeasureTaskStatusPendingConfirm},
		{EventSubmit, MeasureTaskStatusPendingConfirm},
		{EventApprove, MeasureTaskStatusCompleted},
	} {
		next, err := Transition(s, step.event)
		require.NoError(t, err, "event %s from %s", step.event, s)
		assert.Equal(t, step.want, next)
		s = next
	}
}

func TestTransition_OperationalRejectMapping(t *testing.T) {
	cases := map[MeasureTaskStatus]MeasureTaskStatus{
		MeasureTaskStatusPending:        MeasureTaskStatusPending,
		MeasureTaskStatusDispatching:    MeasureTaskStatusPending,
		MeasureTaskStatusPendingVisit:   MeasureTaskStatusPending,
		MeasureTaskStatusPendingConfirm: MeasureTaskStatusPendingVisit,
	}
	for from, want := range cases {
		next, err := Transition(from, EventOpReject)
		require.NoError(t, err)
		assert.Equal(t, want, next, "from %s", from)
	}

	_, err := Transition(MeasureTaskStatusPendingApproval, EventOpReject)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestTransition_FeeApprovalResult(t *testing.T) {
	next, err := Transition(MeasureTaskStatusPendingApproval, EventFeeApproved)
	require.NoError(t, err)
	assert.Equal(t, MeasureTaskStatusPending, next)

	next, err = Transition(MeasureTaskStatusPendingApproval, EventFeeRejected)
	require.NoError(t, err)
	assert.Equal(t, MeasureTaskStatusCancelled, next)

	_, err = Transition(MeasureTaskStatusPending, EventFeeApproved)
	assert.Equal(t, KindState, KindOf(err))
}

func TestTransition_CompletedSplit(t *testing.T) {
	_, err := Transition(MeasureTaskStatusCompleted, EventSplit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCannotSplitCompleted))
	assert.Equal(t, "cannot split completed task", err.Error())
}

func TestTransition_CompletedRejectsEverything(t *testing.T) {
	for _, ev := range allEvents {
		_, err := Transition(MeasureTaskStatusCompleted, ev)
		assert.Error(t, err, "event %s", ev)
		assert.Equal(t, KindState, KindOf(err))
	}
}

func TestTransition_TerminalStatesHaveNoExits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(t, "from")
		ev := rapid.SampledFrom(allEvents).Draw(t, "event")
		next, err := Transition(from, ev)
		if from.IsTerminal() {
			if err == nil {
				t.Fatalf("terminal %s accepted %s", from, ev)
			}
			return
		}
		if err == nil && !next.Valid() {
			t.Fatalf("%s --%s--> invalid status %q", from, ev, next)
		}
		if err != nil && KindOf(err) != KindState {
			t.Fatalf("unexpected error kind %s", KindOf(err))
		}
	})
}

func TestNextVariant(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		current  string
		want     string
	}{
		{"initial sheet only", []string{"Initial"}, "A", "B"},
		{"no sheets", nil, "A", "B"},
		{"unordered letters", []string{"C", "A", "B"}, "A", "D"},
		{"empty current", []string{"Initial"}, "", "A"},
		{"current ahead of sheets", []string{"A"}, "D", "E"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextVariant(tt.existing, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextVariant_Overflow(t *testing.T) {
	_, err := NextVariant([]string{"Y", "Z"}, "Z")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVariantOverflow))
	assert.Equal(t, KindState, KindOf(err))
}

func TestNextVariant_AlwaysAdvancesPastMax(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		letters := rapid.SliceOf(rapid.IntRange('A', 'Y')).Draw(t, "letters")
		existing := make([]string, len(letters))
		max := byte('A')
		for i, l := range letters {
			existing[i] = string(rune(l))
			if byte(l) > max {
				max = byte(l)
			}
		}
		got, err := NextVariant(existing, FirstVariant)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != string(rune(max+1)) {
			t.Fatalf("got %s, want %c", got, max+1)
		}
	})
}

func TestNextRound(t *testing.T) {
	round, variant := NextRound(2)
	assert.Equal(t, 3, round)
	assert.Equal(t, FirstVariant, variant)

	round, _ = NextRound(0)
	assert.Equal(t, FirstRound, round)
}

func TestFormatMeasureNo(t *testing.T) {
	assert.Equal(t, "M202401150001", FormatMeasureNo("M20240115", 1))
	assert.Equal(t, "M202401159999", FormatMeasureNo("M20240115", 9999))
}
