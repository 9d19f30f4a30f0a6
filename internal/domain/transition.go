package domain

import (
	"fmt"
	"sort"
)

// MeasureEvent 触发状态变更的事件
type MeasureEvent string

const (
	EventDispatch     MeasureEvent = "DISPATCH"
	EventAccept       MeasureEvent = "ACCEPT"
	EventCheckIn      MeasureEvent = "CHECK_IN"
	EventSubmit       MeasureEvent = "SUBMIT"
	EventApprove      MeasureEvent = "APPROVE"
	EventReviewReject MeasureEvent = "REVIEW_REJECT"
	EventOpReject     MeasureEvent = "OPERATIONAL_REJECT"
	EventSplit        MeasureEvent = "SPLIT"
	EventNewVersion   MeasureEvent = "NEW_VERSION"
	EventFeeApproved  MeasureEvent = "FEE_APPROVED"
	EventFeeRejected  MeasureEvent = "FEE_REJECTED"
)

// transitions 状态迁移表：status -> event -> next
// 不在表内的组合一律拒绝；终态没有任何出边
var transitions = map[MeasureTaskStatus]map[MeasureEvent]MeasureTaskStatus{
	MeasureTaskStatusPendingApproval: {
		EventCheckIn:     MeasureTaskStatusPendingApproval,
		EventSplit:       MeasureTaskStatusCancelled,
		EventNewVersion:  MeasureTaskStatusPendingApproval,
		EventFeeApproved: MeasureTaskStatusPending,
		EventFeeRejected: MeasureTaskStatusCancelled,
	},
	MeasureTaskStatusPending: {
		EventDispatch:   MeasureTaskStatusDispatching,
		EventCheckIn:    MeasureTaskStatusPending,
		EventOpReject:   MeasureTaskStatusPending,
		EventSplit:      MeasureTaskStatusCancelled,
		EventNewVersion: MeasureTaskStatusPending,
	},
	MeasureTaskStatusDispatching: {
		EventAccept:     MeasureTaskStatusPendingVisit,
		EventCheckIn:    MeasureTaskStatusDispatching,
		EventOpReject:   MeasureTaskStatusPending,
		EventSplit:      MeasureTaskStatusCancelled,
		EventNewVersion: MeasureTaskStatusDispatching,
	},
	MeasureTaskStatusPendingVisit: {
		EventCheckIn:    MeasureTaskStatusPendingVisit,
		EventSubmit:     MeasureTaskStatusPendingConfirm,
		EventOpReject:   MeasureTaskStatusPending,
		EventSplit:      MeasureTaskStatusCancelled,
		EventNewVersion: MeasureTaskStatusPendingVisit,
	},
	MeasureTaskStatusPendingConfirm: {
		EventCheckIn:      MeasureTaskStatusPendingConfirm,
		EventSubmit:       MeasureTaskStatusPendingConfirm,
		EventApprove:      MeasureTaskStatusCompleted,
		EventReviewReject: MeasureTaskStatusPendingVisit,
		EventOpReject:     MeasureTaskStatusPendingVisit,
		EventSplit:        MeasureTaskStatusCancelled,
		EventNewVersion:   MeasureTaskStatusPendingConfirm,
	},
}

// Transition 查表得到下一状态
// 拆单遇到已完成任务返回 ErrCannotSplitCompleted，其余已完成任务的操作返回 ErrTaskCompleted
func Transition(from MeasureTaskStatus, event MeasureEvent) (MeasureTaskStatus, error) {
	if from == MeasureTaskStatusCompleted {
		if event == EventSplit {
			return from, ErrCannotSplitCompleted
		}
		return from, NewStateError(ErrTaskCompleted, "task is completed, %s not allowed", event)
	}
	next, ok := transitions[from][event]
	if !ok {
		return from, NewStateError(ErrInvalidTransition, "%s not allowed in status %s", event, from)
	}
	return next, nil
}

// CanTransition 仅判断是否允许
func CanTransition(from MeasureTaskStatus, event MeasureEvent) bool {
	_, err := Transition(from, event)
	return err == nil
}

// NextVariant 计算同一轮次内的下一个方案字母
// existing: 当前轮次已有测量单的方案标识（非单字母的如 "Initial" 忽略）；current: 任务当前方案
func NextVariant(existing []string, current string) (string, error) {
	letters := make([]string, 0, len(existing)+1)
	for _, v := range existing {
		if isVariantLetter(v) {
			letters = append(letters, v)
		}
	}
	if isVariantLetter(current) {
		letters = append(letters, current)
	}
	if len(letters) == 0 {
		return FirstVariant, nil
	}
	sort.Strings(letters)
	last := letters[len(letters)-1]
	if last == LastVariant {
		return "", NewStateError(ErrVariantOverflow, "variant %s is the last one in this round", last)
	}
	return string(rune(last[0] + 1)), nil
}

func isVariantLetter(v string) bool {
	return len(v) == 1 && v[0] >= 'A' && v[0] <= 'Z'
}

// NextRound 新一轮次：轮次 +1，方案字母重置
func NextRound(round int) (int, string) {
	if round < FirstRound {
		round = FirstRound - 1
	}
	return round + 1, FirstVariant
}

// FormatMeasureNo 测量单号：前缀 + 4 位序号
func FormatMeasureNo(prefix string, seq int) string {
	return fmt.Sprintf("%s%04d", prefix, seq)
}
