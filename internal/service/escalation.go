package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slideboard-measure/internal/domain"
	"slideboard-measure/internal/notify"
	"slideboard-measure/internal/repository"
)

// 驳回升级阈值
const (
	EscalateStoreManagerAt = 3
	EscalateAreaManagerAt  = 4
)

// EscalationRoles 驳回次数对应的通知角色
func EscalationRoles(rejectCount int) []string {
	switch {
	case rejectCount >= EscalateAreaManagerAt:
		return []string{domain.RoleStoreManager, domain.RoleAreaManager}
	case rejectCount >= EscalateStoreManagerAt:
		return []string{domain.RoleStoreManager}
	default:
		return nil
	}
}

// EscalationNotifier 驳回升级通知
// 尽力而为：所有错误只记日志，不影响已提交的业务结果
type EscalationNotifier struct {
	users  repository.UsersRepository
	sender notify.Sender
	limit  int
	logger *zap.Logger
}

func NewEscalationNotifier(users repository.UsersRepository, sender notify.Sender, limit int, logger *zap.Logger) *EscalationNotifier {
	if limit <= 0 {
		limit = 1
	}
	return &EscalationNotifier{users: users, sender: sender, limit: limit, logger: logger}
}

// Notify 按阈值通知管理角色，返回成功送达的条数
func (n *EscalationNotifier) Notify(ctx context.Context, task *domain.MeasureTask) int {
	roles := EscalationRoles(task.RejectCount)
	if len(roles) == 0 {
		return 0
	}

	var sent int64
	for _, role := range roles {
		userIDs, err := n.users.ListActiveUserIDsByRole(ctx, task.TenantID, role)
		if err != nil {
			n.logger.Warn("Failed to list escalation recipients",
				zap.String("tenant_id", task.TenantID),
				zap.String("task_id", task.TaskID),
				zap.String("role", role),
				zap.Error(err),
			)
			continue
		}
		if len(userIDs) == 0 {
			n.logger.Info("No escalation recipients for role",
				zap.String("tenant_id", task.TenantID),
				zap.String("role", role),
			)
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(n.limit)
		for _, userID := range userIDs {
			msg := escalationMessage(task, userID, role)
			g.Go(func() error {
				if err := n.sender.Send(gctx, msg); err != nil {
					n.logger.Warn("Failed to send escalation notification",
						zap.String("tenant_id", msg.TenantID),
						zap.String("task_id", task.TaskID),
						zap.String("user_id", msg.UserID),
						zap.Error(err),
					)
					return nil
				}
				atomic.AddInt64(&sent, 1)
				return nil
			})
		}
		_ = g.Wait()
	}

	n.logger.Info("Escalation notifications dispatched",
		zap.String("tenant_id", task.TenantID),
		zap.String("task_id", task.TaskID),
		zap.String("measure_no", task.MeasureNo),
		zap.Int("reject_count", task.RejectCount),
		zap.Int64("sent", sent),
	)
	return int(sent)
}

func escalationMessage(task *domain.MeasureTask, userID, role string) notify.Notification {
	title := "测量任务多次驳回"
	if role == domain.RoleAreaManager {
		title = "测量任务驳回升级"
	}
	return notify.Notification{
		TenantID: task.TenantID,
		UserID:   userID,
		Title:    title,
		Content:  fmt.Sprintf("测量单 %s 已被驳回 %d 次，最近原因：%s", task.MeasureNo, task.RejectCount, task.RejectReason),
		Type:     notify.TypeEscalation,
		Link:     "/service/measurement/" + task.TaskID,
	}
}
