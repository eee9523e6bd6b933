package domain

import (
	"context"
	"fmt"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
	"github.com/qs-lzh/cave-sale/internal/service"
)

const (
	NotifySessionEnded = "session_ended"
	NotifyOrderPlaced  = "order_placed"
)

type NotificationService interface {
	// RecordAll stores one notification per distinct recipient, all of them or none.
	RecordAll(ctx context.Context, userIDs []uint, kind, message string) ([]model.Notification, error)
	// Recipients resolves a role to the ids of its users.
	Recipients(ctx context.Context, role model.UserRole) ([]uint, error)
	List(ctx context.Context, userID uint, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id, userID uint) error
}

type notificationService struct {
	repo  repository.NotificationRepo
	users repository.UserRepo
}

var _ NotificationService = (*notificationService)(nil)

func NewNotificationService(repo repository.NotificationRepo, users repository.UserRepo) *notificationService {
	return &notificationService{
		repo:  repo,
		users: users,
	}
}

func (s *notificationService) RecordAll(ctx context.Context, userIDs []uint, kind, message string) ([]model.Notification, error) {
	seen := make(map[uint]struct{}, len(userIDs))
	ns := make([]model.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ns = append(ns, model.Notification{UserID: id, Kind: kind, Message: message})
	}
	if err := s.repo.CreateBatch(ctx, ns); err != nil {
		return nil, fmt.Errorf("save notifications: %w", err)
	}
	return ns, nil
}

func (s *notificationService) Recipients(ctx context.Context, role model.UserRole) ([]uint, error) {
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, limit int) ([]model.Notification, error) {
	switch {
	case limit <= 0:
		limit = 50
	case limit > 100:
		limit = 100
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uint) error {
	ok, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return service.ErrNotFound
	}
	return nil
}
