package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
)

type EventService interface {
	ListActiveEvents(ctx context.Context, now time.Time) ([]model.Event, error)
	GetEvent(ctx context.Context, id uint) (*model.Event, error)
	CreateEvent(ctx context.Context, in model.EventInsert) (*model.Event, error)
	UpdateEvent(ctx context.Context, id uint, in model.EventUpdate) (*model.Event, error)
	GrantAdmission(ctx context.Context, eventID, userID uint) error
}

type eventService struct {
	repo   repository.EventRepo
	grants repository.GrantRepo
}

var _ EventService = (*eventService)(nil)

func NewEventService(eventRepo repository.EventRepo, grantRepo repository.GrantRepo) *eventService {
	return &eventService{
		repo:   eventRepo,
		grants: grantRepo,
	}
}

func (s *eventService) ListActiveEvents(ctx context.Context, now time.Time) ([]model.Event, error) {
	events, err := s.repo.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active events: %w", err)
	}
	return events, nil
}

func (s *eventService) GetEvent(ctx context.Context, id uint) (*model.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (s *eventService) CreateEvent(ctx context.Context, in model.EventInsert) (*model.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var event model.Event
	in.Apply(&event)
	if err := s.repo.Create(ctx, &event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &event, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, id uint, in model.EventUpdate) (*model.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.ValidateAgainst(*event); err != nil {
		return nil, err
	}
	in.Apply(event)
	if err := s.repo.Save(ctx, event); err != nil {
		return nil, fmt.Errorf("update event %d: %w", id, err)
	}
	return event, nil
}

func (s *eventService) GrantAdmission(ctx context.Context, eventID, userID uint) error {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return s.grants.Grant(ctx, event.ID, userID)
}
