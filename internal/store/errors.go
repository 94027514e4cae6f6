package store

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrTicketClosed    = errors.New("ticket is no longer open")
	ErrServiceInactive = errors.New("service is not active")
	ErrQueueEmpty      = errors.New("no waiting tickets")
)

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
