package domain

import (
	"context"
	"time"
)

type User struct {
	ID        int
	Name      string
	Email     string
	CreatedAt time.Time
}

type UserRepository interface {
	GetById(ctx context.Context, id int) (*User, error)
}
