package domain

import (
	"context"
	"errors"
	"time"
)

type CreateAccountRequest struct {
	Email string
	Name  string
}

type GetAccountRequest struct {
	ID string
}

type ListAccountRequest struct {
	PageToken   string
	PageSize    int32
	Tier        string
	Email       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListAccountFilter struct {
	Tier        string
	Email       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListAccountResponse struct {
	NextPageToken string    `json:"next_page_token"`
	HasMore       bool      `json:"has_more"`
	Accounts      []Account `json:"accounts"`
}

type Service interface {
	// Create registers an account on the free tier and records the
	// one-time signup grant as the account's opening ledger entry.
	Create(context.Context, CreateAccountRequest) (Account, error)
	GetByID(context.Context, GetAccountRequest) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	List(context.Context, ListAccountRequest) (ListAccountResponse, error)
	Deactivate(ctx context.Context, id string) error
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrEmailTaken   = errors.New("email_taken")
	ErrNotFound     = errors.New("not_found")
)
