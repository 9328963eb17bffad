package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/decksmith/decksmith/internal/account/domain"
	"github.com/decksmith/decksmith/internal/clock"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"github.com/decksmith/decksmith/internal/plan"
	"github.com/decksmith/decksmith/pkg/db"
	"github.com/decksmith/decksmith/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Plans   *plan.Resolver
	Repo    domain.Repository
	Entries ledgerdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	plans   *plan.Resolver
	repo    domain.Repository
	entries ledgerdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("account.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		plans:   p.Plans,
		repo:    p.Repo,
		entries: p.Entries,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Account{}, domain.ErrInvalidEmail
	}

	ent, err := s.plans.Resolve(plan.TierFree)
	if err != nil {
		return domain.Account{}, err
	}

	now := s.clock.Now().UTC()
	account := domain.Account{
		ID:               s.genID.Generate(),
		Email:            email,
		Name:             name,
		Tier:             plan.TierFree,
		CreditsRemaining: ent.SignupGrantCredits,
		Active:           true,
		Metadata:         datatypes.JSONMap{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrEmailTaken
			}
			return err
		}
		// The signup grant is the account's opening ledger entry, so the
		// entry chain accounts for every credit the balance ever held.
		return s.entries.Insert(ctx, tx, &ledgerdomain.LedgerEntry{
			ID:           s.genID.Generate(),
			AccountID:    account.ID,
			Type:         ledgerdomain.EntryCredit,
			Category:     ledgerdomain.ReasonSignupGrant,
			Delta:        ent.SignupGrantCredits,
			BalanceAfter: account.CreditsRemaining,
			Metadata:     datatypes.JSONMap{"tier": plan.TierFree.String()},
			CreatedAt:    now,
		})
	})
	if err != nil {
		return domain.Account{}, err
	}

	s.log.Info("account created",
		zap.String("account_id", account.ID.String()),
		zap.String("tier", account.Tier.String()),
	)
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetAccountRequest) (domain.Account, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Account{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Account{}, domain.ErrInvalidEmail
	}

	item, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.Account{}, err
	}
	if item == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountRequest) (domain.ListAccountResponse, error) {
	filter := domain.ListAccountFilter{
		Tier:        strings.TrimSpace(req.Tier),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListAccountResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(account *domain.Account) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        account.ID.String(),
			CreatedAt: account.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}

	return domain.ListAccountResponse{
		NextPageToken: pageInfo.NextPageToken,
		HasMore:       pageInfo.HasMore,
		Accounts:      accounts,
	}, nil
}

func (s *Service) Deactivate(ctx context.Context, rawID string) error {
	id, err := s.parseID(rawID)
	if err != nil {
		return err
	}

	item, err := s.repo.FindByID(ctx, s.db, id, false)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}

	return s.repo.SetActive(ctx, s.db, id, false, s.clock.Now().UTC())
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
