package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/store"
)

// EconomyService owns every coin balance change. Balances only move through
// single guarded statements so concurrent requests cannot lose an update.
type EconomyService struct {
	repo    repository.Store
	catalog *store.Catalog
	logger  *zap.Logger
}

func NewEconomyService(repo repository.Store, catalog *store.Catalog, logger *zap.Logger) *EconomyService {
	if catalog == nil {
		catalog = store.DefaultCatalog()
	}
	return &EconomyService{repo: repo, catalog: catalog, logger: logger}
}

// Grant adds amount coins to the user through q, which may be transaction
// bound. It returns the new balance.
func (s *EconomyService) Grant(ctx context.Context, q repository.Queries, userID string, amount int, reason string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative grant %d", ErrInvalidSubmission, amount)
	}
	balance, err := q.AddCoins(ctx, userID, amount)
	if err != nil {
		return 0, translateRepoErr(err)
	}
	coinsMoved.WithLabelValues("grant", reason).Add(float64(amount))
	return balance, nil
}

// Spend removes amount coins if the balance covers it. ErrInsufficientFunds
// leaves the balance untouched.
func (s *EconomyService) Spend(ctx context.Context, q repository.Queries, userID string, amount int, reason string) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: negative spend %d", ErrInvalidSubmission, amount)
	}
	balance, err := q.SpendCoins(ctx, userID, amount)
	if err != nil {
		return 0, translateRepoErr(err)
	}
	coinsMoved.WithLabelValues("spend", reason).Add(float64(amount))
	return balance, nil
}

func (s *EconomyService) Balance(ctx context.Context, userID string) (int, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return 0, translateRepoErr(err)
	}
	return u.Coins, nil
}

// OpenCell charges the price of opening one board cell.
func (s *EconomyService) OpenCell(ctx context.Context, userID string) (int, error) {
	balance, err := s.Spend(ctx, s.repo, userID, store.CellPrice, "open_cell")
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *EconomyService) OwnedItems(ctx context.Context, userID string) ([]string, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if u.OwnedItems == nil {
		return []string{}, nil
	}
	return u.OwnedItems, nil
}

func (s *EconomyService) Catalog() []store.Item {
	return s.catalog.Items()
}

// PurchaseItem debits the catalogue price and unlocks the item in one transaction.
func (s *EconomyService) PurchaseItem(ctx context.Context, userID string, itemID string) (*store.PurchaseResponse, error) {
	item, ok := s.catalog.Get(itemID)
	if !ok {
		return nil, fmt.Errorf("item %q: %w", itemID, ErrNotFound)
	}

	var resp *store.PurchaseResponse
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		u, err := q.GetUserByID(ctx, userID)
		if err != nil {
			return translateRepoErr(err)
		}
		if u.Owns(item.ID) {
			return ErrAlreadyOwned
		}

		balance, err := s.Spend(ctx, q, userID, item.Price, "purchase")
		if err != nil {
			return err
		}
		if err := q.AddOwnedItem(ctx, userID, item.ID); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyOwned
			}
			return translateRepoErr(err)
		}

		resp = &store.PurchaseResponse{
			ItemID:     item.ID,
			Balance:    balance,
			OwnedItems: append(u.OwnedItems, item.ID),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("item purchased",
		zap.String("user_id", userID),
		zap.String("item_id", item.ID),
		zap.Int("price", item.Price),
		zap.Int("balance", resp.Balance),
	)
	return resp, nil
}

// translateRepoErr maps storage sentinels onto service sentinels.
func translateRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case errors.Is(err, repository.ErrDuplicate):
		return ErrDuplicateIdentity
	default:
		return err
	}
}
