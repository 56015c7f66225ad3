package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcabank/bank-engine/internal/model"
	"github.com/arcabank/bank-engine/internal/role"
	"github.com/arcabank/bank-engine/internal/store"
)

// Register creates a new account with zero balances and the user role.
// The minecraft username is optional.
func (s *Service) Register(ctx context.Context, id, displayName, minecraftUsername string) model.Result {
	if id == "" {
		return model.Fail(model.ErrValidation, "identity must not be empty")
	}

	unlock := s.lockAccounts(id)
	defer unlock()

	a := &model.Account{
		ID:                id,
		DisplayName:       displayName,
		Role:              role.User,
		Carats:            decimal.Zero,
		GoldenCarats:      decimal.Zero,
		MinecraftUsername: minecraftUsername,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return model.Fail(model.ErrAlreadyRegistered, "you are already registered")
		}
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "registration failed")
	}

	return model.OK("Welcome to Arca Bank! You start with an empty balance.", map[string]any{
		"id":                 a.ID,
		"role":               a.Role,
		"minecraft_username": a.MinecraftUsername,
	})
}

// LinkMinecraft attaches an external game identity to the account.
// Linking again overwrites the previous link (idempotent overwrite).
func (s *Service) LinkMinecraft(ctx context.Context, id, minecraftUUID, minecraftUsername string) model.Result {
	if minecraftUUID == "" || minecraftUsername == "" {
		return model.Fail(model.ErrValidation, "minecraft uuid and username are required")
	}

	unlock := s.lockAccounts(id)
	defer unlock()

	a, err := s.getAccount(ctx, id)
	if err != nil {
		return model.Fail(err, "account not found; use register first")
	}

	a.MinecraftUUID = minecraftUUID
	a.MinecraftUsername = minecraftUsername
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "link failed")
	}

	return model.OK(fmt.Sprintf("Linked Minecraft account %s.", minecraftUsername), map[string]any{
		"minecraft_uuid":     minecraftUUID,
		"minecraft_username": minecraftUsername,
	})
}

// GetBalance returns the account's balances and role. Read-only; no lock
// beyond the store's own snapshot.
func (s *Service) GetBalance(ctx context.Context, id string) model.Result {
	a, err := s.getAccount(ctx, id)
	if err != nil {
		return model.Fail(err, "you are not registered; use register first")
	}

	return model.OK("balance", map[string]any{
		"carats":             a.Carats,
		"golden_carats":      a.GoldenCarats,
		"total_in_carats":    a.TotalInCarats(),
		"role":               a.Role,
		"minecraft_username": a.MinecraftUsername,
	})
}

// PromoteToBanker moves a user to the banker role. Head banker only.
func (s *Service) PromoteToBanker(ctx context.Context, actorID, targetID string) model.Result {
	res := s.setRole(ctx, actorID, targetID, role.Banker)
	if res.Success {
		res.Message = "User promoted to Banker."
	}
	return res
}

// ResignAsBanker demotes the caller from banker back to user. Self-service
// only; head bankers cannot resign through this path. Confirmation dialogs
// belong to the presentation layer — this call is the single atomic step.
func (s *Service) ResignAsBanker(ctx context.Context, id string) model.Result {
	res := s.setRole(ctx, id, id, role.User)
	if res.Success {
		res.Message = "You have resigned as Banker."
	}
	return res
}

// SetConsumer moves an account to the read-only consumer role. Head banker only.
func (s *Service) SetConsumer(ctx context.Context, actorID, targetID string) model.Result {
	res := s.setRole(ctx, actorID, targetID, role.Consumer)
	if res.Success {
		res.Message = "Account set to consumer (read-only)."
	}
	return res
}

// RestoreUser moves a consumer back to the user role. Head banker only.
func (s *Service) RestoreUser(ctx context.Context, actorID, targetID string) model.Result {
	res := s.setRole(ctx, actorID, targetID, role.User)
	if res.Success {
		res.Message = "Account restored to user."
	}
	return res
}

// setRole applies one row of the role-transition table. The actor's role is
// resolved from the ledger, never taken from the caller.
func (s *Service) setRole(ctx context.Context, actorID, targetID string, to role.Role) model.Result {
	unlock := s.lockAccounts(actorID, targetID)
	defer unlock()

	actor, err := s.getAccount(ctx, actorID)
	if err != nil {
		return model.Fail(err, "caller is not registered")
	}
	target := actor
	if targetID != actorID {
		if target, err = s.getAccount(ctx, targetID); err != nil {
			return model.Fail(err, "target account not found")
		}
	}

	if err := role.ValidateTransition(actor.Role, actorID == targetID, target.Role, to); err != nil {
		switch {
		case errors.Is(err, role.ErrNotAuthorized):
			return model.Fail(fmt.Errorf("%w: %v", model.ErrAuthorization, err), "you are not allowed to do that")
		default:
			return model.Fail(fmt.Errorf("%w: %v", model.ErrInvalidTransition, err),
				fmt.Sprintf("cannot change role from %s to %s", target.Role, to))
		}
	}

	target.Role = to
	if err := s.store.UpdateAccount(ctx, target); err != nil {
		return model.Fail(fmt.Errorf("%w: %v", model.ErrInternal, err), "role change failed")
	}

	return model.OK("role updated", map[string]any{
		"id":   target.ID,
		"role": target.Role,
	})
}
