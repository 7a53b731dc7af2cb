package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/paystream/internal/custody"
	"github.com/congo-pay/paystream/internal/ledger"
)

func TestServiceCreateAndBalance(t *testing.T) {
	repo := NewMemoryRepository()
	led := ledger.NewInMemory()
	svc := NewService(repo, led, "XAF")

	ctx := context.Background()
	ownerID := uuid.NewString()
	wallet, err := svc.Create(ctx, CreateInput{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if wallet.AccountCode != custody.WalletAccount(ownerID, "XAF") {
		t.Fatalf("unexpected account code %s", wallet.AccountCode)
	}

	fetched, err := svc.Get(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.ID != wallet.ID || fetched.OwnerID != ownerID {
		t.Fatalf("expected wallet ID %s, got %s", wallet.ID, fetched.ID)
	}

	ledger.SeedBalance(led, wallet.AccountCode, 2_500)

	balance, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500 {
		t.Fatalf("expected balance 2500, got %d", balance.Amount)
	}
}

func TestServiceCreateIsIdempotentPerCurrency(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), "XAF")
	ctx := context.Background()
	ownerID := uuid.NewString()

	first, err := svc.Create(ctx, CreateInput{OwnerID: ownerID, Currency: "xaf"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, CreateInput{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same wallet, got %s and %s", first.ID, second.ID)
	}

	usd, err := svc.Create(ctx, CreateInput{OwnerID: ownerID, Currency: "USD"})
	if err != nil {
		t.Fatalf("create usd: %v", err)
	}
	if usd.ID == first.ID {
		t.Fatal("expected a separate wallet per currency")
	}

	got, err := svc.GetByOwner(ctx, ownerID, "USD")
	if err != nil {
		t.Fatalf("get by owner: %v", err)
	}
	if got.ID != usd.ID {
		t.Fatalf("expected %s, got %s", usd.ID, got.ID)
	}
}

func TestServiceRejectsBadOwner(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), "")
	if _, err := svc.Create(context.Background(), CreateInput{OwnerID: "not-a-uuid"}); err == nil {
		t.Fatal("expected owner id validation error")
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
