package doi_test

import (
	"context"
	"testing"

	"datacore/internal/doi"
)

func TestLocalMint(t *testing.T) {
	minter := doi.NewLocal("")
	ctx := context.Background()

	got, err := minter.Mint(ctx, "ds-1", 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got != "10.5555/ds-1_1" {
		t.Fatalf("unexpected doi %q", got)
	}

	again, err := minter.Mint(ctx, "ds-1", 1)
	if err != nil {
		t.Fatalf("mint again: %v", err)
	}
	if again != got {
		t.Fatalf("minting twice must be stable, got %q then %q", got, again)
	}

	other, err := minter.Mint(ctx, "ds-1", 2)
	if err != nil {
		t.Fatalf("mint v2: %v", err)
	}
	if other == got {
		t.Fatal("different versions must get different identifiers")
	}
}

func TestLocalMintCustomPrefix(t *testing.T) {
	minter := doi.NewLocal("10.1234")
	got, err := minter.Mint(context.Background(), "ds-9", 3)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got != "10.1234/ds-9_3" {
		t.Fatalf("unexpected doi %q", got)
	}
}

func TestLocalMintEmptyDataset(t *testing.T) {
	if _, err := doi.NewLocal("").Mint(context.Background(), "", 1); err == nil {
		t.Fatal("expected error for empty dataset id")
	}
}
