package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/0xsequence/token-directory/internal/domain"
)

func TestVolumeStore_InsertBulkAndGetByRun(t *testing.T) {
	store := NewVolumeStore()
	ctx := context.Background()

	obs := []*domain.VolumeObservation{
		{RunID: "r1", Chain: "polygon", Address: "0xb", Rank: 3, VolumeUSD: decimal.NewFromInt(10)},
		{RunID: "r1", Chain: "mainnet", Address: "0xa", Rank: 2, VolumeUSD: decimal.NewFromInt(50)},
		{RunID: "r2", Chain: "mainnet", Address: "0xc", Rank: 2},
		{RunID: "r1", Chain: "polygon", Address: "0xa", Rank: 2, VolumeUSD: decimal.NewFromInt(20)},
	}
	if err := store.InsertBulk(ctx, obs); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(got))
	}
	want := []string{"mainnet/0xa", "polygon/0xa", "polygon/0xb"}
	for i, o := range got {
		if o.Chain+"/"+o.Address != want[i] {
			t.Errorf("position %d: got %s/%s, want %s", i, o.Chain, o.Address, want[i])
		}
	}
	if !got[0].VolumeUSD.Equal(decimal.NewFromInt(50)) {
		t.Errorf("volume mismatch: %s", got[0].VolumeUSD)
	}
}

func TestVolumeStore_InsertBulkEmpty(t *testing.T) {
	store := NewVolumeStore()
	if err := store.InsertBulk(context.Background(), nil); err != nil {
		t.Errorf("expected no error for empty batch, got %v", err)
	}
}
