package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/apperrors"
	"github.com/ayevbeosa/crypto-portfolio-tracker/internal/models"
)

type fakeSeedStore struct {
	existing  map[string]bool
	created   []*models.TrackedAsset
	createErr error
}

func (f *fakeSeedStore) GetAssetBySymbol(_ context.Context, symbol string) (*models.TrackedAsset, error) {
	if f.existing[symbol] {
		return &models.TrackedAsset{Symbol: symbol}, nil
	}
	return nil, fmt.Errorf("%w: asset %s", apperrors.ErrNotFound, symbol)
}

func (f *fakeSeedStore) CreateAsset(_ context.Context, asset *models.TrackedAsset) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, asset)
	return nil
}

func TestSeedAssetsPopulatesEmptyStore(t *testing.T) {
	store := &fakeSeedStore{existing: map[string]bool{}}

	created, err := SeedAssets(context.Background(), store)
	if err != nil {
		t.Fatalf("SeedAssets failed: %v", err)
	}
	if created != len(defaultAssets) {
		t.Errorf("created = %d, want %d", created, len(defaultAssets))
	}

	bySymbol := make(map[string]*models.TrackedAsset)
	for _, a := range store.created {
		bySymbol[a.Symbol] = a
	}
	btc := bySymbol["BTC"]
	if btc == nil {
		t.Fatal("BTC was not seeded")
	}
	if btc.CoinGeckoID != "bitcoin" || btc.Name != "Bitcoin" {
		t.Errorf("BTC seeded as %q/%q, want bitcoin/Bitcoin", btc.CoinGeckoID, btc.Name)
	}
	if btc.ID == "" || btc.LastUpdated.IsZero() {
		t.Error("seeded asset is missing id or timestamp")
	}
}

func TestSeedAssetsSkipsExisting(t *testing.T) {
	store := &fakeSeedStore{existing: map[string]bool{"BTC": true, "ETH": true}}

	created, err := SeedAssets(context.Background(), store)
	if err != nil {
		t.Fatalf("SeedAssets failed: %v", err)
	}
	if want := len(defaultAssets) - 2; created != want {
		t.Errorf("created = %d, want %d", created, want)
	}
	for _, a := range store.created {
		if a.Symbol == "BTC" || a.Symbol == "ETH" {
			t.Errorf("existing asset %s was re-seeded", a.Symbol)
		}
	}
}

func TestSeedAssetsStopsOnCreateError(t *testing.T) {
	boom := errors.New("insert failed")
	store := &fakeSeedStore{existing: map[string]bool{}, createErr: boom}

	created, err := SeedAssets(context.Background(), store)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the create error", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}
