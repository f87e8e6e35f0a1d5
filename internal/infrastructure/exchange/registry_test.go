package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

type fakeCredStore struct {
	creds map[string]domain.Credentials
}

func (s *fakeCredStore) Save(ctx context.Context, exchange string, creds domain.Credentials) error {
	s.creds[exchange] = creds
	return nil
}

func (s *fakeCredStore) Get(ctx context.Context, exchange string) (*domain.Credentials, error) {
	c, ok := s.creds[exchange]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeCredStore) Delete(ctx context.Context, exchange string) error {
	delete(s.creds, exchange)
	return nil
}

func (s *fakeCredStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.creds))
	for name := range s.creds {
		names = append(names, name)
	}
	return names, nil
}

func TestRegistry_RebuildConnectsStoredVenues(t *testing.T) {
	store := &fakeCredStore{creds: map[string]domain.Credentials{
		"binance": {APIKey: "k", SecretKey: "s"},
	}}
	reg := NewRegistry(zap.NewNop())

	require.NoError(t, reg.Rebuild(context.Background(), store))

	gw, ok := reg.Get("binance")
	require.True(t, ok)
	assert.Equal(t, "binance", gw.Name())

	_, ok = reg.Get("upbit")
	assert.False(t, ok, "venues without credentials stay disconnected")
	assert.Equal(t, []string{"binance"}, reg.Names())
}

func TestRegistry_RebuildDropsRemovedCredentials(t *testing.T) {
	store := &fakeCredStore{creds: map[string]domain.Credentials{
		"binance": {APIKey: "k", SecretKey: "s"},
		"upbit":   {APIKey: "a", SecretKey: "b"},
	}}
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Rebuild(context.Background(), store))
	assert.Equal(t, []string{"binance", "upbit"}, reg.Names())

	require.NoError(t, store.Delete(context.Background(), "upbit"))
	require.NoError(t, reg.Rebuild(context.Background(), store))

	_, ok := reg.Get("upbit")
	assert.False(t, ok)
	assert.Equal(t, []string{"binance"}, reg.Names())
}

func TestRegistry_EmptyStore(t *testing.T) {
	store := &fakeCredStore{creds: map[string]domain.Credentials{}}
	reg := NewRegistry(zap.NewNop())
	require.NoError(t, reg.Rebuild(context.Background(), store))
	assert.Empty(t, reg.Names())
}
