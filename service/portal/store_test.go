package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/brojonat/pkwallet/service/keystore"
	"github.com/brojonat/pkwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smartWalletAddr = "So11111111111111111111111111111111111111112"

func newTestPortal(t *testing.T) *httptest.Server {
	t.Helper()
	sig := solanago.Signature{9}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/wallets/connect":
			json.NewEncoder(w).Encode(map[string]string{
				"credential_id":         "cred-1",
				"credential_public_key": "pubkey",
				"smart_wallet":          smartWalletAddr,
			})
		case "/api/v1/wallets/disconnect":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/transactions/sign-and-send":
			json.NewEncoder(w).Encode(map[string]string{"signature": sig.String()})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func configuredStore(t *testing.T, server *httptest.Server, keys KeyStore) *Store {
	t.Helper()
	store := NewStore(keys, nil, testLogger())
	require.NoError(t, store.SetConfig(context.Background(), wallet.StoreConfig{
		RPCEndpoint:       "http://localhost:8899",
		PortalEndpoint:    server.URL,
		PaymasterEndpoint: server.URL,
	}))
	return store
}

func TestStore_RequiresConfig(t *testing.T) {
	store := NewStore(nil, nil, testLogger())

	err := store.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")

	_, err = store.SignAndSendTransaction(context.Background(), nil)
	require.Error(t, err)
}

func TestStore_ConnectPopulatesStateAndKeystore(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	keys, err := keystore.Open(":memory:")
	require.NoError(t, err)
	defer keys.Close()

	store := configuredStore(t, server, keys)
	require.NoError(t, store.Connect(context.Background()))

	st := store.State()
	require.NotNil(t, st.Wallet)
	assert.Equal(t, smartWalletAddr, st.Wallet.SmartWallet)
	assert.Equal(t, "cred-1", st.Wallet.CredentialID)
	assert.False(t, st.IsConnecting)
	assert.Nil(t, st.Err)

	cached, err := keys.Get(context.Background(), keystore.KeyCredentialID)
	require.NoError(t, err)
	assert.Equal(t, "cred-1", cached)
}

func TestStore_SubscribersSeeConnectingThenConnected(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	store := configuredStore(t, server, nil)

	var mu sync.Mutex
	var states []wallet.StoreState
	store.Subscribe(func(st wallet.StoreState) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, store.Connect(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 2)
	assert.True(t, states[0].IsConnecting, "first notification shows the ceremony in flight")
	last := states[len(states)-1]
	assert.False(t, last.IsConnecting)
	require.NotNil(t, last.Wallet)
	assert.Equal(t, smartWalletAddr, last.Wallet.SmartWallet)
}

func TestStore_ConnectFailureSetsErr(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "paymaster upstream down"})
	}))
	defer server.Close()

	store := configuredStore(t, server, nil)

	err := store.Connect(context.Background())
	require.Error(t, err)

	st := store.State()
	assert.Nil(t, st.Wallet)
	assert.False(t, st.IsConnecting)
	require.NotNil(t, st.Err)
}

func TestStore_DisconnectClearsWallet(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	store := configuredStore(t, server, nil)
	require.NoError(t, store.Connect(context.Background()))
	require.NotNil(t, store.State().Wallet)

	require.NoError(t, store.Disconnect(context.Background()))
	assert.Nil(t, store.State().Wallet)
}

func TestStore_DisconnectWithoutWalletIsNoOp(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	store := configuredStore(t, server, nil)
	assert.NoError(t, store.Disconnect(context.Background()))
}

func TestStore_SignAndSendTransaction(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	store := configuredStore(t, server, nil)
	require.NoError(t, store.Connect(context.Background()))

	from := solanago.MustPublicKeyFromBase58(smartWalletAddr)
	to := solanago.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")
	ix := system.NewTransferInstruction(1000, from, to).Build()

	sig, err := store.SignAndSendTransaction(context.Background(), []solanago.Instruction{ix})
	require.NoError(t, err)
	assert.Equal(t, solanago.Signature{9}, sig)
	assert.False(t, store.State().IsLoading)
}

func TestStore_SignAndSendRequiresWallet(t *testing.T) {
	server := newTestPortal(t)
	defer server.Close()

	store := configuredStore(t, server, nil)

	_, err := store.SignAndSendTransaction(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet not connected")
}
