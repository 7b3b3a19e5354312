package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/item-exchange/internal/domain/entity"
	"github.com/archon-research/item-exchange/internal/ports/inbound"
)

var (
	sellerHex = "0x00000000000000000000000000000000000000A1"
	buyerHex  = "0x00000000000000000000000000000000000000B2"
	ownerHex  = "0x00000000000000000000000000000000000000C4"
	tokenHex  = "0x0000000000000000000000000000000000000101"
	feedHex   = "0x0000000000000000000000000000000000000201"
	itemsHex  = "0x0000000000000000000000000000000000000103"
)

// mockService is a test implementation of the inbound service ports.
type mockService struct {
	createOfferFunc     func(ctx context.Context, req inbound.CreateOfferRequest) (*entity.Offer, error)
	acceptTokensFunc    func(ctx context.Context, buyer, seller common.Address, itemID uint64, paymentToken common.Address) (*inbound.AcceptResult, error)
	acceptNativeFunc    func(ctx context.Context, buyer, seller common.Address, itemID uint64, attached *big.Int) (*inbound.AcceptResult, error)
	cancelOfferFunc     func(ctx context.Context, caller, seller common.Address, itemID uint64) error
	getOfferFunc        func(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error)
	listOffersFunc      func(ctx context.Context, seller common.Address) ([]*entity.Offer, error)
	pingFunc            func(ctx context.Context) error
	setFeeFunc          func(ctx context.Context, caller common.Address, divisor uint64) error
	setFeeRecipientFunc func(ctx context.Context, caller, recipient common.Address) error
	setTokenFunc        func(ctx context.Context, caller common.Address, token *entity.PaymentToken) error
}

func (m *mockService) CreateOffer(ctx context.Context, req inbound.CreateOfferRequest) (*entity.Offer, error) {
	return m.createOfferFunc(ctx, req)
}

func (m *mockService) AcceptOfferWithTokens(ctx context.Context, buyer, seller common.Address, itemID uint64, paymentToken common.Address) (*inbound.AcceptResult, error) {
	return m.acceptTokensFunc(ctx, buyer, seller, itemID, paymentToken)
}

func (m *mockService) AcceptOfferWithNative(ctx context.Context, buyer, seller common.Address, itemID uint64, attached *big.Int) (*inbound.AcceptResult, error) {
	return m.acceptNativeFunc(ctx, buyer, seller, itemID, attached)
}

func (m *mockService) CancelOffer(ctx context.Context, caller, seller common.Address, itemID uint64) error {
	return m.cancelOfferFunc(ctx, caller, seller, itemID)
}

func (m *mockService) GetOffer(ctx context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
	return m.getOfferFunc(ctx, seller, itemID)
}

func (m *mockService) ListSellerOffers(ctx context.Context, seller common.Address) ([]*entity.Offer, error) {
	return m.listOffersFunc(ctx, seller)
}

func (m *mockService) Ping(ctx context.Context) error {
	return m.pingFunc(ctx)
}

func (m *mockService) SetFee(ctx context.Context, caller common.Address, divisor uint64) error {
	return m.setFeeFunc(ctx, caller, divisor)
}

func (m *mockService) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	return m.setFeeRecipientFunc(ctx, caller, recipient)
}

func (m *mockService) SetWhitelistedPaymentToken(ctx context.Context, caller common.Address, token *entity.PaymentToken) error {
	return m.setTokenFunc(ctx, caller, token)
}

func newTestMux(t *testing.T, svc *mockService) *http.ServeMux {
	t.Helper()
	handler, err := NewHandler(svc, svc, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("creating handler: %v", err)
	}
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func testOffer(t *testing.T) *entity.Offer {
	t.Helper()
	offer, err := entity.NewOffer(
		common.HexToAddress(sellerHex), common.HexToAddress(itemsHex),
		7, 5, time.Now().Add(time.Hour), 100_000_000_000)
	if err != nil {
		t.Fatalf("building offer: %v", err)
	}
	return offer
}

func TestCreateOffer(t *testing.T) {
	deadline := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	t.Run("valid request returns 201", func(t *testing.T) {
		var captured inbound.CreateOfferRequest
		svc := &mockService{
			createOfferFunc: func(_ context.Context, req inbound.CreateOfferRequest) (*entity.Offer, error) {
				captured = req
				return entity.NewOffer(req.Seller, req.ItemContract, req.ItemID, req.Amount, req.Deadline, req.PriceUSD)
			},
		}
		mux := newTestMux(t, svc)

		body := `{"seller":"` + sellerHex + `","itemContract":"` + itemsHex + `",` +
			`"itemId":7,"amount":5,"deadline":"` + deadline + `","priceUsd":100000000000}`
		w := doJSON(t, mux, "POST", "/offers", body)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		if captured.Seller != common.HexToAddress(sellerHex) || captured.ItemID != 7 {
			t.Errorf("unexpected request passed to service: %+v", captured)
		}

		var resp offerResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Status != "ONGOING" || resp.Amount != 5 || resp.PriceUSD != 100_000_000_000 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	rejected := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"seller":`},
		{"bad seller address", `{"seller":"nope","itemContract":"` + itemsHex + `","itemId":7,"amount":5,"deadline":"` + deadline + `","priceUsd":1}`},
		{"bad deadline", `{"seller":"` + sellerHex + `","itemContract":"` + itemsHex + `","itemId":7,"amount":5,"deadline":"tomorrow","priceUsd":1}`},
		{"past deadline", `{"seller":"` + sellerHex + `","itemContract":"` + itemsHex + `","itemId":7,"amount":5,"deadline":"2020-01-01T00:00:00Z","priceUsd":1}`},
		{"zero amount", `{"seller":"` + sellerHex + `","itemContract":"` + itemsHex + `","itemId":7,"amount":0,"deadline":"` + deadline + `","priceUsd":1}`},
		{"zero price", `{"seller":"` + sellerHex + `","itemContract":"` + itemsHex + `","itemId":7,"amount":5,"deadline":"` + deadline + `","priceUsd":0}`},
	}
	for _, tt := range rejected {
		t.Run(tt.name+" returns 400", func(t *testing.T) {
			svc := &mockService{
				createOfferFunc: func(_ context.Context, _ inbound.CreateOfferRequest) (*entity.Offer, error) {
					t.Fatal("service should not be called")
					return nil, nil
				},
			}
			mux := newTestMux(t, svc)
			w := doJSON(t, mux, "POST", "/offers", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetOffer(t *testing.T) {
	t.Run("found returns 200", func(t *testing.T) {
		offer := testOffer(t)
		svc := &mockService{
			getOfferFunc: func(_ context.Context, seller common.Address, itemID uint64) (*entity.Offer, error) {
				if seller != offer.Seller || itemID != 7 {
					t.Errorf("unexpected lookup: %s %d", seller.Hex(), itemID)
				}
				return offer, nil
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "GET", "/offers/"+sellerHex+"/7", "")
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp offerResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Seller != offer.Seller.Hex() || resp.ItemID != 7 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("absent returns 404", func(t *testing.T) {
		svc := &mockService{
			getOfferFunc: func(_ context.Context, _ common.Address, _ uint64) (*entity.Offer, error) {
				return nil, entity.ErrOfferNotFound
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "GET", "/offers/"+sellerHex+"/7", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})

	t.Run("bad item id returns 400", func(t *testing.T) {
		mux := newTestMux(t, &mockService{})
		w := doJSON(t, mux, "GET", "/offers/"+sellerHex+"/abc", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestAcceptOffer(t *testing.T) {
	body := `{"buyer":"` + buyerHex + `","paymentToken":"` + tokenHex + `"}`

	t.Run("success returns amounts", func(t *testing.T) {
		svc := &mockService{
			acceptTokensFunc: func(_ context.Context, buyer, seller common.Address, itemID uint64, paymentToken common.Address) (*inbound.AcceptResult, error) {
				if buyer != common.HexToAddress(buyerHex) || paymentToken != common.HexToAddress(tokenHex) {
					t.Errorf("unexpected args: %s %s", buyer.Hex(), paymentToken.Hex())
				}
				return &inbound.AcceptResult{
					FinalAmount: big.NewInt(66_666_666),
					FeeAmount:   big.NewInt(666_666),
				}, nil
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "POST", "/offers/"+sellerHex+"/7/accept", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp acceptResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.FinalAmount != "66666666" || resp.FeeAmount != "666666" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	failures := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"insufficient allowance", entity.ErrInsufficientAllowance, http.StatusPaymentRequired},
		{"unsupported asset", entity.ErrUnsupportedAsset, http.StatusBadRequest},
		{"not available", entity.ErrOfferNotAvailable, http.StatusConflict},
		{"item not approved", entity.ErrNotApproved, http.StatusConflict},
		{"internal failure", errors.New("oracle down"), http.StatusInternalServerError},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				acceptTokensFunc: func(_ context.Context, _, _ common.Address, _ uint64, _ common.Address) (*inbound.AcceptResult, error) {
					return nil, tt.err
				},
			}
			mux := newTestMux(t, svc)
			w := doJSON(t, mux, "POST", "/offers/"+sellerHex+"/7/accept", body)
			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAcceptOfferNative(t *testing.T) {
	t.Run("success returns amounts", func(t *testing.T) {
		svc := &mockService{
			acceptNativeFunc: func(_ context.Context, _, _ common.Address, _ uint64, attached *big.Int) (*inbound.AcceptResult, error) {
				if attached.Cmp(big.NewInt(60_000_000)) != 0 {
					t.Errorf("unexpected attached value: %s", attached)
				}
				return &inbound.AcceptResult{
					FinalAmount: big.NewInt(50_000_000),
					FeeAmount:   big.NewInt(500_000),
				}, nil
			},
		}
		mux := newTestMux(t, svc)
		body := `{"buyer":"` + buyerHex + `","attachedWei":"60000000"}`
		w := doJSON(t, mux, "POST", "/offers/"+sellerHex+"/7/accept-native", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp acceptResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.FinalAmount != "50000000" || resp.FeeAmount != "500000" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("malformed attached value returns 400", func(t *testing.T) {
		mux := newTestMux(t, &mockService{})
		for _, attached := range []string{`"abc"`, `"-1"`, `""`} {
			body := `{"buyer":"` + buyerHex + `","attachedWei":` + attached + `}`
			w := doJSON(t, mux, "POST", "/offers/"+sellerHex+"/7/accept-native", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("attached %s: expected 400, got %d", attached, w.Code)
			}
		}
	})

	t.Run("insufficient attached returns 402", func(t *testing.T) {
		svc := &mockService{
			acceptNativeFunc: func(_ context.Context, _, _ common.Address, _ uint64, _ *big.Int) (*inbound.AcceptResult, error) {
				return nil, entity.ErrInsufficientAmount
			},
		}
		mux := newTestMux(t, svc)
		body := `{"buyer":"` + buyerHex + `","attachedWei":"1"}`
		w := doJSON(t, mux, "POST", "/offers/"+sellerHex+"/7/accept-native", body)
		if w.Code != http.StatusPaymentRequired {
			t.Errorf("expected 402, got %d", w.Code)
		}
	})
}

func TestCancelOffer(t *testing.T) {
	body := `{"caller":"` + sellerHex + `"}`

	t.Run("success returns 200", func(t *testing.T) {
		svc := &mockService{
			cancelOfferFunc: func(_ context.Context, caller, seller common.Address, itemID uint64) error {
				if caller != common.HexToAddress(sellerHex) || itemID != 7 {
					t.Errorf("unexpected args: %s %d", caller.Hex(), itemID)
				}
				return nil
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "DELETE", "/offers/"+sellerHex+"/7", body)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("wrong caller returns 403", func(t *testing.T) {
		svc := &mockService{
			cancelOfferFunc: func(_ context.Context, _, _ common.Address, _ uint64) error {
				return entity.ErrNotSeller
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "DELETE", "/offers/"+sellerHex+"/7", `{"caller":"`+buyerHex+`"}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("already cancelled returns 409", func(t *testing.T) {
		svc := &mockService{
			cancelOfferFunc: func(_ context.Context, _, _ common.Address, _ uint64) error {
				return entity.ErrAlreadyCancelled
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "DELETE", "/offers/"+sellerHex+"/7", body)
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
	})
}

func TestListSellerOffers(t *testing.T) {
	offer := testOffer(t)
	svc := &mockService{
		listOffersFunc: func(_ context.Context, seller common.Address) ([]*entity.Offer, error) {
			if seller != offer.Seller {
				t.Errorf("unexpected seller: %s", seller.Hex())
			}
			return []*entity.Offer{offer}, nil
		},
	}
	mux := newTestMux(t, svc)
	w := doJSON(t, mux, "GET", "/sellers/"+sellerHex+"/offers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp []offerResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp) != 1 || resp[0].ItemID != 7 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAdminEndpoints(t *testing.T) {
	t.Run("set fee", func(t *testing.T) {
		svc := &mockService{
			setFeeFunc: func(_ context.Context, caller common.Address, divisor uint64) error {
				if caller != common.HexToAddress(ownerHex) || divisor != 50 {
					t.Errorf("unexpected args: %s %d", caller.Hex(), divisor)
				}
				return nil
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "PUT", "/admin/fee", `{"caller":"`+ownerHex+`","divisor":50}`)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("zero divisor returns 400", func(t *testing.T) {
		mux := newTestMux(t, &mockService{})
		w := doJSON(t, mux, "PUT", "/admin/fee", `{"caller":"`+ownerHex+`","divisor":0}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("non-owner returns 403", func(t *testing.T) {
		svc := &mockService{
			setFeeFunc: func(_ context.Context, _ common.Address, _ uint64) error {
				return entity.ErrNotOwner
			},
		}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "PUT", "/admin/fee", `{"caller":"`+buyerHex+`","divisor":50}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("set fee recipient", func(t *testing.T) {
		svc := &mockService{
			setFeeRecipientFunc: func(_ context.Context, caller, recipient common.Address) error {
				if recipient != common.HexToAddress(buyerHex) {
					t.Errorf("unexpected recipient: %s", recipient.Hex())
				}
				return nil
			},
		}
		mux := newTestMux(t, svc)
		body := `{"caller":"` + ownerHex + `","recipient":"` + buyerHex + `"}`
		w := doJSON(t, mux, "PUT", "/admin/fee-recipient", body)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("whitelist payment token", func(t *testing.T) {
		var captured *entity.PaymentToken
		svc := &mockService{
			setTokenFunc: func(_ context.Context, _ common.Address, token *entity.PaymentToken) error {
				captured = token
				return nil
			},
		}
		mux := newTestMux(t, svc)
		body := `{"caller":"` + ownerHex + `","address":"` + tokenHex + `",` +
			`"symbol":"USDC","decimals":6,"feedAddress":"` + feedHex + `","enabled":true}`
		w := doJSON(t, mux, "PUT", "/admin/payment-tokens", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if captured == nil || captured.Symbol != "USDC" || captured.Decimals != 6 || !captured.Enabled {
			t.Errorf("unexpected token passed to service: %+v", captured)
		}
	})

	t.Run("token without symbol returns 400", func(t *testing.T) {
		mux := newTestMux(t, &mockService{})
		body := `{"caller":"` + ownerHex + `","address":"` + tokenHex + `",` +
			`"symbol":"","decimals":6,"feedAddress":"` + feedHex + `","enabled":true}`
		w := doJSON(t, mux, "PUT", "/admin/payment-tokens", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy returns 200", func(t *testing.T) {
		svc := &mockService{pingFunc: func(_ context.Context) error { return nil }}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "GET", "/health", "")
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}

		var resp map[string]string
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp["status"] != "ok" {
			t.Errorf("expected status ok, got %q", resp["status"])
		}
	})

	t.Run("unreachable storage returns 503", func(t *testing.T) {
		svc := &mockService{pingFunc: func(_ context.Context) error { return errors.New("db down") }}
		mux := newTestMux(t, svc)
		w := doJSON(t, mux, "GET", "/health", "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}
