package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayStub serves the token endpoint plus whatever handler the test wires
// for the API paths.
func gatewayStub(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int) {
	t.Helper()

	tokenCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok, "token request must carry basic auth")
			assert.Equal(t, "client-id", user)
			assert.Equal(t, "client-secret", pass)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "test-token",
				"expires_in":   3600,
			})
			return
		}
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func testClient(srv *httptest.Server) *Client {
	return NewClient(srv.URL, "client-id", "client-secret", 5*time.Second)
}

func TestCreateOrderExtractsApprovalLink(t *testing.T) {
	var gotBody map[string]interface{}
	srv, _ := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "GW-ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "self", "href": "https://gateway.example/self"},
				{"rel": "approve", "href": "https://gateway.example/approve"},
			},
		})
	})

	result, err := testClient(srv).CreateOrder(context.Background(),
		AmountBreakdown{Currency: "USD", Subtotal: 140_00, Tax: 11_20, Total: 151_20},
		[]models.CartItem{{ProductID: 7, Quantity: 2, UnitPrice: 70_00, Snapshot: models.ProductSnapshot{Name: "Kettle", Price: 70_00}}},
		models.Address{Name: "Ada", Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"},
		ReturnURLs{Return: "https://shop.example/return", Cancel: "https://shop.example/cancel"},
	)
	require.NoError(t, err)

	assert.Equal(t, "GW-ORDER-1", result.OrderID)
	assert.Equal(t, "https://gateway.example/approve", result.ApprovalLink)

	// Amounts cross the wire as 2-decimal strings.
	units := gotBody["purchase_units"].([]interface{})
	amount := units[0].(map[string]interface{})["amount"].(map[string]interface{})
	assert.Equal(t, "151.20", amount["value"])
	breakdown := amount["breakdown"].(map[string]interface{})
	assert.Equal(t, "140.00", breakdown["item_total"].(map[string]interface{})["value"])
	assert.Equal(t, "11.20", breakdown["tax_total"].(map[string]interface{})["value"])
}

func TestCaptureOrderExtractsCaptureID(t *testing.T) {
	srv, _ := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/GW-ORDER-1/capture", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "GW-ORDER-1",
			"status": "COMPLETED",
			"payer":  map[string]string{"payer_id": "PAYER-1"},
			"purchase_units": []map[string]interface{}{{
				"payments": map[string]interface{}{
					"captures": []map[string]string{{"id": "CAP-1", "status": "COMPLETED"}},
				},
			}},
		})
	})

	result, err := testClient(srv).CaptureOrder(context.Background(), "GW-ORDER-1")
	require.NoError(t, err)

	assert.Equal(t, "CAP-1", result.CaptureID)
	assert.Equal(t, "PAYER-1", result.PayerID)
	assert.Equal(t, "COMPLETED", result.Status)
}

func TestCaptureOrderRejectsMissingCaptureID(t *testing.T) {
	srv, _ := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "GW-ORDER-1",
			"status": "COMPLETED",
		})
	})

	_, err := testClient(srv).CaptureOrder(context.Background(), "GW-ORDER-1")
	assert.Error(t, err)
}

func TestRejectionSurfacesAsGatewayError(t *testing.T) {
	srv, _ := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"INSTRUMENT_DECLINED"}]}`))
	})

	_, err := testClient(srv).CaptureOrder(context.Background(), "GW-ORDER-1")

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Contains(t, gwErr.Body, "INSTRUMENT_DECLINED")
}

func TestSubmitTrackingSendsTracker(t *testing.T) {
	var gotBody map[string]interface{}
	srv, _ := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/shipping/trackers-batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := testClient(srv).SubmitTracking(context.Background(), "CAP-1", "1Z999AA1", "UPS")
	require.NoError(t, err)

	trackers := gotBody["trackers"].([]interface{})
	tracker := trackers[0].(map[string]interface{})
	assert.Equal(t, "CAP-1", tracker["transaction_id"])
	assert.Equal(t, "1Z999AA1", tracker["tracking_number"])
	assert.Equal(t, "UPS", tracker["carrier"])
	assert.Equal(t, "SHIPPED", tracker["status"])
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	srv, tokenCalls := gatewayStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := testClient(srv)

	require.NoError(t, client.SubmitTracking(context.Background(), "CAP-1", "1Z999AA1", "UPS"))
	require.NoError(t, client.SubmitTracking(context.Background(), "CAP-1", "1Z999AA2", "UPS"))

	assert.Equal(t, 1, *tokenCalls, "second call must reuse the cached token")
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{100, "1.00"},
		{15120, "151.20"},
		{-250, "-2.50"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatAmount(tc.cents))
	}
}
