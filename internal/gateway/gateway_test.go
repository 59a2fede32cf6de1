package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"tiendapos/internal/apperr"
	"tiendapos/internal/domain"
)

func TestParseFailurePrefersStructuredPayload(t *testing.T) {
	err := ParseFailure([]byte(`{"error":{"code":"conflict","message":"shift already open"}}`), "409 Conflict")
	require.Equal(t, apperr.KindBackend, err.Kind)
	require.Equal(t, "conflict", err.Code)
	require.Equal(t, "shift already open", err.Message)
}

func TestParseFailureFallsBackToUnknown(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"string error": {body: `{"error":"Turno no encontrado."}`, want: "Turno no encontrado."},
		"plain text":   {body: "upstream exploded", want: "upstream exploded"},
		"empty body":   {body: "", want: "502 Bad Gateway"},
		"no message":   {body: `{"error":{"code":"x"}}`, want: `{"error":{"code":"x"}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ParseFailure([]byte(tc.body), "502 Bad Gateway")
			require.Equal(t, apperr.KindUnknown, err.Kind)
			require.Equal(t, tc.want, err.Message)
		})
	}
}

func TestHTTPTransportInvokesCommandWithBearerToken(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload domain.ShiftOpenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/login" {
			_ = json.NewEncoder(w).Encode(domain.LoginResponse{AccessToken: "tok-1", Role: "cashier"})
			return
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotPayload)
		_ = json.NewEncoder(w).Encode(domain.Shift{ID: "shift-1", Status: domain.ShiftStatusOpen, InitialCash: gotPayload.InitialCash})
	}))
	defer srv.Close()

	transport := NewHTTPTransport(srv.URL, time.Second, nil)
	_, err := transport.Login(context.Background(), "cashier", "secret")
	require.NoError(t, err)

	client := NewClient(transport)
	shift, err := client.OpenShift(context.Background(), domain.ShiftOpenRequest{
		InitialCash: decimal.NewFromInt(500),
		UserID:      "cashier",
		RegisterID:  "register-1",
	})
	require.NoError(t, err)
	require.Equal(t, "/api/v1/commands/open_shift", gotPath)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, "register-1", gotPayload.RegisterID)
	require.True(t, shift.InitialCash.Equal(decimal.NewFromInt(500)))
}

func TestHTTPTransportSurfacesBackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_request","message":"initial cash must not be negative"}}`))
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(srv.URL, time.Second, nil))
	_, err := client.OpenShift(context.Background(), domain.ShiftOpenRequest{InitialCash: decimal.NewFromInt(-1)})
	require.Error(t, err)
	require.True(t, apperr.HasCode(err, apperr.CodeInvalidRequest))
}

func TestHTTPTransportReportsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(NewHTTPTransport(url, 200*time.Millisecond, nil))
	_, err := client.GetAllActiveKits(context.Background())
	require.True(t, apperr.IsKind(err, apperr.KindTransport))
}

func TestGetActiveShiftDecodesNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(srv.URL, time.Second, nil))
	shift, err := client.GetActiveShift(context.Background(), "register-1")
	require.NoError(t, err)
	require.Nil(t, shift)
}

type dispatcherFunc func(ctx context.Context, command string, payload json.RawMessage) (any, error)

func (f dispatcherFunc) Dispatch(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	return f(ctx, command, payload)
}

type ctxKey struct{}

func TestLocalRoundTripsThroughJSON(t *testing.T) {
	var seenActor any
	local := NewLocal(dispatcherFunc(func(ctx context.Context, command string, payload json.RawMessage) (any, error) {
		seenActor = ctx.Value(ctxKey{})
		require.Equal(t, CmdGetProductByID, command)
		var req domain.ProductRequest
		require.NoError(t, json.Unmarshal(payload, &req))
		return domain.Product{ID: req.ID, Name: "Shampoo 400ml", RetailPrice: decimal.RequireFromString("89.90")}, nil
	}), WithContext(func(ctx context.Context) context.Context {
		return context.WithValue(ctx, ctxKey{}, "cashier")
	}))

	product, err := NewClient(local).GetProductByID(context.Background(), "prod-1")
	require.NoError(t, err)
	require.Equal(t, "prod-1", product.ID)
	require.Equal(t, "89.9", product.RetailPrice.String())
	require.Equal(t, "cashier", seenActor)
}

func TestLocalWrapsPlainErrorsAsUnknown(t *testing.T) {
	local := NewLocal(dispatcherFunc(func(context.Context, string, json.RawMessage) (any, error) {
		return nil, errors.New("disk full")
	}))

	err := local.Invoke(context.Background(), CmdGetAllActiveKits, nil, nil)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindUnknown, appErr.Kind)
	require.Equal(t, "disk full", appErr.Message)
}
