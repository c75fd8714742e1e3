package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/receiptpoints/internal/clock"
	"github.com/smallbiznis/receiptpoints/internal/idgen"
	"github.com/smallbiznis/receiptpoints/internal/ratelimit"
	receiptdomain "github.com/smallbiznis/receiptpoints/internal/receipt/domain"
	"github.com/smallbiznis/receiptpoints/internal/receipt/mocks"
	"github.com/smallbiznis/receiptpoints/internal/receipt/repository"
	"github.com/smallbiznis/receiptpoints/internal/receipt/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const targetReceipt = `{
  "retailer": "Target",
  "purchaseDate": "2022-01-01",
  "purchaseTime": "13:01",
  "items": [
    {"shortDescription": "Mountain Dew 12PK", "price": "6.49"},
    {"shortDescription": "Emils Cheese Pizza", "price": "12.25"},
    {"shortDescription": "Knorr Creamy Chicken", "price": "1.26"},
    {"shortDescription": "Doritos Nacho Cheese", "price": "3.35"},
    {"shortDescription": "   Klarbrunn 12-PK 12 FL OZ  ", "price": "12.00"}
  ],
  "total": "35.35"
}`

const cornerMarketReceipt = `{
  "retailer": "M&M Corner Market",
  "purchaseDate": "2022-03-20",
  "purchaseTime": "14:33",
  "items": [
    {"shortDescription": "Gatorade", "price": "2.25"},
    {"shortDescription": "Gatorade", "price": "2.25"},
    {"shortDescription": "Gatorade", "price": "2.25"},
    {"shortDescription": "Gatorade", "price": "2.25"}
  ],
  "total": "9.00"
}`

const walgreensReceipt = `{
  "retailer": "Walgreens",
  "purchaseDate": "2022-01-02",
  "purchaseTime": "08:13",
  "total": "2.65",
  "items": [
    {"shortDescription": "Pepsi - 12-oz", "price": "1.25"},
    {"shortDescription": "Dasani", "price": "1.40"}
  ]
}`

type fakeLimiter struct {
	allow bool
	err   error
	calls int
	keys  []string
}

func (f *fakeLimiter) Enabled() bool { return true }

func (f *fakeLimiter) Allow(_ context.Context, clientKey string) (*ratelimit.RateLimitResult, error) {
	f.calls++
	f.keys = append(f.keys, clientKey)
	if f.err != nil {
		return nil, f.err
	}
	return &ratelimit.RateLimitResult{
		Allowed:    f.allow,
		Limit:      20,
		RetryAfter: 1500 * time.Millisecond,
	}, nil
}

func newTestServer(t *testing.T, svc receiptdomain.Service, limiter submissionLimiter) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	s := NewServer(ServerParams{Gin: r, ReceiptSvc: svc})
	s.limiter = limiter
	return s
}

func newReceiptService() receiptdomain.Service {
	return service.New(service.Params{
		Log:   zap.NewNop(),
		Repo:  repository.NewMemory(),
		IDGen: idgen.NewUUID(),
		Clock: clock.NewSystem(),
	})
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestProcessThenLookup(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	cases := map[string]struct {
		body   string
		points int64
	}{
		"target":        {body: targetReceipt, points: 28},
		"corner market": {body: cornerMarketReceipt, points: 109},
		"walgreens":     {body: walgreensReceipt, points: 15},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/receipts/process", tc.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var processed receiptdomain.ProcessResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &processed))
			require.NotEmpty(t, processed.ID)

			w = do(s, http.MethodGet, "/receipts/"+processed.ID+"/points", "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"points":`+jsonInt(tc.points)+`}`, w.Body.String())
		})
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestProcess_DistinctIDsForIdenticalReceipts(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	ids := map[string]struct{}{}
	for i := 0; i < 3; i++ {
		w := do(s, http.MethodPost, "/receipts/process", targetReceipt)
		require.Equal(t, http.StatusOK, w.Code)
		var processed receiptdomain.ProcessResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &processed))
		ids[processed.ID] = struct{}{}
	}
	assert.Len(t, ids, 3)
}

func TestProcess_InvalidReceipt(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	bodies := map[string]string{
		"empty object":    `{}`,
		"empty retailer":  `{"retailer":"","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[{"shortDescription":"a","price":"1.00"}]}`,
		"no items":        `{"retailer":"Target","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[]}`,
		"missing total":   `{"retailer":"Target","purchaseDate":"2022-01-01","purchaseTime":"13:01","items":[{"shortDescription":"a","price":"1.00"}]}`,
		"null date":       `{"retailer":"Target","purchaseDate":null,"purchaseTime":"13:01","total":"1.00","items":[{"shortDescription":"a","price":"1.00"}]}`,
		"blank time text": `{"retailer":"Target","purchaseDate":"2022-01-01","purchaseTime":"","total":"1.00","items":[{"shortDescription":"a","price":"1.00"}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/receipts/process", body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			payload := decodeError(t, w)
			assert.Equal(t, "invalid_receipt", payload.Type)
			assert.Equal(t, "The receipt is invalid.", payload.Message)
		})
	}
}

func TestProcess_MalformedInput(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	cases := []struct {
		name  string
		body  string
		field string
		code  string
	}{
		{name: "not json", body: `{"retailer":`, field: "request", code: "invalid_request"},
		{name: "bad date", body: `{"retailer":"T","purchaseDate":"2022-13-01","purchaseTime":"13:01","total":"1.00","items":[{"price":"1.00"}]}`, field: "purchaseDate", code: "invalid_purchase_date"},
		{name: "bad time", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"1pm","total":"1.00","items":[{"price":"1.00"}]}`, field: "purchaseTime", code: "invalid_purchase_time"},
		{name: "bad total", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"ten","items":[{"price":"1.00"}]}`, field: "total", code: "invalid_total"},
		{name: "missing price", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[{"shortDescription":"a"}]}`, field: "items[0].price", code: "missing_price"},
		{name: "total exponent too small", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"0e-20000000","items":[{"price":"1.00"}]}`, field: "total", code: "invalid_total"},
		{name: "bare total exponent too large", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":1e400,"items":[{"price":"1.00"}]}`, field: "total", code: "invalid_total"},
		{name: "price exponent too small", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[{"price":"1e-3000000"}]}`, field: "items[0].price", code: "invalid_price"},
		{name: "price too many digits", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[{"price":"1234567890123456789012345678901.5"}]}`, field: "items[0].price", code: "invalid_price"},
		{name: "bad price", body: `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","total":"1.00","items":[{"price":"1.00"},{"price":"x"}]}`, field: "items[1].price", code: "invalid_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/receipts/process", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			payload := decodeError(t, w)
			assert.Equal(t, "validation_error", payload.Type)
			assert.Equal(t, "The receipt is invalid.", payload.Message)
			require.NotEmpty(t, payload.Errors)
			assert.Equal(t, tc.field, payload.Errors[0].Field)
			assert.Equal(t, tc.code, payload.Errors[0].Code)
		})
	}
}

func TestParseAmountBounds(t *testing.T) {
	cases := []struct {
		raw     string
		present bool
		ok      bool
	}{
		{raw: `"35.35"`, present: true, ok: true},
		{raw: `"0.000000000001"`, present: true, ok: true},
		{raw: `"1e18"`, present: true, ok: true},
		{raw: `"0.0000000000001"`, present: true, ok: false},
		{raw: `"1e19"`, present: true, ok: false},
		{raw: `"0e-20000000"`, present: true, ok: false},
		{raw: `"` + strings.Repeat("9", 80) + `"`, present: true, ok: false},
		{raw: `null`, present: false, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			_, present, err := parseAmount(json.RawMessage(tc.raw))
			assert.Equal(t, tc.present, present)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errAmountOutOfRange)
			}
		})
	}
}

func TestProcess_AcceptsNumericAmountsAndSeconds(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	body := `{"retailer":"Walgreens","purchaseDate":"2022-01-02","purchaseTime":"08:13:00","total":2.65,
		"items":[{"shortDescription":"Pepsi - 12-oz","price":1.25},{"shortDescription":"Dasani","price":1.40}]}`
	w := do(s, http.MethodPost, "/receipts/process", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGetPoints_UnknownID(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)

	w := do(s, http.MethodGet, "/receipts/does-not-exist/points", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "not_found", payload.Type)
	assert.Equal(t, "No receipt found for that ID.", payload.Message)
}

func TestServiceFailureIsInternalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	svc.EXPECT().Process(gomock.Any(), gomock.Any()).Return(receiptdomain.ProcessResult{}, errors.New("store receipt points: disk full"))

	s := newTestServer(t, svc, nil)
	w := do(s, http.MethodPost, "/receipts/process", targetReceipt)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal_error", decodeError(t, w).Type)
	assert.NotContains(t, w.Body.String(), "disk full")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, newReceiptService(), nil)
	w := do(s, http.MethodGet, "/receipts", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}

func TestSubmissionRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		limiter := &fakeLimiter{allow: false}
		s := newTestServer(t, newReceiptService(), limiter)

		w := do(s, http.MethodPost, "/receipts/process", targetReceipt)
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, "rate_limited", decodeError(t, w).Type)
	})

	t.Run("allowed", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		s := newTestServer(t, newReceiptService(), limiter)

		w := do(s, http.MethodPost, "/receipts/process", targetReceipt)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("backend failure fails open", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		s := newTestServer(t, newReceiptService(), limiter)

		w := do(s, http.MethodPost, "/receipts/process", targetReceipt)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("forwarded address from untrusted peer is ignored", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		s := newTestServer(t, newReceiptService(), limiter)
		require.NoError(t, trustProxies(s.Engine(), nil))

		for _, forwarded := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
			req := httptest.NewRequest(http.MethodPost, "/receipts/process", strings.NewReader(targetReceipt))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Forwarded-For", forwarded)
			req.RemoteAddr = "10.0.0.9:5555"
			w := httptest.NewRecorder()
			s.Engine().ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
		}
		assert.Equal(t, []string{"10.0.0.9", "10.0.0.9", "10.0.0.9"}, limiter.keys)
	})

	t.Run("forwarded address from trusted proxy is used", func(t *testing.T) {
		limiter := &fakeLimiter{allow: true}
		s := newTestServer(t, newReceiptService(), limiter)
		require.NoError(t, trustProxies(s.Engine(), []string{"10.0.0.0/8"}))

		req := httptest.NewRequest(http.MethodPost, "/receipts/process", strings.NewReader(targetReceipt))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "1.1.1.1")
		req.RemoteAddr = "10.0.0.9:5555"
		w := httptest.NewRecorder()
		s.Engine().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"1.1.1.1"}, limiter.keys)
	})

	t.Run("invalid proxy list is rejected", func(t *testing.T) {
		assert.Error(t, trustProxies(gin.New(), []string{"not-an-address"}))
	})

	t.Run("lookups are not limited", func(t *testing.T) {
		limiter := &fakeLimiter{allow: false}
		s := newTestServer(t, newReceiptService(), limiter)

		do(s, http.MethodGet, "/receipts/x/points", "")
		assert.Zero(t, limiter.calls)
	})
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(newValidationError("total", "invalid_total", "bad"))
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_total", code)

	typ, code = classifyErrorForLog(receiptdomain.ErrNotFound)
	assert.Equal(t, "not_found", typ)
	assert.Equal(t, "not_found", code)
}
