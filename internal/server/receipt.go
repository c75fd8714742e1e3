package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-sql/civil"
	"github.com/shopspring/decimal"
	receiptdomain "github.com/smallbiznis/receiptpoints/internal/receipt/domain"
)

var purchaseTimeLayouts = []string{"15:04", "15:04:05"}

// Amount bounds. Scoring cost in decimal grows with the exponent, so amounts
// outside these bounds are rejected as malformed before they reach scoring.
const (
	maxAmountBytes    = 64
	maxAmountDigits   = 30
	minAmountExponent = -12
	maxAmountExponent = 18
)

var errAmountOutOfRange = errors.New("amount_out_of_range")

// receiptRequest mirrors the wire document. Pointer and raw fields keep an
// omitted value distinct from a zero one.
type receiptRequest struct {
	Retailer     *string         `json:"retailer"`
	PurchaseDate *string         `json:"purchaseDate"`
	PurchaseTime *string         `json:"purchaseTime"`
	Total        json.RawMessage `json:"total"`
	Items        []itemRequest   `json:"items"`
}

type itemRequest struct {
	ShortDescription *string         `json:"shortDescription"`
	Price            json.RawMessage `json:"price"`
}

// ProcessReceipt handles POST /receipts/process.
func (s *Server) ProcessReceipt(c *gin.Context) {
	var req receiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receipt, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.receiptSvc.Process(c.Request.Context(), receipt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_id", resp.ID)
	c.JSON(http.StatusOK, resp)
}

// GetReceiptPoints handles GET /receipts/:id/points.
func (s *Server) GetReceiptPoints(c *gin.Context) {
	resp, err := s.receiptSvc.Points(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// toDomain converts the document, collecting every malformed field. Absent
// fields are left for the receipt validator to reject.
func (r receiptRequest) toDomain() (receiptdomain.Receipt, error) {
	errs := &ValidationErrors{}
	var out receiptdomain.Receipt

	if r.Retailer != nil {
		out.Retailer = *r.Retailer
	}

	if raw, ok := presentText(r.PurchaseDate); ok {
		date, err := civil.ParseDate(raw)
		if err != nil {
			errs.add("purchaseDate", "invalid_purchase_date", "purchaseDate must be YYYY-MM-DD")
		} else {
			out.PurchaseDate = &date
		}
	}

	if raw, ok := presentText(r.PurchaseTime); ok {
		at, err := parsePurchaseTime(raw)
		if err != nil {
			errs.add("purchaseTime", "invalid_purchase_time", "purchaseTime must be HH:MM in 24-hour time")
		} else {
			out.PurchaseTime = &at
		}
	}

	total, present, err := parseAmount(r.Total)
	switch {
	case err != nil:
		errs.add("total", "invalid_total", "total must be a decimal amount")
	case present:
		out.Total = &total
	}

	if r.Items != nil {
		out.Items = make([]receiptdomain.Item, 0, len(r.Items))
	}
	for i, item := range r.Items {
		field := fmt.Sprintf("items[%d].price", i)
		price, present, err := parseAmount(item.Price)
		switch {
		case err != nil:
			errs.add(field, "invalid_price", "price must be a decimal amount")
			continue
		case !present:
			errs.add(field, "missing_price", "price is required")
			continue
		}

		var desc string
		if item.ShortDescription != nil {
			desc = *item.ShortDescription
		}
		out.Items = append(out.Items, receiptdomain.Item{ShortDescription: desc, Price: price})
	}

	if !errs.empty() {
		return receiptdomain.Receipt{}, errs
	}
	return out, nil
}

func presentText(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	s := strings.TrimSpace(*v)
	return s, s != ""
}

func parsePurchaseTime(raw string) (civil.Time, error) {
	var lastErr error
	for _, layout := range purchaseTimeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return civil.TimeOf(t), nil
		}
		lastErr = err
	}
	return civil.Time{}, lastErr
}

// parseAmount accepts a quoted or bare JSON number. JSON null and an
// omitted member are both absent.
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Decimal{}, false, nil
	}
	if bytes.Equal(trimmed, []byte(`""`)) {
		return decimal.Decimal{}, false, nil
	}

	if len(trimmed) > maxAmountBytes {
		return decimal.Decimal{}, true, errAmountOutOfRange
	}

	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return decimal.Decimal{}, true, err
	}
	if exp := d.Exponent(); exp < minAmountExponent || exp > maxAmountExponent || d.NumDigits() > maxAmountDigits {
		return decimal.Decimal{}, true, errAmountOutOfRange
	}
	return d, true, nil
}
