package movement

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	movementService
	recordPurchase func(ctx context.Context, input PurchaseInput) (Purchase, error)
	recordSale     func(ctx context.Context, input SaleInput) (Sale, error)
	recordReturn   func(ctx context.Context, input ReturnInput) (Return, error)
	recordTransfer func(ctx context.Context, input TransferInput) (Transfer, error)
}

func (s *stubService) RecordPurchase(ctx context.Context, input PurchaseInput) (Purchase, error) {
	return s.recordPurchase(ctx, input)
}

func (s *stubService) RecordSale(ctx context.Context, input SaleInput) (Sale, error) {
	return s.recordSale(ctx, input)
}

func (s *stubService) RecordReturn(ctx context.Context, input ReturnInput) (Return, error) {
	return s.recordReturn(ctx, input)
}

func (s *stubService) RecordTransfer(ctx context.Context, input TransferInput) (Transfer, error) {
	return s.recordTransfer(ctx, input)
}

func newTestRouter(svc movementService) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).MountRoutes(r)
	return r
}

func postJSON(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreatePurchaseStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"created", `{"supplier":"Acme","invoice_no":"INV-1","lines":[{"item_id":1,"quantity":5,"unit_price":"130"}]}`, nil, http.StatusCreated},
		{"unknown item", `{"supplier":"Acme","invoice_no":"INV-1","lines":[{"item_id":99,"quantity":5,"unit_price":"130"}]}`, ErrItemNotFound, http.StatusNotFound},
		{"negative price", `{"supplier":"Acme","invoice_no":"INV-1","lines":[{"item_id":1,"quantity":5,"unit_price":"-1"}]}`, ErrInvalidUnitPrice, http.StatusBadRequest},
		{"no lines", `{"supplier":"Acme","invoice_no":"INV-1","lines":[]}`, nil, http.StatusBadRequest},
		{"malformed body", `{"supplier":`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{recordPurchase: func(ctx context.Context, input PurchaseInput) (Purchase, error) {
				if tc.err != nil {
					return Purchase{}, tc.err
				}
				return Purchase{ID: 1, Supplier: input.Supplier, InvoiceNo: input.InvoiceNo}, nil
			}}
			rec := postJSON(newTestRouter(svc), "/purchases/", tc.body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestCreateSaleStatusCodes(t *testing.T) {
	body := `{"customer_id":7,"lines":[{"item_id":1,"quantity":3,"unit_price":"150"}]}`
	cases := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"created", "/stores/STORE/sales", nil, http.StatusCreated},
		{"insufficient stock", "/stores/STORE/sales", ErrInsufficientStock, http.StatusUnprocessableEntity},
		{"unknown customer", "/stores/STORE2/sales", ErrCustomerNotFound, http.StatusNotFound},
		{"warehouse is not a store", "/stores/WAREHOUSE/sales", nil, http.StatusBadRequest},
		{"unknown store", "/stores/STORE9/sales", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{recordSale: func(ctx context.Context, input SaleInput) (Sale, error) {
				if tc.err != nil {
					return Sale{}, tc.err
				}
				return Sale{ID: 1, Store: input.Store, CustomerID: input.CustomerID}, nil
			}}
			rec := postJSON(newTestRouter(svc), tc.path, body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestCreateReturnStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"created", `{"customer_id":7,"invoice_no":"RET-1","lines":[{"item_id":1,"quantity":4,"unit_price":"80"}]}`, nil, http.StatusCreated},
		{"duplicate invoice", `{"customer_id":7,"invoice_no":"RET-1","lines":[{"item_id":1,"quantity":4,"unit_price":"80"}]}`, ErrDuplicateInvoice, http.StatusConflict},
		{"missing invoice", `{"customer_id":7,"lines":[{"item_id":1,"quantity":4,"unit_price":"80"}]}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{recordReturn: func(ctx context.Context, input ReturnInput) (Return, error) {
				if tc.err != nil {
					return Return{}, tc.err
				}
				return Return{ID: 1, Store: input.Store, InvoiceNo: input.InvoiceNo}, nil
			}}
			rec := postJSON(newTestRouter(svc), "/stores/STORE/returns", tc.body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestCreateTransferStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"created", `{"from":"WAREHOUSE","to":"STORE","lines":[{"item_id":1,"quantity":5}]}`, nil, http.StatusCreated},
		{"insufficient stock", `{"from":"WAREHOUSE","to":"STORE","lines":[{"item_id":1,"quantity":5}]}`, ErrInsufficientStock, http.StatusUnprocessableEntity},
		{"same location", `{"from":"STORE","to":"STORE","lines":[{"item_id":1,"quantity":5}]}`, ErrSameLocation, http.StatusBadRequest},
		{"unknown location", `{"from":"DOCK","to":"STORE","lines":[{"item_id":1,"quantity":5}]}`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{recordTransfer: func(ctx context.Context, input TransferInput) (Transfer, error) {
				if tc.err != nil {
					return Transfer{}, tc.err
				}
				return Transfer{ID: 1, From: input.From, To: input.To}, nil
			}}
			rec := postJSON(newTestRouter(svc), "/transfers/", tc.body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
