package movement

import "github.com/shopspring/decimal"

type lineRequest struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gte=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type transferLineRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gte=1"`
}

type purchaseRequest struct {
	Supplier  string        `json:"supplier" validate:"required,max=200"`
	InvoiceNo string        `json:"invoice_no" validate:"required,max=100"`
	Lines     []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type saleRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	InvoiceNo  *string       `json:"invoice_no,omitempty" validate:"omitempty,max=100"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type returnRequest struct {
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	InvoiceNo  string        `json:"invoice_no" validate:"required,max=100"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type transferRequest struct {
	From         string                `json:"from" validate:"required"`
	To           string                `json:"to" validate:"required"`
	TechnicianID *int64                `json:"technician_id,omitempty" validate:"omitempty,gt=0"`
	WorkType     string                `json:"work_type,omitempty" validate:"max=100"`
	Lines        []transferLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (r purchaseRequest) toInput() PurchaseInput {
	return PurchaseInput{
		Supplier:  r.Supplier,
		InvoiceNo: r.InvoiceNo,
		Lines:     toLineInputs(r.Lines),
	}
}

func (r saleRequest) toInput(store Location) SaleInput {
	return SaleInput{
		Store:      store,
		CustomerID: r.CustomerID,
		InvoiceNo:  r.InvoiceNo,
		Lines:      toLineInputs(r.Lines),
	}
}

func (r returnRequest) toInput(store Location) ReturnInput {
	return ReturnInput{
		Store:      store,
		CustomerID: r.CustomerID,
		InvoiceNo:  r.InvoiceNo,
		Lines:      toLineInputs(r.Lines),
	}
}

func (r transferRequest) toInput(from, to Location) TransferInput {
	lines := make([]TransferLineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, TransferLineInput{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return TransferInput{
		From:         from,
		To:           to,
		TechnicianID: r.TechnicianID,
		WorkType:     r.WorkType,
		Lines:        lines,
	}
}

func toLineInputs(lines []lineRequest) []LineInput {
	inputs := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		inputs = append(inputs, LineInput{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	return inputs
}
