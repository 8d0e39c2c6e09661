package boxes

import "github.com/meridian-retail/meridian-retail/internal/movement"

type createBoxRequest struct {
	BoxNumber string `json:"box_number" validate:"required,max=32"`
	Capacity  int64  `json:"capacity" validate:"required,min=1"`
	Status    string `json:"status" validate:"omitempty,oneof=ACTIVE FULL INACTIVE"`
}

func (r createBoxRequest) toInput(loc movement.Location) CreateBoxInput {
	return CreateBoxInput{
		Location:  loc,
		BoxNumber: r.BoxNumber,
		Capacity:  r.Capacity,
		Status:    Status(r.Status),
	}
}

type updateBoxRequest struct {
	Capacity int64  `json:"capacity" validate:"required,min=1"`
	Status   string `json:"status" validate:"required,oneof=ACTIVE FULL INACTIVE"`
}

func (r updateBoxRequest) toInput() UpdateBoxInput {
	return UpdateBoxInput{Capacity: r.Capacity, Status: Status(r.Status)}
}

type smartCreateRequest struct {
	ItemID        int64 `json:"item_id" validate:"required,min=1"`
	NumberOfBoxes int64 `json:"number_of_boxes" validate:"required,min=1"`
	Capacity      int64 `json:"capacity" validate:"omitempty,min=1"`
}

func (r smartCreateRequest) toInput(loc movement.Location) SmartCreateInput {
	return SmartCreateInput{
		Location:      loc,
		ItemID:        r.ItemID,
		NumberOfBoxes: r.NumberOfBoxes,
		Capacity:      r.Capacity,
	}
}

type quantityRequest struct {
	ItemID   int64 `json:"item_id" validate:"required,min=1"`
	Quantity int64 `json:"quantity" validate:"required,min=1"`
}
