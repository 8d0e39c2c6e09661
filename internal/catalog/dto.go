package catalog

type itemRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Unit     string `json:"unit" validate:"required,max=32"`
	Category string `json:"category" validate:"omitempty,max=100"`
}

func (r itemRequest) toInput() ItemInput {
	return ItemInput{Name: r.Name, Unit: r.Unit, Category: r.Category}
}

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

func (r customerRequest) toInput() CustomerInput {
	return CustomerInput{Name: r.Name, Phone: r.Phone, Email: r.Email}
}
