package catalog

import "context"

// RepositoryPort is the persistence surface for the catalog.
type RepositoryPort interface {
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id int64) (Item, error)
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id int64) error
	ListItems(ctx context.Context, limit, offset int) ([]Item, int, error)
	CreateCustomer(ctx context.Context, customer *Customer) error
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	UpdateCustomer(ctx context.Context, customer Customer) error
	DeleteCustomer(ctx context.Context, id int64) error
	ListCustomers(ctx context.Context, limit, offset int) ([]Customer, int, error)
}

// Service is thin CRUD over items and customers. Cost and sale fields
// never pass through here; only the movement engine writes them.
type Service struct {
	repo RepositoryPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ItemInput carries the caller-editable item fields.
type ItemInput struct {
	Name     string
	Unit     string
	Category string
}

// CustomerInput carries the caller-editable customer fields.
type CustomerInput struct {
	Name  string
	Phone string
	Email string
}

func (s *Service) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	item := Item{Name: input.Name, Unit: input.Unit, Category: input.Category}
	if err := s.repo.CreateItem(ctx, &item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

func (s *Service) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	item.Name = input.Name
	item.Unit = input.Unit
	item.Category = input.Category
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, id int64) error {
	return s.repo.DeleteItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, limit, offset int) ([]Item, int, error) {
	return s.repo.ListItems(ctx, limit, offset)
}

func (s *Service) CreateCustomer(ctx context.Context, input CustomerInput) (Customer, error) {
	customer := Customer{Name: input.Name, Phone: input.Phone, Email: input.Email}
	if err := s.repo.CreateCustomer(ctx, &customer); err != nil {
		return Customer{}, err
	}
	return customer, nil
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, input CustomerInput) (Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	customer.Name = input.Name
	customer.Phone = input.Phone
	customer.Email = input.Email
	if err := s.repo.UpdateCustomer(ctx, customer); err != nil {
		return Customer{}, err
	}
	return customer, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context, limit, offset int) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, limit, offset)
}
