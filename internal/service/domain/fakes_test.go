package domain

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/cave-sale/internal/cache"
	"github.com/qs-lzh/cave-sale/internal/model"
	"github.com/qs-lzh/cave-sale/internal/repository"
)

// in-memory repositories, WithTx is a no-op

type fakeTx struct{ fail error }

func (f fakeTx) Transaction(fc func(tx *gorm.DB) error, _ ...*sql.TxOptions) error {
	if f.fail != nil {
		return f.fail
	}
	return fc(nil)
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[uint]*model.Event
	nextID uint
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[uint]*model.Event{}}
}

func (r *fakeEventRepo) WithTx(*gorm.DB) repository.EventRepo { return r }

func (r *fakeEventRepo) Create(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *fakeEventRepo) Save(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *fakeEventRepo) GetByID(_ context.Context, id uint) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEventRepo) ListActive(_ context.Context, now time.Time) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, e := range r.events {
		if e.OpenAt(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeSessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]*model.Session
	createErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.Session{}}
}

func (r *fakeSessionRepo) WithTx(*gorm.DB) repository.SessionRepo { return r }

func (r *fakeSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, o := range r.sessions {
		if o.IsActive() && o.EventID == s.EventID && o.UserID == s.UserID {
			return errors.New("duplicate active session")
		}
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) GetActive(_ context.Context, eventID, userID uint) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.IsActive() && s.EventID == eventID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.IsActive() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListExpiredActive(_ context.Context, now time.Time, limit int) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Session
	for _, s := range r.sessions {
		if s.IsActive() && !s.ExpiresAt.After(now) && len(out) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) MarkEnded(_ context.Context, id string, total int64, endedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.IsActive() {
		return false, nil
	}
	s.Status = model.SessionEnded
	s.EndedAt = &endedAt
	s.TotalSpent = max(s.TotalSpent, total)
	return true, nil
}

func (r *fakeSessionRepo) RaiseTotalSpent(_ context.Context, id string, total int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.IsActive() && s.TotalSpent < total {
		s.TotalSpent = total
	}
	return nil
}

type fakeGrantRepo struct {
	mu     sync.Mutex
	grants map[[2]uint]bool
}

func newFakeGrantRepo() *fakeGrantRepo {
	return &fakeGrantRepo{grants: map[[2]uint]bool{}}
}

func (r *fakeGrantRepo) WithTx(*gorm.DB) repository.GrantRepo { return r }

func (r *fakeGrantRepo) Grant(_ context.Context, eventID, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[[2]uint{eventID, userID}] = true
	return nil
}

func (r *fakeGrantRepo) Exists(_ context.Context, eventID, userID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants[[2]uint{eventID, userID}], nil
}

type fakeCartRepo struct {
	mu      sync.Mutex
	lines   []model.CartLine
	nextID  uint
	addErr  error
	// beforeRemove runs ahead of RemoveOrdered, outside the lock
	beforeRemove func()
}

func (r *fakeCartRepo) WithTx(*gorm.DB) repository.CartRepo { return r }

func (r *fakeCartRepo) AddLine(_ context.Context, line *model.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	for i := range r.lines {
		l := &r.lines[i]
		if l.UserID == line.UserID && l.ProductID == line.ProductID && l.SessionID == line.SessionID {
			l.Quantity += line.Quantity
			line.ID = l.ID
			return nil
		}
	}
	r.nextID++
	line.ID = r.nextID
	r.lines = append(r.lines, *line)
	return nil
}

func (r *fakeCartRepo) ListByUser(_ context.Context, userID uint) ([]model.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CartLine
	for _, l := range r.lines {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeCartRepo) ListBySession(_ context.Context, sessionID string) ([]model.CartLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.CartLine
	for _, l := range r.lines {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeCartRepo) RemoveOrdered(_ context.Context, lines []model.CartLine) error {
	if r.beforeRemove != nil {
		r.beforeRemove()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ordered := make(map[uint]int, len(lines))
	for _, l := range lines {
		ordered[l.ID] += l.Quantity
	}
	kept := r.lines[:0]
	for _, l := range r.lines {
		l.Quantity -= ordered[l.ID]
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	r.lines = kept
	return nil
}

type fakeProductRepo struct {
	products map[uint]*model.Product
	nextID   uint
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: map[uint]*model.Product{}}
}

func (r *fakeProductRepo) WithTx(*gorm.DB) repository.ProductRepo { return r }

func (r *fakeProductRepo) Create(_ context.Context, p *model.Product) error {
	r.nextID++
	p.ID = r.nextID
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id uint) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeEventProductRepo struct {
	products *fakeProductRepo
	eps      []model.EventProduct
}

func (r *fakeEventProductRepo) WithTx(*gorm.DB) repository.EventProductRepo { return r }

func (r *fakeEventProductRepo) Attach(_ context.Context, ep *model.EventProduct) error {
	for _, o := range r.eps {
		if o.EventID == ep.EventID && o.ProductID == ep.ProductID {
			return errors.New("duplicate event product")
		}
	}
	ep.ID = uint(len(r.eps) + 1)
	r.eps = append(r.eps, *ep)
	return nil
}

func (r *fakeEventProductRepo) Get(ctx context.Context, eventID, productID uint) (*model.EventProduct, error) {
	for _, ep := range r.eps {
		if ep.EventID == eventID && ep.ProductID == productID {
			p, err := r.products.GetByID(ctx, productID)
			if err != nil {
				return nil, err
			}
			ep.Product = *p
			return &ep, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeEventProductRepo) ListForEvent(ctx context.Context, eventID uint, q repository.EventProductQuery) ([]model.EventProduct, error) {
	var out []model.EventProduct
	for _, ep := range r.eps {
		if ep.EventID != eventID {
			continue
		}
		p, err := r.products.GetByID(ctx, ep.ProductID)
		if err != nil {
			return nil, err
		}
		ep.Product = *p
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if (q.MinPrice != nil && ep.EventPrice < *q.MinPrice) || (q.MaxPrice != nil && ep.EventPrice > *q.MaxPrice) {
			continue
		}
		if (q.MinPoints != nil && ep.RequiredPoints < *q.MinPoints) || (q.MaxPoints != nil && ep.RequiredPoints > *q.MaxPoints) {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

type fakeOrderRepo struct {
	orders []model.Order
}

func (r *fakeOrderRepo) WithTx(*gorm.DB) repository.OrderRepo { return r }

func (r *fakeOrderRepo) Create(_ context.Context, o *model.Order) error {
	o.ID = uint(len(r.orders) + 1)
	r.orders = append(r.orders, *o)
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uint) (*model.Order, error) {
	for _, o := range r.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) QuantitiesBySession(_ context.Context, sessionID string) (map[uint]int, error) {
	qty := make(map[uint]int)
	for _, o := range r.orders {
		for _, l := range o.Lines {
			if l.SessionID == sessionID {
				qty[l.ProductID] += l.Quantity
			}
		}
	}
	return qty, nil
}

func (r *fakeOrderRepo) ListByUser(_ context.Context, userID uint) ([]model.Order, error) {
	var out []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// fixture wires the services over fakes and a miniredis backed cache

type fixture struct {
	mr            *miniredis.Miniredis
	cache         *cache.RedisCache
	events        *fakeEventRepo
	sessions      *fakeSessionRepo
	grants        *fakeGrantRepo
	cart          *fakeCartRepo
	products      *fakeProductRepo
	eventProducts *fakeEventProductRepo
	orders        *fakeOrderRepo

	eventService   *eventService
	productService *productService
	sessionService *sessionService
	cartService    *cartService
	orderService   *orderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{
		mr:       mr,
		cache:    c,
		events:   newFakeEventRepo(),
		sessions: newFakeSessionRepo(),
		grants:   newFakeGrantRepo(),
		cart:     &fakeCartRepo{},
		products: newFakeProductRepo(),
		orders:   &fakeOrderRepo{},
	}
	f.eventProducts = &fakeEventProductRepo{products: f.products}

	logger := zap.NewNop()
	f.eventService = NewEventService(f.events, f.grants)
	f.productService = NewProductService(f.eventService, f.products, f.eventProducts, DefaultRarityPolicy())
	f.sessionService = NewSessionService(f.events, f.sessions, f.grants, f.cart, f.orders, c, logger)
	f.cartService = NewCartService(fakeTx{}, c, f.events, f.sessions, f.products, f.eventProducts, f.cart, logger)
	f.orderService = NewOrderService(fakeTx{}, f.events, f.sessionService, f.cart, f.orders)
	return f
}

func (f *fixture) event(t *testing.T, mutate func(in *model.EventInsert)) *model.Event {
	t.Helper()
	in := model.EventInsert{
		Title:         "Cave",
		Kind:          model.EventKindScheduled,
		StartTime:     t0.Add(-time.Hour),
		EndTime:       t0.Add(3 * time.Hour),
		MaxConcurrent: 10,
		UserTimeLimit: 30,
		PurchaseCap:   500,
		AllowedPay:    model.PayBoth,
	}
	if mutate != nil {
		mutate(&in)
	}
	e, err := f.eventService.CreateEvent(context.Background(), in)
	require.NoError(t, err)
	return e
}

func (f *fixture) product(t *testing.T, eventID uint, price, eventPrice, points int64, maxQty int) *model.Product {
	t.Helper()
	p := &model.Product{Name: "item", Category: "gear", Price: price}
	require.NoError(t, f.productService.CreateProduct(context.Background(), p))
	_, err := f.productService.AttachProductToEvent(context.Background(), eventID, AttachInput{
		ProductID: p.ID, EventPrice: eventPrice, RequiredPoints: points, MaxQuantityPerProduct: maxQty,
	})
	require.NoError(t, err)
	return p
}
