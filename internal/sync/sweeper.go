package sync

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"coffee_pos/internal/ledger"
	"coffee_pos/internal/localstore"
	"coffee_pos/internal/metrics"
	"coffee_pos/internal/model"
)

// CommitPayload 是回放时组装的规范化提交载荷（仅新建，编辑不走回放）。
type CommitPayload struct {
	OrderID       string             `json:"order_id"`
	BusinessID    string             `json:"business_id"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Items         []CommitItem       `json:"items"`
	IsPaid        bool               `json:"is_paid"`
	PaymentMethod string             `json:"payment_method"`
}

// CommitItem 对齐账本提交接口的行结构。
type CommitItem struct {
	MenuItemID  uint               `json:"menu_item_id"`
	Name        string             `json:"name"`
	Quantity    int                `json:"quantity"`
	Price       int64              `json:"price"`
	Modifiers   model.ModifierList `json:"modifiers"`
	Notes       string             `json:"notes"`
	CourseStage int                `json:"course_stage"`
	ItemStatus  string             `json:"item_status"`
}

// Committer 把一笔本地订单提交到远端账本。
// 订单已存在时必须返回 ledger.ErrDuplicateOrder——那是幂等对账路径。
type Committer interface {
	Commit(ctx context.Context, payload CommitPayload) (ledger.CommitResult, error)
}

// CustomerPusher 在同步成功后回填终端侧客户字段（可选能力）。
type CustomerPusher interface {
	PushCustomer(ctx context.Context, orderID, name, phone string) error
}

// Prober 探测与账本的连通性，离线时整轮直接跳过。
type Prober interface {
	Online(ctx context.Context) bool
}

// Sweeper 周期性地把本地缓存中 pending 的订单回放进远端账本。
// 单飞：上一轮未结束时新一轮直接让路；多台终端各自跑各自的 Sweeper，
// 汇到账本的提交事务那里串行化。
type Sweeper struct {
	store     *localstore.Store
	committer Committer
	prober    Prober

	interval   time.Duration
	alertAfter int

	inFlight atomic.Bool
}

func New(store *localstore.Store, committer Committer, prober Prober, interval time.Duration, alertAfter int) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if alertAfter <= 0 {
		alertAfter = 6
	}
	return &Sweeper{
		store:      store,
		committer:  committer,
		prober:     prober,
		interval:   interval,
		alertAfter: alertAfter,
	}
}

// Run 启动即先扫一轮，然后按固定间隔扫，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce 执行一轮回放，返回本轮确认同步的订单数。
// 每笔订单的失败互相隔离：一笔坏单不会挡住其它订单。
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	if !s.inFlight.CompareAndSwap(false, true) {
		return 0
	}
	defer s.inFlight.Store(false)

	if s.prober != nil && !s.prober.Online(ctx) {
		return 0
	}
	metrics.SweepRunsTotal.Inc()

	pending, err := s.store.Pending(ctx)
	if err != nil {
		log.Printf("sweeper: list pending: %v", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	synced := 0
	for _, order := range pending {
		if ctx.Err() != nil {
			break
		}
		if s.syncOne(ctx, order) {
			synced++
		}
	}

	if stuck, err := s.store.CountStuck(ctx, s.alertAfter); err == nil {
		metrics.SweepStuckOrders.Set(float64(stuck))
	}
	return synced
}

func (s *Sweeper) syncOne(ctx context.Context, order localstore.Order) bool {
	items, err := s.store.Items(ctx, order.ID)
	if err != nil {
		log.Printf("sweeper: load items order=%s: %v", order.ID, err)
		return false
	}

	payload := CommitPayload{
		OrderID:       order.ID,
		BusinessID:    order.BusinessID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		IsPaid:        order.IsPaid,
		PaymentMethod: order.PaymentMethod,
		Items:         make([]CommitItem, 0, len(items)),
	}
	for _, it := range items {
		payload.Items = append(payload.Items, CommitItem{
			MenuItemID:  it.MenuItemID,
			Name:        it.Name,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Modifiers:   it.Modifiers,
			Notes:       it.Notes,
			CourseStage: it.CourseStage,
			ItemStatus:  it.ItemStatus,
		})
	}

	res, err := s.committer.Commit(ctx, payload)
	switch {
	case err == nil:
		if markErr := s.store.MarkSynced(ctx, order.ID, res.OrderNumber); markErr != nil {
			log.Printf("sweeper: mark synced order=%s: %v", order.ID, markErr)
			return false
		}
		metrics.SweepSyncedTotal.Inc()
		s.pushCustomer(ctx, order)
		return true

	case errors.Is(err, ledger.ErrDuplicateOrder):
		// 远端已有这笔订单：上一次未确认的提交其实成功了，按成功对账。
		if markErr := s.store.MarkSynced(ctx, order.ID, order.RemoteNumber); markErr != nil {
			log.Printf("sweeper: mark synced (duplicate) order=%s: %v", order.ID, markErr)
			return false
		}
		metrics.SweepDuplicateTotal.Inc()
		s.pushCustomer(ctx, order)
		return true

	default:
		metrics.SweepFailedTotal.Inc()
		attempts, recErr := s.store.RecordFailure(ctx, order.ID, err.Error())
		if recErr != nil {
			log.Printf("sweeper: record failure order=%s: %v", order.ID, recErr)
			return false
		}
		if attempts == s.alertAfter {
			// 升级而不是放弃：继续每轮重试，保住最终一致，但让运维看见。
			log.Printf("sweeper: ALERT order=%s failed %d consecutive syncs, last error: %v",
				order.ID, attempts, err)
		}
		return false
	}
}

// pushCustomer 把终端补录的客户字段回填到远端（尽力而为，失败不回滚同步状态）。
func (s *Sweeper) pushCustomer(ctx context.Context, order localstore.Order) {
	pusher, ok := s.committer.(CustomerPusher)
	if !ok {
		return
	}
	if order.CustomerName == "" && order.CustomerPhone == "" {
		return
	}
	if err := pusher.PushCustomer(ctx, order.ID, order.CustomerName, order.CustomerPhone); err != nil {
		log.Printf("sweeper: push customer order=%s: %v", order.ID, err)
	}
}
