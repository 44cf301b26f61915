package reconciler

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"stockguard/internal/hub"
	"stockguard/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logg := logrus.New()
	logg.SetOutput(io.Discard)
	return logg
}

func newTestReconciler() *Reconciler {
	return New(Config{AlertWindow: time.Hour, Logger: quietLogger()})
}

func uintPtr(v uint) *uint { return &v }

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestApplyTransformations(t *testing.T) {
	widget := model.Product{ID: 1, Name: "Widget", Price: 9.99, Quantity: 3, LowStockThreshold: 5}
	gadget := model.Product{ID: 2, Name: "Gadget", Quantity: 10, LowStockThreshold: 5}
	tools := model.Category{ID: 7, Name: "Tools"}

	tests := []struct {
		name  string
		seed  func(r *Reconciler)
		raw   any
		check func(t *testing.T, s Snapshot)
	}{
		{
			name: "status replaces server status",
			raw:  hub.StatusEnvelope{Type: "status", Timestamp: "2026-01-01T00:00:00Z", Status: "Online", ConnectedClients: 2},
			check: func(t *testing.T, s Snapshot) {
				require.NotNil(t, s.Status)
				require.Equal(t, 2, s.Status.ConnectedClients)
				require.Equal(t, "Online", s.Status.Status)
			},
		},
		{
			name: "alert replaces current alert",
			raw:  hub.AlertEnvelope{Type: "alert", Product: "Widget", Message: "low"},
			check: func(t *testing.T, s Snapshot) {
				require.NotNil(t, s.Alert)
				require.Equal(t, "Widget", s.Alert.Product)
			},
		},
		{
			name: "product_created appends",
			raw:  hub.NewProductEvent(hub.TypeProductCreated, widget),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Products, 1)
				require.Equal(t, "Widget", s.Products[0].Name)
			},
		},
		{
			name: "product_updated replaces matching identity",
			seed: func(r *Reconciler) { r.products = []model.Product{widget, gadget} },
			raw: hub.NewProductEvent(hub.TypeProductUpdated,
				model.Product{ID: 1, Name: "Widget v2", Quantity: 8, LowStockThreshold: 5}),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Products, 2)
				require.Equal(t, "Widget v2", s.Products[0].Name)
				require.Equal(t, "Gadget", s.Products[1].Name)
			},
		},
		{
			name: "product_updated unknown identity is a no-op",
			seed: func(r *Reconciler) { r.products = []model.Product{widget} },
			raw:  hub.NewProductEvent(hub.TypeProductUpdated, model.Product{ID: 99, Name: "Ghost"}),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Products, 1)
				require.Equal(t, "Widget", s.Products[0].Name)
			},
		},
		{
			name: "product_deleted removes matching identity",
			seed: func(r *Reconciler) { r.products = []model.Product{widget, gadget} },
			raw:  hub.NewProductDeleted(1),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Products, 1)
				require.Equal(t, uint(2), s.Products[0].ID)
			},
		},
		{
			name: "product_deleted unknown identity is a no-op",
			seed: func(r *Reconciler) { r.products = []model.Product{widget} },
			raw:  hub.NewProductDeleted(99),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Products, 1)
			},
		},
		{
			name: "category_created appends",
			raw:  hub.NewCategoryEvent(hub.TypeCategoryCreated, tools),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Categories, 1)
				require.Equal(t, "Tools", s.Categories[0].Name)
			},
		},
		{
			name: "category_updated replaces matching identity",
			seed: func(r *Reconciler) { r.categories = []model.Category{tools} },
			raw:  hub.NewCategoryEvent(hub.TypeCategoryUpdated, model.Category{ID: 7, Name: "Hand Tools"}),
			check: func(t *testing.T, s Snapshot) {
				require.Len(t, s.Categories, 1)
				require.Equal(t, "Hand Tools", s.Categories[0].Name)
			},
		},
		{
			name: "category_deleted removes and detaches products",
			seed: func(r *Reconciler) {
				r.categories = []model.Category{tools}
				attached := widget
				attached.ID = 42
				attached.CategoryID = uintPtr(7)
				attached.Category = &tools
				r.products = []model.Product{attached, gadget}
			},
			raw: hub.NewCategoryDeleted(7),
			check: func(t *testing.T, s Snapshot) {
				require.Empty(t, s.Categories)
				require.Len(t, s.Products, 2)
				require.Nil(t, s.Products[0].CategoryID)
				require.Nil(t, s.Products[0].Category)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler()
			if tt.seed != nil {
				tt.seed(r)
			}
			r.Apply(mustMarshal(t, tt.raw))
			tt.check(t, r.Snapshot())
		})
	}
}

func TestApplyIgnoresUnknownAndMalformed(t *testing.T) {
	var applied []string
	r := New(Config{
		AlertWindow: time.Hour,
		Logger:      quietLogger(),
		OnApply:     func(typ string) { applied = append(applied, typ) },
	})
	r.products = []model.Product{{ID: 1, Name: "Widget"}}

	r.Apply([]byte(`{"type":"totally_new_event","payload":123}`))
	r.Apply([]byte(`not json at all`))
	r.Apply([]byte(`{"type":"product_updated","product":"not an object"}`))

	s := r.Snapshot()
	require.Len(t, s.Products, 1)
	require.Equal(t, "Widget", s.Products[0].Name)
	require.Empty(t, applied)
}

func TestApplyConvergenceAcrossClients(t *testing.T) {
	// 同一事件序列在两个独立客户端上收敛到同一状态。
	events := [][]byte{
		mustMarshal(t, hub.NewCategoryEvent(hub.TypeCategoryCreated, model.Category{ID: 7, Name: "Tools"})),
		mustMarshal(t, hub.NewProductEvent(hub.TypeProductCreated,
			model.Product{ID: 1, Name: "Widget", Price: 9.99, Quantity: 3, LowStockThreshold: 5, CategoryID: uintPtr(7)})),
		mustMarshal(t, hub.AlertEnvelope{Type: "alert", Product: "Widget", Message: "low stock"}),
		mustMarshal(t, hub.NewCategoryDeleted(7)),
	}

	a := newTestReconciler()
	b := newTestReconciler()
	for _, e := range events {
		a.Apply(e)
		b.Apply(e)
	}

	for _, r := range []*Reconciler{a, b} {
		s := r.Snapshot()
		require.Len(t, s.Products, 1)
		require.Equal(t, "Widget", s.Products[0].Name)
		require.Nil(t, s.Products[0].CategoryID)
		require.Empty(t, s.Categories)
		require.NotNil(t, s.Alert)
		require.Equal(t, "Widget", s.Alert.Product)
	}
}

func TestAlertAutoClear(t *testing.T) {
	r := New(Config{AlertWindow: 200 * time.Millisecond, Logger: quietLogger()})

	r.Apply(mustMarshal(t, hub.AlertEnvelope{Type: "alert", Product: "Widget", Message: "low"}))
	require.NotNil(t, r.Snapshot().Alert)

	require.Eventually(t, func() bool { return r.Snapshot().Alert == nil },
		time.Second, 20*time.Millisecond)
}

func TestAlertSupersededBeforeClear(t *testing.T) {
	r := New(Config{AlertWindow: 200 * time.Millisecond, Logger: quietLogger()})

	r.Apply(mustMarshal(t, hub.AlertEnvelope{Type: "alert", Product: "Widget", Message: "low"}))
	time.Sleep(100 * time.Millisecond)
	r.Apply(mustMarshal(t, hub.AlertEnvelope{Type: "alert", Product: "Gadget", Message: "low"}))

	// 第一条的清除窗口已过，但最新预警是第二条，必须还在。
	time.Sleep(150 * time.Millisecond)
	s := r.Snapshot()
	require.NotNil(t, s.Alert)
	require.Equal(t, "Gadget", s.Alert.Product)

	// 第二条窗口过后全部清空。
	require.Eventually(t, func() bool { return r.Snapshot().Alert == nil },
		time.Second, 20*time.Millisecond)
}
