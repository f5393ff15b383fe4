package order_api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStreamDeliversEvents(t *testing.T) {
	emitter := sse.NewOrderEventEmitter()
	h := NewSSEHandler(logger.Discard(), emitter)
	r := chi.NewRouter()
	r.Route("/admin", h.RegisterAdminRoutes)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/admin/orders/stream?product_id=p-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return emitter.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	emitter.Emit(models.OrderEvent{Type: models.EventOrderPaid, OrderID: "o-1", ProductID: "p-1"})

	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: order.") || strings.HasPrefix(line, "data: {\"type\"") {
			got = append(got, line)
		}
	}
	assert.Equal(t, "event: order.paid\n", got[0])
	assert.Contains(t, got[1], `"order_id":"o-1"`)
}
