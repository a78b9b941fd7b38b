package invalidation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/nearby-business-search/internal/cache"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/keys"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/local"
	"github.com/mohammed-shakir/nearby-business-search/internal/cache/redisstore"
	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation"
	"github.com/mohammed-shakir/nearby-business-search/internal/invalidation/kafkaconsumer"
	h3mapper "github.com/mohammed-shakir/nearby-business-search/internal/mapper/h3"
)

const indexRes = 5

func coverage(t *testing.T, m *h3mapper.Mapper, p model.Coordinate, radiusM float64) (string, model.Cells) {
	t.Helper()
	cell, err := m.CellForPoint(p, 8)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	parent, err := m.ToParent(cell, indexRes)
	if err != nil {
		t.Fatalf("ToParent: %v", err)
	}
	cells, err := m.Disk(parent, h3mapper.RingsFor(radiusM, indexRes))
	if err != nil {
		t.Fatalf("Disk: %v", err)
	}
	return cell, cells
}

func TestIntegration_Miniredis_DeleteAndMetrics(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cli, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	l1 := local.New(16, time.Minute)
	store := cache.NewRedisStore(cli, time.Minute, indexRes, l1)
	m := h3mapper.New()

	stockholm := model.Coordinate{Lat: 59.3293, Lng: 18.0686}
	cell, cover := coverage(t, m, stockholm, 2000)
	near := keys.SearchKey(8, cell, 2000, "cafe")
	if err := store.Put(ctx, near, []model.BusinessRecord{{Name: "Espresso House"}}, cover); err != nil {
		t.Fatalf("Put near: %v", err)
	}

	gothenburg := model.Coordinate{Lat: 57.7089, Lng: 11.9746}
	farCell, farCover := coverage(t, m, gothenburg, 2000)
	far := keys.SearchKey(8, farCell, 2000, "cafe")
	if err := store.Put(ctx, far, []model.BusinessRecord{{Name: "Da Matteo"}}, farCover); err != nil {
		t.Fatalf("Put far: %v", err)
	}

	cons := kafkaconsumer.New(kafkaconsumer.Config{DedupeSize: 8}, nil, store, m, indexRes)

	// a single node edited a few hundred metres from the cached search centre
	ev := invalidation.Event{
		ID: "node/42@v7", Version: 1, Op: "update", TS: time.Now().UTC(),
		BBox: &invalidation.BBox{X1: 18.0710, Y1: 59.3310, X2: 18.0710, Y2: 59.3310, SRID: "EPSG:4326"},
	}
	body, _ := json.Marshal(ev)
	msg := &sarama.ConsumerMessage{Topic: "osm-changes", Partition: 0, Offset: 1, Value: body}

	if err := cons.ProcessOne(ctx, msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if mr.Exists(near) {
		t.Fatalf("expected %s to be deleted", near)
	}
	if _, ok := l1.Get(near); ok {
		t.Fatalf("expected local copy of %s to be removed", near)
	}
	if !mr.Exists(far) {
		t.Fatalf("search far from the change must survive")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	bodyStr := rr.Body.String()
	for _, s := range []string{
		`invalidation_events_total{op="update",result="ok"}`,
		"invalidation_keys_deleted_total",
		"invalidation_duration_seconds_bucket",
	} {
		if !strings.Contains(bodyStr, s) {
			t.Fatalf("metrics missing %q", s)
		}
	}
}
