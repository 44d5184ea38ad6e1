package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/solatis/rulekeeper/internal/core/api"
	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/metrics"
	"github.com/solatis/rulekeeper/internal/rules"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func newTestServer(t *testing.T, collector *metrics.Collector) (*GRPCServer, *grpc.ClientConn) {
	t.Helper()
	engine := rules.NewEngine(rules.WithObserver(collector))
	svc, err := api.NewService(engine, api.WithMetrics(collector))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	srv, err := NewGRPCServer(&config.Default().Server, svc, nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestNewGRPCServer_Validation(t *testing.T) {
	svc, err := api.NewService(rules.NewEngine())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if _, err := NewGRPCServer(nil, svc, nil); err == nil {
		t.Error("NewGRPCServer(nil cfg) error = nil, want error")
	}
	if _, err := NewGRPCServer(&config.Default().Server, nil, nil); err == nil {
		t.Error("NewGRPCServer(nil service) error = nil, want error")
	}
}

func TestGRPCServer_HealthAndShutdown(t *testing.T) {
	srv, conn := newTestServer(t, metrics.NewCollector(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health := grpc_health_v1.NewHealthClient(conn)
	for _, service := range []string{"", api.ServiceName} {
		resp, err := health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", service, err)
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %v, want SERVING", service, resp.Status)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestGRPCServer_EvaluateCountsMetrics(t *testing.T) {
	collector := metrics.NewCollector(nil)
	srv, conn := newTestServer(t, collector)
	defer srv.Shutdown(context.Background())

	req, err := structpb.NewStruct(map[string]any{"facts": map[string]any{}})
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	_, err = api.NewRuleServiceClient(conn).Evaluate(context.Background(), req)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("Evaluate() error = %v, want NotFound", err)
	}

	metricsLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	ms := NewMetricsServer(metricsLis.Addr().String(), collector.Handler(), nil)
	go func() { _ = ms.Serve(metricsLis) }()
	defer ms.Shutdown(context.Background())

	resp, err := http.Get("http://" + metricsLis.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `rulekeeper_evaluations_total{code="NotFound",mode="first"} 1`) {
		t.Errorf("metrics output missing NotFound evaluation:\n%s", body)
	}
}
