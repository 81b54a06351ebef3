package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	protov1 "github.com/AltairaLabs/fxgb-worker/api/proto/v1"
	"github.com/AltairaLabs/fxgb-worker/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSelfSignedCert creates a localhost certificate and key in dir.
func writeSelfSignedCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,

		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

type peerEchoServer struct {
	protov1.UnimplementedFXGBWorkerServer
	peers chan string
}

func (s *peerEchoServer) Init(ctx context.Context, _ *protov1.InitRequest) (*protov1.WorkerResponse, error) {
	if p, ok := peer.FromContext(ctx); ok {
		s.peers <- p.Addr.String()
	}
	return &protov1.WorkerResponse{Success: true}, nil
}

func TestServerCredentialsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := ServerCredentials(filepath.Join(dir, "none.crt"), filepath.Join(dir, "none.key")); err == nil {
		t.Error("Expected error for missing key pair")
	}
}

func TestTLSRoundTrip(t *testing.T) {
	certFile, keyFile := writeSelfSignedCert(t, t.TempDir())

	creds, err := ServerCredentials(certFile, keyFile)
	if err != nil {
		t.Fatalf("ServerCredentials failed: %v", err)
	}

	srv := NewServer(Options{Credentials: creds, Logger: testLogger()})
	svc := &peerEchoServer{peers: make(chan string, 1)}
	protov1.RegisterFXGBWorkerServer(srv, svc)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, lis, time.Second) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve returned %v", err)
		}
	}()

	clientCreds, err := credentials.NewClientTLSFromFile(certFile, "localhost")
	if err != nil {
		t.Fatalf("client creds: %v", err)
	}
	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(clientCreds))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer conn.Close()

	resp, err := protov1.NewFXGBWorkerClient(conn).Init(context.Background(), &protov1.InitRequest{})
	if err != nil {
		t.Fatalf("Init over TLS failed: %v", err)
	}
	if !resp.Success {
		t.Error("Expected success")
	}
	if got := <-svc.peers; got == "" {
		t.Error("Expected peer address in handler context")
	}

	// unimplemented methods still answer with a status
	_, err = protov1.NewFXGBWorkerClient(conn).Train(context.Background(), &protov1.Empty{})
	if status.Code(err) != codes.Unimplemented {
		t.Errorf("Expected Unimplemented, got %v", err)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(testLogger())
	info := &grpc.UnaryServerInfo{FullMethod: protov1.TrainFullMethod}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if resp != nil {
		t.Errorf("Expected nil response, got %v", resp)
	}
	if status.Code(err) != codes.Internal {
		t.Errorf("Expected Internal, got %v", err)
	}
}

func TestMetricsInterceptorRecords(t *testing.T) {
	m := metrics.NewCollector("fxgb_test")
	interceptor := MetricsInterceptor(m)
	info := &grpc.UnaryServerInfo{FullMethod: protov1.InitFullMethod}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// nil collector must be tolerated
	_, err = MetricsInterceptor(nil)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggingInterceptorPassesThrough(t *testing.T) {
	interceptor := LoggingInterceptor(testLogger())
	info := &grpc.UnaryServerInfo{FullMethod: protov1.StartJobFullMethod}
	want := status.Error(codes.Canceled, "gone")

	resp, err := interceptor(context.Background(), "req", info, func(_ context.Context, req any) (any, error) {
		return req, want
	})
	if resp != "req" || err != want {
		t.Errorf("Expected handler result to pass through, got %v %v", resp, err)
	}
}
