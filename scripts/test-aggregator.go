package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"log"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	pb "github.com/AltairaLabs/fxgb-worker/api/proto/v1"
)

// Drives a running worker through a full round the way an aggregator does.
// Start the worker with consent.mode=accept to run it unattended.

var (
	workerAddr = flag.String("addr", "localhost:50051", "Worker address")
	caFile     = flag.String("ca", "certs/server.crt", "CA certificate used to verify the worker")
	serverName = flag.String("server-name", "", "Override the TLS server name")
	trackerURI = flag.String("tracker", "127.0.0.1", "Rabit tracker host")
	trackerPrt = flag.Int("tracker-port", 9091, "Rabit tracker port")
	jobCmd     = flag.String("job", "echo job", "Command proposed with StartJob")
)

const numConcurrent = 4

type TestResult struct {
	Call     string
	Success  bool
	Duration time.Duration
	Error    error
}

func main() {
	flag.Parse()

	log.Println("🧪 Aggregator Round Trip Test")
	log.Println("=============================")

	creds, err := loadCredentials(*caFile, *serverName)
	if err != nil {
		log.Fatalf("Failed to load CA certificate: %v", err)
	}

	conn, err := grpc.NewClient(*workerAddr, grpc.WithTransportCredentials(creds))
	if err != nil {
		log.Fatalf("Failed to connect to worker: %v", err)
	}
	defer conn.Close()

	client := pb.NewFXGBWorkerClient(conn)
	ctx := context.Background()

	// Phase 1: one full round
	log.Println("\n📋 Phase 1: StartJob, Init, Train...")
	results := []TestResult{
		call("StartJob", func() (*pb.WorkerResponse, error) {
			return client.StartJob(ctx, &pb.JobRequest{Cmd: *jobCmd, Password: "smoke-test"})
		}),
		call("Init", func() (*pb.WorkerResponse, error) {
			return client.Init(ctx, &pb.InitRequest{Env: sessionEnv()})
		}),
		call("Train", func() (*pb.WorkerResponse, error) {
			return client.Train(ctx, &pb.Empty{})
		}),
	}

	// Phase 2: concurrent calls are answered one at a time
	log.Printf("\n📋 Phase 2: %d concurrent Init calls...", numConcurrent)
	results = append(results, concurrentInits(ctx, client, numConcurrent)...)

	// Phase 3: a second Train needs a fresh Init first
	log.Println("\n📋 Phase 3: Train again after the concurrent Inits...")
	results = append(results, call("Train", func() (*pb.WorkerResponse, error) {
		return client.Train(ctx, &pb.Empty{})
	}))

	log.Println("\n📋 Phase 4: Analyzing results...")
	analyzeResults(results)
}

func loadCredentials(caPath, name string) (credentials.TransportCredentials, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(pem)
	return credentials.NewTLS(&tls.Config{
		RootCAs:    pool,
		ServerName: name,
		MinVersion: tls.VersionTLS12,
	}), nil
}

func sessionEnv() *pb.Env {
	host, _ := os.Hostname()
	return &pb.Env{
		TrackerURI:  *trackerURI,
		TrackerPort: int32(*trackerPrt), //nolint:gosec // flag value, port range
		Role:        "worker",
		NodeHost:    host,
		NumWorker:   1,
		NumServer:   0,
	}
}

func call(name string, fn func() (*pb.WorkerResponse, error)) TestResult {
	start := time.Now()
	resp, err := fn()
	r := TestResult{Call: name, Duration: time.Since(start), Error: err}
	if err == nil {
		r.Success = resp.Success
	}
	if r.Success {
		log.Printf("  ✓ %s succeeded in %v", name, r.Duration)
	} else {
		log.Printf("  ❌ %s failed (err=%v) in %v", name, err, r.Duration)
	}
	return r
}

func concurrentInits(ctx context.Context, client pb.FXGBWorkerClient, count int) []TestResult {
	results := make([]TestResult, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = call("Init", func() (*pb.WorkerResponse, error) {
				return client.Init(ctx, &pb.InitRequest{Env: sessionEnv()})
			})
		}(i)
	}
	wg.Wait()
	return results
}

func analyzeResults(results []TestResult) {
	successful := 0
	var totalDuration time.Duration
	for _, r := range results {
		if r.Success {
			successful++
		}
		totalDuration += r.Duration
	}

	log.Printf("\n📈 Results Summary:")
	log.Printf("  Total Calls: %d", len(results))
	log.Printf("  Successful: %d", successful)
	log.Printf("  Failed: %d", len(results)-successful)
	if len(results) > 0 {
		log.Printf("  Avg Duration: %v", totalDuration/time.Duration(len(results)))
	}
}
