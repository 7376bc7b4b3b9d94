package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dStruct/cmd/util"
	"github.com/ValentinKolb/dStruct/rpc/client"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dstruct servers",
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfTest is one benchmark. op runs one iteration in the given session, the
// counter is local to the goroutine running the session.
type perfTest struct {
	name    string
	prepare func(ctx context.Context, s *client.Session) error
	op      func(ctx context.Context, s *client.Session, counter int) error
}

// perfResult combines the benchmark result with the latency distribution
type perfResult struct {
	bench   testing.BenchmarkResult
	latency metrics.Timer
	errors  metrics.Counter
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of sessions running in parallel"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = util.SplitList(viper.GetString("skip"))

	return nil
}

func perfTests() []perfTest {
	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	fill := func(prefix string, value []byte) func(context.Context, *client.Session) error {
		return func(ctx context.Context, s *client.Session) error {
			return forEachKey(ctx, prefix, func(ctx context.Context, s *client.Session, key string) error {
				return s.Put(ctx, key, value)
			})
		}
	}

	return []perfTest{
		{
			name: "set",
			op: func(ctx context.Context, s *client.Session, i int) error {
				return s.Put(ctx, perfKey("set", i), []byte("test"))
			},
		},
		{
			name: "set-large",
			op: func(ctx context.Context, s *client.Session, i int) error {
				return s.Put(ctx, perfKey("set-large", i), largeValue)
			},
		},
		{
			name:    "get",
			prepare: fill("get", []byte("test")),
			op: func(ctx context.Context, s *client.Session, i int) error {
				_, _, err := s.Get(ctx, perfKey("get", i))
				return err
			},
		},
		{
			name: "incr",
			op: func(ctx context.Context, s *client.Session, i int) error {
				_, err := s.IncrBy(ctx, perfKey("incr", i), 1)
				return err
			},
		},
		{
			name: "hset",
			op: func(ctx context.Context, s *client.Session, i int) error {
				return s.HSet(ctx, perfKeyPrefix+"-hset", perfKey("field", i), []byte("test"))
			},
		},
		{
			name: "push-pop",
			op: func(ctx context.Context, s *client.Session, i int) error {
				key := perfKey("list", i)
				if _, err := s.RPush(ctx, key, []byte("test")); err != nil {
					return err
				}
				_, _, err := s.LPop(ctx, key)
				return err
			},
		},
		{
			name:    "txn",
			prepare: fill("txn", []byte("0")),
			op: func(ctx context.Context, s *client.Session, i int) error {
				key := perfKey("txn", i)
				if err := s.Begin(ctx); err != nil {
					return err
				}
				if _, _, err := s.Get(ctx, key); err != nil {
					_ = s.Rollback(ctx)
					return err
				}
				if err := s.Put(ctx, key, []byte(strconv.Itoa(i))); err != nil {
					_ = s.Rollback(ctx)
					return err
				}
				return s.Commit(ctx)
			},
		},
		{
			name:    "mixed",
			prepare: fill("mixed", []byte("test")),
			op: func(ctx context.Context, s *client.Session, i int) error {
				key := perfKey("mixed", i)
				switch i % 4 {
				case 0:
					return s.Put(ctx, key, []byte("test"))
				case 1:
					_, err := s.Exists(ctx, key)
					return err
				default:
					_, _, err := s.Get(ctx, key)
					return err
				}
			},
		},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dstruct servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := context.Background()
	results := make(map[string]perfResult)
	var order []string

	for _, test := range perfTests() {
		if shouldSkip(test.name) {
			printResult(test.name, perfResult{})
			continue
		}
		if test.prepare != nil {
			if err := test.prepare(ctx, rpcClient.Session()); err != nil {
				return fmt.Errorf("failed to prepare %s: %w", test.name, err)
			}
		}

		result := runPerfTest(ctx, test)
		results[test.name] = result
		order = append(order, test.name)
		printResult(test.name, result)
	}

	fmt.Println("\ncleaning up...")
	if err := cleanup(ctx); err != nil {
		fmt.Printf("cleanup failed: %v\n", err)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results, util.GetClientConfig()); err != nil {
			return err
		}
	}

	return nil
}

// runPerfTest runs test with one session per parallel goroutine
func runPerfTest(ctx context.Context, test perfTest) perfResult {
	result := perfResult{
		latency: metrics.NewTimer(),
		errors:  metrics.NewCounter(),
	}
	result.bench = testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			session := rpcClient.Session()
			defer session.Close(ctx)

			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := test.op(ctx, session, counter); err != nil {
					result.errors.Inc(1)
				}
				result.latency.UpdateSince(start)
				counter++
			}
		})
	})
	return result
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// perfKey returns the i-th test key of prefix (with wraparound)
func perfKey(prefix string, i int) string {
	return fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i%perfKeySpread)
}

// forEachKey runs fn for all test keys of prefix, spread across perfNumThreads sessions
func forEachKey(ctx context.Context, prefix string, fn func(context.Context, *client.Session, string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < perfNumThreads; t++ {
		g.Go(func() error {
			s := rpcClient.Session()
			defer s.Close(ctx)
			for i := t; i < perfKeySpread; i += perfNumThreads {
				if err := fn(ctx, s, perfKey(prefix, i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// cleanup deletes all keys the tests wrote
func cleanup(ctx context.Context) error {
	s := rpcClient.Session()
	defer s.Close(ctx)
	for _, prefix := range []string{"set", "set-large", "get", "incr", "txn", "mixed"} {
		if err := forEachKey(ctx, prefix, func(ctx context.Context, s *client.Session, key string) error {
			_, err := s.Del(ctx, key)
			return err
		}); err != nil {
			return err
		}
	}
	if err := forEachKey(ctx, "list", func(ctx context.Context, s *client.Session, key string) error {
		_, err := s.Do(ctx, "ldel", []byte(key))
		return err
	}); err != nil {
		return err
	}
	_, err := s.Do(ctx, "hdel", hsetCleanupArgs()...)
	return err
}

func hsetCleanupArgs() [][]byte {
	args := [][]byte{[]byte(perfKeyPrefix + "-hset")}
	for i := 0; i < perfKeySpread; i++ {
		args = append(args, []byte(perfKey("field", i)))
	}
	return args
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-12sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := result.latency.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-12s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\terrors %d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(p[0]), time.Duration(p[1]), result.errors.Count())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Errors",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	sort.Strings(order)
	for _, test := range order {
		result := results[test]
		nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)
		p := result.latency.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			time.Duration(p[0]).String(),
			time.Duration(p[1]).String(),
			strconv.FormatInt(result.errors.Count(), 10),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
