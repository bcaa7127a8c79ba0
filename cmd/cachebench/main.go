package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/cacheperf"
	"github.com/d60-Lab/sendables/internal/model"
)

type request struct {
	page int
	size int
}

func main() {
	ctx := context.Background()

	// Use PostgreSQL for realistic testing
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=postgres port=5434 sslmode=disable"
	}

	db := must(gorm.Open(postgres.Open(dsn), &gorm.Config{}))

	// Clean up existing test data
	mustDo(db.Exec("DROP TABLE IF EXISTS received_sendables CASCADE").Error)
	mustDo(db.Exec("DROP TABLE IF EXISTS messages CASCADE").Error)
	mustDo(db.Exec("DROP TABLE IF EXISTS users CASCADE").Error)

	mustDo(db.AutoMigrate(&model.User{}, &model.Message{}, &model.ReceivedSendable{}))

	const (
		inboxSize  = 10000 // copies per recipient
		ttlMinutes = 10
		dbDelay    = 0 * time.Millisecond // No artificial delay with real DB
	)

	fmt.Println("Setting up test data...")

	sender := model.User{Username: "sender", Email: "sender@example.com", Password: "secret"}
	mustDo(db.Create(&sender).Error)
	recipients := make([]model.User, 3)
	for i := range recipients {
		recipients[i] = model.User{
			Username: fmt.Sprintf("recipient_%d", i),
			Email:    fmt.Sprintf("recipient_%d@example.com", i),
			Password: "secret",
		}
	}
	mustDo(db.Create(&recipients).Error)

	base := time.Now().UTC()
	for _, recipient := range recipients {
		messages := make([]model.Message, inboxSize)
		for i := range messages {
			messages[i] = model.Message{
				SendableCore: model.SendableCore{
					Content: fmt.Sprintf("message %d for %s", i, recipient.Username),
					SentOn:  base.Add(-time.Duration(i) * time.Second),
				},
				SenderID: &sender.ID,
			}
		}
		mustDo(db.CreateInBatches(&messages, 1000).Error)

		refs := make([]model.ReceivedSendable, inboxSize)
		for i := range refs {
			refs[i] = model.ReceivedSendable{
				RecipientID: recipient.ID,
				EntityType:  "message",
				SendableID:  messages[i].ID,
				CreatedAt:   base.Add(-time.Duration(i) * time.Second),
			}
		}
		mustDo(db.CreateInBatches(&refs, 1000).Error)
	}
	fmt.Println("Test data ready: 3 recipients with 10k inbox copies each")

	// Use real Redis
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6380"
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	svc := cacheperf.NewInboxService(db, client, "message", "messages", ttlMinutes*time.Minute, dbDelay)

	// Mix requests from the 3 recipients
	allReqs := make([]struct {
		recipientID uint
		req         request
	}, 0, 9000)
	for _, recipient := range recipients {
		for _, r := range makeRequests(3000) {
			allReqs = append(allReqs, struct {
				recipientID uint
				req         request
			}{recipient.ID, r})
		}
	}

	noCache := runScenario(ctx, svc, allReqs, false, func(ctx context.Context, recipientID uint, r request) ([]cacheperf.InboxSnapshot, error) {
		return svc.FetchInboxNoCache(ctx, recipientID, r.page, r.size)
	}, client)

	naive := runScenario(ctx, svc, allReqs, true, func(ctx context.Context, recipientID uint, r request) ([]cacheperf.InboxSnapshot, error) {
		return svc.FetchInboxNaiveCache(ctx, recipientID, r.page, r.size)
	}, client)

	optimized := runScenario(ctx, svc, allReqs, true, func(ctx context.Context, recipientID uint, r request) ([]cacheperf.InboxSnapshot, error) {
		return svc.FetchInboxOptimized(ctx, recipientID, r.page, r.size)
	}, client)

	fmt.Println("\nInbox page latency (9k req across 3 recipients, 30k copies, PostgreSQL + Redis)")
	for _, row := range []struct {
		label  string
		result scenarioResult
	}{
		{"No cache", noCache},
		{"Naive page cache", naive},
		{"Optimized cache", optimized},
	} {
		fmt.Printf("%-18s avg=%v p95=%v p99=%v db_page=%d db_index=%d db_items=%d cache_keys=%d mem=%s\n",
			row.label, avg(row.result.durations), pct(row.result.durations, 0.95), pct(row.result.durations, 0.99),
			row.result.counters.PageQueries, row.result.counters.IndexLoads, row.result.counters.ItemLoads,
			row.result.cacheKeys, formatBytes(row.result.memoryBytes),
		)
	}
}

type scenarioResult struct {
	durations   []time.Duration
	counters    cacheperf.InboxDBCounters
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, svc *cacheperf.InboxService, reqs []struct {
	recipientID uint
	req         request
}, warm bool, call func(context.Context, uint, request) ([]cacheperf.InboxSnapshot, error), client *redis.Client) scenarioResult {
	// Clear Redis
	client.FlushAll(ctx)
	svc.ResetCounters()

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			if _, err := call(ctx, r.recipientID, r.req); err != nil {
				panic(err)
			}
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		if _, err := call(ctx, r.recipientID, r.req); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "*").Result()

	// Get real Redis memory stats
	info, err := client.Info(ctx, "memory").Result()
	var memBytes int64
	if err == nil {
		memBytes = parseRedisMemory(info)
	}

	return scenarioResult{
		durations:   out,
		counters:    svc.Counters(),
		cacheKeys:   len(keys),
		memoryBytes: memBytes,
	}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	lines := []rune(info)
	var result int64

	for i := 0; i < len(lines); {
		if i+12 < len(lines) && string(lines[i:i+12]) == "used_memory:" {
			i += 12
			var num int64
			for i < len(lines) && lines[i] >= '0' && lines[i] <= '9' {
				num = num*10 + int64(lines[i]-'0')
				i++
			}
			result = num
			break
		}
		i++
	}
	return result
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func makeRequests(n int) []request {
	sizes := []int{20, 40, 60}
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		size := sizes[rnd.Intn(len(sizes))]
		page := 1
		if rnd.Float64() > 0.72 {
			// simulate deep pagination or different views
			page = 2 + rnd.Intn(120)
		}
		out[i] = request{page: page, size: size}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
